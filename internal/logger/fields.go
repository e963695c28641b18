package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Correlation
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id for one inbound/outbound round trip

	// ========================================================================
	// Routing context
	// ========================================================================
	KeyApp       = "app"        // driver name: mixer, lights, switcher, ...
	KeyPage      = "page"       // active page name
	KeyControlID = "control_id" // logical control identifier (fader3, vpot1_push, ...)
	KeyEpoch     = "epoch"      // page epoch an operation was planned/evaluated under
	KeyAction    = "action"     // driver action name dispatched by a binding

	// ========================================================================
	// MIDI address / message
	// ========================================================================
	KeyFamily  = "family"  // status-family: pb, cc, note, sysex, other
	KeyChannel = "channel" // MIDI channel 0-15
	KeyData1   = "data1"   // first data byte (CC number, note number)
	KeyValue   = "value"   // decoded value (14-bit or 7-bit)
	KeyMode    = "mode"    // surface mode: pb-fader, cc-fader

	// ========================================================================
	// Anti-echo / squelch
	// ========================================================================
	KeySquelched   = "squelched"    // event arrived inside a squelch window
	KeySuppressed  = "suppressed"   // anti-echo/LWW suppression outcome
	KeyReason      = "reason"       // suppression reason: shadow, lww, none
	KeyWindowMs    = "window_ms"    // suppression window applied
	KeySinceMs     = "since_ms"     // elapsed time since the compared event

	// ========================================================================
	// Surface I/O
	// ========================================================================
	KeyEndpoint  = "endpoint"   // wire endpoint name matched
	KeyDirection = "direction"  // in, out
	KeyRetry     = "retry"      // setpoint retry attempt number
	KeyMaxRetry  = "max_retry"  // maximum setpoint retries

	// ========================================================================
	// Driver lifecycle
	// ========================================================================
	KeyStatus       = "status"        // connection status: disconnected, connecting, connected, error
	KeyAttempt      = "attempt"       // reconnect attempt number
	KeyBackoffMs    = "backoff_ms"    // computed back-off delay

	// ========================================================================
	// Persistence
	// ========================================================================
	KeyStoreKey = "store_key" // badger key for a persisted entry
	KeyStale    = "stale"     // entry loaded from persistence without confirmation
	KeyCount    = "count"     // generic item count (entries hydrated, outputs planned, ...)

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric/symbolic error code
)

// TraceID returns a slog.Attr for the round-trip correlation id.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// App returns a slog.Attr for the driver name.
func App(name string) slog.Attr {
	return slog.String(KeyApp, name)
}

// Page returns a slog.Attr for the active page name.
func Page(name string) slog.Attr {
	return slog.String(KeyPage, name)
}

// ControlID returns a slog.Attr for a logical control identifier.
func ControlID(id string) slog.Attr {
	return slog.String(KeyControlID, id)
}

// Epoch returns a slog.Attr for the page epoch.
func Epoch(e uint64) slog.Attr {
	return slog.Uint64(KeyEpoch, e)
}

// Action returns a slog.Attr for a driver action name.
func Action(name string) slog.Attr {
	return slog.String(KeyAction, name)
}

// Family returns a slog.Attr for a MIDI status-family.
func Family(f string) slog.Attr {
	return slog.String(KeyFamily, f)
}

// Channel returns a slog.Attr for a MIDI channel.
func Channel(ch int) slog.Attr {
	return slog.Int(KeyChannel, ch)
}

// Data1 returns a slog.Attr for a MIDI data1 byte.
func Data1(d int) slog.Attr {
	return slog.Int(KeyData1, d)
}

// Value returns a slog.Attr for a decoded MIDI value.
func Value(v int) slog.Attr {
	return slog.Int(KeyValue, v)
}

// Mode returns a slog.Attr for the surface mode.
func Mode(m string) slog.Attr {
	return slog.String(KeyMode, m)
}

// Squelched returns a slog.Attr reporting whether an event fell in a squelch window.
func Squelched(b bool) slog.Attr {
	return slog.Bool(KeySquelched, b)
}

// Suppressed returns a slog.Attr reporting an anti-echo/LWW decision.
func Suppressed(b bool) slog.Attr {
	return slog.Bool(KeySuppressed, b)
}

// Reason returns a slog.Attr naming a suppression reason.
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// WindowMs returns a slog.Attr for a suppression window in milliseconds.
func WindowMs(ms int64) slog.Attr {
	return slog.Int64(KeyWindowMs, ms)
}

// SinceMs returns a slog.Attr for elapsed milliseconds since a compared event.
func SinceMs(ms int64) slog.Attr {
	return slog.Int64(KeySinceMs, ms)
}

// Endpoint returns a slog.Attr for a matched wire endpoint name.
func Endpoint(name string) slog.Attr {
	return slog.String(KeyEndpoint, name)
}

// Direction returns a slog.Attr for I/O direction ("in"/"out").
func Direction(dir string) slog.Attr {
	return slog.String(KeyDirection, dir)
}

// Retry returns a slog.Attr for a retry attempt number.
func Retry(n int) slog.Attr {
	return slog.Int(KeyRetry, n)
}

// MaxRetry returns a slog.Attr for the maximum retry count.
func MaxRetry(n int) slog.Attr {
	return slog.Int(KeyMaxRetry, n)
}

// Status returns a slog.Attr for a driver connection status.
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// Attempt returns a slog.Attr for a reconnect attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// BackoffMs returns a slog.Attr for a computed back-off delay.
func BackoffMs(ms int64) slog.Attr {
	return slog.Int64(KeyBackoffMs, ms)
}

// StoreKey returns a slog.Attr for a persistence key.
func StoreKey(k string) slog.Attr {
	return slog.String(KeyStoreKey, k)
}

// Stale returns a slog.Attr reporting whether an entry is unconfirmed-since-hydration.
func Stale(b bool) slog.Attr {
	return slog.Bool(KeyStale, b)
}

// Count returns a slog.Attr for a generic item count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Err returns a slog.Attr for an error value, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a symbolic error code.
func ErrorCode(code fmt.Stringer) slog.Attr {
	return slog.String(KeyErrorCode, code.String())
}
