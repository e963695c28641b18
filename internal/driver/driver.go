// Package driver defines the uniform contract every app-facing driver
// implements, and the registry the Router uses to dispatch actions and
// collect feedback by app name.
package driver

import (
	"context"

	"github.com/juliencr/xtouch-gw/internal/config"
)

// Param is one positional argument to an Execute call, resolved from the
// config-level ControlBinding.Params list plus any runtime context the
// Router attaches (e.g. a fader's 0-16383 value).
type Param struct {
	Name  string
	Value string
}

// Context carries the Router-side information an Execute call may need
// beyond the action name and its params: which control produced the
// action and the raw MIDI value that triggered it, so a driver can scale
// or interpret it without the Router needing to know the driver's domain.
type Context struct {
	ControlID string
	Raw14     uint16 // 0 if the triggering message was not a 14-bit value
	Raw7      uint8  // 0 if the triggering message was not a 7-bit value
}

// Result is what Execute returns on success. A driver that produces no
// useful result returns a zero Result.
type Result struct {
	Message string
}

// Status is the driver's last-known connection state, surfaced to
// telemetry/health and to the Router's own logging.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FeedbackEvent is an unsolicited state change a driver reports for the
// Router to route back to the surface, per spec.md §4.7's outbound path.
type FeedbackEvent struct {
	ControlID  string
	Value14    uint16
	HasValue14 bool
	Value7     uint8
	HasValue7  bool
	On         bool // for indicator/LED-style feedback
	HasOn      bool

	// Raw carries already-encoded wire bytes for raw-MIDI-bridge drivers,
	// which report feedback as wire frames rather than a resolved
	// ControlID/value pair. The Router parses Raw and reverse-resolves it
	// through the Control Map the same as any other driver's feedback
	// (spec.md §9: "no special case").
	Raw []byte
}

// IndicatorHint is a coarse driver-originated hint (e.g. "channel 3 is
// soloed") that the Router may translate into one or more surface
// outputs without a 1:1 control mapping.
type IndicatorHint struct {
	Key   string
	Value string
}

// Driver is the contract every app-facing driver implements: a uniform
// async interface over whatever wire protocol or SDK sits underneath.
// Implementations must be safe for concurrent use; Execute may be called
// from multiple goroutines (one per inbound surface event) and feedback
// may arrive at any time after Init.
type Driver interface {
	// Name is the driver's app identifier, matching the "app" field of
	// config ControlBindings and AppConfig entries.
	Name() string

	// Init prepares the driver using snap (the full configuration
	// snapshot, not a per-app subset). It must not block past
	// establishing whatever initial connection is appropriate; ongoing
	// reconnection happens in the background and is reported through
	// ConnectionStatus/SubscribeConnectionStatus.
	Init(ctx context.Context, snap config.Snapshot) error

	// Execute dispatches one action with its resolved params. It must
	// return promptly; long-running work should be handled
	// asynchronously with the result (or a FeedbackEvent) delivered
	// later if Execute cannot complete synchronously.
	Execute(ctx context.Context, action string, params []Param, dctx Context) (Result, error)

	// SubscribeFeedback registers sink to receive unsolicited per-control
	// state changes (e.g. a DAW reporting a fader move from automation).
	// Drivers with nothing to report embed BaseDriver, whose default
	// implementation is a no-op, mirroring the teacher's BaseAdapter
	// stub pattern rather than a type-asserted optional interface.
	SubscribeFeedback(sink chan<- FeedbackEvent)

	// SubscribeIndicators registers sink to receive coarse indicator
	// hints the Router may translate into one or more surface outputs
	// without a 1:1 control mapping. Default is a no-op; see
	// SubscribeFeedback.
	SubscribeIndicators(sink chan<- IndicatorHint)

	// ConnectionStatus returns the driver's current connection state.
	ConnectionStatus() Status

	// SubscribeConnectionStatus registers cb to be called whenever the
	// driver's connection status changes. cb must not block.
	SubscribeConnectionStatus(cb func(Status))

	// Close releases any resources held by the driver.
	Close() error
}
