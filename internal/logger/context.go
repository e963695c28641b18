package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one router decision
// (an inbound control event or an app feedback event).
type LogContext struct {
	TraceID   string    // correlation id for one inbound/outbound round trip
	App       string    // driver name the event concerns (empty for surface-only events)
	Page      string    // active page name at the time the event was handled
	ControlID string    // logical control identifier, if resolved
	Epoch     uint64    // page epoch the event was evaluated under
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given page.
func NewLogContext(page string) *LogContext {
	return &LogContext{
		Page:      page,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		App:       lc.App,
		Page:      lc.Page,
		ControlID: lc.ControlID,
		Epoch:     lc.Epoch,
		StartTime: lc.StartTime,
	}
}

// WithApp returns a copy with the app set
func (lc *LogContext) WithApp(app string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.App = app
	}
	return clone
}

// WithControl returns a copy with the control id set
func (lc *LogContext) WithControl(controlID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ControlID = controlID
	}
	return clone
}

// WithEpoch returns a copy with the page epoch set
func (lc *LogContext) WithEpoch(epoch uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Epoch = epoch
	}
	return clone
}

// WithTrace returns a copy with the trace id set
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
