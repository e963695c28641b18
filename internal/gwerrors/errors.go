// Package gwerrors defines the gateway's domain error shape, distinguishing
// expected operational conditions (driver not ready, unknown app, no
// binding) from unexpected ones, so callers can branch on Code rather than
// string-matching error text.
package gwerrors

import "fmt"

// ErrorCode categorizes a GatewayError. Callers switch on Code, never on
// the Message text.
type ErrorCode int

const (
	// ErrNotReady indicates a driver or surface endpoint has not completed
	// its initial connection/handshake.
	ErrNotReady ErrorCode = iota

	// ErrParse indicates a malformed or truncated wire frame was dropped.
	ErrParse

	// ErrUnknownApp indicates an operation named an app with no registered
	// driver.
	ErrUnknownApp

	// ErrNoBinding indicates a control fired with no binding for the
	// current page.
	ErrNoBinding

	// ErrExecution indicates a driver's Execute call returned an error or
	// panicked; the core recovers and logs this rather than propagating.
	ErrExecution

	// ErrClosed indicates an operation was attempted on an actor or driver
	// that has already shut down.
	ErrClosed

	// ErrInvalidArgument indicates invalid parameters were supplied to an
	// operation (e.g. an out-of-range channel or data value).
	ErrInvalidArgument

	// ErrTimeout indicates a bounded wait (setpoint confirmation, driver
	// handshake) exceeded its deadline.
	ErrTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotReady:
		return "not_ready"
	case ErrParse:
		return "parse"
	case ErrUnknownApp:
		return "unknown_app"
	case ErrNoBinding:
		return "no_binding"
	case ErrExecution:
		return "execution"
	case ErrClosed:
		return "closed"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// GatewayError is the gateway's uniform domain error. Addr and App are
// populated when the error is attributable to a specific control or
// application; both are zero values otherwise.
type GatewayError struct {
	Code    ErrorCode
	Message string
	App     string
	Addr    string // formatted Addr, kept as a string to avoid an import cycle with controlmap
}

func (e *GatewayError) Error() string {
	switch {
	case e.App != "" && e.Addr != "":
		return fmt.Sprintf("%s: %s (app=%s addr=%s)", e.Code, e.Message, e.App, e.Addr)
	case e.App != "":
		return fmt.Sprintf("%s: %s (app=%s)", e.Code, e.Message, e.App)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Is supports errors.Is comparisons against a code-only GatewayError, e.g.
// errors.Is(err, gwerrors.NotReady()).
func (e *GatewayError) Is(target error) bool {
	other, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// NotReady builds a code-only GatewayError for errors.Is comparisons.
func NotReady() *GatewayError { return &GatewayError{Code: ErrNotReady} }

// NewNotReady reports that a driver or endpoint is not yet ready.
func NewNotReady(message string) *GatewayError {
	return &GatewayError{Code: ErrNotReady, Message: message}
}

// NewParseError reports a dropped malformed/truncated frame.
func NewParseError(message string) *GatewayError {
	return &GatewayError{Code: ErrParse, Message: message}
}

// NewUnknownApp reports an operation against an unregistered app.
func NewUnknownApp(app string) *GatewayError {
	return &GatewayError{Code: ErrUnknownApp, Message: "unknown application", App: app}
}

// NewNoBinding reports a fired control with no binding on the current page.
func NewNoBinding(addr string) *GatewayError {
	return &GatewayError{Code: ErrNoBinding, Message: "no binding for control on current page", Addr: addr}
}

// NewExecutionError wraps a driver Execute failure or recovered panic.
func NewExecutionError(app, message string) *GatewayError {
	return &GatewayError{Code: ErrExecution, Message: message, App: app}
}

// NewClosedError reports an operation against an already-stopped actor or
// driver.
func NewClosedError(message string) *GatewayError {
	return &GatewayError{Code: ErrClosed, Message: message}
}

// NewInvalidArgument reports invalid operation parameters.
func NewInvalidArgument(message string) *GatewayError {
	return &GatewayError{Code: ErrInvalidArgument, Message: message}
}

// NewTimeoutError reports a bounded wait that exceeded its deadline.
func NewTimeoutError(message string) *GatewayError {
	return &GatewayError{Code: ErrTimeout, Message: message}
}
