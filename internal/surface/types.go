// Package surface implements the Surface Driver: the component owning the
// two wire endpoints to the physical control surface, translating between
// raw MIDI bytes and decoded events, and exposing the high-level output
// operations (fader, button LED, encoder ring, LCD segment) along with
// their squelch-window and setpoint-epoch bookkeeping.
package surface

import (
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
)

// InputEvent is one decoded message observed on the input endpoint,
// timestamped with a monotonic clock and tagged with whether it falls
// inside an active squelch window.
type InputEvent struct {
	Msg       codec.Message
	RecvTime  time.Time
	Squelched bool
}

// EpochSource exposes the Router's current page epoch without the surface
// package importing the router package. Setpoint reads are only valid
// against the epoch active when the setpoint was recorded.
type EpochSource interface {
	Epoch() uint64
}

// staticEpoch is a trivial EpochSource for callers (tests, doctor command)
// that don't run a full Router.
type staticEpoch uint64

func (s staticEpoch) Epoch() uint64 { return uint64(s) }

// StaticEpoch returns an EpochSource that always reports e.
func StaticEpoch(e uint64) EpochSource { return staticEpoch(e) }

type squelchKey struct {
	family  codec.Kind
	channel uint8
}

type setpointEntry struct {
	value    uint16
	epoch    uint64
	retries  int
	deadline time.Time
}

// Config tunes the Surface Driver's timing-sensitive behavior. Zero values
// select the spec's defaults.
type Config struct {
	Mode controlmap.Mode

	// FaderSquelch is armed around every SetFader call. Spec: 120ms.
	FaderSquelch time.Duration

	// SetpointRetryInterval is the initial re-emit interval for an
	// unconfirmed fader setpoint, doubling on each retry. Open Question,
	// decided at 200ms in DESIGN.md.
	SetpointRetryInterval time.Duration
	// SetpointMaxRetries bounds setpoint re-emission. Decided at 3.
	SetpointMaxRetries int

	// EventBuffer sizes the Events() channel. Pushing into it must never
	// block; once full, the oldest buffered event is dropped to make room.
	// Dropped events are not counted.
	EventBuffer int
}

func (c Config) faderSquelch() time.Duration {
	if c.FaderSquelch <= 0 {
		return 120 * time.Millisecond
	}
	return c.FaderSquelch
}

func (c Config) setpointRetryInterval() time.Duration {
	if c.SetpointRetryInterval <= 0 {
		return 200 * time.Millisecond
	}
	return c.SetpointRetryInterval
}

func (c Config) setpointMaxRetries() int {
	if c.SetpointMaxRetries <= 0 {
		return 3
	}
	return c.SetpointMaxRetries
}

func (c Config) eventBuffer() int {
	if c.EventBuffer <= 0 {
		return 256
	}
	return c.EventBuffer
}
