// Package actor implements the State Actor: a single goroutine that
// exclusively owns the per-app state map, the per-app shadow map, and the
// process-wide user-action timestamp map. All access goes through commands
// on a channel — no external lock is ever taken against these structures.
package actor

import (
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
)

// Addr is the address type shared with the control map: (status-family,
// channel, data1).
type Addr = controlmap.Addr

// Origin records where an Entry's value came from.
type Origin int

const (
	// OriginDriverFeedback means the value arrived as feedback from an
	// application driver.
	OriginDriverFeedback Origin = iota
	// OriginSurfaceInput means the value arrived as a physical control
	// movement on the surface.
	OriginSurfaceInput
	// OriginHydrated means the value was loaded from the Persistence
	// Actor's store at startup and has not yet been confirmed fresh.
	OriginHydrated
)

func (o Origin) String() string {
	switch o {
	case OriginDriverFeedback:
		return "driver-feedback"
	case OriginSurfaceInput:
		return "surface-input"
	case OriginHydrated:
		return "hydrated"
	default:
		return "unknown"
	}
}

// Entry is one committed value for an (app, addr) pair.
type Entry struct {
	Addr      Addr
	Value     codec.Message
	Timestamp time.Time
	Origin    Origin
	// Known is false only for placeholder/never-observed entries; such
	// entries are never returned by GetKnownLatest.
	Known bool
	// Stale marks an entry hydrated from persistence and not yet
	// reconfirmed by fresh feedback.
	Stale bool
}

// ShadowEntry records the last value the Router forwarded to the surface
// on behalf of one app, used only by the anti-echo policy.
type ShadowEntry struct {
	Addr      Addr
	Value     codec.Message
	Timestamp time.Time
}

// userAction records the last physical value and timestamp observed for an
// address, process-wide (not per app). The LWW policy needs both the
// recency and the value to detect disagreement with feedback.
type userAction struct {
	Value     codec.Message
	Timestamp time.Time
}

// Filter restricts GetKnownLatest to entries matching given fields. A nil
// pointer field means "don't filter on this dimension".
type Filter struct {
	Family  *codec.Kind
	Channel *uint8
	Data1   *uint8
}

// Match reports whether addr satisfies every constraint in f.
func (f Filter) Match(addr Addr) bool {
	if f.Family != nil && addr.Family != *f.Family {
		return false
	}
	if f.Channel != nil && addr.Channel != *f.Channel {
		return false
	}
	if f.Data1 != nil && addr.Data1 != *f.Data1 {
		return false
	}
	return true
}
