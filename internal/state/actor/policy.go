package actor

import (
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
)

// Windows holds the anti-echo shadow-suppression windows and the
// last-writer-wins grace periods, both keyed by status-family. The zero
// value is not usable; use DefaultWindows.
type Windows struct {
	Shadow map[codec.Kind]time.Duration
	LWW    map[codec.Kind]time.Duration
}

// DefaultWindows returns the windows from spec.md §4.4: shadow suppression
// {PB: 250ms, CC: 100ms, Note: 10ms, SysEx: 60ms, other: 0}, LWW grace
// {PB: 300ms, CC: 50ms, others: 0}.
func DefaultWindows() Windows {
	return Windows{
		Shadow: map[codec.Kind]time.Duration{
			codec.KindPB:    250 * time.Millisecond,
			codec.KindCC:    100 * time.Millisecond,
			codec.KindNote:  10 * time.Millisecond,
			codec.KindSysEx: 60 * time.Millisecond,
		},
		LWW: map[codec.Kind]time.Duration{
			codec.KindPB: 300 * time.Millisecond,
			codec.KindCC: 50 * time.Millisecond,
		},
	}
}

func (w Windows) shadowWindow(k codec.Kind) time.Duration {
	return w.Shadow[k] // zero value for unlisted families, per spec "other: 0"
}

func (w Windows) lwwGrace(k codec.Kind) time.Duration {
	return w.LWW[k] // zero value for unlisted families, per spec "others: 0"
}

// valuesEqual compares the value carried by two messages of the same
// family. Messages of differing kinds are never equal.
func valuesEqual(a, b codec.Message) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case codec.KindPB:
		return a.Value14 == b.Value14
	case codec.KindProgramChange:
		return a.Data1 == b.Data1
	case codec.KindSysEx:
		return string(a.SysEx) == string(b.SysEx)
	case codec.KindRealtime:
		return a.Status == b.Status
	default: // Note, PolyPressure, CC, ChanPressure
		return a.Data2 == b.Data2 && a.Data1 == b.Data1
	}
}

// suppressShadow implements spec.md §4.4 step 1: suppress feedback entry e
// if the app's shadow at e.Addr already holds the same value and the
// shadow was set less than the family's window ago.
func (w Windows) suppressShadow(shadow ShadowEntry, hasShadow bool, e Entry, now time.Time) bool {
	if !hasShadow {
		return false
	}
	if !valuesEqual(shadow.Value, e.Value) {
		return false
	}
	window := w.shadowWindow(e.Addr.Family)
	return now.Sub(shadow.Timestamp) < window
}

// suppressLWW implements spec.md §4.4 step 2: suppress feedback entry e if
// a physical user action at e.Addr occurred less than the family's grace
// period ago and disagrees with e's value.
func (w Windows) suppressLWW(ua userAction, hasUA bool, e Entry, now time.Time) bool {
	if !hasUA {
		return false
	}
	grace := w.lwwGrace(e.Addr.Family)
	if grace <= 0 {
		return false
	}
	if now.Sub(ua.Timestamp) >= grace {
		return false
	}
	return !valuesEqual(ua.Value, e.Value)
}
