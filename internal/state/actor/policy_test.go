package actor

import (
	"testing"
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
)

func TestSuppressShadowWithinWindow(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	shadow := ShadowEntry{Value: codec.Message{Kind: codec.KindPB, Value14: 8192}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 8192},
		Timestamp: base.Add(100 * time.Millisecond),
	}
	if !w.suppressShadow(shadow, true, e, e.Timestamp) {
		t.Fatalf("expected suppression inside the 250ms PB window")
	}
}

func TestSuppressShadowOutsideWindow(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	shadow := ShadowEntry{Value: codec.Message{Kind: codec.KindPB, Value14: 8192}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 8192},
		Timestamp: base.Add(300 * time.Millisecond),
	}
	if w.suppressShadow(shadow, true, e, e.Timestamp) {
		t.Fatalf("expected no suppression outside the 250ms PB window")
	}
}

func TestSuppressShadowDifferentValueNeverSuppressed(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	shadow := ShadowEntry{Value: codec.Message{Kind: codec.KindPB, Value14: 8192}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 9000},
		Timestamp: base.Add(10 * time.Millisecond),
	}
	if w.suppressShadow(shadow, true, e, e.Timestamp) {
		t.Fatalf("expected no suppression when values disagree")
	}
}

func TestSuppressShadowNoShadow(t *testing.T) {
	w := DefaultWindows()
	e := Entry{Addr: Addr{Family: codec.KindCC}, Value: codec.Message{Kind: codec.KindCC, Data2: 10}, Timestamp: time.Now()}
	if w.suppressShadow(ShadowEntry{}, false, e, e.Timestamp) {
		t.Fatalf("expected no suppression with no shadow on record")
	}
}

func TestSuppressLWWPrefersRecentUserAction(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	ua := userAction{Value: codec.Message{Kind: codec.KindPB, Value14: 1000}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 9000},
		Timestamp: base.Add(100 * time.Millisecond),
	}
	if !w.suppressLWW(ua, true, e, e.Timestamp) {
		t.Fatalf("expected LWW suppression within the 300ms PB grace period with disagreement")
	}
}

func TestSuppressLWWAgreeingValuesNotSuppressed(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	ua := userAction{Value: codec.Message{Kind: codec.KindPB, Value14: 9000}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 9000},
		Timestamp: base.Add(50 * time.Millisecond),
	}
	if w.suppressLWW(ua, true, e, e.Timestamp) {
		t.Fatalf("expected no suppression when the values agree")
	}
}

func TestSuppressLWWOutsideGrace(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	ua := userAction{Value: codec.Message{Kind: codec.KindPB, Value14: 1000}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 9000},
		Timestamp: base.Add(400 * time.Millisecond),
	}
	if w.suppressLWW(ua, true, e, e.Timestamp) {
		t.Fatalf("expected no suppression once the grace period has elapsed")
	}
}

func TestSuppressLWWZeroGraceFamilyNeverSuppresses(t *testing.T) {
	w := DefaultWindows()
	base := time.Now()
	ua := userAction{Value: codec.Message{Kind: codec.KindNote, Data1: 1, Data2: 0}, Timestamp: base}
	e := Entry{
		Addr:      Addr{Family: codec.KindNote, Channel: 0, Data1: 1},
		Value:     codec.Message{Kind: codec.KindNote, Data1: 1, Data2: 127},
		Timestamp: base,
	}
	if w.suppressLWW(ua, true, e, e.Timestamp) {
		t.Fatalf("Note family has a zero LWW grace, expected no suppression ever")
	}
}
