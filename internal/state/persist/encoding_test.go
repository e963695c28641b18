package persist

import (
	"testing"
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
)

func TestEncodeKeyPBHasNoData1Segment(t *testing.T) {
	key := encodeKey("mixer", controlmap.Addr{Family: codec.KindPB, Channel: 3})
	if got, want := key, "state:mixer:pb:3:-"; got != want {
		t.Fatalf("encodeKey = %q, want %q", got, want)
	}
}

func TestEncodeKeySysExHasNoChannelOrData1(t *testing.T) {
	key := encodeKey("lighting", controlmap.Addr{Family: codec.KindSysEx})
	if got, want := key, "state:lighting:sysex:-:-"; got != want {
		t.Fatalf("encodeKey = %q, want %q", got, want)
	}
}

func TestEncodeKeyCCHasChannelAndData1(t *testing.T) {
	key := encodeKey("mixer", controlmap.Addr{Family: codec.KindCC, Channel: 0, Data1: 7})
	if got, want := key, "state:mixer:cc:0:7"; got != want {
		t.Fatalf("encodeKey = %q, want %q", got, want)
	}
}

func TestDecodeKeyRoundTrips(t *testing.T) {
	addr := controlmap.Addr{Family: codec.KindCC, Channel: 2, Data1: 10}
	key := encodeKey("mixer", addr)
	app, got, ok := decodeKey(key)
	if !ok || app != "mixer" || got != addr {
		t.Fatalf("decodeKey(%q) = (%q, %+v, %v)", key, app, got, ok)
	}
}

func TestDecodeKeyRejectsForeignPrefix(t *testing.T) {
	if _, _, ok := decodeKey("other:mixer:cc:0:7"); ok {
		t.Fatalf("expected ok=false for a non state: key")
	}
}

func TestEntryRoundTrip(t *testing.T) {
	e := actor.Entry{
		Addr:      controlmap.Addr{Family: codec.KindPB, Channel: 0},
		Value:     codec.Message{Kind: codec.KindPB, Value14: 8192},
		Timestamp: time.Now().Truncate(time.Millisecond).UTC(),
		Origin:    actor.OriginDriverFeedback,
	}
	raw, err := encodeEntry(e)
	if err != nil {
		t.Fatalf("encodeEntry: %v", err)
	}
	got, err := decodeEntry(e.Addr, raw)
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if got.Value.Value14 != 8192 || !got.Timestamp.Equal(e.Timestamp) {
		t.Fatalf("got %+v, want round trip of %+v", got, e)
	}
	if !got.Stale {
		t.Fatalf("decoded entries must always be marked stale for the hydration path")
	}
}
