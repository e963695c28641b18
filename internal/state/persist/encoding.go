package persist

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
)

const keyPrefix = "state:"

// encodeKey renders the persistence key for (app, addr):
// "state:{app}:{family}:{channel}:{data1}", with missing segments (no
// channel for SysEx, no data1 for PB/SysEx) rendered as "-".
func encodeKey(app string, addr controlmap.Addr) string {
	family := addr.Family.String()
	channel := "-"
	if addr.Family != codec.KindSysEx {
		channel = strconv.Itoa(int(addr.Channel))
	}
	data1 := "-"
	switch addr.Family {
	case codec.KindPB, codec.KindSysEx:
		// no data1 segment
	default:
		data1 = strconv.Itoa(int(addr.Data1))
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", keyPrefix, app, family, channel, data1)
}

var familyByName = map[string]codec.Kind{
	codec.KindPB.String():            codec.KindPB,
	codec.KindCC.String():            codec.KindCC,
	codec.KindNote.String():          codec.KindNote,
	codec.KindSysEx.String():         codec.KindSysEx,
	codec.KindPolyPressure.String():  codec.KindPolyPressure,
	codec.KindProgramChange.String(): codec.KindProgramChange,
	codec.KindChanPressure.String():  codec.KindChanPressure,
	codec.KindRealtime.String():      codec.KindRealtime,
}

// decodeKey parses a key produced by encodeKey. ok is false for any key
// that doesn't match the "state:" prefix shape (e.g. a future key
// namespace sharing the same store).
func decodeKey(key string) (app string, addr controlmap.Addr, ok bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", controlmap.Addr{}, false
	}
	rest := strings.TrimPrefix(key, keyPrefix)
	parts := strings.SplitN(rest, ":", 4)
	if len(parts) != 4 {
		return "", controlmap.Addr{}, false
	}
	family, ok := familyByName[parts[1]]
	if !ok {
		return "", controlmap.Addr{}, false
	}
	addr.Family = family
	if parts[2] != "-" {
		ch, err := strconv.Atoi(parts[2])
		if err != nil {
			return "", controlmap.Addr{}, false
		}
		addr.Channel = uint8(ch)
	}
	if parts[3] != "-" {
		d1, err := strconv.Atoi(parts[3])
		if err != nil {
			return "", controlmap.Addr{}, false
		}
		addr.Data1 = uint8(d1)
	}
	return parts[0], addr, true
}

// wireEntry is the JSON-serialised shape of a persisted actor.Entry.
type wireEntry struct {
	Kind      codec.Kind `json:"kind"`
	Channel   uint8      `json:"channel"`
	Data1     uint8      `json:"data1"`
	Data2     uint8      `json:"data2"`
	NoteOn    bool       `json:"note_on"`
	Value14   uint16     `json:"value14"`
	SysEx     []byte     `json:"sysex,omitempty"`
	Status    uint8      `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Origin    int        `json:"origin"`
}

func encodeEntry(e actor.Entry) ([]byte, error) {
	w := wireEntry{
		Kind:      e.Value.Kind,
		Channel:   e.Value.Channel,
		Data1:     e.Value.Data1,
		Data2:     e.Value.Data2,
		NoteOn:    e.Value.NoteOn,
		Value14:   e.Value.Value14,
		SysEx:     e.Value.SysEx,
		Status:    e.Value.Status,
		Timestamp: e.Timestamp,
		Origin:    int(e.Origin),
	}
	return json.Marshal(w)
}

func decodeEntry(addr controlmap.Addr, raw []byte) (actor.Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return actor.Entry{}, fmt.Errorf("persist: decoding entry: %w", err)
	}
	return actor.Entry{
		Addr: addr,
		Value: codec.Message{
			Kind:    w.Kind,
			Channel: w.Channel,
			Data1:   w.Data1,
			Data2:   w.Data2,
			NoteOn:  w.NoteOn,
			Value14: w.Value14,
			SysEx:   w.SysEx,
			Status:  w.Status,
		},
		Timestamp: w.Timestamp,
		Origin:    actor.Origin(w.Origin),
		Known:     true,
		Stale:     true,
	}, nil
}
