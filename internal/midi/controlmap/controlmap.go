// Package controlmap loads and exposes the static logical-control table: the
// mapping between logical control identifiers (e.g. "fader3", "vpot1_push")
// and their wire addresses under each supported surface mode.
package controlmap

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
)

// Mode identifies a surface wire convention for faders.
type Mode int

const (
	// ModePBFader addresses fader strip c via PitchBend on channel c.
	ModePBFader Mode = iota
	// ModeCCFader addresses fader strip c via ControlChange on channel c.
	ModeCCFader
)

func (m Mode) String() string {
	switch m {
	case ModePBFader:
		return "pb-fader"
	case ModeCCFader:
		return "cc-fader"
	default:
		return "unknown"
	}
}

// Addr is a MIDI address: (status-family, channel, data1). Channel and
// Data1 are meaningful only for the families that carry them (PB has no
// Data1; SysEx has neither).
type Addr struct {
	Family codec.Kind
	Channel uint8
	Data1   uint8
}

func (a Addr) String() string {
	switch a.Family {
	case codec.KindPB:
		return fmt.Sprintf("PB(ch=%d)", a.Channel)
	case codec.KindSysEx:
		return "SysEx"
	default:
		return fmt.Sprintf("%s(ch=%d,d1=%d)", a.Family, a.Channel, a.Data1)
	}
}

// control is the embedded-JSON shape of one logical control entry.
type control struct {
	ID      string `json:"id"`
	Group   string `json:"group"`
	PBFader *addrJSON `json:"pb_fader,omitempty"`
	CCFader *addrJSON `json:"cc_fader,omitempty"`
}

type addrJSON struct {
	Family  string `json:"family"`
	Channel uint8  `json:"channel"`
	Data1   uint8  `json:"data1"`
}

func parseFamily(s string) (codec.Kind, error) {
	switch s {
	case "pb":
		return codec.KindPB, nil
	case "cc":
		return codec.KindCC, nil
	case "note":
		return codec.KindNote, nil
	case "sysex":
		return codec.KindSysEx, nil
	default:
		return codec.KindUnknown, fmt.Errorf("controlmap: unknown family %q", s)
	}
}

// Map is the loaded, validated, read-only control table.
type Map struct {
	byID    map[string]entry
	byAddr  map[Mode]map[Addr]string
	groups  map[string][]string
}

type entry struct {
	group string
	addr  [2]Addr // indexed by Mode
}

// Lookup returns the wire address for controlID in each of the two modes.
// ok is false if controlID is not a member of the table.
func (m *Map) Lookup(controlID string) (pbAddr, ccAddr Addr, ok bool) {
	e, found := m.byID[controlID]
	if !found {
		return Addr{}, Addr{}, false
	}
	return e.addr[ModePBFader], e.addr[ModeCCFader], true
}

// LookupMode returns the wire address for controlID under a single mode.
func (m *Map) LookupMode(controlID string, mode Mode) (Addr, bool) {
	e, found := m.byID[controlID]
	if !found {
		return Addr{}, false
	}
	return e.addr[mode], true
}

// Reverse finds the logical control id addressed by addr under mode.
func (m *Map) Reverse(addr Addr, mode Mode) (controlID string, ok bool) {
	byAddr, found := m.byAddr[mode]
	if !found {
		return "", false
	}
	id, found := byAddr[addr]
	return id, found
}

// Group returns the logical control ids belonging to a named group, e.g.
// "fader", "vpot", "button_transport". The returned slice must not be
// mutated by the caller.
func (m *Map) Group(name string) []string {
	return m.groups[name]
}

// Validate exhaustively checks the loaded table's invariants: every control
// has exactly one address per mode, and no two controls share an address
// within the same mode. It never panics; the embed loader is the only
// caller that escalates a Validate error to a panic, because the embedded
// table is compiled-in and cannot vary at runtime.
func (m *Map) Validate() error {
	for _, mode := range []Mode{ModePBFader, ModeCCFader} {
		seen := make(map[Addr]string, len(m.byID))
		for id, e := range m.byID {
			addr := e.addr[mode]
			if other, dup := seen[addr]; dup {
				return fmt.Errorf("controlmap: %s and %s share address %s in mode %s", id, other, addr, mode)
			}
			seen[addr] = id
		}
	}
	return nil
}

func build(controls []control) (*Map, error) {
	m := &Map{
		byID:   make(map[string]entry, len(controls)),
		byAddr: map[Mode]map[Addr]string{ModePBFader: {}, ModeCCFader: {}},
		groups: make(map[string][]string),
	}
	for _, c := range controls {
		if c.ID == "" {
			return nil, fmt.Errorf("controlmap: control with empty id in group %q", c.Group)
		}
		if _, dup := m.byID[c.ID]; dup {
			return nil, fmt.Errorf("controlmap: duplicate control id %q", c.ID)
		}
		if c.PBFader == nil || c.CCFader == nil {
			return nil, fmt.Errorf("controlmap: control %q missing address for one or more modes", c.ID)
		}
		pbFam, err := parseFamily(c.PBFader.Family)
		if err != nil {
			return nil, err
		}
		ccFam, err := parseFamily(c.CCFader.Family)
		if err != nil {
			return nil, err
		}
		e := entry{
			group: c.Group,
			addr: [2]Addr{
				ModePBFader: {Family: pbFam, Channel: c.PBFader.Channel, Data1: c.PBFader.Data1},
				ModeCCFader: {Family: ccFam, Channel: c.CCFader.Channel, Data1: c.CCFader.Data1},
			},
		}
		m.byID[c.ID] = e
		m.byAddr[ModePBFader][e.addr[ModePBFader]] = c.ID
		m.byAddr[ModeCCFader][e.addr[ModeCCFader]] = c.ID
		m.groups[c.Group] = append(m.groups[c.Group], c.ID)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseEmbedded() (*Map, error) {
	var controls []control
	if err := json.Unmarshal(controlsJSON, &controls); err != nil {
		return nil, fmt.Errorf("controlmap: decoding embedded table: %w", err)
	}
	return build(controls)
}

var loadOnce = sync.OnceValues(func() (*Map, error) {
	m, err := parseEmbedded()
	if err != nil {
		// The embedded table is compiled-in: if it's invalid, every build
		// is invalid. There's nothing a caller can do at runtime to fix it.
		panic(err)
	}
	return m, nil
})

// Load returns the singleton control table, parsing and validating the
// embedded description exactly once.
func Load() *Map {
	m, _ := loadOnce()
	return m
}
