// Package refresh implements the Page Refresh Planner (spec.md §4.8): it
// computes the ordered sequence of surface outputs needed to make the
// surface reflect the State Actor's view of the newly active page,
// batching every state query before any surface write.
package refresh

import (
	"context"
	"sort"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
	"github.com/juliencr/xtouch-gw/internal/surface"
)

// Input bundles everything Plan needs to compute a refresh for one page.
type Input struct {
	ControlMap *controlmap.Map
	State      *actor.Actor
	Surface    *surface.Driver
	Snapshot   config.Snapshot
	Page       config.Page
	Mode       controlmap.Mode
}

// Output is one planned surface write, ready to Emit once the caller
// decides it is still safe to do so (the page epoch hasn't moved on).
type Output struct {
	family codec.Kind
	emit   func(*surface.Driver) error
}

// Emit performs the planned write.
func (o Output) Emit(surf *surface.Driver) error {
	return o.emit(surf)
}

// familyOrder gives every output kind its position in the required
// sequence: Notes, then CCs, then SysEx, then Pitch-Bend last so motors
// settle after static visuals are in place.
func familyOrder(k codec.Kind) int {
	switch k {
	case codec.KindNote:
		return 0
	case codec.KindCC:
		return 1
	case codec.KindSysEx:
		return 2
	case codec.KindPB:
		return 3
	default:
		return 4
	}
}

// Plan batches a GetKnownLatest query per app referenced by page's
// bindings, then builds the ordered output list. It performs no surface
// I/O itself; the caller executes the returned Outputs in order and may
// abandon mid-sequence if the page epoch changes.
func Plan(ctx context.Context, in Input) ([]Output, error) {
	merged := in.Snapshot.ResolveBindings(in.Page)

	apps := make(map[string]bool)
	for _, b := range merged {
		if b.Kind == config.BindingDriver && b.App != "" {
			apps[b.App] = true
		}
	}

	known := make(map[string]map[controlmap.Addr]actor.Entry, len(apps))
	for app := range apps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := in.State.GetKnownLatest(app, actor.Filter{})
		if err != nil {
			return nil, err
		}
		byAddr := make(map[controlmap.Addr]actor.Entry, len(entries))
		for _, e := range entries {
			byAddr[e.Addr] = e
		}
		known[app] = byAddr
	}

	var outputs []Output
	for controlID, binding := range merged {
		if binding.Kind != config.BindingDriver {
			continue
		}
		addr, ok := in.ControlMap.LookupMode(controlID, in.Mode)
		if !ok {
			continue
		}
		entry, ok := known[binding.App][addr]
		if !ok || !entry.Known {
			// No known entry: leave the surface at whatever the previous
			// page left, per spec.md §4.8 — never emit arbitrary defaults.
			continue
		}

		if entry.Value.Kind == codec.KindPB {
			if setpoint, ok := in.Surface.Setpoint(addr.Channel); ok && setpoint == entry.Value.Value14 {
				continue // surface already settled on the authoritative value
			}
		}
		if entry.Value.Kind == codec.KindCC && entry.Value.Data1 == surface.FaderCCNumber {
			if setpoint, ok := in.Surface.Setpoint(addr.Channel); ok && setpoint == codec.To14(entry.Value.Data2) {
				continue // surface already settled on the authoritative value
			}
		}

		msg := entry.Value
		outputs = append(outputs, Output{
			family: msg.Kind,
			emit:   func(surf *surface.Driver) error { return emit(surf, in.Mode, msg) },
		})
	}

	sort.SliceStable(outputs, func(i, j int) bool {
		return familyOrder(outputs[i].family) < familyOrder(outputs[j].family)
	})
	return outputs, nil
}

func emit(surf *surface.Driver, mode controlmap.Mode, msg codec.Message) error {
	switch msg.Kind {
	case codec.KindPB:
		return surf.SetFader(msg.Channel, msg.Value14)
	case codec.KindCC:
		if mode == controlmap.ModeCCFader && msg.Data1 == surface.FaderCCNumber {
			return surf.SetFader(msg.Channel, codec.To14(msg.Data2))
		}
		return surf.WriteRaw(codec.Encode(msg))
	case codec.KindNote:
		return surf.SetButtonLED(msg.Channel, msg.Data1, msg.NoteOn)
	default:
		return surf.WriteRaw(codec.Encode(msg))
	}
}
