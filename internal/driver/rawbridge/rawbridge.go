// Package rawbridge implements the built-in raw-MIDI-bridge driver
// variant (spec.md §4.6): it forwards wire bytes both ways between the
// surface and a named app's own endpoint pair, with an optional PB→CC
// transform applied in the surface-to-target direction for targets that
// do not speak 14-bit pitch-bend.
package rawbridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/driver"
	"github.com/juliencr/xtouch-gw/internal/gwerrors"
	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/surface"
)

// Transform configures the fixed PB→CC family applied when forwarding a
// pitch-bend frame toward the bridge target.
type Transform struct {
	Enabled       bool
	TargetChannel uint8
	BaseCC        uint8
}

// apply maps PB on channel c to CC BaseCC+(c-1) on TargetChannel, dropping
// the low 7 bits of the 14-bit value per the manufacturer convention used
// elsewhere in this module (to7).
func (t Transform) apply(msg codec.Message) (codec.Message, bool) {
	if !t.Enabled || msg.Kind != codec.KindPB {
		return msg, false
	}
	base := msg.Channel
	if base > 0 {
		base--
	}
	return codec.Message{
		Kind:    codec.KindCC,
		Channel: t.TargetChannel,
		Data1:   t.BaseCC + base,
		Data2:   codec.To7(msg.Value14),
	}, true
}

// Driver is one bridge instance, bound to a single app name and its own
// dedicated endpoint pair.
type Driver struct {
	driver.BaseDriver

	name string
	in   surface.InputEndpoint
	out  surface.Endpoint
	xf   Transform

	running codec.RunningStatus
	buf     []byte

	mu    sync.Mutex
	sinks []chan<- driver.FeedbackEvent
}

// NewDriver constructs a bridge driver over already-open endpoints; the
// caller (cmd-level wiring) is responsible for opening them against the
// configured endpoint match per the app's AppConfig.
func NewDriver(name string, in surface.InputEndpoint, out surface.Endpoint, xf Transform) *Driver {
	return &Driver{name: name, in: in, out: out, xf: xf}
}

func (d *Driver) Name() string { return d.name }

// Init starts the listen loop toward the surface and marks the bridge
// connected. There is nothing app-specific to resolve from snap: the
// endpoints were already opened by the caller against the app's
// configured endpoint match.
func (d *Driver) Init(ctx context.Context, snap config.Snapshot) error {
	d.SetStatus(driver.StatusConnecting)
	go func() {
		err := d.in.Listen(ctx, d.onData)
		if err != nil {
			logger.Warn("raw bridge input endpoint closed", logger.App(d.name), logger.TraceID(d.InstanceID()), logger.Err(err))
		}
		d.SetStatus(driver.StatusDisconnected)
	}()
	d.SetStatus(driver.StatusConnected)
	return nil
}

func (d *Driver) onData(raw []byte) {
	d.buf = append(d.buf, raw...)
	for {
		msg, n, next, err := codec.Decode(d.buf, d.running.Current())
		if err != nil {
			if n == 0 {
				return
			}
			d.buf = d.buf[1:]
			continue
		}
		d.running.Commit(next)
		d.buf = d.buf[n:]
		d.publish(driver.FeedbackEvent{Raw: codec.Encode(msg)})
		if len(d.buf) == 0 {
			return
		}
	}
}

func (d *Driver) publish(ev driver.FeedbackEvent) {
	d.mu.Lock()
	sinks := make([]chan<- driver.FeedbackEvent, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	for _, sink := range sinks {
		select {
		case sink <- ev:
		default:
		}
	}
}

// SubscribeFeedback registers sink to receive every frame the bridge
// target sends back, wrapped as raw bytes (see driver.FeedbackEvent.Raw).
func (d *Driver) SubscribeFeedback(sink chan<- driver.FeedbackEvent) {
	d.mu.Lock()
	d.sinks = append(d.sinks, sink)
	d.mu.Unlock()
}

// sendRawAction names the one action this driver understands: it decodes the hex
// payload, applies the PB→CC transform if configured, and writes the
// result to the target endpoint.
const sendRawAction = "send_raw"

// Execute dispatches action == "send_raw" with a single param named
// "bytes" holding the hex-encoded wire frame to forward. Any other action
// name is rejected.
func (d *Driver) Execute(ctx context.Context, action string, params []driver.Param, dctx driver.Context) (driver.Result, error) {
	if action != sendRawAction {
		return driver.Result{}, gwerrors.NewExecutionError(d.name, fmt.Sprintf("unsupported action %q", action))
	}
	var payload string
	for _, p := range params {
		if p.Name == "bytes" {
			payload = p.Value
			break
		}
	}
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return driver.Result{}, gwerrors.NewParseError(fmt.Sprintf("raw bridge %q: invalid hex payload: %v", d.name, err))
	}

	msg, _, _, err := codec.Decode(raw, 0)
	if err == nil {
		if transformed, did := d.xf.apply(msg); did {
			raw = codec.Encode(transformed)
		}
	}
	if _, err := d.out.Write(raw); err != nil {
		return driver.Result{}, gwerrors.NewExecutionError(d.name, fmt.Sprintf("write failed: %v", err))
	}
	return driver.Result{Message: "forwarded"}, nil
}

func (d *Driver) Close() error {
	return d.out.Close()
}
