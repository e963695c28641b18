package surface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juliencr/xtouch-gw/internal/gwerrors"
	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
)

// FaderCCNumber is the fixed CC number (data1) addressing a fader strip
// under ModeCCFader: like ModePBFader, the strip is distinguished by
// channel alone, so every fader shares CC number 0 on its own channel,
// matching the control map's embedded cc_fader addresses.
const FaderCCNumber = 0x00

// Driver owns the two surface wire endpoints and translates between raw
// MIDI bytes and the gateway's typed event/output model. It holds two
// pieces of purely local bookkeeping — the squelch table and the setpoint
// table — behind a mutex each: unlike the State Actor's cross-task state,
// these are touched only by the driver's own goroutines, so a lock is the
// idiomatic choice here rather than a second actor.
type Driver struct {
	in    InputEndpoint
	out   Endpoint
	cfg   Config
	epoch EpochSource

	events chan InputEvent
	running codec.RunningStatus
	buf     []byte

	squelchMu sync.Mutex
	squelch   map[squelchKey]time.Time

	setpointMu sync.Mutex
	setpoints  map[uint8]setpointEntry

	notReadyMu sync.Mutex
	notReady   bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewDriver constructs a Driver over already-open endpoints. epoch
// supplies the Router's current page epoch for setpoint epoch-checking.
func NewDriver(in InputEndpoint, out Endpoint, epoch EpochSource, cfg Config) *Driver {
	return &Driver{
		in:        in,
		out:       out,
		cfg:       cfg,
		epoch:     epoch,
		events:    make(chan InputEvent, cfg.eventBuffer()),
		squelch:   make(map[squelchKey]time.Time),
		setpoints: make(map[uint8]setpointEntry),
		stopped:   make(chan struct{}),
	}
}

// Start launches the input listen loop and the setpoint retry loop. It
// returns once both are running; both stop when ctx is done.
func (d *Driver) Start(ctx context.Context) error {
	listening := make(chan struct{})
	go func() {
		close(listening)
		err := d.in.Listen(ctx, d.onData)
		if err != nil {
			logger.Warn("surface input endpoint closed", logger.Err(err))
		}
		d.markNotReady()
	}()
	<-listening
	go d.setpointLoop(ctx)
	return nil
}

// Events returns the channel of decoded input events. The channel is
// never closed, not even after the driver stops; consumers stop reading
// on their own context.
func (d *Driver) Events() <-chan InputEvent {
	return d.events
}

func (d *Driver) markNotReady() {
	d.notReadyMu.Lock()
	d.notReady = true
	d.notReadyMu.Unlock()
	d.stopOnce.Do(func() { close(d.stopped) })
}

func (d *Driver) isNotReady() bool {
	d.notReadyMu.Lock()
	defer d.notReadyMu.Unlock()
	return d.notReady
}

// onData is the receive callback: it appends raw to the driver's internal
// buffer and decodes as many complete frames as are available. It must
// never block; publish() guarantees that.
func (d *Driver) onData(raw []byte) {
	d.buf = append(d.buf, raw...)
	for {
		msg, n, next, err := codec.Decode(d.buf, d.running.Current())
		if err != nil {
			if n == 0 && isShortBuffer(err) {
				return // wait for more bytes
			}
			// Malformed frame: drop the lead byte and resynchronize.
			logger.Debug("surface input parse error", logger.Err(err))
			d.buf = d.buf[1:]
			continue
		}
		d.running.Commit(next)
		d.buf = d.buf[n:]
		d.handleDecoded(msg)
		if len(d.buf) == 0 {
			return
		}
	}
}

func isShortBuffer(err error) bool {
	pe, ok := err.(*codec.ParseError)
	return ok && pe.Reason == "short buffer, need more bytes"
}

func (d *Driver) handleDecoded(msg codec.Message) {
	now := time.Now()
	squelched := d.isSquelched(msg, now)
	switch {
	case msg.Kind == codec.KindPB && d.cfg.Mode == controlmap.ModePBFader:
		d.maybeConfirmSetpoint(msg.Channel, msg.Value14)
	case msg.Kind == codec.KindCC && msg.Data1 == FaderCCNumber && d.cfg.Mode == controlmap.ModeCCFader:
		d.maybeConfirmSetpoint(msg.Channel, codec.To14(msg.Data2))
	}
	d.publish(InputEvent{Msg: msg, RecvTime: now, Squelched: squelched})
}

func (d *Driver) isSquelched(msg codec.Message, now time.Time) bool {
	key := squelchKey{family: msg.Kind, channel: msg.Channel}
	d.squelchMu.Lock()
	until, ok := d.squelch[key]
	d.squelchMu.Unlock()
	return ok && now.Before(until)
}

func (d *Driver) publish(ev InputEvent) {
	select {
	case d.events <- ev:
		return
	default:
	}
	// Channel full: drop the oldest buffered event to make room rather
	// than block the receive path, per spec "pushing into the channel
	// must never block".
	select {
	case <-d.events:
	default:
	}
	select {
	case d.events <- ev:
	default:
	}
}

// ActivateSquelch arms a squelch window for (family, channel): input
// events matching it are tagged Squelched until duration elapses.
func (d *Driver) ActivateSquelch(family codec.Kind, channel uint8, duration time.Duration) {
	d.squelchMu.Lock()
	d.squelch[squelchKey{family: family, channel: channel}] = time.Now().Add(duration)
	d.squelchMu.Unlock()
}

// SetFader emits the wire frame for fader strip ch at 14-bit value v14 —
// PB(ch, v14) under ModePBFader, or CC(ch, FaderCCNumber, to7(v14)) under
// ModeCCFader — arms a 120ms squelch on ch for that family, and records a
// setpoint for the retry loop to confirm.
func (d *Driver) SetFader(ch uint8, v14 uint16) error {
	if d.isNotReady() {
		return gwerrors.NewNotReady("surface output endpoint not open")
	}
	family := codec.KindPB
	if d.cfg.Mode == controlmap.ModeCCFader {
		family = codec.KindCC
	}
	d.ActivateSquelch(family, ch, d.cfg.faderSquelch())
	epoch := d.epoch.Epoch()
	d.setpointMu.Lock()
	d.setpoints[ch] = setpointEntry{value: v14, epoch: epoch, deadline: time.Now().Add(d.cfg.setpointRetryInterval())}
	d.setpointMu.Unlock()
	if family == codec.KindCC {
		return d.emit(codec.Message{Kind: codec.KindCC, Channel: ch, Data1: FaderCCNumber, Data2: codec.To7(v14)})
	}
	return d.emit(codec.Message{Kind: codec.KindPB, Channel: ch, Value14: v14})
}

// SetButtonLED emits Note(channel, note, on?127:0).
func (d *Driver) SetButtonLED(channel, note uint8, on bool) error {
	if d.isNotReady() {
		return gwerrors.NewNotReady("surface output endpoint not open")
	}
	vel := uint8(0)
	if on {
		vel = 127
	}
	return d.emit(codec.Message{Kind: codec.KindNote, Channel: channel, Data1: note, Data2: vel, NoteOn: on})
}

// SetEncoderRing emits a CC encoding the V-Pot LED ring pattern: the data2
// byte packs a 2-bit mode, a 1-bit center-detent flag, and a 5-bit value,
// per the manufacturer's wire convention.
func (d *Driver) SetEncoderRing(channel, ccNum uint8, mode uint8, center bool, val uint8) error {
	if d.isNotReady() {
		return gwerrors.NewNotReady("surface output endpoint not open")
	}
	if mode > 0x3 {
		return gwerrors.NewInvalidArgument(fmt.Sprintf("encoder ring mode %d exceeds 2 bits", mode))
	}
	if val > 0x1F {
		return gwerrors.NewInvalidArgument(fmt.Sprintf("encoder ring value %d exceeds 5 bits", val))
	}
	pattern := (mode & 0x3) << 6
	if center {
		pattern |= 0x20
	}
	pattern |= val & 0x1F
	return d.emit(codec.Message{Kind: codec.KindCC, Channel: channel, Data1: ccNum, Data2: pattern})
}

// lcdTopLine is the device-owned line index; attempts to write it are
// rejected rather than silently ignored so callers notice the mistake.
const lcdTopLine = 0

// SetLCDSegment writes text to the writable (bottom) line of strip's LCD
// segment via the manufacturer's SysEx convention. Writing the top line is
// rejected: it is device-owned and must never be overwritten.
func (d *Driver) SetLCDSegment(strip uint8, line uint8, text string) error {
	if line == lcdTopLine {
		return gwerrors.NewInvalidArgument("LCD top line is device-owned and not writable")
	}
	if d.isNotReady() {
		return gwerrors.NewNotReady("surface output endpoint not open")
	}
	const segmentWidth = 7
	trimmed := text
	if len(trimmed) > segmentWidth {
		trimmed = trimmed[:segmentWidth]
	}
	for len(trimmed) < segmentWidth {
		trimmed += " "
	}
	offset := strip*2*segmentWidth + line*segmentWidth
	payload := append([]byte{0x00, 0x00, 0x66, 0x14, 0x12, offset}, []byte(trimmed)...)
	return d.emit(codec.Message{Kind: codec.KindSysEx, SysEx: payload})
}

func (d *Driver) emit(msg codec.Message) error {
	_, err := d.out.Write(codec.Encode(msg))
	return err
}

// WriteRaw writes already-encoded wire bytes straight to the output
// endpoint, bypassing the Message Codec and the setpoint/squelch
// bookkeeping. It exists for raw-MIDI-bridge feedback (driver.FeedbackEvent.Raw),
// which carries a frame with no logical-control mapping to route through
// the high-level operations above.
func (d *Driver) WriteRaw(b []byte) error {
	if d.isNotReady() {
		return gwerrors.NewNotReady("surface output endpoint not open")
	}
	_, err := d.out.Write(b)
	return err
}

// Setpoint returns the desired fader value for ch if its recorded epoch
// still matches the current page epoch; otherwise the setpoint is
// considered obsolete and ok is false, per spec.md §4.3.
func (d *Driver) Setpoint(ch uint8) (value uint16, ok bool) {
	d.setpointMu.Lock()
	defer d.setpointMu.Unlock()
	sp, found := d.setpoints[ch]
	if !found || sp.epoch != d.epoch.Epoch() {
		return 0, false
	}
	return sp.value, true
}

func (d *Driver) maybeConfirmSetpoint(ch uint8, v14 uint16) {
	d.setpointMu.Lock()
	defer d.setpointMu.Unlock()
	sp, ok := d.setpoints[ch]
	if ok && sp.value == v14 {
		delete(d.setpoints, ch)
	}
}

// setpointLoop polls outstanding setpoints and re-emits unconfirmed ones
// up to cfg.setpointMaxRetries(), doubling the interval each retry.
// Setpoints are abandoned (dropped, not re-emitted) once the page epoch
// they were recorded under no longer matches the current one.
func (d *Driver) setpointLoop(ctx context.Context) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.retrySetpoints()
		}
	}
}

func (d *Driver) retrySetpoints() {
	now := time.Now()
	current := d.epoch.Epoch()

	d.setpointMu.Lock()
	var toRetry []struct {
		ch    uint8
		entry setpointEntry
	}
	for ch, sp := range d.setpoints {
		if sp.epoch != current {
			delete(d.setpoints, ch)
			continue
		}
		if now.Before(sp.deadline) {
			continue
		}
		if sp.retries >= d.cfg.setpointMaxRetries() {
			delete(d.setpoints, ch)
			continue
		}
		sp.retries++
		sp.deadline = now.Add(d.cfg.setpointRetryInterval() << sp.retries)
		d.setpoints[ch] = sp
		toRetry = append(toRetry, struct {
			ch    uint8
			entry setpointEntry
		}{ch, sp})
	}
	d.setpointMu.Unlock()

	for _, r := range toRetry {
		msg := codec.Message{Kind: codec.KindPB, Channel: r.ch, Value14: r.entry.value}
		if d.cfg.Mode == controlmap.ModeCCFader {
			msg = codec.Message{Kind: codec.KindCC, Channel: r.ch, Data1: FaderCCNumber, Data2: codec.To7(r.entry.value)}
		}
		if err := d.emit(msg); err != nil {
			logger.Debug("setpoint re-emit failed", logger.Channel(int(r.ch)), logger.Err(err))
		}
	}
}
