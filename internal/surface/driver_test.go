package surface

import (
	"context"
	"testing"
	"time"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/surface/simulated"
)

func newTestDriver(t *testing.T) (*Driver, *simulated.Endpoint, context.CancelFunc) {
	t.Helper()
	ep := simulated.New()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDriver(ep, ep, StaticEpoch(1), Config{
		FaderSquelch:          50 * time.Millisecond,
		SetpointRetryInterval: 10 * time.Millisecond,
		SetpointMaxRetries:    3,
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(cancel)
	return d, ep, cancel
}

func TestSetFaderEmitsPBAndArmsSquelch(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	if err := d.SetFader(0, 8192); err != nil {
		t.Fatalf("SetFader: %v", err)
	}
	written := ep.Written()
	if len(written) != 1 {
		t.Fatalf("expected 1 frame written, got %d", len(written))
	}
	msg, _, _, err := codec.Decode(written[0], 0)
	if err != nil || msg.Kind != codec.KindPB || msg.Value14 != 8192 {
		t.Fatalf("got msg=%+v err=%v", msg, err)
	}

	ep.Inject(written[0])
	var ev InputEvent
	select {
	case ev = <-d.Events():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for injected echo")
	}
	if !ev.Squelched {
		t.Fatalf("expected the echoed PB to be tagged squelched")
	}
}

func TestPhysicalInputOutsideSquelchIsNotTagged(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	msg := codec.Encode(codec.Message{Kind: codec.KindCC, Channel: 0, Data1: 7, Data2: 64})
	ep.Inject(msg)

	select {
	case ev := <-d.Events():
		if ev.Squelched {
			t.Fatalf("expected unsquelched event for a CC with no squelch armed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSetButtonLEDEmitsNote(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	if err := d.SetButtonLED(0, 40, true); err != nil {
		t.Fatalf("SetButtonLED: %v", err)
	}
	written := ep.Written()
	msg, _, _, err := codec.Decode(written[0], 0)
	if err != nil || msg.Kind != codec.KindNote || !msg.NoteOn || msg.Data1 != 40 || msg.Data2 != 127 {
		t.Fatalf("got %+v err=%v", msg, err)
	}
}

func TestSetEncoderRingPacksPattern(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	if err := d.SetEncoderRing(0, 16, 0x2, true, 0x0A); err != nil {
		t.Fatalf("SetEncoderRing: %v", err)
	}
	written := ep.Written()
	msg, _, _, err := codec.Decode(written[0], 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := uint8((0x2&0x3)<<6) | 0x20 | 0x0A
	if msg.Data2 != want {
		t.Fatalf("got pattern 0x%02X, want 0x%02X", msg.Data2, want)
	}
}

func TestSetEncoderRingRejectsOutOfRangeValue(t *testing.T) {
	d, _, _ := newTestDriver(t)
	if err := d.SetEncoderRing(0, 16, 0, false, 0x3F); err == nil {
		t.Fatalf("expected error for a 6-bit value exceeding the 5-bit field")
	}
}

func TestSetLCDSegmentRejectsTopLine(t *testing.T) {
	d, _, _ := newTestDriver(t)
	if err := d.SetLCDSegment(0, 0, "hello"); err == nil {
		t.Fatalf("expected error writing the device-owned top line")
	}
}

func TestSetLCDSegmentWritesBottomLine(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	if err := d.SetLCDSegment(0, 1, "CH1"); err != nil {
		t.Fatalf("SetLCDSegment: %v", err)
	}
	written := ep.Written()
	msg, _, _, err := codec.Decode(written[0], 0)
	if err != nil || msg.Kind != codec.KindSysEx {
		t.Fatalf("got %+v err=%v", msg, err)
	}
}

func TestSetpointObsoleteAfterEpochChange(t *testing.T) {
	ep := simulated.New()
	epoch := &testEpoch{value: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDriver(ep, ep, epoch, Config{SetpointRetryInterval: 10 * time.Millisecond})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.SetFader(2, 5000); err != nil {
		t.Fatalf("SetFader: %v", err)
	}
	if v, ok := d.Setpoint(2); !ok || v != 5000 {
		t.Fatalf("expected setpoint 5000 under the current epoch, got v=%d ok=%v", v, ok)
	}
	epoch.value = 2
	if _, ok := d.Setpoint(2); ok {
		t.Fatalf("expected the setpoint to be obsolete after an epoch change")
	}
}

func TestSetpointConfirmedByMatchingEcho(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	if err := d.SetFader(1, 6000); err != nil {
		t.Fatalf("SetFader: %v", err)
	}
	ep.Inject(codec.Encode(codec.Message{Kind: codec.KindPB, Channel: 1, Value14: 6000}))
	// Drain the published echo event so the test doesn't depend on timing
	// between publish() and the setpoint-confirmation bookkeeping, which
	// happen in the same onData call before publish is reached.
	select {
	case <-d.Events():
	case <-time.After(time.Second):
	}
	if _, ok := d.Setpoint(1); ok {
		t.Fatalf("expected the setpoint to be cleared once the motor echo confirmed it")
	}
}

func TestSetFaderWhenNotReadyReturnsError(t *testing.T) {
	ep := simulated.New()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDriver(ep, ep, StaticEpoch(1), Config{})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	if err := d.SetFader(0, 100); err == nil {
		t.Fatalf("expected NotReady after the input endpoint stopped")
	}
}

func TestSetFaderUnderCCModeEmitsCCOnFixedNumber(t *testing.T) {
	ep := simulated.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDriver(ep, ep, StaticEpoch(1), Config{
		Mode:                  controlmap.ModeCCFader,
		SetpointRetryInterval: 10 * time.Millisecond,
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.SetFader(3, 8192); err != nil {
		t.Fatalf("SetFader: %v", err)
	}
	written := ep.Written()
	msg, _, _, err := codec.Decode(written[0], 0)
	if err != nil || msg.Kind != codec.KindCC || msg.Channel != 3 || msg.Data1 != FaderCCNumber {
		t.Fatalf("got msg=%+v err=%v", msg, err)
	}
	if msg.Data2 != codec.To7(8192) {
		t.Fatalf("expected data2 %d, got %d", codec.To7(8192), msg.Data2)
	}
}

func TestSetpointConfirmedByMatchingCCEchoUnderCCMode(t *testing.T) {
	ep := simulated.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDriver(ep, ep, StaticEpoch(1), Config{
		Mode:                  controlmap.ModeCCFader,
		SetpointRetryInterval: 10 * time.Millisecond,
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.SetFader(4, codec.To14(100)); err != nil {
		t.Fatalf("SetFader: %v", err)
	}
	ep.Inject(codec.Encode(codec.Message{Kind: codec.KindCC, Channel: 4, Data1: FaderCCNumber, Data2: 100}))
	select {
	case <-d.Events():
	case <-time.After(time.Second):
	}
	if _, ok := d.Setpoint(4); ok {
		t.Fatalf("expected the CC-mode setpoint to be cleared once the motor echo confirmed it")
	}
}

func TestRetrySetpointUnderCCModeReemitsAsCC(t *testing.T) {
	ep := simulated.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDriver(ep, ep, StaticEpoch(1), Config{
		Mode:                  controlmap.ModeCCFader,
		SetpointRetryInterval: 5 * time.Millisecond,
		SetpointMaxRetries:    3,
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.SetFader(5, codec.To14(90)); err != nil {
		t.Fatalf("SetFader: %v", err)
	}

	deadline := time.After(time.Second)
	for len(ep.Written()) < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a setpoint retry")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	written := ep.Written()
	retry, _, _, err := codec.Decode(written[len(written)-1], 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if retry.Kind != codec.KindCC || retry.Channel != 5 || retry.Data1 != FaderCCNumber {
		t.Fatalf("expected the CC-mode retry to re-emit as CC on the fixed fader number, got %+v", retry)
	}
	if retry.Data2 != codec.To7(codec.To14(90)) {
		t.Fatalf("expected retry data2 %d, got %d", codec.To7(codec.To14(90)), retry.Data2)
	}
}

func TestWriteRawWritesBytesUnchanged(t *testing.T) {
	d, ep, _ := newTestDriver(t)
	frame := codec.Encode(codec.Message{Kind: codec.KindCC, Channel: 2, Data1: 16, Data2: 64})
	if err := d.WriteRaw(frame); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	written := ep.Written()
	if len(written) != 1 || string(written[0]) != string(frame) {
		t.Fatalf("expected raw frame to be written unchanged, got %v", written)
	}
}

type testEpoch struct{ value uint64 }

func (t *testEpoch) Epoch() uint64 { return t.value }
