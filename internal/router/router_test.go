package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/driver"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
	"github.com/juliencr/xtouch-gw/internal/surface"
	"github.com/juliencr/xtouch-gw/internal/surface/simulated"
	"github.com/juliencr/xtouch-gw/internal/telemetry/metrics"
)

// stubDriver is a minimal driver.Driver for exercising the Router without
// a real app integration. It overrides SubscribeFeedback (the BaseDriver
// default is a no-op) so tests can push feedback into the Router.
type stubDriver struct {
	driver.BaseDriver
	name  string
	sink  chan<- driver.FeedbackEvent
	calls []executeCall
}

type executeCall struct {
	action string
	params []driver.Param
	dctx   driver.Context
}

func (s *stubDriver) Name() string { return s.name }
func (s *stubDriver) Init(ctx context.Context, snap config.Snapshot) error { return nil }
func (s *stubDriver) Execute(ctx context.Context, action string, params []driver.Param, dctx driver.Context) (driver.Result, error) {
	s.calls = append(s.calls, executeCall{action: action, params: params, dctx: dctx})
	return driver.Result{}, nil
}
func (s *stubDriver) SubscribeFeedback(sink chan<- driver.FeedbackEvent) { s.sink = sink }
func (s *stubDriver) Close() error                                       { return nil }

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func pagePress(cm *controlmap.Map, mode controlmap.Mode, controlID string) codec.Message {
	addr, _ := cm.LookupMode(controlID, mode)
	return codec.Message{Kind: addr.Family, Channel: addr.Channel, Data1: addr.Data1, Data2: 127, NoteOn: true}
}

// testRig bundles a running Router over simulated surface I/O and a
// registered stub driver, for the common case of inbound/feedback tests.
type testRig struct {
	t      *testing.T
	cm     *controlmap.Map
	router *Router
	surf   *surface.Driver
	ep     *simulated.Endpoint
	state  *actor.Actor
	daw    *stubDriver
	snap   config.Snapshot
}

func newTestRig(t *testing.T, snap config.Snapshot) *testRig {
	t.Helper()
	cm := controlmap.Load()
	ep := simulated.New()

	st := actor.New(context.Background(), actor.DefaultWindows(), 0)
	t.Cleanup(st.Shutdown)

	drivers := driver.NewRegistry()
	daw := &stubDriver{name: "daw"}
	if err := drivers.Register(daw); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r, err := New(cm, st, drivers, nil, newTestMetrics(), snap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	surf := surface.NewDriver(ep, ep, r, surface.Config{
		Mode:                  controlmap.ModePBFader,
		SetpointRetryInterval: 10 * time.Millisecond,
	})
	r.AttachSurface(surf)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := surf.Start(ctx); err != nil {
		t.Fatalf("surf.Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("router.Start: %v", err)
	}
	t.Cleanup(r.Stop)

	return &testRig{t: t, cm: cm, router: r, surf: surf, ep: ep, state: st, daw: daw, snap: snap}
}

func baseSnapshot() config.Snapshot {
	return config.Snapshot{
		Surface: config.SurfaceConfig{Mode: config.SurfaceModePBFader},
		Paging: config.PagingConfig{
			PrevKey: "nav_bank_left",
			NextKey: "nav_bank_right",
		},
		Pages: []config.Page{
			{
				Name: "mix",
				Controls: map[string]config.ControlBinding{
					"transport_play": {Kind: config.BindingDriver, App: "daw", Action: "toggle_play"},
					"strip1_select":  {Kind: config.BindingDriver, App: "daw", Action: "select", Params: []string{"1"}},
				},
			},
			{
				Name:     "sends",
				Controls: map[string]config.ControlBinding{},
			},
		},
		StartupRefreshDelayMs: 1,
	}
}

func TestHandleInboundDispatchesDriverBinding(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	msg := pagePress(rig.cm, controlmap.ModePBFader, "transport_play")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})

	deadline := time.After(time.Second)
	for len(rig.daw.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for driver Execute")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if rig.daw.calls[0].action != "toggle_play" {
		t.Fatalf("got action %q, want toggle_play", rig.daw.calls[0].action)
	}
	if rig.daw.calls[0].dctx.ControlID != "transport_play" {
		t.Fatalf("got control id %q", rig.daw.calls[0].dctx.ControlID)
	}
}

func TestHandleInboundDriverBindingCarriesParams(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	msg := pagePress(rig.cm, controlmap.ModePBFader, "strip1_select")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})

	deadline := time.After(time.Second)
	for len(rig.daw.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for driver Execute")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	call := rig.daw.calls[0]
	if len(call.params) != 1 || call.params[0].Name != "arg0" || call.params[0].Value != "1" {
		t.Fatalf("got params %+v", call.params)
	}
}

func TestHandleInboundIgnoresSquelchedEvent(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	msg := pagePress(rig.cm, controlmap.ModePBFader, "transport_play")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now(), Squelched: true})

	time.Sleep(50 * time.Millisecond)
	if len(rig.daw.calls) != 0 {
		t.Fatalf("expected squelched event to be dropped, got %d calls", len(rig.daw.calls))
	}
}

func TestHandleInboundUnboundControlIsNoop(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	// vpot1 is a real control id with no binding on the "mix" page.
	addr, _ := rig.cm.LookupMode("vpot1", controlmap.ModePBFader)
	msg := codec.Message{Kind: addr.Family, Channel: addr.Channel, Data1: addr.Data1, Data2: 64}
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})

	time.Sleep(50 * time.Millisecond)
	if len(rig.daw.calls) != 0 {
		t.Fatalf("expected unbound control to produce no driver call, got %d", len(rig.daw.calls))
	}
}

func TestPagingKeyPressSwitchesPage(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	if rig.router.activePage.Load().Name != "mix" {
		t.Fatalf("expected initial page mix, got %q", rig.router.activePage.Load().Name)
	}
	msg := pagePress(rig.cm, controlmap.ModePBFader, "nav_bank_right")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})

	if rig.router.activePage.Load().Name != "sends" {
		t.Fatalf("expected page sends after next-key press, got %q", rig.router.activePage.Load().Name)
	}
	if rig.router.Epoch() == 0 {
		t.Fatalf("expected epoch to have advanced past 0")
	}
}

func TestPagingKeyPressAtFirstPageIsNoop(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	msg := pagePress(rig.cm, controlmap.ModePBFader, "nav_bank_left")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})
	if rig.router.activePage.Load().Name != "mix" {
		t.Fatalf("expected moving before the first page to be a no-op, got %q", rig.router.activePage.Load().Name)
	}
}

func TestSwitchPageUnknownNameReturnsError(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	if err := rig.router.SwitchPage("nonexistent"); err == nil {
		t.Fatal("expected an error switching to an unknown page")
	}
}

func TestHandleFeedbackForwardsBoundDriverValueToSurface(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{ControlID: "transport_play", On: true, HasOn: true})

	deadline := time.After(time.Second)
	for len(rig.ep.Written()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for surface write")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	written := rig.ep.Written()
	msg, _, _, err := codec.Decode(written[len(written)-1], 0)
	if err != nil || msg.Kind != codec.KindNote || !msg.NoteOn {
		t.Fatalf("got msg=%+v err=%v", msg, err)
	}
}

type stubPersistSink struct {
	mu    sync.Mutex
	calls []actor.Entry
}

func (s *stubPersistSink) Put(app string, entry actor.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, entry)
}

func (s *stubPersistSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestHandleFeedbackMirrorsCommittedStateToAttachedPersistence(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	sink := &stubPersistSink{}
	rig.router.AttachPersistence(sink)

	rig.router.HandleFeedback("daw", driver.FeedbackEvent{ControlID: "transport_play", On: true, HasOn: true})

	deadline := time.After(time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the committed entry to reach persistence")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestHandleFeedbackForUnboundAppIsNotForwarded(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	rig.router.HandleFeedback("lighting", driver.FeedbackEvent{ControlID: "transport_play", On: true, HasOn: true})

	time.Sleep(50 * time.Millisecond)
	if len(rig.ep.Written()) != 0 {
		t.Fatalf("expected no surface write for an app not bound to this control, got %d", len(rig.ep.Written()))
	}
}

func TestHandleFeedbackForUnmappedControlIDIsIgnored(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{ControlID: "not_a_real_control", HasOn: true, On: true})
	time.Sleep(20 * time.Millisecond)
	if len(rig.ep.Written()) != 0 {
		t.Fatalf("expected no write for an unmapped control id")
	}
}

func TestHandleFeedbackRawResolvesThroughControlMapAndForwardsWhenBound(t *testing.T) {
	rig := newTestRig(t, faderSnapshot())
	raw := codec.Encode(codec.Message{Kind: codec.KindPB, Channel: 0, Value14: 12000})
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{Raw: raw})
	waitForWrite(t, rig.ep, 1)

	written := rig.ep.Written()
	msg, _, _, err := codec.Decode(written[len(written)-1], 0)
	if err != nil {
		t.Fatalf("decoding surface write: %v", err)
	}
	if msg.Kind != codec.KindPB || msg.Channel != 0 || msg.Value14 != 12000 {
		t.Fatalf("expected fader1 driven to the raw-feedback value, got %+v", msg)
	}
}

func TestHandleFeedbackRawForUnmappedAddressIsDropped(t *testing.T) {
	rig := newTestRig(t, faderSnapshot())
	// Channel 15 has no control-map entry in either fader mode.
	raw := codec.Encode(codec.Message{Kind: codec.KindPB, Channel: 15, Value14: 12000})
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{Raw: raw})

	time.Sleep(20 * time.Millisecond)
	if len(rig.ep.Written()) != 0 {
		t.Fatalf("expected no surface write for a raw address absent from the control map, got %d writes", len(rig.ep.Written()))
	}
}

func TestHandleFeedbackRawParseErrorIsDropped(t *testing.T) {
	rig := newTestRig(t, faderSnapshot())
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{Raw: []byte{0xF0, 0x01}}) // unterminated SysEx

	time.Sleep(20 * time.Millisecond)
	if len(rig.ep.Written()) != 0 {
		t.Fatalf("expected no surface write for an unparseable raw frame, got %d writes", len(rig.ep.Written()))
	}
}

func TestHandleFeedbackRepeatedEchoIsShadowSuppressed(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	ev := driver.FeedbackEvent{ControlID: "transport_play", On: true, HasOn: true}
	rig.router.HandleFeedback("daw", ev)

	deadline := time.After(time.Second)
	for len(rig.ep.Written()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first write")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	firstCount := len(rig.ep.Written())

	// Same value again, immediately: the shadow anti-echo window for Note
	// (10ms) should suppress this second forward.
	rig.router.HandleFeedback("daw", ev)
	time.Sleep(30 * time.Millisecond)
	if len(rig.ep.Written()) != firstCount {
		t.Fatalf("expected the repeated identical feedback to be shadow-suppressed, got %d writes (was %d)", len(rig.ep.Written()), firstCount)
	}
}

func TestEpochImplementsSurfaceEpochSource(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	var _ surface.EpochSource = rig.router
	if rig.router.Epoch() != 0 {
		t.Fatalf("expected epoch 0 before any page switch, got %d", rig.router.Epoch())
	}
}

func TestUpdateSnapshotPreservesActivePageByName(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	next := baseSnapshot()
	next.Pages[0].Controls["transport_play"] = config.ControlBinding{Kind: config.BindingDriver, App: "daw", Action: "stop"}

	if err := rig.router.UpdateSnapshot(next); err != nil {
		t.Fatalf("UpdateSnapshot: %v", err)
	}
	if rig.router.activePage.Load().Name != "mix" {
		t.Fatalf("expected active page to remain mix across reload, got %q", rig.router.activePage.Load().Name)
	}

	msg := pagePress(rig.cm, controlmap.ModePBFader, "transport_play")
	rig.router.HandleInbound(surface.InputEvent{Msg: msg, RecvTime: time.Now()})

	deadline := time.After(time.Second)
	for len(rig.daw.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for driver Execute")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if rig.daw.calls[len(rig.daw.calls)-1].action != "stop" {
		t.Fatalf("expected the reloaded binding's action, got %q", rig.daw.calls[len(rig.daw.calls)-1].action)
	}
}

func TestUpdateSnapshotRejectsEmptyPages(t *testing.T) {
	rig := newTestRig(t, baseSnapshot())
	if err := rig.router.UpdateSnapshot(config.Snapshot{}); err == nil {
		t.Fatal("expected an error reloading to a snapshot with no pages")
	}
}

func TestNewRejectsSnapshotWithNoPages(t *testing.T) {
	cm := controlmap.Load()
	st := actor.New(context.Background(), actor.DefaultWindows(), 0)
	defer st.Shutdown()
	drivers := driver.NewRegistry()
	_, err := New(cm, st, drivers, nil, newTestMetrics(), config.Snapshot{})
	if err == nil {
		t.Fatal("expected an error constructing a Router over a snapshot with no pages")
	}
}

// faderSnapshot binds fader1 to "daw" on page "mix" only; "sends" has no
// controls at all, so feedback received while "sends" is active commits to
// state but is never forwarded to the surface.
func faderSnapshot() config.Snapshot {
	return config.Snapshot{
		Surface: config.SurfaceConfig{Mode: config.SurfaceModePBFader},
		Paging: config.PagingConfig{
			PrevKey: "nav_bank_left",
			NextKey: "nav_bank_right",
		},
		Pages: []config.Page{
			{
				Name: "mix",
				Controls: map[string]config.ControlBinding{
					"fader1": {Kind: config.BindingDriver, App: "daw", Action: "fader"},
				},
			},
			{
				Name:     "sends",
				Controls: map[string]config.ControlBinding{},
			},
		},
		StartupRefreshDelayMs: 1,
	}
}

// TestCrossPageFeedbackIsCommittedButNotForwardedOffPage is spec.md §8
// scenario 4: feedback received while a control's page is inactive must
// still update state, so that switching back to that page refreshes the
// surface with the latest value rather than whatever was last forwarded.
func TestCrossPageFeedbackIsCommittedButNotForwardedOffPage(t *testing.T) {
	rig := newTestRig(t, faderSnapshot())

	rig.router.HandleFeedback("daw", driver.FeedbackEvent{ControlID: "fader1", Value14: 12000, HasValue14: true})
	waitForWrite(t, rig.ep, 1)

	if err := rig.router.SwitchPage("sends"); err != nil {
		t.Fatalf("SwitchPage(sends): %v", err)
	}

	writtenBeforeOffPageFeedback := len(rig.ep.Written())
	rig.router.HandleFeedback("daw", driver.FeedbackEvent{ControlID: "fader1", Value14: 6000, HasValue14: true})
	// fader1 has no binding on "sends", so this must never reach the surface.
	time.Sleep(20 * time.Millisecond)
	if len(rig.ep.Written()) != writtenBeforeOffPageFeedback {
		t.Fatalf("expected no surface write for off-page feedback, got %d new writes",
			len(rig.ep.Written())-writtenBeforeOffPageFeedback)
	}

	if err := rig.router.SwitchPage("mix"); err != nil {
		t.Fatalf("SwitchPage(mix): %v", err)
	}
	waitForWrite(t, rig.ep, writtenBeforeOffPageFeedback+1)

	written := rig.ep.Written()
	msg, _, _, err := codec.Decode(written[len(written)-1], 0)
	if err != nil {
		t.Fatalf("decoding refresh output: %v", err)
	}
	if msg.Kind != codec.KindPB || msg.Value14 != 6000 {
		t.Fatalf("expected the page refresh to drive fader1 to the latest committed value 6000, got %+v", msg)
	}
}

func waitForWrite(t *testing.T, ep *simulated.Endpoint, atLeast int) {
	t.Helper()
	deadline := time.After(time.Second)
	for len(ep.Written()) < atLeast {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for at least %d surface writes", atLeast)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
