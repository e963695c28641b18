// Package router implements the Router: the glue component that receives
// surface events and resolves them against the active page, dispatches to
// drivers or performs raw forwarding, receives driver feedback, runs it
// through anti-echo, updates state, and forwards it back to the surface,
// and coordinates page switching and full-page refresh (spec.md §4.7).
//
// Grounded in the teacher's pkg/controlplane/runtime.Runtime: a single
// coordinating type holding references to every collaborator it glues
// together, with state-transition methods rather than a god object doing
// the work itself.
package router

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/driver"
	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/router/refresh"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
	"github.com/juliencr/xtouch-gw/internal/surface"
	"github.com/juliencr/xtouch-gw/internal/telemetry/metrics"
)

// sendRawAction is the action name every raw-MIDI-bridge driver
// understands, per internal/driver/rawbridge.
const sendRawAction = "send_raw"

// Router glues the Surface Driver, State Actor, and Driver Registry
// together. Its own fields are either immutable after New or guarded by
// atomics; it holds no mutex because its job is dispatch, not storage.
type Router struct {
	cm       *controlmap.Map
	state    *actor.Actor
	drivers  *driver.Registry
	surf     *surface.Driver
	metrics  *metrics.Metrics
	persist  PersistSink

	snapshot   atomic.Pointer[config.Snapshot]
	activePage atomic.Pointer[config.Page]
	epoch      atomic.Uint64

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PersistSink is the subset of *persist.Store's interface the Router needs
// to mirror committed state into the Persistence Actor. Declared locally
// (rather than importing internal/state/persist) so the Router has no
// dependency on the persistence backend — only on somewhere to put a
// committed actor.Entry.
type PersistSink interface {
	Put(app string, entry actor.Entry)
}

// New constructs a Router over its collaborators. snap must contain at
// least one page (config.Snapshot.Validate enforces this); the first page
// in snap.Pages becomes the initially active one.
//
// surf may be nil at construction time: the Router itself implements
// surface.EpochSource, so the usual wiring order is New (surf: nil),
// surface.NewDriver(..., router, ...), then AttachSurface(surf) — breaking
// the circular dependency between the two constructors.
func New(cm *controlmap.Map, state *actor.Actor, drivers *driver.Registry, surf *surface.Driver, m *metrics.Metrics, snap config.Snapshot) (*Router, error) {
	if len(snap.Pages) == 0 {
		return nil, fmt.Errorf("router: snapshot has no pages")
	}
	r := &Router{cm: cm, state: state, drivers: drivers, surf: surf, metrics: m}
	r.snapshot.Store(&snap)
	first := snap.Pages[0]
	r.activePage.Store(&first)
	return r, nil
}

// AttachSurface completes two-phase construction for callers that needed
// the Router as an EpochSource before the Surface Driver existed. It must
// be called before Start. Safe to call once; not safe for concurrent use
// alongside Start.
func (r *Router) AttachSurface(surf *surface.Driver) {
	r.surf = surf
}

// AttachPersistence wires p as the Persistence Actor's mirror target: every
// state update HandleFeedback commits is also handed to p.Put. Optional —
// a Router with no persistence attached simply never calls it.
func (r *Router) AttachPersistence(p PersistSink) {
	r.persist = p
}

// UpdateSnapshot republishes snap as the Router's configuration, for
// config hot-reload (internal/bootstrap). In-flight handlers that already
// captured the previous snapshot's pointer finish against it; every call
// after this one observes snap. The active page is re-resolved by name
// against snap's page list so a reload that edits the current page's
// bindings takes effect without forcing a page switch; if the active
// page's name no longer exists in snap, the Router falls back to snap's
// first page and runs a refresh as if a page switch occurred.
func (r *Router) UpdateSnapshot(snap config.Snapshot) error {
	if len(snap.Pages) == 0 {
		return fmt.Errorf("router: snapshot has no pages")
	}
	r.snapshot.Store(&snap)

	current := r.activePage.Load()
	if page, ok := snap.PageByName(current.Name); ok {
		r.activePage.Store(&page)
		return nil
	}
	r.switchToPage(snap.Pages[0])
	return nil
}

// Epoch implements surface.EpochSource: the Surface Driver reads this
// directly on every setpoint check, so incrementing it here is
// immediately visible without an explicit push.
func (r *Router) Epoch() uint64 {
	return r.epoch.Load()
}

// Start wires every registered driver's feedback channel and connection
// status callback, launches the inbound-event loop, and schedules the
// deferred initial page refresh. It returns once every goroutine has been
// launched; Stop reverses it.
func (r *Router) Start(ctx context.Context) error {
	r.baseCtx, r.cancel = context.WithCancel(ctx)

	for _, name := range r.drivers.Names() {
		d, ok := r.drivers.Get(name)
		if !ok {
			continue
		}
		sink := make(chan driver.FeedbackEvent, 64)
		d.SubscribeFeedback(sink)
		appName := name
		d.SubscribeConnectionStatus(func(s driver.Status) {
			r.metrics.SetDriverStatus(appName, int(s))
			if s == driver.StatusConnecting {
				r.metrics.RecordDriverReconnect(appName)
			}
		})

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.feedbackLoop(r.baseCtx, appName, sink)
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.inboundLoop(r.baseCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.initialRefresh(r.baseCtx)
	}()

	return nil
}

// Stop cancels every task launched by Start and waits for them to return.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Router) currentMode() controlmap.Mode {
	mode, err := r.snapshot.Load().Surface.Mode.ToControlMapMode()
	if err != nil {
		return controlmap.ModePBFader
	}
	return mode
}

func (r *Router) feedbackLoop(ctx context.Context, app string, sink chan driver.FeedbackEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sink:
			r.HandleFeedback(app, ev)
		}
	}
}

func (r *Router) inboundLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.surf.Events():
			r.HandleInbound(ev)
		}
	}
}

// initialRefresh waits the configured startup delay (so every driver has
// had a chance to deliver its first connection-status update) before
// running the first page refresh, per spec.md §4.7's "Initial refresh"
// paragraph.
func (r *Router) initialRefresh(ctx context.Context) {
	delay := time.Duration(r.snapshot.Load().StartupRefreshDelay()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	r.runRefresh(ctx)
}

func isPress(msg codec.Message) bool {
	return msg.Kind == codec.KindNote && msg.NoteOn && msg.Data2 > 0
}

// HandleInbound implements spec.md §4.7's inbound path for one decoded
// surface event.
func (r *Router) HandleInbound(ev surface.InputEvent) {
	if ev.Squelched {
		return
	}

	mode := r.currentMode()
	addr := controlmap.Addr{Family: ev.Msg.Kind, Channel: ev.Msg.Channel, Data1: ev.Msg.Data1}
	controlID, ok := r.cm.Reverse(addr, mode)
	if !ok {
		return
	}

	snap := r.snapshot.Load()
	if isPress(ev.Msg) {
		switch controlID {
		case snap.Paging.PrevKey:
			r.switchRelative(-1)
			return
		case snap.Paging.NextKey:
			r.switchRelative(1)
			return
		}
	}

	page := r.activePage.Load()
	binding, bound := snap.ResolveBindings(*page)[controlID]
	if !bound {
		return
	}

	r.state.MarkUserAction(addr, ev.Msg, ev.RecvTime)

	var raw14 uint16
	var raw7 uint8
	if ev.Msg.Kind == codec.KindPB {
		raw14 = ev.Msg.Value14
	} else {
		raw7 = ev.Msg.Data2
	}
	dctx := driver.Context{ControlID: controlID, Raw14: raw14, Raw7: raw7}

	switch binding.Kind {
	case config.BindingDriver:
		r.dispatchDriverAction(binding, dctx)
	case config.BindingRawMidi:
		r.dispatchRawMidi(binding, ev.Msg, dctx)
	}
}

func (r *Router) dispatchDriverAction(binding config.ControlBinding, dctx driver.Context) {
	d, ok := r.drivers.Get(binding.App)
	if !ok {
		logger.Warn("inbound control bound to unregistered app", logger.App(binding.App), logger.ControlID(dctx.ControlID))
		return
	}
	params := make([]driver.Param, 0, len(binding.Params))
	for i, v := range binding.Params {
		params = append(params, driver.Param{Name: fmt.Sprintf("arg%d", i), Value: v})
	}
	if _, err := d.Execute(r.baseCtx, binding.Action, params, dctx); err != nil {
		logger.Warn("driver execute failed", logger.App(binding.App), logger.Action(binding.Action), logger.ControlID(dctx.ControlID), logger.Err(err))
	}
}

func (r *Router) dispatchRawMidi(binding config.ControlBinding, msg codec.Message, dctx driver.Context) {
	target, ok := r.drivers.Get(binding.BridgeTarget)
	if !ok {
		logger.Warn("raw_midi binding targets unregistered bridge", logger.App(binding.BridgeTarget), logger.ControlID(dctx.ControlID))
		return
	}
	params := []driver.Param{{Name: "bytes", Value: hex.EncodeToString(codec.Encode(msg))}}
	if _, err := target.Execute(r.baseCtx, sendRawAction, params, dctx); err != nil {
		logger.Warn("raw_midi forward failed", logger.App(binding.BridgeTarget), logger.ControlID(dctx.ControlID), logger.Err(err))
	}
}

// switchRelative moves the active page by delta positions (wrapping is not
// performed; moving past either end is a no-op) and runs a page switch.
func (r *Router) switchRelative(delta int) {
	snap := r.snapshot.Load()
	current := r.activePage.Load()
	idx := -1
	for i, p := range snap.Pages {
		if p.Name == current.Name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	next := idx + delta
	if next < 0 || next >= len(snap.Pages) {
		return
	}
	r.switchToPage(snap.Pages[next])
}

// SwitchPage switches the active page by name.
func (r *Router) SwitchPage(name string) error {
	snap := r.snapshot.Load()
	page, ok := snap.PageByName(name)
	if !ok {
		return fmt.Errorf("router: unknown page %q", name)
	}
	r.switchToPage(page)
	return nil
}

// switchToPage implements spec.md §4.7's page-switch sequence: increment
// the epoch, clear shadows, then compute and execute the refresh plan
// under the new epoch.
func (r *Router) switchToPage(page config.Page) {
	newPage := page
	r.activePage.Store(&newPage)
	r.epoch.Add(1)
	r.metrics.SetPageEpoch(r.epoch.Load())
	r.state.ClearShadows()
	logger.Info("page switch", logger.Page(page.Name), logger.Epoch(r.epoch.Load()))
	r.runRefresh(r.baseCtx)
}

func (r *Router) runRefresh(ctx context.Context) {
	snap := r.snapshot.Load()
	page := r.activePage.Load()
	mode := r.currentMode()
	start := time.Now()
	outputs, err := refresh.Plan(ctx, refresh.Input{
		ControlMap: r.cm,
		State:      r.state,
		Surface:    r.surf,
		Snapshot:   *snap,
		Page:       *page,
		Mode:       mode,
	})
	if err != nil {
		logger.Warn("page refresh planning failed", logger.Page(page.Name), logger.Err(err))
		return
	}
	epochAtPlan := r.epoch.Load()
	for _, out := range outputs {
		if r.epoch.Load() != epochAtPlan {
			logger.Debug("page refresh abandoned mid-execution: epoch changed", logger.Page(page.Name))
			return
		}
		if err := out.Emit(r.surf); err != nil {
			logger.Warn("page refresh output failed", logger.Page(page.Name), logger.Err(err))
		}
	}
	r.metrics.ObserveRefreshDuration(float64(time.Since(start).Milliseconds()))
}

func feedbackMessage(addr controlmap.Addr, ev driver.FeedbackEvent) (codec.Message, bool) {
	switch {
	case ev.HasValue14:
		return codec.Message{Kind: addr.Family, Channel: addr.Channel, Data1: addr.Data1, Value14: ev.Value14, Data2: codec.To7(ev.Value14)}, true
	case ev.HasValue7:
		return codec.Message{Kind: addr.Family, Channel: addr.Channel, Data1: addr.Data1, Data2: ev.Value7}, true
	case ev.HasOn:
		vel := uint8(0)
		if ev.On {
			vel = 127
		}
		return codec.Message{Kind: addr.Family, Channel: addr.Channel, Data1: addr.Data1, Data2: vel, NoteOn: ev.On}, true
	default:
		return codec.Message{}, false
	}
}

// HandleFeedback implements spec.md §4.7's outbound/feedback path for one
// event reported by app.
func (r *Router) HandleFeedback(app string, ev driver.FeedbackEvent) {
	epochAtReceipt := r.epoch.Load()
	mode := r.currentMode()

	var addr controlmap.Addr
	var msg codec.Message
	if len(ev.Raw) > 0 {
		// Raw-MIDI-bridge feedback carries wire bytes instead of a
		// ControlID; parse and reverse-lookup it the same way any other
		// feedback resolves to a control, then fall into the common path
		// below — spec.md §9: "The Router treats them like any other
		// driver; no special case."
		decoded, _, _, err := codec.Decode(ev.Raw, 0)
		if err != nil {
			logger.Debug("raw feedback parse error", logger.App(app), logger.Err(err))
			return
		}
		rawAddr := controlmap.Addr{Family: decoded.Kind, Channel: decoded.Channel, Data1: decoded.Data1}
		controlID, ok := r.cm.Reverse(rawAddr, mode)
		if !ok {
			logger.Debug("feedback for unmapped raw address", logger.App(app))
			return
		}
		ev.ControlID = controlID
		switch decoded.Kind {
		case codec.KindPB:
			ev.Value14, ev.HasValue14 = decoded.Value14, true
		case codec.KindCC:
			ev.Value7, ev.HasValue7 = decoded.Data2, true
		case codec.KindNote:
			ev.On, ev.HasOn = decoded.NoteOn, true
		default:
			logger.Debug("raw feedback message kind has no typed representation", logger.App(app), logger.ControlID(ev.ControlID))
			return
		}
		addr, msg = rawAddr, decoded
	} else {
		var ok bool
		addr, ok = r.cm.LookupMode(ev.ControlID, mode)
		if !ok {
			logger.Debug("feedback for unmapped control id", logger.App(app), logger.ControlID(ev.ControlID))
			return
		}
		msg, ok = feedbackMessage(addr, ev)
		if !ok {
			return
		}
	}

	now := time.Now()
	if ev.HasValue14 {
		r.surf.ActivateSquelch(msg.Kind, msg.Channel, 120*time.Millisecond)
	}

	entry := actor.Entry{Addr: addr, Value: msg, Timestamp: now, Origin: actor.OriginDriverFeedback, Known: true}

	suppressed, err := r.state.CheckSuppressAntiEcho(app, entry)
	if err != nil {
		return
	}
	if suppressed {
		r.metrics.RecordShadowSuppression(msg.Kind.String())
		return
	}
	if lww, err := r.state.CheckSuppressLWW(entry); err == nil && lww {
		r.metrics.RecordLWWSuppression(msg.Kind.String())
		return
	}

	r.state.UpdateState(app, entry)
	if r.persist != nil {
		r.persist.Put(app, entry)
	}

	snap := r.snapshot.Load()
	page := r.activePage.Load()
	binding, bound := snap.ResolveBindings(*page)[ev.ControlID]
	if !bound || binding.Kind != config.BindingDriver || binding.App != app {
		return // committed to state for a future page switch, not forwarded
	}
	if r.epoch.Load() != epochAtReceipt {
		return
	}

	r.state.UpdateShadow(app, actor.ShadowEntry{Addr: addr, Value: msg, Timestamp: now})
	if err := emitSurfaceOutput(r.surf, mode, msg); err != nil {
		logger.Warn("surface output failed", logger.App(app), logger.ControlID(ev.ControlID), logger.Err(err))
	}
}

// emitSurfaceOutput writes msg to the surface via the narrowest matching
// high-level operation, falling back to a raw write for message kinds the
// Surface Driver has no dedicated setter for (encoder rings, LCD SysEx).
func emitSurfaceOutput(surf *surface.Driver, mode controlmap.Mode, msg codec.Message) error {
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
