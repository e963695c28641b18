package actor

import (
	"context"
	"sort"
	"time"

	"github.com/juliencr/xtouch-gw/internal/gwerrors"
	"github.com/juliencr/xtouch-gw/internal/midi/codec"
)

// command is the marker interface for everything the Actor's run loop
// accepts. Unexported implementers keep the command set closed to this
// package — callers only ever see the typed public methods below.
type command interface {
	apply(a *Actor)
}

// Actor owns all state, shadow, and user-action bookkeeping behind a
// single goroutine. It is created running; call Shutdown to stop it.
type Actor struct {
	windows Windows

	cmd    chan command
	closed chan struct{}
	cancel context.CancelFunc

	state      map[string]map[Addr]Entry
	shadow     map[string]map[Addr]ShadowEntry
	userAction map[Addr]userAction
}

// New starts the Actor's run loop on its own goroutine and returns a
// handle. queueSize bounds the command channel; 0 selects a sensible
// default. The actor also stops if parent is cancelled.
func New(parent context.Context, windows Windows, queueSize int) *Actor {
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(parent)
	a := &Actor{
		windows:    windows,
		cmd:        make(chan command, queueSize),
		closed:     make(chan struct{}),
		cancel:     cancel,
		state:      make(map[string]map[Addr]Entry),
		shadow:     make(map[string]map[Addr]ShadowEntry),
		userAction: make(map[Addr]userAction),
	}
	go a.run(ctx)
	return a
}

// Shutdown stops the actor's run loop. Commands already queued are
// discarded; in-flight queries return ErrClosed. Safe to call more than
// once.
func (a *Actor) Shutdown() {
	a.cancel()
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.closed)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-a.cmd:
			if !ok {
				return
			}
			c.apply(a)
		}
	}
}

// send enqueues a fire-and-forget command. It never blocks the caller
// beyond the queue's capacity, and never panics even if the actor has
// already shut down (the command is simply dropped).
func (a *Actor) send(c command) {
	select {
	case <-a.closed:
		return
	case a.cmd <- c:
	}
}

// ---- fire-and-forget commands ----

type cmdUpdateState struct {
	app   string
	entry Entry
}

func (c cmdUpdateState) apply(a *Actor) {
	m, ok := a.state[c.app]
	if !ok {
		m = make(map[Addr]Entry)
		a.state[c.app] = m
	}
	m[c.entry.Addr] = c.entry
}

// UpdateState commits entry as the latest known value for (app, addr).
func (a *Actor) UpdateState(app string, entry Entry) {
	a.send(cmdUpdateState{app: app, entry: entry})
}

type cmdUpdateShadow struct {
	app   string
	entry ShadowEntry
}

func (c cmdUpdateShadow) apply(a *Actor) {
	m, ok := a.shadow[c.app]
	if !ok {
		m = make(map[Addr]ShadowEntry)
		a.shadow[c.app] = m
	}
	m[c.entry.Addr] = c.entry
}

// UpdateShadow records the value the Router most recently forwarded to the
// surface on behalf of app.
func (a *Actor) UpdateShadow(app string, entry ShadowEntry) {
	a.send(cmdUpdateShadow{app: app, entry: entry})
}

type cmdMarkUserAction struct {
	addr      Addr
	value     codec.Message
	timestamp time.Time
}

func (c cmdMarkUserAction) apply(a *Actor) {
	a.userAction[c.addr] = userAction{Value: c.value, Timestamp: c.timestamp}
}

// MarkUserAction records that a physical control movement with value was
// observed at addr at timestamp. The value is kept (not just the instant)
// because the LWW policy needs to detect disagreement with feedback, not
// merely recency.
func (a *Actor) MarkUserAction(addr Addr, value codec.Message, timestamp time.Time) {
	a.send(cmdMarkUserAction{addr: addr, value: value, timestamp: timestamp})
}

type cmdHydrateFromSnapshot struct {
	app     string
	entries []Entry
}

func (c cmdHydrateFromSnapshot) apply(a *Actor) {
	m, ok := a.state[c.app]
	if !ok {
		m = make(map[Addr]Entry)
		a.state[c.app] = m
	}
	for _, e := range c.entries {
		e.Stale = true
		m[e.Addr] = e
	}
}

// HydrateFromSnapshot loads entries recovered from persistence at startup,
// each forced Stale so fresh feedback can supersede it.
func (a *Actor) HydrateFromSnapshot(app string, entries []Entry) {
	a.send(cmdHydrateFromSnapshot{app: app, entries: entries})
}

type cmdClearShadows struct{}

func (cmdClearShadows) apply(a *Actor) {
	a.shadow = make(map[string]map[Addr]ShadowEntry)
}

// ClearShadows drops every app's shadow map, called on every page switch.
func (a *Actor) ClearShadows() {
	a.send(cmdClearShadows{})
}

// ---- queries ----

type cmdGetState struct {
	app   string
	addr  Addr
	reply chan<- getStateResult
}

type getStateResult struct {
	entry Entry
	ok    bool
}

func (c cmdGetState) apply(a *Actor) {
	e, ok := a.state[c.app][c.addr]
	c.reply <- getStateResult{entry: e, ok: ok}
}

// GetState returns the entry committed for (app, addr), if any.
func (a *Actor) GetState(app string, addr Addr) (Entry, bool, error) {
	reply := make(chan getStateResult, 1)
	select {
	case <-a.closed:
		return Entry{}, false, gwerrors.NewClosedError("state actor is shut down")
	case a.cmd <- cmdGetState{app: app, addr: addr, reply: reply}:
	}
	select {
	case r := <-reply:
		return r.entry, r.ok, nil
	case <-a.closed:
		return Entry{}, false, gwerrors.NewClosedError("state actor is shut down")
	}
}

type cmdGetKnownLatest struct {
	app    string
	filter Filter
	reply  chan<- []Entry
}

func (c cmdGetKnownLatest) apply(a *Actor) {
	var out []Entry
	for _, e := range a.state[c.app] {
		if !e.Known {
			continue
		}
		if !c.filter.Match(e.Addr) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stale != out[j].Stale {
			return !out[i].Stale // non-stale first
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	c.reply <- out
}

// GetKnownLatest returns every known entry for app matching filter, with
// the non-stale/highest-timestamp entry first.
func (a *Actor) GetKnownLatest(app string, filter Filter) ([]Entry, error) {
	reply := make(chan []Entry, 1)
	select {
	case <-a.closed:
		return nil, gwerrors.NewClosedError("state actor is shut down")
	case a.cmd <- cmdGetKnownLatest{app: app, filter: filter, reply: reply}:
	}
	select {
	case r := <-reply:
		return r, nil
	case <-a.closed:
		return nil, gwerrors.NewClosedError("state actor is shut down")
	}
}

type cmdCheckSuppressAntiEcho struct {
	app   string
	entry Entry
	reply chan<- bool
}

func (c cmdCheckSuppressAntiEcho) apply(a *Actor) {
	shadow, hasShadow := a.shadow[c.app][c.entry.Addr]
	c.reply <- a.windows.suppressShadow(shadow, hasShadow, c.entry, c.entry.Timestamp)
}

// CheckSuppressAntiEcho reports whether entry (feedback from app) should be
// suppressed by the shadow anti-echo rule. Must be called before
// UpdateState/UpdateShadow for entry.
func (a *Actor) CheckSuppressAntiEcho(app string, entry Entry) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case <-a.closed:
		return false, gwerrors.NewClosedError("state actor is shut down")
	case a.cmd <- cmdCheckSuppressAntiEcho{app: app, entry: entry, reply: reply}:
	}
	select {
	case r := <-reply:
		return r, nil
	case <-a.closed:
		return false, gwerrors.NewClosedError("state actor is shut down")
	}
}

type cmdCheckSuppressLWW struct {
	entry Entry
	reply chan<- bool
}

func (c cmdCheckSuppressLWW) apply(a *Actor) {
	ua, hasUA := a.userAction[c.entry.Addr]
	c.reply <- a.windows.suppressLWW(ua, hasUA, c.entry, c.entry.Timestamp)
}

// CheckSuppressLWW reports whether entry should be suppressed by the
// last-writer-wins rule against a recent physical user action.
func (a *Actor) CheckSuppressLWW(entry Entry) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case <-a.closed:
		return false, gwerrors.NewClosedError("state actor is shut down")
	case a.cmd <- cmdCheckSuppressLWW{entry: entry, reply: reply}:
	}
	select {
	case r := <-reply:
		return r, nil
	case <-a.closed:
		return false, gwerrors.NewClosedError("state actor is shut down")
	}
}

// Done returns a channel closed once the actor's run loop has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.closed
}
