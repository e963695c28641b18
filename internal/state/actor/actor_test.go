package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juliencr/xtouch-gw/internal/midi/codec"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	a := New(ctx, DefaultWindows(), 0)
	t.Cleanup(func() {
		cancel()
		a.Shutdown()
	})
	return a
}

func TestUpdateStateThenGetState(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindPB, Channel: 0}
	entry := Entry{Addr: addr, Value: codec.Message{Kind: codec.KindPB, Value14: 8192}, Timestamp: time.Now(), Known: true}

	a.UpdateState("mixer", entry)

	require.Eventually(t, func() bool {
		got, ok, err := a.GetState("mixer", addr)
		return err == nil && ok && got.Value.Value14 == 8192
	}, time.Second, time.Millisecond)
}

func TestGetStateUnknownAppReturnsNotFound(t *testing.T) {
	a := newTestActor(t)
	_, ok, err := a.GetState("nobody", Addr{Family: codec.KindCC})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetKnownLatestExcludesUnknown(t *testing.T) {
	a := newTestActor(t)
	known := Entry{Addr: Addr{Family: codec.KindCC, Channel: 0, Data1: 1}, Known: true, Timestamp: time.Now()}
	unknown := Entry{Addr: Addr{Family: codec.KindCC, Channel: 0, Data1: 2}, Known: false, Timestamp: time.Now()}
	a.UpdateState("mixer", known)
	a.UpdateState("mixer", unknown)

	var entries []Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = a.GetKnownLatest("mixer", Filter{})
		return err == nil && len(entries) >= 1
	}, time.Second, time.Millisecond)

	for _, e := range entries {
		require.True(t, e.Known)
		require.NotEqual(t, uint8(2), e.Addr.Data1)
	}
}

func TestGetKnownLatestOrdersNonStaleFirst(t *testing.T) {
	a := newTestActor(t)
	addr1 := Addr{Family: codec.KindCC, Channel: 0, Data1: 1}
	addr2 := Addr{Family: codec.KindCC, Channel: 0, Data1: 2}
	now := time.Now()

	a.UpdateState("mixer", Entry{Addr: addr1, Known: true, Stale: true, Timestamp: now.Add(-time.Hour)})
	a.UpdateState("mixer", Entry{Addr: addr2, Known: true, Stale: false, Timestamp: now.Add(-2 * time.Hour)})

	var entries []Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = a.GetKnownLatest("mixer", Filter{})
		return err == nil && len(entries) == 2
	}, time.Second, time.Millisecond)

	require.False(t, entries[0].Stale, "non-stale entry must sort first regardless of timestamp")
}

func TestGetKnownLatestFilterByAddr(t *testing.T) {
	a := newTestActor(t)
	addr1 := Addr{Family: codec.KindCC, Channel: 0, Data1: 1}
	addr2 := Addr{Family: codec.KindCC, Channel: 0, Data1: 2}
	a.UpdateState("mixer", Entry{Addr: addr1, Known: true, Timestamp: time.Now()})
	a.UpdateState("mixer", Entry{Addr: addr2, Known: true, Timestamp: time.Now()})

	data1 := uint8(1)
	var entries []Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = a.GetKnownLatest("mixer", Filter{Data1: &data1})
		return err == nil && len(entries) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, addr1, entries[0].Addr)
}

func TestHydrateFromSnapshotForcesStale(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindPB, Channel: 3}
	a.HydrateFromSnapshot("lighting", []Entry{
		{Addr: addr, Value: codec.Message{Kind: codec.KindPB, Value14: 4000}, Known: true, Stale: false, Timestamp: time.Now()},
	})

	require.Eventually(t, func() bool {
		got, ok, err := a.GetState("lighting", addr)
		return err == nil && ok && got.Stale
	}, time.Second, time.Millisecond)
}

func TestCheckSuppressAntiEchoBeforeCommit(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindPB, Channel: 0}
	now := time.Now()
	shadowVal := codec.Message{Kind: codec.KindPB, Value14: 8192}

	a.UpdateShadow("mixer", ShadowEntry{Addr: addr, Value: shadowVal, Timestamp: now})

	entry := Entry{Addr: addr, Value: shadowVal, Timestamp: now.Add(50 * time.Millisecond), Known: true}

	var suppressed bool
	require.Eventually(t, func() bool {
		var err error
		suppressed, err = a.CheckSuppressAntiEcho("mixer", entry)
		return err == nil
	}, time.Second, time.Millisecond)
	require.True(t, suppressed, "repeating the shadowed value within the PB window must be suppressed")
}

func TestCheckSuppressLWWAfterMarkUserAction(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindPB, Channel: 0}
	now := time.Now()

	a.MarkUserAction(addr, codec.Message{Kind: codec.KindPB, Value14: 1000}, now)

	entry := Entry{Addr: addr, Value: codec.Message{Kind: codec.KindPB, Value14: 9000}, Timestamp: now.Add(50 * time.Millisecond)}

	var suppressed bool
	require.Eventually(t, func() bool {
		var err error
		suppressed, err = a.CheckSuppressLWW(entry)
		return err == nil
	}, time.Second, time.Millisecond)
	require.True(t, suppressed, "disagreeing feedback within the PB LWW grace must be suppressed")
}

func TestClearShadowsRemovesAllApps(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindCC, Channel: 0, Data1: 1}
	a.UpdateShadow("mixer", ShadowEntry{Addr: addr, Value: codec.Message{Kind: codec.KindCC, Data2: 5}, Timestamp: time.Now()})
	a.ClearShadows()

	entry := Entry{Addr: addr, Value: codec.Message{Kind: codec.KindCC, Data2: 5}, Timestamp: time.Now()}
	require.Eventually(t, func() bool {
		suppressed, err := a.CheckSuppressAntiEcho("mixer", entry)
		return err == nil && !suppressed
	}, time.Second, time.Millisecond)
}

func TestShutdownCausesQueriesToErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := New(ctx, DefaultWindows(), 0)
	a.Shutdown()
	cancel()

	require.Eventually(t, func() bool {
		_, _, err := a.GetState("mixer", Addr{Family: codec.KindCC})
		return err != nil
	}, time.Second, time.Millisecond)
}

func TestCommandOrderingWithinOneApp(t *testing.T) {
	a := newTestActor(t)
	addr := Addr{Family: codec.KindCC, Channel: 0, Data1: 9}
	for i := 0; i < 50; i++ {
		a.UpdateState("mixer", Entry{Addr: addr, Value: codec.Message{Kind: codec.KindCC, Data1: 9, Data2: uint8(i % 128)}, Known: true, Timestamp: time.Now()})
	}
	require.Eventually(t, func() bool {
		got, ok, err := a.GetState("mixer", addr)
		return err == nil && ok && got.Value.Data2 == 49
	}, time.Second, time.Millisecond)
}
