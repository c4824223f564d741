package gossip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/jonboulle/clockwork"
	"github.com/mosaicnetworks/dagsync/src/common"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/mosaicnetworks/dagsync/src/net"
	sg "github.com/mosaicnetworks/dagsync/src/shadowgraph"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1600000000, 0)

// eventFactory creates events with distinct timestamps so that no two events
// share a hash.
type eventFactory struct {
	now time.Time
}

func (f *eventFactory) new(creator uint32, selfParent *hg.Event, otherParents ...*hg.Event) *hg.Event {
	if f.now.IsZero() {
		f.now = epoch
	}
	f.now = f.now.Add(time.Millisecond)
	return hg.NewEvent(creator, selfParent, otherParents, hg.FirstRound, nil, f.now)
}

func (f *eventFactory) chain(creator uint32, parent *hg.Event, n int) []*hg.Event {
	res := make([]*hg.Event, 0, n)
	for i := 0; i < n; i++ {
		parent = f.new(creator, parent)
		res = append(res, parent)
	}
	return res
}

func newGraph(t *testing.T, events ...*hg.Event) *sg.Shadowgraph {
	g := sg.NewShadowgraph(hg.GenerationThreshold, common.NewTestEntry(t, "graph"))
	for _, e := range events {
		require.NoError(t, g.AddEvent(e))
	}
	return g
}

type recorder struct {
	sync.Mutex
	events []*hg.Event
	peers  []uint32
}

func (r *recorder) handle(e *hg.Event) {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ReportFallenBehind(peerID uint32) {
	r.Lock()
	defer r.Unlock()
	r.peers = append(r.peers, peerID)
}

func newTestSynchronizer(t *testing.T, id uint32, graph *sg.Shadowgraph, rec *recorder, permits *SyncPermits) *Synchronizer {
	var handler EventHandler
	var fbm FallenBehindManager
	if rec != nil {
		handler = rec.handle
		fbm = rec
	}
	return NewSynchronizer(graph, id, DefaultSyncConfig(), handler, fbm, permits, nil,
		common.NewTestEntry(t, "sync"))
}

type syncOutcome struct {
	res *SyncResult
	err error
}

// runSync runs one sync between caller and listener over a pipe and returns
// what each side reported.
func runSync(t *testing.T, caller, listener *Synchronizer) (syncOutcome, syncOutcome) {
	a, b := net.Pipe(caller.selfID, listener.selfID, time.Second)
	defer a.Close()
	defer b.Close()
	return runSyncOn(t, caller, listener, a, b)
}

func runSyncOn(t *testing.T, caller, listener *Synchronizer, a, b *net.Connection) (syncOutcome, syncOutcome) {
	ctx := context.Background()

	lc := make(chan syncOutcome, 1)
	go func() {
		res, err := listener.AcceptSync(ctx, b)
		lc <- syncOutcome{res, err}
	}()

	res, err := caller.Synchronize(ctx, a)
	co := syncOutcome{res, err}

	select {
	case lo := <-lc:
		return co, lo
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not return")
	}
	return co, syncOutcome{}
}

func requireSameEvents(t *testing.T, a, b *sg.Shadowgraph) {
	require.Equal(t, a.Len(), b.Len())
	for _, tip := range a.Tips() {
		ancestors := a.FindAncestors([]*sg.ShadowEvent{tip}, func(*sg.ShadowEvent) bool { return true })
		for _, e := range ancestors.Events() {
			require.True(t, b.IsHashInGraph(e.Hash()), "missing %s", e.Hex())
		}
	}
}

/*******************************************************************************
Tests
*******************************************************************************/

func TestSyncIdenticalGraphs(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	events := f.chain(1, nil, 5)

	s1 := newTestSynchronizer(t, 1, newGraph(t, events...), nil, nil)
	s2 := newTestSynchronizer(t, 2, newGraph(t, events...), nil, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	for _, r := range []*SyncResult{co.res, lo.res} {
		require.True(t, r.Synced)
		require.Equal(t, NoneFallenBehind, r.Status)
		require.Equal(t, 0, r.EventsSent)
		require.Equal(t, 0, r.EventsReceived)
	}
}

func TestSyncSendsOnlyUnknownEvents(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	a0 := f.new(1, nil)
	a1 := f.new(1, a0)
	b0 := f.new(2, nil, a1)
	b1 := f.new(2, b0)

	g1 := newGraph(t, a0, a1)
	g2 := newGraph(t, a0, a1, b0, b1)

	rec := &recorder{}
	s1 := newTestSynchronizer(t, 1, g1, rec, nil)
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 0, co.res.EventsSent)
	require.Equal(t, 2, co.res.EventsReceived)
	require.Equal(t, 2, lo.res.EventsSent)
	require.Equal(t, 0, lo.res.EventsReceived)

	require.Len(t, rec.events, 2)
	require.Equal(t, b0.Hash(), rec.events[0].Hash())
	require.Equal(t, b1.Hash(), rec.events[1].Hash())
	require.False(t, rec.events[0].TimeReceived().IsZero())

	requireSameEvents(t, g1, g2)
}

func TestSyncDivergedGraphs(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	shared := f.chain(3, nil, 4)
	top := shared[len(shared)-1]

	var own1, own2 []*hg.Event
	var h1, h2 *hg.Event
	for i := 0; i < 6; i++ {
		h1 = f.new(1, h1, top)
		own1 = append(own1, h1)
		h2 = f.new(2, h2, top)
		own2 = append(own2, h2)
	}

	g1 := newGraph(t, append(append([]*hg.Event{}, shared...), own1...)...)
	g2 := newGraph(t, append(append([]*hg.Event{}, shared...), own2...)...)

	s1 := newTestSynchronizer(t, 1, g1, nil, nil)
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, len(own2), co.res.EventsReceived)
	require.Equal(t, len(own1), lo.res.EventsReceived)
	require.Equal(t, len(shared)+len(own1)+len(own2), g1.Len())
	requireSameEvents(t, g1, g2)

	// A second sync has nothing left to exchange.
	co, lo = runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)
	require.Equal(t, 0, co.res.EventsSent)
	require.Equal(t, 0, lo.res.EventsSent)
}

func TestSyncWithEmptyGraph(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	events := f.chain(1, nil, 10)

	g1 := newGraph(t, events...)
	g2 := newGraph(t)

	s1 := newTestSynchronizer(t, 1, g1, nil, nil)
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	co, lo := runSync(t, s2, s1)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 10, co.res.EventsReceived)
	require.Equal(t, 10, lo.res.EventsSent)
	requireSameEvents(t, g1, g2)
}

func TestSyncSkipsEventsAncientForPeer(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	events := f.chain(1, nil, 6)

	g1 := newGraph(t, events...)
	g2 := newGraph(t)

	w, err := hg.NewEventWindow(4, 3, 0, hg.GenerationThreshold)
	require.NoError(t, err)
	require.NoError(t, g2.UpdateEventWindow(w))

	rec := &recorder{}
	s1 := newTestSynchronizer(t, 1, g1, nil, nil)
	s2 := newTestSynchronizer(t, 2, g2, rec, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 3, co.res.EventsSent)
	require.Equal(t, 3, lo.res.EventsReceived)
	for _, e := range rec.events {
		require.GreaterOrEqual(t, e.Generation(), int64(3))
	}
}

func TestSyncFallenBehind(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}

	behind := newGraph(t, f.chain(1, nil, 3)...)
	w, err := hg.NewEventWindow(1, 5, 2, hg.GenerationThreshold)
	require.NoError(t, err)
	require.NoError(t, behind.UpdateEventWindow(w))

	ahead := newGraph(t)
	w, err = hg.NewEventWindow(10, 30, 20, hg.GenerationThreshold)
	require.NoError(t, err)
	require.NoError(t, ahead.UpdateEventWindow(w))

	rec1 := &recorder{}
	rec2 := &recorder{}
	s1 := newTestSynchronizer(t, 1, behind, rec1, nil)
	s2 := newTestSynchronizer(t, 2, ahead, rec2, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, SelfFallenBehind, co.res.Status)
	require.Equal(t, OtherFallenBehind, lo.res.Status)
	require.False(t, co.res.Synced)
	require.False(t, lo.res.Synced)

	require.Equal(t, []uint32{2}, rec1.peers)
	require.Empty(t, rec2.peers)
	require.Empty(t, rec1.events)
	require.Empty(t, rec2.events)
}

func TestSyncRejected(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	events := f.chain(1, nil, 2)

	permits := NewSyncPermits(1)
	s1 := newTestSynchronizer(t, 1, newGraph(t, events...), nil, nil)
	s2 := newTestSynchronizer(t, 2, newGraph(t), nil, permits)

	a, b := net.Pipe(1, 2, time.Second)
	defer a.Close()
	defer b.Close()

	require.True(t, permits.TryAcquire())

	co, lo := runSyncOn(t, s1, s2, a, b)
	require.True(t, errors.Is(co.err, ErrSyncRejected))
	require.True(t, errors.Is(lo.err, ErrSyncRejected))
	require.True(t, a.Connected())
	require.True(t, b.Connected())

	permits.Release()

	co, lo = runSyncOn(t, s1, s2, a, b)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)
	require.Equal(t, 2, lo.res.EventsReceived)

	// The permit was given back.
	require.True(t, permits.TryAcquire())
	permits.Release()
}

func TestSyncAbortsOnDisconnect(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	s1 := newTestSynchronizer(t, 1, newGraph(t, f.chain(1, nil, 3)...), nil, nil)

	a, b := net.Pipe(1, 2, time.Second)
	b.Close()

	_, err := s1.Synchronize(context.Background(), a)
	require.Error(t, err)
	require.False(t, a.Connected())
}

func TestSyncCancelled(t *testing.T) {
	defer leaktest.Check(t)()

	s1 := newTestSynchronizer(t, 1, newGraph(t), nil, nil)

	// No timeout on the connection and nobody listening: only the context
	// can end the sync.
	a, b := net.Pipe(1, 2, 0)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s1.Synchronize(ctx, a)
	require.Error(t, err)
	require.False(t, a.Connected())
}

func TestSyncReleasesReservation(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	g1 := newGraph(t, f.chain(1, nil, 3)...)
	g2 := newGraph(t)

	s1 := newTestSynchronizer(t, 1, g1, nil, nil)
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	for _, g := range []*sg.Shadowgraph{g1, g2} {
		r := g.Reserve()
		require.Equal(t, 1, r.ReservationCount())
		r.Close()
	}
}

func TestConcurrentSyncs(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	shared := f.new(9, nil)

	const n = 4
	graphs := make([]*sg.Shadowgraph, n)
	syncs := make([]*Synchronizer, n)
	for i := 0; i < n; i++ {
		events := []*hg.Event{shared}
		var head *hg.Event
		for j := 0; j < 5; j++ {
			head = f.new(uint32(i+1), head, shared)
			events = append(events, head)
		}
		graphs[i] = newGraph(t, events...)
		syncs[i] = newTestSynchronizer(t, uint32(i+1), graphs[i], nil, NewSyncPermits(n))
	}

	errs := make(chan error, n*n*2)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				a, b := net.Pipe(uint32(i+1), uint32(j+1), time.Second)
				defer a.Close()
				defer b.Close()

				done := make(chan struct{})
				go func() {
					defer close(done)
					if _, err := syncs[j].AcceptSync(context.Background(), b); err != nil {
						errs <- err
					}
				}()
				if _, err := syncs[i].Synchronize(context.Background(), a); err != nil {
					errs <- err
				}
				<-done
			}(i, j)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("err: %v", err)
	}

	// Syncs running at the same time may miss each other's events. A final
	// round through node 1 spreads everything.
	for round := 0; round < 2; round++ {
		for j := 1; j < n; j++ {
			co, lo := runSync(t, syncs[0], syncs[j])
			require.NoError(t, co.err)
			require.NoError(t, lo.err)
		}
	}

	for i := 1; i < n; i++ {
		requireSameEvents(t, graphs[0], graphs[i])
	}
	require.Equal(t, 1+n*5, graphs[0].Len())
}

func TestFallenBehindStatusOf(t *testing.T) {
	win := func(ancient, expired int64) hg.EventWindow {
		w, err := hg.NewEventWindow(0, ancient, expired, hg.GenerationThreshold)
		require.NoError(t, err)
		return w
	}

	cases := []struct {
		self, other hg.EventWindow
		status      FallenBehindStatus
	}{
		{win(0, 0), win(0, 0), NoneFallenBehind},
		{win(10, 5), win(12, 8), NoneFallenBehind},
		{win(10, 5), win(20, 10), NoneFallenBehind},
		{win(9, 5), win(20, 10), SelfFallenBehind},
		{win(20, 10), win(9, 5), OtherFallenBehind},
	}

	for i, c := range cases {
		require.Equal(t, c.status, FallenBehindStatusOf(c.self, c.other), "case %d", i)
		if c.status == SelfFallenBehind {
			require.Equal(t, OtherFallenBehind, FallenBehindStatusOf(c.other, c.self), "case %d", i)
		}
	}
}

func TestSyncParentInsertedAfterChild(t *testing.T) {
	defer leaktest.Check(t)()

	f := &eventFactory{}
	chain := f.chain(1, nil, 3)

	// Insert the chain backwards, so every parent arrives after its child.
	g1 := newGraph(t, chain[2], chain[1], chain[0])
	g2 := newGraph(t)

	s1 := newTestSynchronizer(t, 1, g1, nil, nil)
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 3, co.res.EventsSent)
	require.Equal(t, 3, lo.res.EventsReceived)
	for _, e := range chain {
		require.True(t, g2.IsHashInGraph(e.Hash()), "missing %s", e.Hex())
	}
	requireSameEvents(t, g1, g2)
}

func TestSyncSlowReceiver(t *testing.T) {
	defer leaktest.Check(t)()

	const n = 200

	var events []*hg.Event
	var parent *hg.Event
	for i := 0; i < n; i++ {
		parent = hg.NewEvent(1, parent, nil, hg.FirstRound,
			[][]byte{make([]byte, 4096)},
			epoch.Add(time.Duration(i)*time.Millisecond))
		events = append(events, parent)
	}

	g1 := newGraph(t, events...)
	g2 := newGraph(t)

	s1 := newTestSynchronizer(t, 1, g1, nil, nil)

	received := 0
	slow := func(*hg.Event) {
		received++
		time.Sleep(5 * time.Millisecond)
	}
	s2 := NewSynchronizer(g2, 2, DefaultSyncConfig(), slow, nil, nil, nil,
		common.NewTestEntry(t, "sync"))

	// The whole transfer takes much longer than the timeout, but no single
	// frame does.
	a, b := net.Pipe(1, 2, 300*time.Millisecond)
	defer a.Close()
	defer b.Close()

	co, lo := runSyncOn(t, s1, s2, a, b)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, n, co.res.EventsSent)
	require.Equal(t, n, lo.res.EventsReceived)
	require.Equal(t, n, received)
	requireSameEvents(t, g1, g2)
}

func TestSyncFiltersLikelyDuplicates(t *testing.T) {
	defer leaktest.Check(t)()

	clock := clockwork.NewFakeClockAt(epoch.Add(time.Hour))
	now := clock.Now()
	threshold := 3 * time.Second

	f := &eventFactory{}

	// Received long ago from creator 3: sent.
	old := f.new(3, nil)
	old.SetTimeReceived(now.Add(-10 * time.Second))

	// Received just now from creator 2. o0 is an ancestor of an own event
	// and must be sent, o1 is withheld.
	o0 := f.new(2, nil)
	o0.SetTimeReceived(now)
	o1 := f.new(2, o0)
	o1.SetTimeReceived(now)

	own := f.new(1, nil, o0)
	own.SetTimeReceived(now)

	g1 := newGraph(t, old, o0, o1, own)
	g2 := newGraph(t)

	conf := DefaultSyncConfig()
	conf.FilterLikelyDuplicates = true
	conf.NonAncestorFilterThreshold = threshold

	s1 := NewSynchronizer(g1, 1, conf, nil, nil, nil, clock, common.NewTestEntry(t, "sync"))
	s2 := newTestSynchronizer(t, 2, g2, nil, nil)

	filteredBefore := testutil.ToFloat64(filteredEvents)

	co, lo := runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 3, co.res.EventsSent)
	require.Equal(t, 3, lo.res.EventsReceived)
	require.Equal(t, 1.0, testutil.ToFloat64(filteredEvents)-filteredBefore)

	require.True(t, g2.IsHashInGraph(old.Hash()))
	require.True(t, g2.IsHashInGraph(o0.Hash()))
	require.True(t, g2.IsHashInGraph(own.Hash()))
	require.False(t, g2.IsHashInGraph(o1.Hash()))

	// Once the threshold has passed, the withheld event goes out.
	clock.Advance(threshold + time.Second)

	co, lo = runSync(t, s1, s2)
	require.NoError(t, co.err)
	require.NoError(t, lo.err)

	require.Equal(t, 1, co.res.EventsSent)
	require.True(t, g2.IsHashInGraph(o1.Hash()))
	requireSameEvents(t, g1, g2)
}
