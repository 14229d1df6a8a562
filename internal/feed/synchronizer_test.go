package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"photofeed/internal/model"
	"photofeed/internal/notify"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stateRecorder collects snapshots emitted by a synchronizer.
type stateRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *stateRecorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *stateRecorder) waitFor(t *testing.T, n int) []Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if snaps := r.all(); len(snaps) >= n {
			return snaps
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d snapshots, have %d", n, len(r.all()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// blockingFetch serves canned results one at a time, holding each fetch
// until released. It lets tests line up signals against an in-flight
// refresh deterministically.
type blockingFetch struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	items   []model.MediaItem
	err     error
}

func newBlockingFetch() *blockingFetch {
	return &blockingFetch{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *blockingFetch) fetch(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
	f.mu.Lock()
	f.calls++
	items, err := f.items, f.err
	f.mu.Unlock()
	f.entered <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return items, err
}

func (f *blockingFetch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSynchronizer_InitialFetch(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}
	items := []model.MediaItem{{ID: "b"}, {ID: "a"}}

	fetch := func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		return items, nil
	}

	s := New(model.GlobalScope(), fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	snaps := rec.waitFor(t, 2)
	assert.Equal(t, Loading, snaps[0].State)
	assert.Equal(t, Ready, snaps[1].State)
	assert.Equal(t, items, snaps[1].Items)
}

func TestSynchronizer_RefreshOnSignal(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}

	var mu sync.Mutex
	items := []model.MediaItem{{ID: "a"}}
	fetch := func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]model.MediaItem, len(items))
		copy(out, items)
		return out, nil
	}

	s := New(model.GlobalScope(), fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	rec.waitFor(t, 2)

	mu.Lock()
	items = []model.MediaItem{{ID: "b"}, {ID: "a"}}
	mu.Unlock()
	bridge.Publish("u1")

	snaps := rec.waitFor(t, 3)
	assert.Equal(t, Ready, snaps[2].State)
	assert.Len(t, snaps[2].Items, 2)
}

func TestSynchronizer_CoalescesSignalsDuringRefresh(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}
	bf := newBlockingFetch()

	s := New(model.GlobalScope(), bf.fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// Initial refresh is now in flight.
	<-bf.entered

	// Two signals land while it runs; they must collapse into exactly one
	// follow-up refresh.
	bridge.Publish("u1")
	bridge.Publish("u2")

	bf.release <- struct{}{} // finish initial refresh
	<-bf.entered             // the single coalesced refresh starts
	bf.release <- struct{}{}

	rec.waitFor(t, 3) // Loading, Ready, Ready

	// Give a wrongly scheduled third refresh a chance to show up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, bf.callCount())
}

func TestSynchronizer_RefreshFailureKeepsPreviousItems(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}

	var mu sync.Mutex
	var failing bool
	good := []model.MediaItem{{ID: "a"}}
	fetch := func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return nil, errors.New("db down")
		}
		return good, nil
	}

	s := New(model.GlobalScope(), fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	rec.waitFor(t, 2)

	mu.Lock()
	failing = true
	mu.Unlock()
	bridge.Publish("u1")

	snaps := rec.waitFor(t, 3)
	assert.Equal(t, Failed, snaps[2].State)
	assert.Equal(t, good, snaps[2].Items, "stale items survive a failed refresh")
	assert.Error(t, snaps[2].Err)
}

func TestSynchronizer_SignalAfterStopIsIgnored(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}

	fetch := func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		return nil, nil
	}

	s := New(model.GlobalScope(), fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	rec.waitFor(t, 2)

	s.Stop()
	assert.Equal(t, 0, bridge.Len(), "stop releases the bridge subscription")

	before := len(rec.all())
	bridge.Publish("u1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(rec.all()), "no snapshot after stop")

	// Stop again: must not panic or hang.
	s.Stop()
}

func TestSynchronizer_OwnerScopeSubscribesFiltered(t *testing.T) {
	bridge := notify.NewMemoryBridge()
	rec := &stateRecorder{}

	var calls int
	var mu sync.Mutex
	fetch := func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	}

	s := New(model.ByOwner("u1"), fetch, bridge, rec.record, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	rec.waitFor(t, 2)

	// Another owner's change must not trigger a refresh in this scope.
	bridge.Publish("u2")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	bridge.Publish("u1")
	rec.waitFor(t, 3)
}

type failingBridge struct{}

func (failingBridge) Subscribe(notify.Filter) (*notify.Subscription, error) {
	return nil, errors.New("listener down")
}

func TestSynchronizer_StartSubscriptionFailure(t *testing.T) {
	s := New(model.GlobalScope(), nil, failingBridge{}, func(Snapshot) {}, zerolog.Nop())
	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrSubscription)
}
