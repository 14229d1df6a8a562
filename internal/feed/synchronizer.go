package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"photofeed/internal/model"
	"photofeed/internal/notify"
)

// ErrSubscription marks a failure to attach to the change notification
// bridge during Start.
var ErrSubscription = errors.New("subscription failed")

// State is the synchronizer's explicit lifecycle state machine.
type State int

const (
	// Loading is the initial state, until the first fetch resolves.
	Loading State = iota
	// Ready means Items reflect the most recent successful fetch.
	Ready
	// Failed means the last fetch failed; Items still hold the previous
	// successful result (stale-but-present beats empty).
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is one observed state of a synchronized feed.
type Snapshot struct {
	State State             `json:"state"`
	Items []model.MediaItem `json:"items"`
	Err   error             `json:"-"`
}

// FetchFunc loads the full authoritative item list for a scope, newest
// first. The synchronizer never patches incrementally; every change signal
// triggers a complete refetch and wholesale replacement.
type FetchFunc func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error)

// Synchronizer keeps an ordered in-memory view of one feed scope in sync
// with the metadata store, reconciling on bridge signals. All state
// callbacks run sequentially on the synchronizer's own goroutine; refreshes
// never overlap, and signals arriving mid-refresh coalesce into at most one
// follow-up refresh.
type Synchronizer struct {
	scope   model.Scope
	fetch   FetchFunc
	bridge  notify.Bridge
	onState func(Snapshot)
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a synchronizer for the scope. onState receives every state
// transition, starting with Loading; it must not block for long.
func New(scope model.Scope, fetch FetchFunc, bridge notify.Bridge, onState func(Snapshot), log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		scope:   scope,
		fetch:   fetch,
		bridge:  bridge,
		onState: onState,
		log:     log.With().Str("scope", scope.Key()).Logger(),
	}
}

// Start subscribes to the bridge, emits Loading, and begins the initial
// fetch. It returns ErrSubscription if the bridge refuses the subscription.
func (s *Synchronizer) Start(ctx context.Context) error {
	sub, err := s.bridge.Subscribe(notify.Filter{OwnerID: s.scope.OwnerID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubscription, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.onState(Snapshot{State: Loading})
	go s.run(ctx, sub)
	return nil
}

// Stop tears the synchronizer down and waits for the loop to exit. The
// bridge subscription is released on every exit path; a signal delivered
// after Stop is ignored. Safe to call more than once.
func (s *Synchronizer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Synchronizer) run(ctx context.Context, sub *notify.Subscription) {
	defer close(s.done)
	defer sub.Unsubscribe()

	items := s.refresh(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Signals():
			items = s.refresh(ctx, items)
		}
	}
}

// refresh fetches the full scoped list and replaces the view. On failure
// the previous items are kept and surfaced in a Failed snapshot. A result
// arriving after Stop is discarded, never applied.
func (s *Synchronizer) refresh(ctx context.Context, prev []model.MediaItem) []model.MediaItem {
	items, err := s.fetch(ctx, s.scope)
	if ctx.Err() != nil {
		return prev
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("feed refresh failed, keeping previous items")
		s.onState(Snapshot{State: Failed, Items: prev, Err: err})
		return prev
	}
	s.onState(Snapshot{State: Ready, Items: items})
	return items
}
