package notify

import "sync"

// Package notify is the change notification bridge: a thin subscription
// layer over "some row in the images table changed". Signals carry no
// payload detail and are delivered at least once; consumers reconcile by
// refetching authoritative state, which makes duplicates harmless.

// Filter optionally narrows a subscription to one owner's changes.
// The zero value matches every change.
type Filter struct {
	OwnerID string
}

// A signal with no owner attached (empty ownerID) could concern anyone, so
// it matches every filter.
func (f Filter) matches(ownerID string) bool {
	return f.OwnerID == "" || ownerID == "" || f.OwnerID == ownerID
}

// Bridge hands out change-signal subscriptions.
type Bridge interface {
	Subscribe(f Filter) (*Subscription, error)
}

// Subscription is one live signal stream. Signals() never closes; after
// Unsubscribe the stream simply goes quiet, so a receiver racing a late
// delivery sees at worst one stale signal and never a panic.
type Subscription struct {
	ch     chan struct{}
	once   sync.Once
	remove func(*Subscription)
}

// Signals returns the signal channel. It has a one-slot buffer: signals
// arriving while the consumer is busy coalesce into a single pending one.
func (s *Subscription) Signals() <-chan struct{} { return s.ch }

// Unsubscribe detaches the stream. Safe to call any number of times and
// concurrently with an in-flight delivery.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.remove(s) })
}

// registry is the shared subscriber table used by every bridge flavor.
type registry struct {
	mu   sync.RWMutex
	subs map[*Subscription]Filter
}

func newRegistry() *registry {
	return &registry{subs: make(map[*Subscription]Filter)}
}

func (r *registry) subscribe(f Filter) *Subscription {
	s := &Subscription{
		ch:     make(chan struct{}, 1),
		remove: r.unsubscribe,
	}
	r.mu.Lock()
	r.subs[s] = f
	r.mu.Unlock()
	return s
}

func (r *registry) unsubscribe(s *Subscription) {
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
}

// dispatch fans one change signal out to matching subscribers. Sends are
// non-blocking: a subscriber with a signal already pending is skipped, which
// is exactly the coalescing the refetch protocol wants.
func (r *registry) dispatch(ownerID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for s, f := range r.subs {
		if !f.matches(ownerID) {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
