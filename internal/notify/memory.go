package notify

// MemoryBridge delivers signals published in-process. It backs tests and
// single-node deployments where the publisher and the subscribers share a
// process; production wiring uses the Postgres listener instead.
type MemoryBridge struct {
	*registry
}

var _ Bridge = (*MemoryBridge)(nil)

func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{registry: newRegistry()}
}

// Subscribe registers a signal stream for the filter.
func (b *MemoryBridge) Subscribe(f Filter) (*Subscription, error) {
	return b.subscribe(f), nil
}

// Publish emits a change signal for the given owner to matching subscribers.
func (b *MemoryBridge) Publish(ownerID string) {
	b.dispatch(ownerID)
}

// Len reports the number of live subscriptions.
func (b *MemoryBridge) Len() int { return b.len() }
