package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"photofeed/internal/feed"
	"photofeed/internal/model"
	"photofeed/internal/notify"
)

// feedMessage is the wire form of a feed snapshot pushed to viewers.
type feedMessage struct {
	Scope string            `json:"scope"`
	State string            `json:"state"`
	Items []model.MediaItem `json:"items"`
	Error string            `json:"error,omitempty"`
}

// SinkFunc receives every marshaled snapshot for a room. In production it
// is Hub.Broadcast.
type SinkFunc func(room string, payload []byte)

// Manager owns one feed synchronizer per active scope. The first viewer of
// a scope starts its synchronizer; the last one leaving stops it, releasing
// the bridge subscription. Independent scopes share nothing beyond the
// bridge itself.
type Manager struct {
	ctx    context.Context
	fetch  feed.FetchFunc
	bridge notify.Bridge
	sink   SinkFunc
	log    zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	sync *feed.Synchronizer
	refs int

	mu   sync.Mutex
	last []byte
}

// NewManager builds a manager. ctx bounds the lifetime of every
// synchronizer it starts.
func NewManager(ctx context.Context, fetch feed.FetchFunc, bridge notify.Bridge, sink SinkFunc, log zerolog.Logger) *Manager {
	return &Manager{
		ctx:    ctx,
		fetch:  fetch,
		bridge: bridge,
		sink:   sink,
		log:    log,
		rooms:  make(map[string]*room),
	}
}

// Acquire registers interest in a scope, starting its synchronizer on
// first use, and returns the latest snapshot payload (nil if none was
// emitted yet). Every successful Acquire must be paired with one Release.
func (m *Manager) Acquire(scope model.Scope) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scope.Key()
	r, ok := m.rooms[key]
	if !ok {
		r = &room{}
		r.sync = feed.New(scope, m.fetch, m.bridge, func(snap feed.Snapshot) {
			payload := marshalSnapshot(scope, snap)
			r.mu.Lock()
			r.last = payload
			r.mu.Unlock()
			m.sink(key, payload)
		}, m.log)
		if err := r.sync.Start(m.ctx); err != nil {
			return nil, err
		}
		m.rooms[key] = r
	}
	r.refs++

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, nil
}

// Release drops one reference on a scope and stops its synchronizer when
// nobody is left watching.
func (m *Manager) Release(scope model.Scope) {
	m.mu.Lock()
	key := scope.Key()
	r, ok := m.rooms[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.refs--
	var stop *feed.Synchronizer
	if r.refs <= 0 {
		delete(m.rooms, key)
		stop = r.sync
	}
	m.mu.Unlock()

	if stop != nil {
		stop.Stop()
	}
}

// Last returns the most recent snapshot payload for a scope, or nil if the
// scope has no running synchronizer or nothing was emitted yet. Handlers
// re-read it after joining the room so a snapshot emitted between Acquire
// and the room join is never lost.
func (m *Manager) Last(scope model.Scope) []byte {
	m.mu.Lock()
	r, ok := m.rooms[scope.Key()]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// ActiveScopes reports how many scopes currently have a running
// synchronizer.
func (m *Manager) ActiveScopes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func marshalSnapshot(scope model.Scope, snap feed.Snapshot) []byte {
	msg := feedMessage{
		Scope: scope.Key(),
		State: snap.State.String(),
		Items: snap.Items,
	}
	if msg.Items == nil {
		msg.Items = []model.MediaItem{}
	}
	if snap.Err != nil {
		msg.Error = snap.Err.Error()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		// Snapshot payloads are plain data; marshaling them cannot fail
		// with well-formed items.
		return []byte(`{"scope":"` + scope.Key() + `","state":"failed","items":[]}`)
	}
	return b
}
