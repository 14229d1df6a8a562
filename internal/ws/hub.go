package ws

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks live websocket connections by room (one room per feed scope)
// and broadcasts feed snapshots to them. Writes are serialized under the
// hub lock; fasthttp websocket connections do not tolerate concurrent
// writers.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]bool
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*websocket.Conn]bool),
		log:   log,
	}
}

// Register adds a connection to a room, creating the room if needed.
func (h *Hub) Register(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*websocket.Conn]bool)
	}
	h.rooms[room][conn] = true
	h.log.Debug().Str("room", room).Int("conns", len(h.rooms[room])).Msg("ws client registered")
}

// Unregister drops a connection from a room and removes the room once
// empty. Safe to call for a connection that was never registered.
func (h *Hub) Unregister(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.rooms, room)
	}
	h.log.Debug().Str("room", room).Int("conns", len(conns)).Msg("ws client unregistered")
}

// Broadcast writes a payload to every connection in the room. A failed
// write only logs; the reader side of that connection will notice the
// breakage and tear the client down.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.rooms[room] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Str("room", room).Err(err).Msg("ws write failed")
		}
	}
}

// Send writes a payload to a single connection under the hub's write lock.
func (h *Hub) Send(conn *websocket.Conn, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// RoomSize reports how many connections a room currently has.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
