package ws

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"photofeed/internal/model"
)

// Upgrade gates the feed endpoint: plain HTTP requests get 426, upgrade
// requests pass through to the websocket handler.
func Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// FeedHandler streams feed snapshots for one scope to a viewer. The scope
// comes from the owner_id query parameter; absent means the global feed.
// The room registration and the scope reference are both released on every
// exit path, so an abruptly dropped client never leaks a subscription.
func FeedHandler(mgr *Manager, hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		scope := model.GlobalScope()
		if owner := conn.Query("owner_id"); owner != "" {
			scope = model.ByOwner(owner)
		}
		room := scope.Key()

		if _, err := mgr.Acquire(scope); err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"scope":"`+room+`","state":"failed","items":[]}`))
			_ = conn.Close()
			return
		}
		defer mgr.Release(scope)

		hub.Register(room, conn)
		defer hub.Unregister(room, conn)

		// Replay is read after joining the room: a snapshot emitted between
		// Acquire and Register missed the broadcast, so the payload returned
		// by Acquire may already be stale. Re-reading here means the viewer
		// sees either that snapshot or a newer one; a duplicate delivery is
		// harmless, a stale view is not.
		if last := mgr.Last(scope); last != nil {
			if err := hub.Send(conn, last); err != nil {
				return
			}
		}

		// Viewers only listen; the read loop just detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
