package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates request ids across services.
	RequestIDHeader = "X-Request-ID"
	// RequestIDLocalKey is where the id is stored in Fiber's context locals.
	RequestIDLocalKey = "request_id"
)

// RequestID ensures every request carries an id: an incoming X-Request-ID
// is propagated, otherwise a uuid is minted. The id is stored in context
// locals for the logger and the error envelope, and echoed on the response
// header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(RequestIDLocalKey, id)
		c.Set(RequestIDHeader, id)

		return c.Next()
	}
}
