package middleware

import (
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Logger is a middleware that logs each HTTP request as one JSON line.
// Fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path
// - status
// - latency (in milliseconds, as float)
func Logger() fiber.Handler {
	return LoggerWithWriter(os.Stdout)
}

// LoggerWithWriter is Logger with an injectable output, for tests.
func LoggerWithWriter(w io.Writer) fiber.Handler {
	log := zerolog.New(w).With().Timestamp().Logger()

	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Collect fields after handler executed to capture final status
		rid, _ := c.Locals(RequestIDLocalKey).(string)

		log.Info().
			Str("request_id", rid).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Float64("latency", float64(time.Since(start).Milliseconds())).
			Msg("request")

		return err
	}
}
