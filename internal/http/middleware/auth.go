package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"photofeed/internal/model"
)

// SessionLocalKey is the key under which the authenticated session is
// stored in Fiber's context locals.
const SessionLocalKey = "session"

// Auth verifies the Bearer token issued by the external identity provider
// and stores the resulting session in context locals. Handlers behind this
// middleware receive an explicit session via SessionFromCtx; nothing reads
// auth state ambiently.
func Auth(secret string) fiber.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization")
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization")
		}

		claims := jwt.MapClaims{}
		if _, err := jwt.ParseWithClaims(parts[1], claims, keyFunc); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		session := model.Session{UserID: sub}
		if name, ok := claims["name"].(string); ok {
			session.DisplayName = name
		}
		c.Locals(SessionLocalKey, session)

		return c.Next()
	}
}

// SessionFromCtx returns the session stored by Auth, if any.
func SessionFromCtx(c *fiber.Ctx) (model.Session, bool) {
	s, ok := c.Locals(SessionLocalKey).(model.Session)
	return s, ok
}
