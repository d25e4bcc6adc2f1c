package session

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localsKey = "session_id"

// Middleware returns a Fiber middleware that validates the bearer session
// token and stores the session ID on the request.
func Middleware(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing session token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid auth header format")
		}

		id, err := m.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired session token")
		}

		c.Locals(localsKey, id)
		return c.Next()
	}
}

// ID extracts the session ID set by Middleware.
func ID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsKey).(string)
	return id
}
