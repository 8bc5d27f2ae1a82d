package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/support-chat/internal/auth"
)

// authRequired verifies the bearer token (header, or "token" query for
// websocket upgrades where headers are awkward) and stashes the
// participant in locals.
func authRequired(verifier *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
		}
		p, err := verifier.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("participant", p)
		return c.Next()
	}
}
