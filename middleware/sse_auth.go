// middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

// ViewerAuthMiddleware authenticates leaderboard stream viewers. Browsers cannot set headers
// on EventSource or WebSocket handshakes, so the access token travels as ?token=.
// With a nil authClient the gateway's user headers are used instead.
func ViewerAuthMiddleware(authClient *services.AuthServiceClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if authClient == nil {
			viewer := strings.TrimSpace(c.Get("X-User-ID"))
			if viewer == "" {
				viewer = "anonymous"
			}
			c.Locals(localUserID, viewer)
			c.Locals(localUserRoles, parseRoles(c.Get("X-User-Roles")))
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" {
			log.Printf("[VIEWER_AUTH] ❌ Missing token query param for %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		resp, err := authClient.ValidateToken(c.UserContext(), accessToken)
		if err != nil {
			log.Printf("[VIEWER_AUTH] ❌ Validation failed (token prefix: %s...): %v",
				accessToken[:min(6, len(accessToken))], err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(localUserID, resp.UserID)
		c.Locals(localUserRoles, resp.Roles)
		log.Printf("[VIEWER_AUTH] ✅ Authenticated viewer %s", resp.UserID)
		return c.Next()
	}
}
