// middleware/auth.go
package middleware

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts the acting user and roles set by the Gateway.
// X-User-ID carries the participant id for participant routes and the admin's id for admin routes.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, parseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

func parseRoles(rolesStr string) []string {
	var roles []string
	for _, r := range strings.Split(rolesStr, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// RequireRole rejects requests whose user context lacks role.
// Must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasRole(c, role) {
			log.Printf("🚫 [USER_CTX] user %s lacks role %q for %s", UserID(c), role, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient permissions",
			})
		}
		return c.Next()
	}
}

// UserID returns the acting user id, or "" outside a user context.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localUserRoles).([]string)
	return roles
}

func HasRole(c *fiber.Ctx, role string) bool {
	for _, r := range Roles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// ParticipantID parses the acting user id as a participant id.
func ParticipantID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(UserID(c), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
