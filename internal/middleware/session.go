package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gradestack/submissions-api/internal/service"
	"github.com/gradestack/submissions-api/internal/utils"
)

// SessionCookieName is the cookie carrying the xqueue worker session token.
const SessionCookieName = "sessionid"

// SessionProtected validates the xqueue session cookie and requires one of
// the given roles. The login endpoint itself is registered without it.
func SessionProtected(auth service.AuthService, roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		token := c.Cookies(SessionCookieName)
		session, err := auth.Validate(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				return utils.SendXQueueError(c, fiber.StatusUnauthorized, "Authentication credentials were not provided")
			}
			return utils.SendXQueueError(c, fiber.StatusInternalServerError, "Internal error")
		}

		if len(allowed) > 0 {
			if _, ok := allowed[session.Role]; !ok {
				return utils.SendXQueueError(c, fiber.StatusForbidden, "Permission denied")
			}
		}

		c.Locals("session_username", session.Username)
		c.Locals("session_role", session.Role)

		return c.Next()
	}
}
