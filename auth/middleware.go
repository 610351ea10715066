package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
)

const actorKey = "actor"

// Middleware requires a valid "Authorization: Bearer <jwt>" header and
// stores the caller in the request locals.
func Middleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := bearer(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return apperrors.Unauthenticated("auth.Middleware", "No token provided")
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			return err
		}
		c.Locals(actorKey, claims.Actor())
		return c.Next()
	}
}

// ActorFrom returns the caller stored by Middleware.
func ActorFrom(c *fiber.Ctx) (models.Actor, bool) {
	a, ok := c.Locals(actorKey).(models.Actor)
	return a, ok
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
