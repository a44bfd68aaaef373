package middleware

import (
	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/auth"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// JWT authenticates the bearer token, stores the user id in Locals and
// carries the raw token on the user context for outbound calls.
func JWT(v TokenVerifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return apperr.Unauthorized("missing authorization header")
		}
		token, ok := auth.BearerToken(header)
		if !ok {
			return apperr.Unauthorized("invalid authorization header")
		}
		userID, err := v.VerifyToken(token)
		if err != nil {
			logger.Debug("token rejected", zap.Error(err), zap.String("path", c.Path()))
			return apperr.Unauthorized("invalid token")
		}

		c.Locals(userIDKey, userID)
		c.SetUserContext(auth.WithToken(c.UserContext(), token))
		return c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside JWT.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
