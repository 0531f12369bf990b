package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDLocal = "user_id"

var errUnauthorized = fiber.NewError(fiber.StatusUnauthorized, "Unauthorized: invalid or expired token")

// SessionParser verifies a raw session token and returns the user it was
// issued to.
type SessionParser interface {
	Parse(raw string) (uuid.UUID, error)
}

// JWTProtected accepts the session token as a bearer Authorization header or
// as the token cookie. jwtware checks the signature; sessions.Parse then pins
// the algorithm, requires exp and resolves the subject.
func JWTProtected(cfg *config.Config, sessions SessionParser) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		TokenLookup: "header:Authorization,cookie:token",
		AuthScheme:  "Bearer",
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return errUnauthorized
			}
			id, err := sessions.Parse(token.Raw)
			if err != nil {
				return errUnauthorized
			}
			c.Locals(userIDLocal, id)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return errUnauthorized
		},
	})
}

// UserID returns the user resolved by JWTProtected.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(userIDLocal).(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("no authenticated user in context")
	}
	return id, nil
}
