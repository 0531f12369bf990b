package middleware

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// VerifiedRequired must run after JWTProtected. It rejects callers whose
// account is gone or has not verified its email. Lookup failures other than a
// missing user are passed on as server errors.
func VerifiedRequired(users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}

		user, err := users.GetUser(c.UserContext(), userID)
		if errors.Is(err, services.ErrUserNotFound) {
			return fiber.NewError(fiber.StatusForbidden, "Unverified user")
		}
		if err != nil {
			return err
		}
		if !user.IsVerified() {
			return fiber.NewError(fiber.StatusForbidden, "Unverified user")
		}
		return c.Next()
	}
}
