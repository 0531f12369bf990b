package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
)

type errorMapping struct {
	target error
	status int
	// detailed errors expose the full wrapped message, not just the sentinel.
	detailed bool
}

var errorMappings = []errorMapping{
	{target: services.ErrEmailTaken, status: fiber.StatusConflict},
	{target: services.ErrAlreadyVerified, status: fiber.StatusConflict},
	{target: services.ErrUserNotFound, status: fiber.StatusNotFound},
	{target: services.ErrInvalidPassword, status: fiber.StatusUnauthorized},
	{target: services.ErrEmailNotVerified, status: fiber.StatusForbidden},
	{target: services.ErrMissingField, status: fiber.StatusBadRequest, detailed: true},
	{target: services.ErrInvalidEmail, status: fiber.StatusBadRequest},
	{target: services.ErrInvalidFirstName, status: fiber.StatusBadRequest},
	{target: services.ErrInvalidLastName, status: fiber.StatusBadRequest},
	{target: services.ErrFieldTooLong, status: fiber.StatusBadRequest, detailed: true},
	{target: services.ErrWeakPassword, status: fiber.StatusBadRequest},
	{target: services.ErrInvalidToken, status: fiber.StatusBadRequest},
	{target: services.ErrInvalidIDToken, status: fiber.StatusBadRequest},
	{target: services.ErrNoVerifiedEmail, status: fiber.StatusBadRequest},
	{target: services.ErrUnknownProvider, status: fiber.StatusBadRequest},
	{target: services.ErrProviderExchange, status: fiber.StatusBadGateway},
	{target: services.ErrProviderUnavailable, status: fiber.StatusBadGateway},
}

// ErrorHandler is the fiber ErrorHandler: every error returned by a handler is
// translated to a status and JSON body here.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, message := translate(err)

	if code >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "unhandled server error",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID(c),
			"error", err.Error(),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		// Never expose server error details.
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Success: false,
		Error:   true,
		Message: message,
	})
}

func translate(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.detailed {
				return m.status, err.Error()
			}
			return m.status, m.target.Error()
		}
	}
	return fiber.StatusInternalServerError, "Internal server error"
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
