package handlers

import (
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}

	user, err := h.authService.GetUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(dto.UserEnvelope{Success: true, Data: dto.NewUserResponse(user)})
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}

	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := h.authService.UpdateProfile(c.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(dto.UserEnvelope{Success: true, Data: dto.NewUserResponse(user)})
}
