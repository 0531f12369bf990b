package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const sessionCookie = "token"

type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg}
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	session, err := h.authService.SignUp(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return h.respondSession(c, session, fiber.StatusCreated, "User created successfully")
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	session, err := h.authService.SignIn(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return h.respondSession(c, session, fiber.StatusOK, "User signed in successfully")
}

// VerifyEmail is reached by link click, so failures redirect to the frontend
// instead of returning a JSON error.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	session, err := h.authService.VerifyEmail(c.UserContext(), c.Query("token"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			return c.Redirect(h.cfg.VerifyFailureRedirectURL, fiber.StatusFound)
		}
		return err
	}

	h.setSessionCookie(c, session)
	return c.JSON(dto.VerifyResponse{
		Success: true,
		Message: "Email verified successfully.",
		Token:   session.Token,
	})
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.ResendVerification(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "Verification email resent successfully"})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: services.ForgotPasswordMessage})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.ResetPassword(c.UserContext(), &req); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "Password successfully reset"})
}

func (h *AuthHandler) Google(c *fiber.Ctx) error {
	var req dto.GoogleAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	session, err := h.authService.OAuthSignIn(c.UserContext(), services.ProviderGoogle, req.Token)
	if err != nil {
		return err
	}
	return h.respondOAuth(c, session, "Google signin successful")
}

// GitHub accepts the code and state either as a JSON/form body or as query
// parameters, so the provider may redirect straight to it.
func (h *AuthHandler) GitHub(c *fiber.Ctx) error {
	var req dto.GitHubAuthRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if req.Code == "" {
		req.Code = c.Query("code")
	}
	if req.State == "" {
		req.State = c.Query("state")
	}

	// TODO: bind state to the browser session and reject mismatches once the
	// frontend starts issuing it.
	slog.DebugContext(c.UserContext(), "github callback", "action", "github_exchange", "has_state", req.State != "")

	session, err := h.authService.OAuthSignIn(c.UserContext(), services.ProviderGitHub, req.Code)
	if err != nil {
		return err
	}
	return h.respondOAuth(c, session, "GitHub signin successful")
}

func (h *AuthHandler) respondOAuth(c *fiber.Ctx, session *services.Session, message string) error {
	if session.Created {
		return h.respondSession(c, session, fiber.StatusCreated, "User successfully created")
	}
	return h.respondSession(c, session, fiber.StatusOK, message)
}

func (h *AuthHandler) respondSession(c *fiber.Ctx, session *services.Session, status int, message string) error {
	h.setSessionCookie(c, session)
	return c.Status(status).JSON(dto.AuthResponse{
		Success: true,
		Message: message,
		Data: dto.AuthData{
			Token: session.Token,
			User:  dto.NewUserResponse(session.User),
		},
	})
}

func (h *AuthHandler) setSessionCookie(c *fiber.Ctx, session *services.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
