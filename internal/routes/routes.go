package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	User   *handlers.UserHandler
	Health *handlers.HealthHandler
}

// Setup mounts every route. A nil storage keeps limiter counters in memory.
func Setup(app *fiber.App, cfg *config.Config, storage fiber.Storage, h Handlers, authService *services.AuthService) {
	api := app.Group("/api")

	api.Use(newLimiter("api", cfg.RateLimitMax, storage))

	api.Get("/health", h.Health.Check)

	v1 := api.Group("/v1")

	// Auth: public, stricter per-IP limit
	auth := v1.Group("/auth")
	auth.Use(newLimiter("auth", cfg.AuthRateLimitMax, storage))
	auth.Post("/sign-up", h.Auth.SignUp)
	auth.Post("/sign-in", h.Auth.SignIn)
	auth.Get("/verify-email", h.Auth.VerifyEmail)
	auth.Post("/resend-verification", h.Auth.ResendVerification)
	auth.Post("/forgot-password", h.Auth.ForgotPassword)
	auth.Post("/reset-password", h.Auth.ResetPassword)
	auth.Post("/google", h.Auth.Google)
	// GitHub redirects back with query params; SPAs post the code instead.
	auth.Get("/github", h.Auth.GitHub)
	auth.Post("/github", h.Auth.GitHub)

	// Users: session required
	usersGroup := v1.Group("/users", middleware.JWTProtected(cfg, authService.Tokens()))
	usersGroup.Get("/getMe", h.User.Me)
	usersGroup.Put("/me", middleware.VerifiedRequired(authService), h.User.UpdateMe)
}

// newLimiter counts per client IP under its own key prefix, so limiters that
// share a storage keep separate counters.
func newLimiter(prefix string, max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return prefix + ":" + c.IP() },
		Storage:           storage,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests, please try again later")
		},
	})
}
