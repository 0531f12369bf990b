package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, sub uuid.UUID, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub.String(),
		"exp": exp.Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func protected() fiber.Handler {
	return JWTProtected(&config.Config{JWTSecret: testSecret}, services.NewTokenIssuer(testSecret, time.Hour))
}

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", protected(), func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(id.String())
	})
	return app
}

func TestJWTProtected(t *testing.T) {
	app := protectedApp()
	id := uuid.New()
	valid := signToken(t, testSecret, id, time.Now().Add(time.Hour))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, id.String(), string(body))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Cookie", "token="+valid)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": id.String()}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rejected := map[string]string{
		"missing":      "",
		"no expiry":    "Bearer " + noExp,
		"bad subject":  "Bearer " + badSubject,
		"expired":      "Bearer " + signToken(t, testSecret, id, time.Now().Add(-time.Minute)),
		"wrong secret": "Bearer " + signToken(t, "other", id, time.Now().Add(time.Hour)),
		"garbage":      "Bearer garbage",
	}
	for name, header := range rejected {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

type stubUsers struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (s stubUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func TestVerifiedRequired(t *testing.T) {
	verified := uuid.New()
	unverified := uuid.New()
	users := stubUsers{users: map[uuid.UUID]*models.User{
		verified:   {ID: verified, Status: models.StatusVerified},
		unverified: {ID: unverified, Status: models.StatusUnverified},
	}}

	newApp := func(lookup UserLookup) *fiber.App {
		app := fiber.New()
		app.Put("/me", protected(), VerifiedRequired(lookup), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		return app
	}

	tests := []struct {
		name   string
		lookup UserLookup
		sub    uuid.UUID
		status int
	}{
		{"verified", users, verified, fiber.StatusOK},
		{"unverified", users, unverified, fiber.StatusForbidden},
		{"deleted", users, uuid.New(), fiber.StatusForbidden},
		{"lookup failure", stubUsers{err: errors.New("connection refused")}, verified, fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/me", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, tt.sub, time.Now().Add(time.Hour)))
			resp, err := newApp(tt.lookup).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCORS_WildcardDisablesCredentials(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(&config.Config{CORSOrigins: "*"}), SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
