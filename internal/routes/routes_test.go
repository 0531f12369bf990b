package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/mailer"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu    sync.Mutex
	links []string
}

func (o *outbox) Send(_ context.Context, _ string, _ mailer.Kind, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, link)
	return nil
}

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.links)
	_, token, _ := strings.Cut(o.links[len(o.links)-1], "token=")
	return token
}

type staticProvider struct {
	name     string
	identity *services.Identity
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Exchange(_ context.Context, proof string) (*services.Identity, error) {
	if proof != "good" {
		return nil, services.ErrInvalidIDToken
	}
	id := *p.identity
	return &id, nil
}

type testServer struct {
	app    *fiber.App
	outbox *outbox
}

func newTestServer(t *testing.T, authLimit int) *testServer {
	t.Helper()
	return newTestServerWithStorage(t, authLimit, nil)
}

func newTestServerWithStorage(t *testing.T, authLimit int, storage fiber.Storage) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:                "test-secret",
		JWTExpiresIn:             time.Hour,
		TokenTTL:                 time.Hour,
		BcryptCost:               bcrypt.MinCost,
		FrontendURL:              "http://app.test",
		VerifyFailureRedirectURL: "http://app.test/signin?verification=failed",
		RateLimitMax:             1000,
		AuthRateLimitMax:         authLimit,
	}
	db := testutil.NewDB(t)
	box := &outbox{}
	svc := services.NewAuthService(db, cfg, box,
		staticProvider{name: services.ProviderGoogle, identity: &services.Identity{Email: "g@b.com", FirstName: "Goo", LastName: "Gle"}},
		staticProvider{name: services.ProviderGitHub, identity: &services.Identity{Email: "gh@b.com", FirstName: "octocat"}},
	)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	Setup(app, cfg, storage, Handlers{
		Auth:   handlers.NewAuthHandler(svc, cfg),
		User:   handlers.NewUserHandler(svc),
		Health: handlers.NewHealthHandler(db, nil),
	}, svc)

	return &testServer{app: app, outbox: box}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	return nil
}

var signUpBody = map[string]string{
	"firstName": "Ada",
	"lastName":  "Lovelace",
	"email":     "a@b.com",
	"password":  "secret1",
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, 1000)

	resp, raw := s.do(t, "POST", "/api/v1/auth/sign-up", signUpBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))

	var created dto.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.True(t, created.Success)
	assert.NotEmpty(t, created.Data.Token)
	assert.Equal(t, "unverified", created.Data.User.Status)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), s.outbox.lastToken(t))

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, created.Data.Token, cookie.Value)

	resp, _ = s.do(t, "POST", "/api/v1/auth/sign-up", signUpBody)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	creds := map[string]string{"email": "a@b.com", "password": "secret1"}
	resp, _ = s.do(t, "POST", "/api/v1/auth/sign-in", creds)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/api/v1/auth/sign-in", map[string]string{"email": "a@b.com", "password": "nope-nope"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/api/v1/auth/sign-in", map[string]string{"email": "x@b.com", "password": "secret1"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	token := s.outbox.lastToken(t)
	resp, raw = s.do(t, "GET", "/api/v1/auth/verify-email?token="+token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var verified dto.VerifyResponse
	require.NoError(t, json.Unmarshal(raw, &verified))
	assert.NotEmpty(t, verified.Token)
	assert.NotNil(t, sessionCookie(resp))

	resp, _ = s.do(t, "GET", "/api/v1/auth/verify-email?token="+token, nil)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://app.test/signin?verification=failed", resp.Header.Get("Location"))

	resp, raw = s.do(t, "POST", "/api/v1/auth/sign-in", creds)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var signedIn dto.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &signedIn))
	assert.Equal(t, "verified", signedIn.Data.User.Status)

	resp, _ = s.do(t, "POST", "/api/v1/auth/resend-verification", map[string]string{"email": "a@b.com"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/api/v1/auth/resend-verification", map[string]string{"email": "x@b.com"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestForgotPassword_SameBodyForUnknownEmail(t *testing.T) {
	s := newTestServer(t, 1000)
	resp, _ := s.do(t, "POST", "/api/v1/auth/sign-up", signUpBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	known, knownBody := s.do(t, "POST", "/api/v1/auth/forgot-password", map[string]string{"email": "a@b.com"})
	unknown, unknownBody := s.do(t, "POST", "/api/v1/auth/forgot-password", map[string]string{"email": "x@b.com"})

	assert.Equal(t, fiber.StatusOK, known.StatusCode)
	assert.Equal(t, known.StatusCode, unknown.StatusCode)
	assert.JSONEq(t, string(knownBody), string(unknownBody))

	resetToken := s.outbox.lastToken(t)
	resp, _ = s.do(t, "POST", "/api/v1/auth/reset-password", map[string]string{"token": resetToken})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/api/v1/auth/reset-password", map[string]string{"token": "nope", "newPassword": "another1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, raw := s.do(t, "POST", "/api/v1/auth/reset-password", map[string]string{"token": resetToken, "newPassword": "another1"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
}

func TestOAuthRoutes(t *testing.T) {
	s := newTestServer(t, 1000)

	resp, raw := s.do(t, "POST", "/api/v1/auth/google", map[string]string{"token": "good"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var first dto.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.True(t, first.Data.User.IsSocialUser)
	assert.Equal(t, "verified", first.Data.User.Status)
	assert.NotNil(t, sessionCookie(resp))

	resp, raw = s.do(t, "POST", "/api/v1/auth/google", map[string]string{"token": "good"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var second dto.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.Equal(t, first.Data.User.ID, second.Data.User.ID)

	resp, _ = s.do(t, "POST", "/api/v1/auth/google", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/api/v1/auth/google", map[string]string{"token": "forged"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, raw = s.do(t, "GET", "/api/v1/auth/github?code=good&state=xyz", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))

	resp, _ = s.do(t, "POST", "/api/v1/auth/github", map[string]string{"code": "good", "state": "xyz"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/api/v1/auth/github", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t, 1000)

	resp, _ := s.do(t, "GET", "/api/v1/users/getMe", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, raw := s.do(t, "POST", "/api/v1/auth/sign-up", signUpBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created dto.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	bearer := "Bearer " + created.Data.Token

	resp, raw = s.do(t, "GET", "/api/v1/users/getMe", nil, "Cookie", "token="+created.Data.Token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var me dto.UserEnvelope
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, "a@b.com", me.Data.Email)
	assert.NotContains(t, string(raw), "password")

	update := map[string]string{"firstName": "Grace"}
	resp, _ = s.do(t, "PUT", "/api/v1/users/me", update, "Authorization", bearer)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/api/v1/auth/verify-email?token="+s.outbox.lastToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = s.do(t, "PUT", "/api/v1/users/me", update, "Authorization", bearer)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, "Grace", me.Data.FirstName)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 1000)
	resp, raw := s.do(t, "GET", "/api/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health dto.HealthResponse
	require.NoError(t, json.Unmarshal(raw, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DB)
	assert.Empty(t, health.Redis)
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	body := map[string]string{"email": "x@b.com"}

	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, "POST", "/api/v1/auth/forgot-password", body)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, _ := s.do(t, "POST", "/api/v1/auth/forgot-password", body)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/api/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

// mapStorage is a fiber.Storage shared by every limiter, like the redis store.
type mapStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStorage() *mapStorage {
	return &mapStorage{data: make(map[string][]byte)}
}

func (m *mapStorage) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mapStorage) Set(key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), val...)
	return nil
}

func (m *mapStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapStorage) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *mapStorage) Close() error { return nil }

func (m *mapStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

func TestAuthRateLimit_SharedStorageKeepsSeparateCounters(t *testing.T) {
	storage := newMapStorage()
	s := newTestServerWithStorage(t, 4, storage)
	body := map[string]string{"email": "x@b.com"}

	for i := 0; i < 4; i++ {
		resp, _ := s.do(t, "POST", "/api/v1/auth/forgot-password", body)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
	}
	resp, _ := s.do(t, "POST", "/api/v1/auth/forgot-password", body)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	var api, auth int
	for _, k := range storage.keys() {
		switch {
		case strings.HasPrefix(k, "api:"):
			api++
		case strings.HasPrefix(k, "auth:"):
			auth++
		default:
			t.Errorf("unexpected limiter key %q", k)
		}
	}
	assert.Equal(t, 1, api)
	assert.Equal(t, 1, auth)
}

func TestSignUp_RejectsOverlongName(t *testing.T) {
	s := newTestServer(t, 1000)
	body := map[string]string{
		"firstName": strings.Repeat("a", 51),
		"email":     "a@b.com",
		"password":  "secret1",
	}

	resp, raw := s.do(t, "POST", "/api/v1/auth/sign-up", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "first name must be between 2 and 50 characters")
}
