package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

var errKeyNotFound = errors.New("signing key not found")

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksCache struct {
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	mu        sync.RWMutex
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	jwt.RegisteredClaims
}

// GoogleIdentity verifies Google ID tokens against Google's published signing
// keys and the configured OAuth client ID.
type GoogleIdentity struct {
	clientID   string
	certsURL   string
	httpClient *http.Client
	cache      *jwksCache
	now        func() time.Time
}

type GoogleIdentityOption func(*GoogleIdentity)

// WithGoogleCertsURL overrides the JWKS endpoint.
func WithGoogleCertsURL(url string) GoogleIdentityOption {
	return func(g *GoogleIdentity) {
		g.certsURL = url
	}
}

func NewGoogleIdentity(clientID string, opts ...GoogleIdentityOption) *GoogleIdentity {
	g := &GoogleIdentity{
		clientID:   clientID,
		certsURL:   googleCertsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      &jwksCache{keys: make(map[string]*rsa.PublicKey)},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoogleIdentity) Name() string { return ProviderGoogle }

func (g *GoogleIdentity) Exchange(ctx context.Context, idToken string) (*Identity, error) {
	if g.clientID == "" {
		return nil, fmt.Errorf("%w: google client id is not configured", ErrInvalidIDToken)
	}

	var claims googleClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return g.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(g.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	if !validIssuer(claims.Issuer) {
		return nil, fmt.Errorf("%w: invalid issuer %q", ErrInvalidIDToken, claims.Issuer)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, fmt.Errorf("%w: email missing or unverified", ErrInvalidIDToken)
	}

	return &Identity{
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
	}, nil
}

func validIssuer(iss string) bool {
	for _, v := range googleIssuers {
		if iss == v {
			return true
		}
	}
	return false
}

// publicKey returns the cached key for kid, refreshing the key set when the
// cache is stale or the kid is unknown.
func (g *GoogleIdentity) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	g.cache.mu.RLock()
	if key, ok := g.cache.keys[kid]; ok && g.now().Before(g.cache.expiresAt) {
		g.cache.mu.RUnlock()
		return key, nil
	}
	g.cache.mu.RUnlock()

	if err := g.fetchKeys(ctx); err != nil {
		return nil, err
	}

	g.cache.mu.RLock()
	defer g.cache.mu.RUnlock()
	if key, ok := g.cache.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
}

func (g *GoogleIdentity) fetchKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.certsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch JWKS: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: JWKS endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: failed to decode JWKS: %v", ErrProviderUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	g.cache.mu.Lock()
	g.cache.keys = keys
	g.cache.expiresAt = g.now().Add(time.Hour)
	g.cache.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
