package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBaseURL = "https://api.github.com"

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubIdentity exchanges a GitHub authorization code for the account's
// primary verified email.
type GitHubIdentity struct {
	oauth2Config *oauth2.Config
	apiBaseURL   string
	httpClient   *http.Client
}

type GitHubIdentityOption func(*GitHubIdentity)

// WithGitHubEndpoints overrides the token endpoint and the REST API base URL.
func WithGitHubEndpoints(tokenURL, apiBaseURL string) GitHubIdentityOption {
	return func(g *GitHubIdentity) {
		g.oauth2Config.Endpoint = oauth2.Endpoint{
			AuthURL:   github.Endpoint.AuthURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
		g.apiBaseURL = apiBaseURL
	}
}

func NewGitHubIdentity(clientID, clientSecret, redirectURL string, opts ...GitHubIdentityOption) *GitHubIdentity {
	g := &GitHubIdentity{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBaseURL: githubAPIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHubIdentity) Name() string { return ProviderGitHub }

func (g *GitHubIdentity) Exchange(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderExchange, err)
	}
	if token.AccessToken == "" {
		return nil, ErrProviderExchange
	}

	client := g.oauth2Config.Client(ctx, token)

	var user githubUser
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}

	var emails []githubEmail
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}

	var primary string
	for _, e := range emails {
		if e.Primary && e.Verified {
			primary = e.Email
			break
		}
	}
	if primary == "" {
		return nil, ErrNoVerifiedEmail
	}

	firstName := user.Name
	if firstName == "" {
		firstName = user.Login
	}

	return &Identity{
		Email:     primary,
		FirstName: firstName,
	}, nil
}

func (g *GitHubIdentity) getJSON(ctx context.Context, client *http.Client, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrProviderUnavailable, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned status %d", ErrProviderUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderUnavailable, path, err)
	}
	return nil
}
