package services

import "context"

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Identity is a third-party identity normalized to the user record's shape.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// IdentityProvider exchanges an external proof of identity (an ID token, an
// authorization code) for an Identity. Invalid proofs must fail closed.
type IdentityProvider interface {
	Name() string
	Exchange(ctx context.Context, proof string) (*Identity, error)
}
