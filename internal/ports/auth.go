package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// RoleMapper maps an IdP identity to an application role.
type RoleMapper interface {
	Map(id domainauth.Identity) domainauth.Role
}

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies bearer tokens bound to a session.
type TokenIssuer interface {
	Issue(sess domainauth.Session) (string, error)
	Verify(token string) (TokenClaims, error)
}

// PasswordHasher hashes and checks local account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}
