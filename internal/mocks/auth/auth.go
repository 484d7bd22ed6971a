package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider   = (*MockAuthProvider)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.RoleMapper     = (*StaticRoleMapper)(nil)
	_ ports.TokenIssuer    = (*FakeTokenIssuer)(nil)
	_ ports.PasswordHasher = (*PlainPasswordHasher)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		Subject: "mock-user-1",
		Email:   "mock.user@example.com",
		Name:    "Mock User",
		Groups:  []string{"users"},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	// Return a copy of the default user with a fresh expiration time
	user := m.DefaultUser
	if user.Subject == "" {
		user = defaultIdentity()
	}
	user.ExpiresAt = time.Now().Add(time.Hour)

	return user, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StaticRoleMapper grants admin to members of AdminGroup.
type StaticRoleMapper struct {
	AdminGroup string
}

func (m StaticRoleMapper) Map(id domainauth.Identity) domainauth.Role {
	for _, g := range id.Groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	return domainauth.RoleUser
}

// ErrInvalidToken is returned by FakeTokenIssuer.Verify for tokens it did not issue.
var ErrInvalidToken = errors.New("invalid token")

// FakeTokenIssuer issues readable tokens of the form "token:<session>:<user>".
type FakeTokenIssuer struct{}

func (FakeTokenIssuer) Issue(sess domainauth.Session) (string, error) {
	if sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session and user ID are required")
	}
	return "token:" + sess.ID + ":" + sess.UserID, nil
}

func (FakeTokenIssuer) Verify(token string) (ports.TokenClaims, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != "token" {
		return ports.TokenClaims{}, ErrInvalidToken
	}
	return ports.TokenClaims{SessionID: parts[1], UserID: parts[2]}, nil
}

// ErrPasswordMismatch is returned by PlainPasswordHasher.Compare on mismatch.
var ErrPasswordMismatch = errors.New("password mismatch")

// PlainPasswordHasher stores passwords with a visible prefix. Never use outside tests.
type PlainPasswordHasher struct{}

func (PlainPasswordHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (PlainPasswordHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return ErrPasswordMismatch
	}
	return nil
}
