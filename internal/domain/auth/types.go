package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and token sessions.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid returns true if the Role is known.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %q (valid options: user, admin)", s)
	}
	return r, nil
}

// Principal is the authenticated actor a request is performed for.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin returns true if the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanAccess reports whether the principal may read a resource owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Subject   string // stable IdP identifier
	Email     string
	Name      string
	Groups    []string
	Claims    map[string]any // raw ID token claims, used by expression role mapping
	ExpiresAt time.Time      // absolute expiry from IdP token
}

// Session is the server-side record behind an issued bearer token.
// ID doubles as the token's jti claim.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal returns the principal the session authenticates.
func (s Session) Principal() Principal {
	return Principal{UserID: s.UserID, Role: s.Role}
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
