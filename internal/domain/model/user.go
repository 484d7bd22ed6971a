package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
)

// ErrUserNotFound is returned when a user does not exist.
var ErrUserNotFound = errors.New("user not found")

// Password length bounds accepted at registration. The upper bound is bcrypt's input limit.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// User is a principal able to submit jobs.
type User struct {
	ID           string          `json:"id"         db:"id"`
	Email        string          `json:"email"      db:"email"`
	Name         string          `json:"name"       db:"name"`
	PasswordHash *string         `json:"-"          db:"password_hash"`
	Role         domainauth.Role `json:"role"       db:"role"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterRequest is the local account registration payload.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Normalize trims fields and lower-cases the email.
func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

// Validate validates the RegisterRequest fields.
func (r *RegisterRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("email is not a valid address")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	if len(r.Password) > MaxPasswordLength {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}

// LoginRequest is the local login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest is the store-level request to insert a user.
type CreateUserRequest struct {
	Email        string
	Name         string
	PasswordHash *string
	Role         domainauth.Role
}

// UpsertFederatedUserRequest creates or refreshes a user authenticated by SSO.
type UpsertFederatedUserRequest struct {
	Email string
	Name  string
	// Role is applied on insert and only raised (user -> admin) on update.
	Role domainauth.Role
}
