// Package passwords hashes local account passwords with bcrypt.
package passwords

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/target/jobqueue/internal/ports"
)

// ErrMismatch is returned by Compare when the password is wrong.
var ErrMismatch = errors.New("password does not match")

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// BcryptHasher implements ports.PasswordHasher.
type BcryptHasher struct {
	Cost int
}

var _ ports.PasswordHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher using bcrypt.DefaultCost when cost is out of range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password longer than %d bytes", MaxPasswordBytes)
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
