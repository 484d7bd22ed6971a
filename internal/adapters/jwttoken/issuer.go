// Package jwttoken issues and verifies the HS256 bearer tokens handed to API clients.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// ErrInvalidToken is returned for malformed, tampered or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// IssuerOptions configures an Issuer.
type IssuerOptions struct {
	Secret []byte
	// Issuer is written to and required in the iss claim.
	Issuer string
	Now    func() time.Time
}

// Issuer signs session-bound tokens: sub is the user id, jti the session id.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

var _ ports.TokenIssuer = (*Issuer)(nil)

// NewIssuer builds an Issuer.
func NewIssuer(opts IssuerOptions) (*Issuer, error) {
	if len(opts.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = "jobqueue"
	}
	return &Issuer{
		secret: opts.Secret,
		issuer: issuer,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Issue signs a token for sess that expires with it.
func (i *Issuer) Issue(sess domainauth.Session) (string, error) {
	if sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session id and user id are required")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   sess.UserID,
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(i.now()),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token.
func (i *Issuer) Verify(token string) (ports.TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := i.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return ports.TokenClaims{}, fmt.Errorf("%w: missing jti or sub", ErrInvalidToken)
	}
	return ports.TokenClaims{
		SessionID: claims.ID,
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
