package devauth

// Package devauth provides a config-driven AuthProvider for local development (AUTH_MODE=mock).

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
	"github.com/target/jobqueue/internal/util"
)

// CallbackPath is where Begin sends the browser back to.
const CallbackPath = "/auth/sso/callback"

// Config controls the dev auth provider behavior.
// Subject and Email are required; Groups may be empty.
type Config struct {
	Subject         string
	Email           string
	Name            string
	Groups          []string
	SessionDuration time.Duration // default 8h when zero
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting straight back to our own callback
// with locally generated state, and Exchange returns the configured identity.
type Provider struct {
	identity        domainauth.Identity
	sessionDuration time.Duration
	now             func() time.Time
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Subject == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur <= 0 {
		dur = 8 * time.Hour
	}
	return &Provider{
		identity: domainauth.Identity{
			Subject: cfg.Subject,
			Email:   strings.ToLower(strings.TrimSpace(cfg.Email)),
			Name:    cfg.Name,
			Groups:  slices.Clone(cfg.Groups),
			Claims: map[string]any{
				"sub":    cfg.Subject,
				"email":  cfg.Email,
				"groups": slices.Clone(cfg.Groups),
			},
		},
		sessionDuration: dur,
		now:             time.Now,
	}, nil
}

// Begin returns a local callback URL carrying a fresh state; the nonce is only echoed back.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := util.RandomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := util.RandomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange ignores code/state/nonce (the handler validates state) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	id := p.identity
	id.Groups = slices.Clone(p.identity.Groups)
	id.ExpiresAt = p.now().Add(p.sessionDuration)
	return id, nil
}
