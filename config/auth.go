package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeLocal uses email/password accounts only.
	AuthModeLocal AuthMode = "local"
	// AuthModeOAuth adds OAuth/OIDC single sign-on next to local accounts.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock adds a mock SSO provider (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, oauth, mock)", v)
	}
}

// SSOEnabled reports whether a federated login provider is configured.
func (a AuthMode) SSOEnabled() bool {
	return a == AuthModeOAuth || a == AuthModeMock
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"jobqueue"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:""`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the mock SSO identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Subject string   `env:"SUBJECT" envDefault:"dev-user"`
	Email   string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Name    string   `env:"NAME"    envDefault:"Dev User"`
	Groups  []string `env:"GROUPS"  envDefault:"admins"          envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which login flows are offered.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// JWTSecret signs bearer tokens (HS256).
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// TokenTTL is the lifetime of issued tokens and their sessions.
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"60m"`

	// SessionPrefix namespaces token sessions in Redis.
	SessionPrefix string `env:"AUTH_SESSION_PREFIX" envDefault:"session:"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup maps an SSO group to the admin role.
	AdminGroup string `env:"AUTH_ADMIN_GROUP"`

	// RoleExpression is a JMESPath expression evaluated over SSO claims.
	// A result of "admin" (or true) grants admin; anything else maps to user.
	RoleExpression string `env:"AUTH_ROLE_EXPRESSION"`

	// ThrottleRPS and ThrottleBurst limit auth endpoint calls per client IP.
	ThrottleRPS   float64 `env:"AUTH_THROTTLE_RPS"   envDefault:"5"`
	ThrottleBurst int     `env:"AUTH_THROTTLE_BURST" envDefault:"10"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModeLocal
	}
	if a.TokenTTL < time.Minute {
		a.TokenTTL = time.Minute
	}
	if strings.TrimSpace(a.SessionPrefix) == "" {
		a.SessionPrefix = "session:"
	}
	a.AdminGroup = strings.TrimSpace(a.AdminGroup)
	a.RoleExpression = strings.TrimSpace(a.RoleExpression)
	if a.ThrottleRPS <= 0 {
		a.ThrottleRPS = 5
	}
	if a.ThrottleBurst < 1 {
		a.ThrottleBurst = 1
	}
}
