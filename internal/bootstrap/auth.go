package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/adapters/authroles"
	"github.com/target/jobqueue/internal/adapters/devauth"
	"github.com/target/jobqueue/internal/adapters/jwttoken"
	"github.com/target/jobqueue/internal/adapters/oidc"
	"github.com/target/jobqueue/internal/adapters/passwords"
	redisadapter "github.com/target/jobqueue/internal/adapters/redis"
	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/ports"
	"github.com/target/jobqueue/internal/service"
	"github.com/target/jobqueue/internal/util"
)

// tokenIssuerName is written to the iss claim of every bearer token.
const tokenIssuerName = "jobqueue"

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	IsDev       bool
	RedisClient redis.UniversalClient
	Users       core.UserRepository
	Logger      *slog.Logger
}

// BuildAuthService creates the auth service. Local accounts are always
// available; AUTH_MODE selects an additional SSO provider.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RedisClient == nil {
		return nil, errors.New("auth service requires a redis client")
	}
	if cfg.Users == nil {
		return nil, errors.New("auth service requires a user repository")
	}

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	issuer, err := jwttoken.NewIssuer(jwttoken.IssuerOptions{
		Secret: []byte(secret),
		Issuer: tokenIssuerName,
	})
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	roles, err := buildRoleMapper(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	provider, err := buildAuthProvider(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		logger.InfoContext(ctx, "sso login enabled", "mode", cfg.Auth.Mode)
	}

	svc, err := service.NewAuthService(service.AuthServiceOptions{
		Users:    cfg.Users,
		Sessions: redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, cfg.Auth.SessionPrefix),
		Tokens:   issuer,
		Hasher:   passwords.NewBcryptHasher(bcrypt.DefaultCost),
		Provider: provider,
		Roles:    roles,
		TokenTTL: cfg.Auth.TokenTTL,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	return svc, nil
}

// jwtSecret returns the configured signing key. Development mode falls back
// to a random per-process key, which invalidates tokens on restart.
func jwtSecret(cfg AuthConfig, logger *slog.Logger) (string, error) {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret, nil
	}
	if !cfg.IsDev {
		return "", errors.New("AUTH_JWT_SECRET is required")
	}
	secret, err := util.RandomString(48)
	if err != nil {
		return "", fmt.Errorf("generate development jwt secret: %w", err)
	}
	logger.Warn("AUTH_JWT_SECRET not set; using an ephemeral development key")
	return secret, nil
}

//nolint:ireturn // the mapper implementation depends on configuration.
func buildRoleMapper(cfg config.AuthConfig, logger *slog.Logger) (ports.RoleMapper, error) {
	static := authroles.StaticRoleMapper{AdminGroup: cfg.AdminGroup}
	if cfg.RoleExpression == "" {
		return static, nil
	}
	mapper, err := authroles.NewExpressionMapper(cfg.RoleExpression, static, logger)
	if err != nil {
		return nil, fmt.Errorf("create role mapper: %w", err)
	}
	return mapper, nil
}

//nolint:ireturn // the provider implementation depends on AUTH_MODE.
func buildAuthProvider(ctx context.Context, cfg config.AuthConfig) (ports.AuthProvider, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			Subject:         cfg.DevAuth.Subject,
			Email:           cfg.DevAuth.Email,
			Name:            cfg.DevAuth.Name,
			Groups:          cfg.DevAuth.Groups,
			SessionDuration: cfg.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		return prov, nil

	case config.AuthModeOAuth:
		oauth := cfg.OAuth
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create oidc provider: %w", err)
		}
		return prov, nil

	default:
		return nil, nil
	}
}
