package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/adapters/authroles"
	"github.com/target/jobqueue/internal/adapters/devauth"
	"github.com/target/jobqueue/internal/adapters/jwttoken"
	"github.com/target/jobqueue/internal/mocks"
)

// testJWTSecret satisfies jwttoken.MinSecretLength.
const testJWTSecret = "bootstrap-test-secret-0123456789abcdef"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig(t *testing.T) AuthConfig {
	t.Helper()
	// The client is never dialed while building the service.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	auth := config.AuthConfig{Mode: config.AuthModeLocal, JWTSecret: testJWTSecret, TokenTTL: time.Hour}
	auth.Sanitize()
	return AuthConfig{
		Auth:        auth,
		RedisClient: client,
		Users:       mocks.NewMockUserRepository(gomock.NewController(t)),
		Logger:      quietLogger(),
	}
}

func TestBuildAuthService(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AuthConfig)
		wantErr string
		wantSSO bool
	}{
		{name: "local mode", mutate: func(*AuthConfig) {}},
		{
			name: "mock sso mode",
			mutate: func(c *AuthConfig) {
				c.Auth.Mode = config.AuthModeMock
				c.Auth.DevAuth = config.DevAuthConfig{Subject: "dev", Email: "dev@example.com"}
			},
			wantSSO: true,
		},
		{name: "missing redis", mutate: func(c *AuthConfig) { c.RedisClient = nil }, wantErr: "redis client"},
		{name: "missing users", mutate: func(c *AuthConfig) { c.Users = nil }, wantErr: "user repository"},
		{name: "missing secret", mutate: func(c *AuthConfig) { c.Auth.JWTSecret = "" }, wantErr: "AUTH_JWT_SECRET is required"},
		{name: "short secret", mutate: func(c *AuthConfig) { c.Auth.JWTSecret = "too-short" }, wantErr: "at least 32 bytes"},
		{
			name: "dev mode generates secret",
			mutate: func(c *AuthConfig) {
				c.Auth.JWTSecret = ""
				c.IsDev = true
			},
		},
		{name: "invalid role expression", mutate: func(c *AuthConfig) { c.Auth.RoleExpression = "groups[" }, wantErr: "role expression"},
		{
			name: "oauth without discovery",
			mutate: func(c *AuthConfig) {
				c.Auth.Mode = config.AuthModeOAuth
				c.Auth.OAuth = config.OAuthConfig{ClientID: "id", ClientSecret: "s", RedirectURL: "http://localhost/cb"}
			},
			wantErr: "discovery URL is required",
		},
	}
	require.GreaterOrEqual(t, len(testJWTSecret), jwttoken.MinSecretLength)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAuthConfig(t)
			tt.mutate(&cfg)

			svc, err := BuildAuthService(context.Background(), cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
			assert.Equal(t, tt.wantSSO, svc.SSOEnabled())
		})
	}
}

func TestBuildRoleMapper(t *testing.T) {
	static, err := buildRoleMapper(config.AuthConfig{AdminGroup: "admins"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, authroles.StaticRoleMapper{AdminGroup: "admins"}, static)

	expr, err := buildRoleMapper(config.AuthConfig{RoleExpression: "contains(groups, 'ops')"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &authroles.ExpressionMapper{}, expr)
}

func TestBuildAuthProvider(t *testing.T) {
	prov, err := buildAuthProvider(context.Background(), config.AuthConfig{Mode: config.AuthModeLocal})
	require.NoError(t, err)
	assert.Nil(t, prov)

	prov, err = buildAuthProvider(context.Background(), config.AuthConfig{
		Mode:    config.AuthModeMock,
		DevAuth: config.DevAuthConfig{Subject: "dev", Email: "dev@example.com"},
	})
	require.NoError(t, err)
	assert.IsType(t, &devauth.Provider{}, prov)

	_, err = buildAuthProvider(context.Background(), config.AuthConfig{Mode: config.AuthModeMock})
	require.ErrorContains(t, err, "Subject is required")
}
