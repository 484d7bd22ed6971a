package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/ports"
)

// DefaultTokenTTL is the token and session lifetime used when none is configured.
const DefaultTokenTTL = time.Hour

const invalidCredentialsMessage = "invalid email or password"

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Users    core.UserRepository  // Required: user accounts
	Sessions ports.SessionStore   // Required: token sessions
	Tokens   ports.TokenIssuer    // Required: bearer token signer
	Hasher   ports.PasswordHasher // Required: local password hashing
	Provider ports.AuthProvider   // Optional: SSO identity provider
	Roles    ports.RoleMapper     // Optional: SSO role mapping, defaults to user
	TokenTTL time.Duration        // Optional: defaults to one hour
	Now      func() time.Time     // Optional: clock override for tests
	Logger   *slog.Logger         // Optional: structured logger
}

// AuthService orchestrates local accounts, SSO logins and token sessions.
type AuthService struct {
	users    core.UserRepository
	sessions ports.SessionStore
	tokens   ports.TokenIssuer
	hasher   ports.PasswordHasher
	provider ports.AuthProvider
	roles    ports.RoleMapper
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	switch {
	case opts.Users == nil:
		return nil, errors.New("UserRepository is required")
	case opts.Sessions == nil:
		return nil, errors.New("SessionStore is required")
	case opts.Tokens == nil:
		return nil, errors.New("TokenIssuer is required")
	case opts.Hasher == nil:
		return nil, errors.New("PasswordHasher is required")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    opts.Users,
		sessions: opts.Sessions,
		tokens:   opts.Tokens,
		hasher:   opts.Hasher,
		provider: opts.Provider,
		roles:    opts.Roles,
		ttl:      ttl,
		now:      now,
		logger:   logger.With("component", "auth_service"),
	}, nil
}

// SSOEnabled reports whether an identity provider is configured.
func (s *AuthService) SSOEnabled() bool { return s.provider != nil }

// LoginResult is returned by every successful login flow.
type LoginResult struct {
	Token   string
	Session domainauth.Session
	User    *model.User
}

// Register creates a local account with the user role and logs it in.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, model.CreateUserRequest{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: &hash,
		Role:         domainauth.RoleUser,
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsConflict(mapped) {
			return nil, apperrors.Conflict("email is already registered")
		}
		return nil, fmt.Errorf("create user: %w", mapped)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return s.startSession(ctx, user)
}

// Login verifies local credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*LoginResult, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", apperrors.MapDBError(err))
	}
	if user.PasswordHash == nil {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}
	if err := s.hasher.Compare(*user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}

	return s.startSession(ctx, user)
}

// Authenticate resolves a bearer token to its session. Invalid, expired and
// revoked tokens are all Unauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, apperrors.Unauthorized("authentication required")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid token")
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ports.ErrSessionNotFound) {
		return domainauth.Session{}, apperrors.Unauthorized("session expired or revoked")
	}
	if err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session store unavailable")
	}
	if sess.UserID != claims.UserID {
		return domainauth.Session{}, apperrors.Unauthorized("invalid token")
	}
	if sess.Expired(s.now()) {
		if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
			s.logger.WarnContext(ctx, "delete expired session failed", "error", delErr)
		}
		return domainauth.Session{}, apperrors.Unauthorized("session expired or revoked")
	}
	return sess, nil
}

// Logout revokes the session behind a session ID.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to logout
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an SSO flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, apperrors.NotFound("single sign-on is not enabled")
	}
	if redirectURL == "" {
		return nil, apperrors.Validation("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code          string
	State         string
	ExpectedState string
	Nonce         string
}

// CompleteLogin exchanges the authorization code, maps the identity to a role,
// upserts the user and issues a token.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*LoginResult, error) {
	if s.provider == nil {
		return nil, apperrors.NotFound("single sign-on is not enabled")
	}
	switch {
	case in.Code == "":
		return nil, apperrors.Validation("authorization code is required")
	case in.State == "" || in.State != in.ExpectedState:
		return nil, apperrors.Unauthorized("invalid login state")
	case in.Nonce == "":
		return nil, apperrors.Unauthorized("missing login nonce")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "single sign-on failed")
	}

	role := domainauth.RoleUser
	if s.roles != nil {
		role = s.roles.Map(identity)
	}

	user, err := s.users.UpsertFederated(ctx, model.UpsertFederatedUserRequest{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  role,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", apperrors.MapDBError(err))
	}

	s.logger.InfoContext(ctx, "sso login", "user_id", user.ID, "subject", identity.Subject, "role", user.Role)
	return s.startSession(ctx, user)
}

// startSession persists a session for user and signs a token bound to it.
func (s *AuthService) startSession(ctx context.Context, user *model.User) (*LoginResult, error) {
	sess := domainauth.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, Session: sess, User: user}, nil
}
