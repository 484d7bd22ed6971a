package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/mocks"
	authmocks "github.com/target/jobqueue/internal/mocks/auth"
	"github.com/target/jobqueue/internal/ports"
)

type authFixture struct {
	users    *mocks.MockUserRepository
	sessions *authmocks.MemorySessionStore
	provider *authmocks.MockAuthProvider
	now      time.Time
	svc      *AuthService
}

func newAuthFixture(t *testing.T, withSSO bool) *authFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &authFixture{
		users:    mocks.NewMockUserRepository(ctrl),
		sessions: authmocks.NewMemorySessionStore(),
		now:      fixedNow,
	}
	opts := AuthServiceOptions{
		Users:    f.users,
		Sessions: f.sessions,
		Tokens:   authmocks.FakeTokenIssuer{},
		Hasher:   authmocks.PlainPasswordHasher{},
		TokenTTL: 30 * time.Minute,
		Now:      func() time.Time { return f.now },
	}
	if withSSO {
		f.provider = authmocks.NewMockAuthProvider()
		opts.Provider = f.provider
		opts.Roles = authmocks.StaticRoleMapper{AdminGroup: "admins"}
	}
	svc, err := NewAuthService(opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func localUser(role domainauth.Role) *model.User {
	hash := "plain:correct-horse"
	return &model.User{
		ID:           testOwnerID,
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: &hash,
		Role:         role,
	}
}

func TestNewAuthService_RequiredDependencies(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{})
	require.EqualError(t, err, "UserRepository is required")
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t, false)
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req model.CreateUserRequest) (*model.User, error) {
			assert.Equal(t, "alice@example.com", req.Email)
			assert.Equal(t, domainauth.RoleUser, req.Role)
			require.NotNil(t, req.PasswordHash)
			assert.Equal(t, "plain:correct-horse", *req.PasswordHash)
			return localUser(domainauth.RoleUser), nil
		})

	res, err := f.svc.Register(context.Background(), model.RegisterRequest{
		Email:    "  Alice@Example.com ",
		Name:     "Alice",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, testOwnerID, res.Session.UserID)
	assert.Equal(t, fixedNow.Add(30*time.Minute), res.Session.ExpiresAt)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newAuthFixture(t, false)
	_, err := f.svc.Register(context.Background(), model.RegisterRequest{Email: "a@example.com", Name: "A", Password: "short"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, false)
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(nil, &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_lower_idx"})

	_, err := f.svc.Register(context.Background(), model.RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "correct-horse",
	})
	assert.True(t, apperrors.IsConflict(err))
	assert.Zero(t, f.sessions.Len())
}

func TestAuthService_Login(t *testing.T) {
	federated := localUser(domainauth.RoleUser)
	federated.PasswordHash = nil

	tests := []struct {
		name     string
		email    string
		password string
		user     *model.User
		repoErr  error
		wantErr  bool
	}{
		{name: "valid credentials", email: "ALICE@example.com", password: "correct-horse", user: localUser(domainauth.RoleUser)},
		{name: "wrong password", email: "alice@example.com", password: "nope", user: localUser(domainauth.RoleUser), wantErr: true},
		{name: "unknown email", email: "bob@example.com", password: "correct-horse", repoErr: model.ErrUserNotFound, wantErr: true},
		{name: "federated user without password", email: "alice@example.com", password: "anything", user: federated, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, false)
			f.users.EXPECT().GetByEmail(gomock.Any(), model.NormalizeEmail(tt.email)).Return(tt.user, tt.repoErr)

			res, err := f.svc.Login(context.Background(), model.LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsUnauthorized(err))
				assert.Equal(t, invalidCredentialsMessage, apperrors.PublicMessage(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, res.Token)
		})
	}
}

func TestAuthService_AuthenticateAndLogout(t *testing.T) {
	f := newAuthFixture(t, false)
	f.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(localUser(domainauth.RoleAdmin), nil)

	res, err := f.svc.Login(context.Background(), model.LoginRequest{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	sess, err := f.svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, domainauth.Principal{UserID: testOwnerID, Role: domainauth.RoleAdmin}, sess.Principal())

	require.NoError(t, f.svc.Logout(context.Background(), sess.ID))
	_, err = f.svc.Authenticate(context.Background(), res.Token)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestAuthService_Authenticate_Rejections(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "")
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = f.svc.Authenticate(ctx, "not-a-token")
	assert.True(t, apperrors.IsUnauthorized(err))

	// Token bound to a different user than its session.
	require.NoError(t, f.sessions.Save(ctx, domainauth.Session{ID: "s1", UserID: "someone-else", ExpiresAt: fixedNow.Add(time.Hour)}))
	_, err = f.svc.Authenticate(ctx, "token:s1:"+testOwnerID)
	assert.True(t, apperrors.IsUnauthorized(err))

	// Expired sessions are removed.
	require.NoError(t, f.sessions.Save(ctx, domainauth.Session{ID: "s2", UserID: testOwnerID, ExpiresAt: fixedNow.Add(-time.Second)}))
	_, err = f.svc.Authenticate(ctx, "token:s2:"+testOwnerID)
	assert.True(t, apperrors.IsUnauthorized(err))
	_, err = f.sessions.Get(ctx, "s2")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestAuthService_SSODisabled(t *testing.T) {
	f := newAuthFixture(t, false)
	assert.False(t, f.svc.SSOEnabled())

	_, err := f.svc.BeginLogin(context.Background(), "/")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", ExpectedState: "s", Nonce: "n"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAuthService_SSOFlow(t *testing.T) {
	f := newAuthFixture(t, true)
	require.True(t, f.svc.SSOEnabled())
	f.provider.DefaultUser = domainauth.Identity{
		Subject: "sub-1",
		Email:   "ops@example.com",
		Name:    "Ops",
		Groups:  []string{"admins"},
	}

	begin, err := f.svc.BeginLogin(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "state-1", begin.State)

	f.users.EXPECT().UpsertFederated(gomock.Any(), model.UpsertFederatedUserRequest{
		Email: "ops@example.com",
		Name:  "Ops",
		Role:  domainauth.RoleAdmin,
	}).Return(&model.User{ID: testOwnerID, Email: "ops@example.com", Name: "Ops", Role: domainauth.RoleAdmin}, nil)

	res, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{
		Code:          "code",
		State:         begin.State,
		ExpectedState: begin.State,
		Nonce:         begin.Nonce,
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, res.Session.Role)
	assert.NotEmpty(t, res.Token)
}

func TestAuthService_CompleteLogin_Rejections(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{State: "s", ExpectedState: "s", Nonce: "n"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", State: "s", ExpectedState: "other", Nonce: "n"})
	assert.True(t, apperrors.IsUnauthorized(err))

	f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{}, errors.New("invalid nonce")
	}
	_, err = f.svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", State: "s", ExpectedState: "s", Nonce: "n"})
	assert.True(t, apperrors.IsUnauthorized(err))
}
