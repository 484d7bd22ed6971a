package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
)

func localUser() *model.User {
	hash := "plain:correct-horse"
	return &model.User{ID: ownerID, Email: "alice@example.com", Name: "Alice", PasswordHash: &hash, Role: domainauth.RoleUser}
}

func TestRegister(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(localUser(), nil)

	rec := f.do(t, http.MethodPost, "/auth/register", "",
		`{"email":"Alice@Example.com","name":"Alice","password":"correct-horse"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody[tokenResponse](t, rec)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, "registration successful", body.Message)
	assert.Equal(t, "user", body.User.Role)

	// The issued token authenticates immediately.
	me := f.do(t, http.MethodGet, "/auth/me", body.Token, "")
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"email":"alice@example.com"`)
}

func TestRegister_Rejections(t *testing.T) {
	t.Run("short password", func(t *testing.T) {
		f := newAPIFixture(t, apiFixtureOptions{})
		rec := f.do(t, http.MethodPost, "/auth/register", "", `{"email":"a@example.com","name":"A","password":"short"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeBody[ErrorBody](t, rec).Error)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAPIFixture(t, apiFixtureOptions{})
		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, uniqueEmailViolation())
		rec := f.do(t, http.MethodPost, "/auth/register", "",
			`{"email":"alice@example.com","name":"Alice","password":"correct-horse"}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "email is already registered", decodeBody[ErrorBody](t, rec).Message)
	})
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	f.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(localUser(), nil).Times(2)

	rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "login successful", decodeBody[tokenResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"wrong-horse"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", decodeBody[ErrorBody](t, rec).Message)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	token := f.tokenFor(t, ownerID, domainauth.RoleUser)

	rec := f.do(t, http.MethodPost, "/auth/logout", token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/auth/me", token, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.sessions.Len())
}

func TestSSO_Disabled(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})

	rec := f.do(t, http.MethodGet, "/auth/sso/login", "", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSSO_Flow(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{withSSO: true})
	f.provider.DefaultUser = domainauth.Identity{
		Subject: "sub-1",
		Email:   "ops@example.com",
		Name:    "Ops",
		Groups:  []string{"admins"},
	}

	begin := f.do(t, http.MethodGet, "/auth/sso/login?redirect_uri=https://evil.example", "", "")
	require.Equal(t, http.StatusFound, begin.Code)
	assert.Equal(t, "https://mock-idp/auth", begin.Header().Get("Location"))

	cookies := begin.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, "/auth/sso", c.Path)
	}

	f.users.EXPECT().UpsertFederated(gomock.Any(), model.UpsertFederatedUserRequest{
		Email: "ops@example.com",
		Name:  "Ops",
		Role:  domainauth.RoleAdmin,
	}).Return(&model.User{ID: adminID, Email: "ops@example.com", Name: "Ops", Role: domainauth.RoleAdmin}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?code=abc&state=state-1", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[tokenResponse](t, rec)
	assert.Equal(t, "admin", body.User.Role)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge, "cookie %s should be cleared", c.Name)
	}
}

func TestSSO_CallbackStateMismatch(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{withSSO: true})

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "state-1"})
	req.AddCookie(&http.Cookie{Name: nonceCookieName, Value: "nonce-1"})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthEndpoints_Throttled(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{throttle: ThrottleConfig{RPS: 0.001, Burst: 1}})
	f.users.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(nil, model.ErrUserNotFound)

	body := `{"email":"bob@example.com","password":"whatever1"}`
	first := f.do(t, http.MethodPost, "/auth/login", "", body)
	require.Equal(t, http.StatusUnauthorized, first.Code)

	second := f.do(t, http.MethodPost, "/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                     "/",
		"/jobs":                "/jobs",
		"https://evil.example": "/",
		"//evil.example/x":     "/",
		"relative":             "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), "input %q", in)
	}
	assert.False(t, strings.HasPrefix(safeRedirectPath("//x"), "//"))
}
