package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/mocks"
	authmocks "github.com/target/jobqueue/internal/mocks/auth"
	"github.com/target/jobqueue/internal/service"
)

const (
	ownerID = "7f1d3c6e-5a4b-4c8e-9d2f-1a2b3c4d5e6f"
	otherID = "2c4e6a8b-1d3f-4a5b-9c7d-8e6f4a2b0c1d"
	adminID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	jobID   = "0b9e8d7c-6f5a-4e3d-8c2b-1a0f9e8d7c6b"
)

var fixtureNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSubscriber hands out one in-memory subscription per Subscribe call.
type fakeSubscriber struct {
	mu     sync.Mutex
	owners []string
	ch     chan model.JobEvent
	err    error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, owner string) (core.JobEventSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.owners = append(f.owners, owner)
	return &fakeSubscription{ch: f.ch}, nil
}

func (f *fakeSubscriber) subscribedOwners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.owners...)
}

type fakeSubscription struct {
	ch chan model.JobEvent
}

func (s *fakeSubscription) Events() <-chan model.JobEvent { return s.ch }
func (s *fakeSubscription) Close() error                  { return nil }

type apiFixtureOptions struct {
	withSSO  bool
	throttle ThrottleConfig
}

type apiFixture struct {
	jobs       *mocks.MockJobRepository
	maint      *mocks.MockJobMaintenanceRepository
	users      *mocks.MockUserRepository
	limiter    *mocks.MockRateLimiter
	dispatcher *mocks.MockDispatcher
	sessions   *authmocks.MemorySessionStore
	provider   *authmocks.MockAuthProvider
	events     *fakeSubscriber
	handler    http.Handler
}

func newAPIFixture(t *testing.T, opts apiFixtureOptions) *apiFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &apiFixture{
		jobs:       mocks.NewMockJobRepository(ctrl),
		maint:      mocks.NewMockJobMaintenanceRepository(ctrl),
		users:      mocks.NewMockUserRepository(ctrl),
		limiter:    mocks.NewMockRateLimiter(ctrl),
		dispatcher: mocks.NewMockDispatcher(ctrl),
		sessions:   authmocks.NewMemorySessionStore(),
		events:     &fakeSubscriber{ch: make(chan model.JobEvent, 4)},
	}
	now := func() time.Time { return fixtureNow }

	authOpts := service.AuthServiceOptions{
		Users:    f.users,
		Sessions: f.sessions,
		Tokens:   authmocks.FakeTokenIssuer{},
		Hasher:   authmocks.PlainPasswordHasher{},
		Now:      now,
	}
	if opts.withSSO {
		f.provider = authmocks.NewMockAuthProvider()
		authOpts.Provider = f.provider
		authOpts.Roles = authmocks.StaticRoleMapper{AdminGroup: "admins"}
	}
	authSvc, err := service.NewAuthService(authOpts)
	require.NoError(t, err)

	admission, err := service.NewAdmissionService(service.AdmissionServiceOptions{
		Limiter:        f.limiter,
		Repo:           f.jobs,
		Dispatcher:     f.dispatcher,
		MaxInputLength: 100,
	})
	require.NoError(t, err)
	queries, err := service.NewJobQueryService(service.JobQueryServiceOptions{Repo: f.jobs})
	require.NoError(t, err)
	retention, err := service.NewRetentionService(service.RetentionServiceOptions{Repo: f.maint, Now: now})
	require.NoError(t, err)

	f.handler = NewRouter(RouterServices{
		Auth:      authSvc,
		Admission: admission,
		Queries:   queries,
		Retention: retention,
		Events:    f.events,
		Throttle:  opts.throttle,
	})
	return f
}

// tokenFor stores a live session for userID and returns a bearer token bound to it.
func (f *apiFixture) tokenFor(t *testing.T, userID string, role domainauth.Role) string {
	t.Helper()
	sess := domainauth.Session{
		ID:        "sess-" + userID,
		UserID:    userID,
		Email:     userID + "@example.com",
		Name:      "Test User",
		Role:      role,
		ExpiresAt: fixtureNow.Add(time.Hour),
	}
	require.NoError(t, f.sessions.Save(context.Background(), sess))
	return "token:" + sess.ID + ":" + userID
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func storedJob(owner string, status model.JobStatus, result *float64) *model.Job {
	return &model.Job{
		ID:        jobID,
		OwnerID:   owner,
		Operation: model.OperationSquareSum,
		Input:     []float64{2, 3},
		Status:    status,
		Result:    result,
		CreatedAt: fixtureNow.Add(-time.Minute),
		UpdatedAt: fixtureNow,
	}
}

func uniqueEmailViolation() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, TableName: "users", ConstraintName: "users_email_lower_idx"}
}
