package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:        id,
		UserID:    "2f1c7a52-2f57-4a43-9b1e-7c2b8d1f0a11",
		Email:     "user@example.com",
		Name:      "User",
		Role:      domainauth.RoleUser,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	sess := testSession("jti-1", 30*time.Minute)
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, sess.Role, got.Role)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)

	ttl := client.TTL(ctx, DefaultSessionPrefix+"jti-1").Val()
	assert.Greater(t, ttl, 29*time.Minute)

	require.NoError(t, store.Delete(ctx, "jti-1"))
	_, err = store.Get(ctx, "jti-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, ""), "empty id is a no-op")
}

func TestSessionStore_Rejects(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, testSession("", time.Minute))
	require.ErrorContains(t, err, "session ID cannot be empty")

	err = store.Save(ctx, testSession("old", -time.Hour))
	require.ErrorContains(t, err, "session is expired")

	_, err = store.Get(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_ExpiredPayloadIsEvicted(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "test-session:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("late", time.Hour)))
	assert.Equal(t, int64(1), client.Exists(ctx, "test-session:late").Val())

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := store.Get(ctx, "late")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), client.Exists(ctx, "test-session:late").Val())
}
