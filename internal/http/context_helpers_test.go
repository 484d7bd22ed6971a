package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
)

func TestGetUserSessionFromContext(t *testing.T) {
	// No session
	if s, ok := GetUserSessionFromContext(context.Background()); assert.False(t, ok) {
		assert.Nil(t, s)
	}

	// With session
	sess := &domainauth.Session{ID: "abc", UserID: "u1", Role: domainauth.RoleUser}
	ctx := SetSessionInContext(context.Background(), sess)
	s, ok := GetUserSessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, sess, s)

	// Nil session leaves the context untouched
	assert.Equal(t, context.Background(), SetSessionInContext(context.Background(), nil))
}

func TestPrincipalFromContext(t *testing.T) {
	assert.Equal(t, domainauth.Principal{}, PrincipalFromContext(context.Background()))

	admin := &domainauth.Session{ID: "a", UserID: "u2", Role: domainauth.RoleAdmin}
	p := PrincipalFromContext(SetSessionInContext(context.Background(), admin))
	assert.Equal(t, "u2", p.UserID)
	assert.True(t, p.IsAdmin())
}
