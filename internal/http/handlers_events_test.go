package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
)

func eventsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/events"
	if token != "" {
		u += "?access_token=" + token
	}
	return u
}

func TestEventStream_RelaysOwnerEvents(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	token := f.tokenFor(t, ownerID, domainauth.RoleUser)

	conn, resp, err := websocket.DefaultDialer.Dial(eventsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, []string{ownerID}, f.events.subscribedOwners())

	result := 14.0
	f.events.ch <- model.JobEvent{
		Type:      model.JobEventStatus,
		JobID:     jobID,
		OwnerID:   ownerID,
		Status:    model.JobStatusSuccess,
		Result:    &result,
		Timestamp: fixtureNow,
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job.status", got["type"])
	assert.Equal(t, jobID, got["job_id"])
	assert.Equal(t, "SUCCESS", got["status"])
	assert.InDelta(t, 14.0, got["result"], 1e-9)
	assert.NotContains(t, got, "owner_id")
}

func TestEventStream_ClosesWhenSubscriptionEnds(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	token := f.tokenFor(t, ownerID, domainauth.RoleUser)

	conn, _, err := websocket.DefaultDialer.Dial(eventsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	close(f.events.ch)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestEventStream_RequiresToken(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(eventsURL(srv, ""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, f.events.subscribedOwners())
}

func TestEventStream_SubscribeFailure(t *testing.T) {
	f := newAPIFixture(t, apiFixtureOptions{})
	f.events.err = errors.New("redis down")
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	token := f.tokenFor(t, ownerID, domainauth.RoleUser)

	_, resp, err := websocket.DefaultDialer.Dial(eventsURL(srv, token), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
