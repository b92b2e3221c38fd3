package theater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

func TestClient_StageState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stage/state", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"act":2,"scene":"balcony","running":true,"house":"open"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithMinInterval(0))
	state, err := c.StageState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, state.Act)
	assert.Equal(t, "balcony", state.Scene)
	assert.True(t, state.Running)
}

func TestClient_CueSheet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cues", r.URL.Path)
		w.Write([]byte(`{"cues":[{"id":"LX1","name":"house to half","kind":"light","number":1}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithMinInterval(0))
	cues, err := c.CueSheet(context.Background())
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, "LX1", cues[0].ID)
	assert.Equal(t, "light", cues[0].Kind)
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   cerr.Code
	}{
		{http.StatusNotFound, cerr.NotFound},
		{http.StatusTooManyRequests, cerr.ResourceExhausted},
		{http.StatusBadGateway, cerr.Unavailable},
		{http.StatusTeapot, cerr.Internal},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := New(srv.URL, WithMinInterval(0))
		_, err := c.StageState(context.Background())
		assert.True(t, cerr.IsCode(err, tc.code), "status %d", tc.status)
		srv.Close()
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", WithMinInterval(0))
	_, err := c.StageState(context.Background())
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestClient_Throttle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := New(srv.URL, WithClock(clock), WithMinInterval(time.Second))

	// First request never waits.
	_, err := c.StageState(context.Background())
	require.NoError(t, err)

	// With the interval already elapsed there is no wait either.
	clock.Advance(time.Second)
	_, err = c.StageState(context.Background())
	require.NoError(t, err)

	// Inside the interval the wait respects cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.StageState(ctx)
	assert.True(t, cerr.IsCode(err, cerr.Canceled))
}
