package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func TestClampDepth(t *testing.T) {
	assert.Equal(t, 3, ClampDepth(1))
	assert.Equal(t, 10, ClampDepth(50))
	assert.Equal(t, 7, ClampDepth(7))
	assert.Equal(t, 3, ClampDepth(-4))
}

func TestResearchSendsClampedDepth(t *testing.T) {
	var got Request
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/research", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Report{Report: "## A\nbody", AvgQuality: 7, StepsCompleted: 3})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", nil)
	c.HTTPClient = srv.Client()
	for _, tc := range []struct{ in, want int }{{1, 3}, {50, 10}, {5, 5}} {
		rep, err := c.Research(context.Background(), "market strategy", tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.MaxSteps)
		assert.Equal(t, 7.0, rep.AvgQuality)
	}
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.NotEmpty(t, headers.Get("X-Correlation-ID"))
	assert.Equal(t, headers.Get("X-Correlation-ID"), headers.Get("X-Request-ID"))
	assert.Equal(t, "gemini", got.ModelProvider)
	assert.Equal(t, "tavily", got.SearchProvider)
}

func TestResearchNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", nil)
	c.HTTPClient = srv.Client()
	_, err := c.Research(context.Background(), "topic", 3)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, Transient(err))
}

func TestValidationErrorDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}))
	c.HTTPClient = srv.Client()
	for i := 0; i < 3; i++ {
		_, err := c.Research(context.Background(), "topic", 3)
		require.Error(t, err)
		assert.False(t, Transient(err))
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Health{Status: "healthy", AgentReady: true})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", nil)
	c.HTTPClient = srv.Client()
	ok, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBreakerOpensAndProbes(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute, Now: func() time.Time { return now }})
	boom := errors.New("boom")

	require.NoError(t, b.Allow())
	b.Mark(boom)
	require.NoError(t, b.Allow())
	b.Mark(boom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	b.Mark(nil)
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Allow())
}
