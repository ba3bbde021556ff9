package restclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

// newTestClient creates a Client with instant retry sleeps for fast tests.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	c := NewClient(http.DefaultClient, staticToken("test-token"), nil)
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t)
	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL+"/me", nil, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok"}`, string(body))
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client := newTestClient(t)
			_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestDo_RetriesServerErrorThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t)
	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, "")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_NoRetryOnUnauthorized(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t)
	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, "")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load(), "401 must not be retried")
}

func TestDo_RetryAfterHeader(t *testing.T) {
	var calls atomic.Int32

	var slept time.Duration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "throttled", http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, "")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 7*time.Second, slept)
}

func TestDo_TokenFailure(t *testing.T) {
	client := NewClient(http.DefaultClient, failingToken{}, nil)

	var sleeps int
	client.sleepFunc = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := client.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/x", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token error")
	assert.Zero(t, sleeps, "token failure should not be retried")
}

func TestDoJSON_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer srv.Close()

	client := newTestClient(t)
	body, err := client.DoJSON(context.Background(), http.MethodPost, srv.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"42"}`, string(body))
}
