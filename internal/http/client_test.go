package http

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

	"github.com/botte/botte-service/internal/http/ratelimit"
)

func fastConfig() ratelimit.Config {
	return ratelimit.Config{MaxRetries: 2, InitialBackoffMs: 1, MaxBackoffMs: 5}
}

func TestDoRetriesAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"text":"hi"}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(), time.Second)
	got, err := c.PostJSON(context.Background(), srv.URL, map[string]string{"text": "hi"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(), time.Second)
	_, err := c.GetBytes(context.Background(), srv.URL)
	require.Error(t, err)

	var retryErr *ratelimit.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, http.StatusBadRequest, retryErr.LastStatus)
	assert.Equal(t, 1, retryErr.Attempts)
	assert.Contains(t, string(retryErr.Body), "chat not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(fastConfig(), time.Second)
	_, err := c.GetBytes(context.Background(), srv.URL)

	var retryErr *ratelimit.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, retryErr.LastStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	c := NewClient(fastConfig(), time.Second)
	start := time.Now()
	_, err := c.GetBytes(ctx, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
