package tmdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/config"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(newNoopLogger(), config.TMDB{
		APIKey:  "secret-key",
		BaseURL: srv.URL + "/3/",
		Timeout: 2 * time.Second,
	})
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/movie/popular", r.URL.Path)
		assert.Equal(t, "secret-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":2,"results":[]}`))
	}))
	defer srv.Close()

	body, err := newTestClient(srv).Get(context.Background(), "/movie/popular", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2,"results":[]}`, string(body))
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key: You must be granted a valid key."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Get(context.Background(), "/movie/popular", nil)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid API key: You must be granted a valid key.", apiErr.Message)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestClient_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	_, err := c.Get(context.Background(), "/movie/popular", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	for range 10 {
		_, err := c.Get(context.Background(), "/movie/popular", nil)
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), "/movie/popular", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 10, calls.Load())
}

func TestClient_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_message":"The resource you requested could not be found."}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	for range 15 {
		_, err := c.Get(context.Background(), "/movie/0", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
}

func TestClient_CanceledRequestsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	for range 15 {
		_, err := c.Get(canceled, "/movie/popular", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotContains(t, err.Error(), "secret-key")
	}

	body, err := c.Get(context.Background(), "/movie/popular", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(body))
}
