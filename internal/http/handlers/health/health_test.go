package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func serve(t *testing.T, h http.Handler) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr.Code, resp["data"].(map[string]any)
}

func TestHandler_AllUp(t *testing.T) {
	ok := func(context.Context) error { return nil }
	code, data := serve(t, New(newNoopLogger(), map[string]Check{"postgres": ok, "redis": ok}))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "ok", data["components"].(map[string]any)["redis"])
}

func TestHandler_Degraded(t *testing.T) {
	code, data := serve(t, New(newNoopLogger(), map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return assert.AnError },
	}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", data["status"])
	components := data["components"].(map[string]any)
	assert.Equal(t, "down", components["redis"])
	assert.Equal(t, "ok", components["postgres"])
}

func TestHandler_NoChecks(t *testing.T) {
	code, data := serve(t, New(newNoopLogger(), nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", data["status"])
}
