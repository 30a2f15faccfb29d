package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	assert.Equal(t, before+2, after)
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("locked"))
	RecordLogin("locked")
	assert.Equal(t, before+1, testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("locked")))

	before = testutil.ToFloat64(AccessCodeRedemptionsTotal.WithLabelValues("success"))
	RecordRedemption("success")
	assert.Equal(t, before+1, testutil.ToFloat64(AccessCodeRedemptionsTotal.WithLabelValues("success")))
}
