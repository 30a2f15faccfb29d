// Package metrics содержит метрики Prometheus сервиса и HTTP middleware для них.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vortextv"

var (
	// HTTPRequestsTotal запросы по методу, шаблону маршрута и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration длительность обработки запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// LoginAttemptsTotal попытки входа по исходу: success, failure, locked.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TokenRevocationsTotal отозванные токены.
	TokenRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_revocations_total",
			Help:      "Total number of revoked tokens",
		},
	)

	// AuthDeniedTotal отказы цепочки проверок по причине.
	AuthDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_denied_total",
			Help:      "Total number of requests rejected by route guards",
		},
		[]string{"guard"},
	)

	// AccessCodeRedemptionsTotal попытки погашения кодов по исходу.
	AccessCodeRedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_code_redemptions_total",
			Help:      "Total number of access code redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AccessCodesIssuedTotal выпущенные коды.
	AccessCodesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_codes_issued_total",
			Help:      "Total number of issued access codes",
		},
	)

	// UpstreamRequestsTotal запросы к TMDB по исходу: ok, error, cache_hit, breaker_open.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of metadata provider requests by outcome",
		},
		[]string{"outcome"},
	)

	// CircuitBreakerState состояние автомата: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// RecordLogin учитывает исход попытки входа.
func RecordLogin(outcome string) {
	LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRedemption учитывает исход погашения кода.
func RecordRedemption(outcome string) {
	AccessCodeRedemptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstream учитывает исход обращения к TMDB.
func RecordUpstream(outcome string) {
	UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordDenied учитывает отказ проверки guard.
func RecordDenied(guard string) {
	AuthDeniedTotal.WithLabelValues(guard).Inc()
}

// Middleware собирает метрики запросов. Маршрут берется из шаблона chi,
// чтобы идентификаторы в пути не раздували кардинальность.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
