// Package health отвечает на проверки живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
)

// checkTimeout ограничивает одну проверку зависимости.
const checkTimeout = 2 * time.Second

// Check проверка одной зависимости.
type Check func(ctx context.Context) error

// Handler проверяет зависимости сервиса.
type Handler struct {
	log    *slog.Logger
	checks map[string]Check
}

// New создает обработчик. checks может быть пустым.
func New(log *slog.Logger, checks map[string]Check) *Handler {
	return &Handler{
		log:    log,
		checks: checks,
	}
}

// ServeHTTP godoc
// @Summary Проверка состояния
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	components := make(map[string]string, len(h.checks))
	status, code := "ok", http.StatusOK
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			h.log.Warn("dependency check failed", slog.String("op", op), slog.String("component", name), sl.Err(err))
			components[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	response.OK(w, r, code, map[string]any{
		"status":     status,
		"components": components,
	})
}
