package library

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/library"
)

// HistoryService сервис истории просмотра.
type HistoryService interface {
	Record(ctx context.Context, userID int64, p library.Progress) (*models.HistoryEntry, error)
	List(ctx context.Context, userID int64) (*models.Library[models.HistoryEntry], error)
	Delete(ctx context.Context, userID, id int64) error
	Clear(ctx context.Context, userID int64) (int64, error)
}

// ProgressRequest прогресс просмотра. content_id в хранимом виде.
type ProgressRequest struct {
	ContentID       string  `json:"content_id" validate:"required"`
	WatchDuration   int     `json:"watch_duration"`
	WatchPercentage float64 `json:"watch_percentage"`
}

// History обработчики группы /history.
type History struct {
	log      *slog.Logger
	service  HistoryService
	validate *validator.Validate
}

// NewHistory создает обработчики истории.
func NewHistory(log *slog.Logger, service HistoryService) *History {
	return &History{log: log, service: service, validate: request.NewValidator()}
}

func (h *History) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch known := response.Known(err, library.ErrHistoryNotFound, library.ErrInvalidProgress); known {
	case library.ErrHistoryNotFound:
		response.Fail(w, r, http.StatusNotFound, known.Error())
	case library.ErrInvalidProgress:
		response.Fail(w, r, http.StatusBadRequest, known.Error())
	default:
		log.Error("history operation failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

// List godoc
// @Summary История просмотра
// @Tags History
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /history [get]
func (h *History) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.History.List"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	lib, err := h.service.List(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, lib)
}

// Record godoc
// @Summary Сохранение прогресса
// @Tags History
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ProgressRequest true "Прогресс"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /history [post]
func (h *History) Record(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.History.Record"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req ProgressRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	entry, err := h.service.Record(r.Context(), caller.ID, library.Progress{
		ContentID:       req.ContentID,
		WatchDuration:   req.WatchDuration,
		WatchPercentage: req.WatchPercentage,
	})
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, entry)
}

// Delete godoc
// @Summary Удаление записи истории
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID записи"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /history/{id} [delete]
func (h *History) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.History.Delete"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), caller.ID, id); err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "history item deleted"})
}

// Clear godoc
// @Summary Очистка истории
// @Tags History
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /history/clear [delete]
func (h *History) Clear(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.History.Clear"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	n, err := h.service.Clear(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	log.Info("history cleared", slog.Int64("deleted", n))
	response.OK(w, r, http.StatusOK, map[string]any{"message": "history cleared", "deleted": n})
}
