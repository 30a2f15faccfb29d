// Package catalog реализует HTTP-обработчики каталога фильмов и сериалов.
// Каждый обработчик привязан к типу контента при регистрации маршрута.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/services/catalog"
	"github.com/magabrotheeeer/vortextv/internal/tmdb"
)

// Service каталог контента.
type Service interface {
	Popular(ctx context.Context, kind string, page int) (json.RawMessage, error)
	TopRated(ctx context.Context, kind string, page int) (json.RawMessage, error)
	Upcoming(ctx context.Context, page int) (json.RawMessage, error)
	Trending(ctx context.Context, kind, window string) (json.RawMessage, error)
	Genres(ctx context.Context, kind string) (json.RawMessage, error)
	Discover(ctx context.Context, kind string, filter url.Values, page int) (json.RawMessage, error)
	Search(ctx context.Context, scope, query string, page int) (json.RawMessage, error)
	Details(ctx context.Context, userID int64, kind, id string) (map[string]any, error)
}

// Handler обработчики групп /movies, /tv и /search.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает обработчики.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var apiErr *tmdb.Error
	switch {
	case errors.Is(err, catalog.ErrUnknownKind),
		errors.Is(err, catalog.ErrQueryRequired),
		errors.Is(err, catalog.ErrInvalidID):
		response.Fail(w, r, http.StatusBadRequest,
			response.Known(err, catalog.ErrUnknownKind, catalog.ErrQueryRequired, catalog.ErrInvalidID).Error())
	case errors.Is(err, tmdb.ErrUnavailable):
		log.Warn("metadata provider unavailable")
		response.Fail(w, r, http.StatusServiceUnavailable, tmdb.ErrUnavailable.Error())
	case errors.As(err, &apiErr):
		log.Error("metadata provider request failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "failed to fetch data from TMDB: "+apiErr.Error())
	default:
		log.Error("catalog request failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, op string, data any, err error) {
	if err != nil {
		h.fail(w, r, sl.ForRequest(h.log, op, r), err)
		return
	}
	response.OK(w, r, http.StatusOK, data)
}

// Popular godoc
// @Summary Популярное
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param page query int false "Страница"
// @Success 200 {object} response.Response
// @Router /movies/popular [get]
// @Router /tv/popular [get]
func (h *Handler) Popular(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.service.Popular(r.Context(), kind, request.Int(r, "page", 1))
		h.write(w, r, "handlers.catalog.Popular", data, err)
	}
}

// TopRated godoc
// @Summary Лучшие по рейтингу
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param page query int false "Страница"
// @Success 200 {object} response.Response
// @Router /movies/top-rated [get]
// @Router /tv/top-rated [get]
func (h *Handler) TopRated(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.service.TopRated(r.Context(), kind, request.Int(r, "page", 1))
		h.write(w, r, "handlers.catalog.TopRated", data, err)
	}
}

// Upcoming godoc
// @Summary Скоро в кино
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param page query int false "Страница"
// @Success 200 {object} response.Response
// @Router /movies/upcoming [get]
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Upcoming(r.Context(), request.Int(r, "page", 1))
	h.write(w, r, "handlers.catalog.Upcoming", data, err)
}

// Trending godoc
// @Summary В тренде
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param time_window query string false "day или week"
// @Success 200 {object} response.Response
// @Router /movies/trending [get]
// @Router /tv/trending [get]
func (h *Handler) Trending(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.service.Trending(r.Context(), kind, r.URL.Query().Get("time_window"))
		h.write(w, r, "handlers.catalog.Trending", data, err)
	}
}

// Genres godoc
// @Summary Жанры
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /movies/genres [get]
// @Router /tv/genres [get]
func (h *Handler) Genres(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.service.Genres(r.Context(), kind)
		h.write(w, r, "handlers.catalog.Genres", data, err)
	}
}

// Discover godoc
// @Summary Подборка по фильтрам
// @Description Поддерживаются sort_by, with_genres, год выхода, vote_average.gte и with_original_language.
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param page query int false "Страница"
// @Success 200 {object} response.Response
// @Router /movies/discover [get]
// @Router /tv/discover [get]
func (h *Handler) Discover(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.service.Discover(r.Context(), kind, r.URL.Query(), request.Int(r, "page", 1))
		h.write(w, r, "handlers.catalog.Discover", data, err)
	}
}

// Details godoc
// @Summary Карточка фильма или сериала
// @Description Требует активную подписку или код доступа. Открытие попадает в историю просмотра.
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param id path int true "TMDB id"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.EntitlementResponse
// @Router /movies/{id} [get]
// @Router /tv/{id} [get]
func (h *Handler) Details(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middlewarectx.CallerFrom(r.Context())
		data, err := h.service.Details(r.Context(), caller.ID, kind, chi.URLParam(r, "id"))
		h.write(w, r, "handlers.catalog.Details", data, err)
	}
}

// Search godoc
// @Summary Поиск
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Param scope path string true "multi, movies или tv-shows"
// @Param q query string true "Запрос"
// @Param page query int false "Страница"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /search/{scope} [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = r.URL.Query().Get("query")
	}
	data, err := h.service.Search(r.Context(), chi.URLParam(r, "scope"), strings.TrimSpace(q), request.Int(r, "page", 1))
	h.write(w, r, "handlers.catalog.Search", data, err)
}
