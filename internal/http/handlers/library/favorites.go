// Package library реализует HTTP-обработчики пользовательской библиотеки:
// избранного, истории просмотра и профилей.
package library

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/library"
)

// FavoritesService сервис избранного.
type FavoritesService interface {
	Add(ctx context.Context, userID int64, kind, id string) (*models.Favorite, error)
	Remove(ctx context.Context, userID int64, contentID string) error
	Check(ctx context.Context, userID int64, kind, id string) (bool, error)
	List(ctx context.Context, userID int64) (*models.Library[models.Favorite], error)
}

// FavoriteRequest добавление в избранное.
type FavoriteRequest struct {
	ContentID   string `json:"content_id" validate:"required,numeric"`
	ContentType string `json:"content_type" validate:"required,oneof=movie tv"`
}

// Favorites обработчики группы /favorites.
type Favorites struct {
	log      *slog.Logger
	service  FavoritesService
	validate *validator.Validate
}

// NewFavorites создает обработчики избранного.
func NewFavorites(log *slog.Logger, service FavoritesService) *Favorites {
	return &Favorites{log: log, service: service, validate: request.NewValidator()}
}

func (h *Favorites) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	known := response.Known(err, library.ErrAlreadyFavorite, library.ErrNotFavorite, library.ErrUnknownKind)
	switch known {
	case library.ErrAlreadyFavorite:
		response.Fail(w, r, http.StatusConflict, known.Error())
	case library.ErrNotFavorite:
		response.Fail(w, r, http.StatusNotFound, known.Error())
	case library.ErrUnknownKind:
		response.Fail(w, r, http.StatusBadRequest, known.Error())
	default:
		log.Error("favorites operation failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

// List godoc
// @Summary Избранное
// @Description Фильмы и сериалы с карточками каталога.
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /favorites [get]
func (h *Favorites) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Favorites.List"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	lib, err := h.service.List(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, lib)
}

// Add godoc
// @Summary Добавление в избранное
// @Tags Favorites
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body FavoriteRequest true "Контент"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /favorites [post]
func (h *Favorites) Add(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Favorites.Add"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req FavoriteRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	fav, err := h.service.Add(r.Context(), caller.ID, req.ContentType, req.ContentID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusCreated, fav)
}

// Remove godoc
// @Summary Удаление из избранного
// @Description content_id в хранимом виде: 603 для фильма, tv_1399 для сериала.
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Param content_id path string true "ID контента"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /favorites/{content_id} [delete]
func (h *Favorites) Remove(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Favorites.Remove"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	contentID := chi.URLParam(r, "content_id")
	if err := h.service.Remove(r.Context(), caller.ID, contentID); err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "removed from favorites"})
}

// Check godoc
// @Summary Проверка избранного
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Param type path string true "movie или tv"
// @Param id path string true "TMDB id"
// @Success 200 {object} response.Response
// @Router /favorites/check/{type}/{id} [get]
func (h *Favorites) Check(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Favorites.Check"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	ok, err := h.service.Check(r.Context(), caller.ID, chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, map[string]bool{"is_favorite": ok})
}
