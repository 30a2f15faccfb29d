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

// ProfilesService сервис профилей.
type ProfilesService interface {
	List(ctx context.Context, userID int64) ([]models.Profile, error)
	Get(ctx context.Context, userID, id int64) (*models.Profile, error)
	Create(ctx context.Context, userID int64, name, avatar string, isKids bool) (*models.Profile, error)
	Update(ctx context.Context, userID, id int64, upd models.ProfileUpdate) (*models.Profile, error)
	Delete(ctx context.Context, userID, id int64) error
}

// ProfileRequest новый профиль.
type ProfileRequest struct {
	Name   string `json:"name" validate:"required,max=50"`
	Avatar string `json:"avatar" validate:"max=255"`
	IsKids bool   `json:"is_kids"`
}

// ProfileUpdateRequest частичное обновление профиля.
type ProfileUpdateRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=50"`
	Avatar *string `json:"avatar" validate:"omitempty,max=255"`
	IsKids *bool   `json:"is_kids"`
}

// Profiles обработчики группы /profiles.
type Profiles struct {
	log      *slog.Logger
	service  ProfilesService
	validate *validator.Validate
}

// NewProfiles создает обработчики профилей.
func NewProfiles(log *slog.Logger, service ProfilesService) *Profiles {
	return &Profiles{log: log, service: service, validate: request.NewValidator()}
}

func (h *Profiles) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	known := response.Known(err, library.ErrProfileNotFound, library.ErrProfileLimit,
		library.ErrProfileNameTaken, library.ErrNothingToUpdate, library.ErrProfileNameEmpty)
	switch known {
	case library.ErrProfileNotFound:
		response.Fail(w, r, http.StatusNotFound, known.Error())
	case library.ErrProfileLimit:
		response.Fail(w, r, http.StatusForbidden, known.Error())
	case library.ErrProfileNameTaken:
		response.Fail(w, r, http.StatusConflict, known.Error())
	case library.ErrNothingToUpdate, library.ErrProfileNameEmpty:
		response.Fail(w, r, http.StatusBadRequest, known.Error())
	default:
		log.Error("profile operation failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

// List godoc
// @Summary Профили учетной записи
// @Tags Profiles
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /profiles [get]
func (h *Profiles) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Profiles.List"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	profiles, err := h.service.List(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, profiles)
}

// Get godoc
// @Summary Профиль
// @Tags Profiles
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID профиля"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /profiles/{id} [get]
func (h *Profiles) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Profiles.Get"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.service.Get(r.Context(), caller.ID, id)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, p)
}

// Create godoc
// @Summary Создание профиля
// @Description Не более пяти профилей на учетную запись.
// @Tags Profiles
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ProfileRequest true "Профиль"
// @Success 201 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /profiles [post]
func (h *Profiles) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Profiles.Create"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req ProfileRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), caller.ID, req.Name, req.Avatar, req.IsKids)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusCreated, p)
}

// Update godoc
// @Summary Изменение профиля
// @Tags Profiles
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID профиля"
// @Param request body ProfileUpdateRequest true "Изменяемые поля"
// @Success 200 {object} response.Response
// @Router /profiles/{id} [put]
func (h *Profiles) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Profiles.Update"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req ProfileUpdateRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Update(r.Context(), caller.ID, id, models.ProfileUpdate{
		Name:   req.Name,
		Avatar: req.Avatar,
		IsKids: req.IsKids,
	})
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, p)
}

// Delete godoc
// @Summary Удаление профиля
// @Tags Profiles
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID профиля"
// @Success 200 {object} response.Response
// @Router /profiles/{id} [delete]
func (h *Profiles) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.library.Profiles.Delete"
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
	response.OK(w, r, http.StatusOK, map[string]string{"message": "profile deleted"})
}
