// Package users реализует HTTP-обработчики учетных записей: собственный
// профиль, просмотр, создание, изменение и удаление пользователей.
package users

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/account"
)

// Service описывает бизнес-логику учетных записей.
type Service interface {
	Me(ctx context.Context, caller models.Caller) (*account.Overview, error)
	Get(ctx context.Context, caller models.Caller, id int64) (*models.Account, error)
	List(ctx context.Context, search string, page models.Page) (*models.AccountList, error)
	Create(ctx context.Context, caller models.Caller, in account.NewAccount) (*models.Account, error)
	Update(ctx context.Context, caller models.Caller, id int64, upd models.AccountUpdate) (*models.Account, error)
	Delete(ctx context.Context, caller models.Caller, id int64) error
}

// CreateRequest данные новой учетной записи.
type CreateRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin superadmin"`
}

// UpdateRequest частичное обновление. Отсутствующие поля не меняются.
type UpdateRequest struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=user admin superadmin"`
	IsActive *bool   `json:"is_active"`
}

// Handler обработчики группы /users.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает обработчики.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: request.NewValidator(),
	}
}

// WriteError переводит ошибку сервиса учетных записей в HTTP-ответ.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	known := response.Known(err,
		account.ErrNotFound,
		account.ErrDuplicate, account.ErrUsernameTaken, account.ErrEmailTaken,
		account.ErrForbidden, account.ErrRoleChange, account.ErrLastSuperadmin, account.ErrDeleteSuperadmin,
		account.ErrInvalidRole, account.ErrNothingToUpdate)
	switch known {
	case account.ErrNotFound:
		response.Fail(w, r, http.StatusNotFound, known.Error())
	case account.ErrDuplicate, account.ErrUsernameTaken, account.ErrEmailTaken:
		response.Fail(w, r, http.StatusConflict, known.Error())
	case account.ErrForbidden, account.ErrRoleChange, account.ErrLastSuperadmin, account.ErrDeleteSuperadmin:
		response.Fail(w, r, http.StatusForbidden, known.Error())
	case account.ErrInvalidRole, account.ErrNothingToUpdate:
		response.Fail(w, r, http.StatusBadRequest, known.Error())
	default:
		log.Error("account operation failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

// Me godoc
// @Summary Собственная учетная запись
// @Description Учетная запись, статус доступа и счетчики избранного и истории.
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Me"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	overview, err := h.service.Me(r.Context(), caller)
	if err != nil {
		WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, overview)
}

// Get godoc
// @Summary Учетная запись по id
// @Description Доступно владельцу и администраторам.
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID пользователя"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /users/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Get"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, acc)
}

// List godoc
// @Summary Список пользователей
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param search query string false "Поиск по имени или почте"
// @Param page query int false "Номер страницы"
// @Param per_page query int false "Размер страницы"
// @Success 200 {object} response.Response
// @Router /users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.List"
	log := sl.ForRequest(h.log, op, r)

	search := strings.TrimSpace(r.URL.Query().Get("search"))
	list, err := h.service.List(r.Context(), search, request.Page(r))
	if err != nil {
		WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, list)
}

// Create godoc
// @Summary Создание пользователя с ролью
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateRequest true "Новый пользователь"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /users [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Create"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req CreateRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	acc, err := h.service.Create(r.Context(), caller, account.NewAccount{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		WriteError(w, r, log, err)
		return
	}
	log.Info("user created", slog.Int64("user_id", acc.ID), slog.String("role", string(acc.Role)))
	response.OK(w, r, http.StatusCreated, acc)
}

// Update godoc
// @Summary Изменение пользователя
// @Description Владелец меняет имя и почту, администратор также активность, роль меняет только суперадмин.
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID пользователя"
// @Param request body UpdateRequest true "Изменяемые поля"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /users/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Update"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req UpdateRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	upd := models.AccountUpdate{
		Username: req.Username,
		Email:    req.Email,
		IsActive: req.IsActive,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}

	acc, err := h.service.Update(r.Context(), caller, id, upd)
	if err != nil {
		WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, acc)
}

// Delete godoc
// @Summary Удаление пользователя
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID пользователя"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /users/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Delete"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		WriteError(w, r, log, err)
		return
	}
	log.Info("user deleted", slog.Int64("user_id", id))
	response.OK(w, r, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
