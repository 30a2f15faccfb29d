// Package admin реализует HTTP-обработчики панели администратора.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/handlers/users"
	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

// Accounts управление учетными записями.
type Accounts interface {
	List(ctx context.Context, search string, page models.Page) (*models.AccountList, error)
	ChangeRole(ctx context.Context, caller models.Caller, id int64, role models.Role) (*models.Account, error)
	SetPassword(ctx context.Context, caller models.Caller, id int64, newPassword string) error
	Stats(ctx context.Context) (*models.Stats, error)
}

// AuditLog журнал аудита.
type AuditLog interface {
	List(ctx context.Context, filter models.AuditFilter) (*models.AuditList, error)
}

// RoleRequest новая роль.
type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin superadmin"`
}

// PasswordRequest новый пароль.
type PasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Handler обработчики группы /admin.
type Handler struct {
	log      *slog.Logger
	accounts Accounts
	audit    AuditLog
	validate *validator.Validate
}

// New создает обработчики.
func New(log *slog.Logger, accounts Accounts, audit AuditLog) *Handler {
	return &Handler{
		log:      log,
		accounts: accounts,
		audit:    audit,
		validate: request.NewValidator(),
	}
}

// Stats godoc
// @Summary Статистика
// @Description Пользователи по ролям, активность, подписки и коды доступа.
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /admin/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.Stats"
	log := sl.ForRequest(h.log, op, r)

	st, err := h.accounts.Stats(r.Context())
	if err != nil {
		users.WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, st)
}

// Users godoc
// @Summary Список пользователей
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param search query string false "Поиск по имени или email"
// @Param page query int false "Страница"
// @Param per_page query int false "Размер страницы"
// @Success 200 {object} response.Response
// @Router /admin/users [get]
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.Users"
	log := sl.ForRequest(h.log, op, r)

	list, err := h.accounts.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")), request.Page(r))
	if err != nil {
		users.WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, list)
}

// ChangeRole godoc
// @Summary Смена роли
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID пользователя"
// @Param request body RoleRequest true "Роль"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/users/{id}/role [put]
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.ChangeRole"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req RoleRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	acc, err := h.accounts.ChangeRole(r.Context(), caller, id, models.Role(req.Role))
	if err != nil {
		users.WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, acc)
}

// SetPassword godoc
// @Summary Сброс пароля пользователя
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID пользователя"
// @Param request body PasswordRequest true "Пароль"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{id}/password [put]
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.SetPassword"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req PasswordRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if err := h.accounts.SetPassword(r.Context(), caller, id, req.NewPassword); err != nil {
		users.WriteError(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

// AuditLogs godoc
// @Summary Журнал аудита
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param action query string false "Действие"
// @Param user_id query int false "ID пользователя"
// @Param page query int false "Страница"
// @Param per_page query int false "Размер страницы"
// @Success 200 {object} response.Response
// @Router /admin/audit-logs [get]
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.AuditLogs"
	log := sl.ForRequest(h.log, op, r)

	filter := models.AuditFilter{
		Action: strings.TrimSpace(r.URL.Query().Get("action")),
		Page:   request.Page(r),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Fail(w, r, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = &id
	}

	list, err := h.audit.List(r.Context(), filter)
	if err != nil {
		log.Error("failed to list audit logs", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	response.OK(w, r, http.StatusOK, list)
}
