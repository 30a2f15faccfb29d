// Package auth реализует HTTP-обработчики регистрации, входа и управления токенами.
//
// Сообщения об ошибках входа, сброса пароля и разбора токена намеренно
// одинаковы, чтобы по ответу нельзя было узнать, существует ли учетная запись.
package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	authservice "github.com/magabrotheeeer/vortextv/internal/services/auth"
	"github.com/magabrotheeeer/vortextv/internal/services/throttle"
	"github.com/magabrotheeeer/vortextv/internal/services/token"
)

const forgotPasswordMessage = "If your email is registered, you will receive a password reset link"

// Service описывает бизнес-логику аутентификации.
type Service interface {
	Register(ctx context.Context, in authservice.Registration, meta models.RequestMeta) (*authservice.Session, error)
	Login(ctx context.Context, username, pass string, meta models.RequestMeta) (*authservice.Session, error)
	Refresh(ctx context.Context, refreshToken string, meta models.RequestMeta) (*authservice.Session, error)
	Logout(ctx context.Context, caller models.Caller, accessToken string) error
	RevokeToken(ctx context.Context, caller models.Caller, signed string) error
	ForgotPassword(ctx context.Context, email string, meta models.RequestMeta)
	ResetPassword(ctx context.Context, rawToken, newPassword string, meta models.RequestMeta) error
}

// RegisterRequest данные регистрации.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,username"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password,omitempty" validate:"omitempty,eqfield=Password"`
}

// LoginRequest учетные данные для входа.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RevokeRequest токен для отзыва. Пустой токен означает текущий.
type RevokeRequest struct {
	Token string `json:"token"`
}

// ForgotRequest почта для сброса пароля.
type ForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest новый пароль по токену из письма.
type ResetRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// Handler обработчики группы /auth.
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

// Register godoc
// @Summary Регистрация пользователя
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Данные пользователя"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Register"
	log := sl.ForRequest(h.log, op, r)

	var req RegisterRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), authservice.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, request.Meta(r))
	switch {
	case errors.Is(err, authservice.ErrUsernameTaken), errors.Is(err, authservice.ErrEmailTaken):
		response.Fail(w, r, http.StatusConflict,
			response.Known(err, authservice.ErrUsernameTaken, authservice.ErrEmailTaken).Error())
		return
	case err != nil:
		log.Error("failed to register user", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info("user registered", slog.Int64("user_id", session.User.UserID))
	response.OK(w, r, http.StatusCreated, session)
}

// Login godoc
// @Summary Вход по имени и паролю
// @Description После пяти неудачных попыток учетная запись блокируется на 15 минут.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учетные данные"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.LockedResponse
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Login"
	log := sl.ForRequest(h.log, op, r)

	var req LoginRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password, request.Meta(r))
	if err != nil {
		if locked, ok := throttle.IsLocked(err); ok {
			log.Warn("login to locked account", slog.String("username", req.Username))
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Locked(locked.Until, locked.Minutes()))
			return
		}
		if errors.Is(err, authservice.ErrInvalidCredentials) {
			response.Fail(w, r, http.StatusUnauthorized, authservice.ErrInvalidCredentials.Error())
			return
		}
		log.Error("login failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info("login success", slog.String("username", req.Username))
	response.OK(w, r, http.StatusOK, session)
}

// Refresh godoc
// @Summary Обновление пары токенов
// @Description Refresh-токен передается в заголовке Authorization.
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Refresh"
	log := sl.ForRequest(h.log, op, r)

	raw, ok := request.BearerToken(r)
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, middlewarectx.ReasonMissing)
		return
	}

	session, err := h.service.Refresh(r.Context(), raw, request.Meta(r))
	if err != nil {
		log.Info("refresh rejected", sl.Err(err))
		switch {
		case errors.Is(err, token.ErrExpired):
			response.Fail(w, r, http.StatusUnauthorized, middlewarectx.ReasonExpired)
		case errors.Is(err, token.ErrRevoked):
			response.Fail(w, r, http.StatusUnauthorized, middlewarectx.ReasonRevoked)
		case errors.Is(err, token.ErrInvalid):
			response.Fail(w, r, http.StatusUnauthorized, middlewarectx.ReasonInvalid)
		case errors.Is(err, authservice.ErrUserInactive):
			response.Fail(w, r, http.StatusUnauthorized, middlewarectx.ReasonInactive)
		default:
			log.Error("failed to refresh tokens", sl.Err(err))
			response.Fail(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	response.OK(w, r, http.StatusOK, session)
}

// Logout godoc
// @Summary Выход
// @Description Отзывает текущий access-токен.
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Logout"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	err := h.service.Logout(r.Context(), caller, middlewarectx.TokenFrom(r.Context()))
	if err != nil && !errors.Is(err, token.ErrAlreadyInvalid) {
		log.Error("failed to revoke token", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// RevokeToken godoc
// @Summary Отзыв токена
// @Description Без тела отзывается текущий токен. Чужие токены отзывают только администраторы.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body RevokeRequest false "Токен"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /auth/revoke-token [post]
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.RevokeToken"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req RevokeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "failed to decode request")
		return
	}
	if req.Token == "" {
		req.Token = middlewarectx.TokenFrom(r.Context())
	}

	err := h.service.RevokeToken(r.Context(), caller, req.Token)
	switch {
	case errors.Is(err, authservice.ErrRevokeForbidden):
		response.Fail(w, r, http.StatusForbidden, authservice.ErrRevokeForbidden.Error())
		return
	case errors.Is(err, token.ErrAlreadyInvalid):
		response.Fail(w, r, http.StatusBadRequest, "token is already invalid or expired")
		return
	case err != nil:
		log.Error("failed to revoke token", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "Token successfully revoked"})
}

// ForgotPassword godoc
// @Summary Запрос ссылки для сброса пароля
// @Description Ответ одинаков независимо от того, зарегистрирована ли почта.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ForgotRequest true "Почта"
// @Success 200 {object} response.Response
// @Router /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.ForgotPassword"
	log := sl.ForRequest(h.log, op, r)

	var req ForgotRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	h.service.ForgotPassword(r.Context(), req.Email, request.Meta(r))
	response.OK(w, r, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

// ResetPassword godoc
// @Summary Установка нового пароля по токену из письма
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ResetRequest true "Токен и новый пароль"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.ResetPassword"
	log := sl.ForRequest(h.log, op, r)

	var req ResetRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, request.Meta(r))
	switch {
	case errors.Is(err, authservice.ErrInvalidResetToken):
		response.Fail(w, r, http.StatusBadRequest, authservice.ErrInvalidResetToken.Error())
		return
	case err != nil:
		log.Error("failed to reset password", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	response.OK(w, r, http.StatusOK, map[string]string{"message": "Password has been reset successfully"})
}
