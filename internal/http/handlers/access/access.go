// Package access реализует HTTP-обработчики кодов доступа: выпуск,
// погашение, список выпущенных кодов и отзыв.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/accesscode"
)

// Service описывает движок кодов доступа.
type Service interface {
	Issue(ctx context.Context, userID int64) (*accesscode.Issued, error)
	Redeem(ctx context.Context, userID int64, raw string) (*accesscode.Redeemed, error)
	ListIssued(ctx context.Context, userID int64) ([]models.AccessCode, error)
	Revoke(ctx context.Context, userID, codeID int64) (*models.AccessCode, error)
}

// Auditor журнал аудита.
type Auditor interface {
	RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta)
}

// RedeemRequest код для погашения, с дефисами или без.
type RedeemRequest struct {
	Code string `json:"code" validate:"required"`
}

// Handler обработчики группы /access.
type Handler struct {
	log      *slog.Logger
	service  Service
	audit    Auditor
	validate *validator.Validate
}

// New создает обработчики.
func New(log *slog.Logger, service Service, audit Auditor) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		audit:    audit,
		validate: request.NewValidator(),
	}
}

// status HTTP-статус и метка метрики для ошибки движка кодов.
func status(err error) (int, string) {
	var quota *accesscode.QuotaError
	switch {
	case errors.Is(err, accesscode.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, accesscode.ErrAlreadyUsed):
		return http.StatusConflict, "already_used"
	case errors.Is(err, accesscode.ErrOwnCode):
		return http.StatusConflict, "own_code"
	case errors.Is(err, accesscode.ErrAlreadySubscribed), errors.Is(err, accesscode.ErrAlreadyHasCode):
		return http.StatusConflict, "already_entitled"
	case errors.Is(err, accesscode.ErrInactive):
		return http.StatusBadRequest, "inactive"
	case errors.Is(err, accesscode.ErrExpired):
		return http.StatusBadRequest, "expired"
	case errors.Is(err, accesscode.ErrNoSubscription), errors.As(err, &quota):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, accesscode.ErrCodeNotOwned):
		return http.StatusNotFound, "not_owned"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code, _ := status(err)
	if code == http.StatusInternalServerError {
		log.Error("access code operation failed", sl.Err(err))
		response.Fail(w, r, code, "internal error")
		return
	}
	var quota *accesscode.QuotaError
	if errors.As(err, &quota) {
		response.Fail(w, r, code, quota.Error())
		return
	}
	response.Fail(w, r, code, response.Known(err,
		accesscode.ErrNotFound, accesscode.ErrAlreadyUsed, accesscode.ErrOwnCode,
		accesscode.ErrAlreadySubscribed, accesscode.ErrAlreadyHasCode,
		accesscode.ErrInactive, accesscode.ErrExpired,
		accesscode.ErrNoSubscription, accesscode.ErrCodeNotOwned).Error())
}

// Generate godoc
// @Summary Выпуск кода доступа
// @Description Требует активную подписку. Число кодов ограничено тарифом.
// @Tags Access
// @Security BearerAuth
// @Produce json
// @Success 201 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Router /access/generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.Generate"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	issued, err := h.service.Issue(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	metrics.AccessCodesIssuedTotal.Inc()
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionGenerateAccessCode,
		fmt.Sprintf("Generated access code %d (%d/%d)", issued.Code.ID, issued.GeneratedCodes, issued.MaxAllowedCodes),
		caller.Meta)
	log.Info("access code issued", slog.Int64("code_id", issued.Code.ID))
	response.OK(w, r, http.StatusCreated, issued)
}

// Redeem godoc
// @Summary Погашение кода доступа
// @Description Код дает доступ до конца подписки владельца. Свой код погасить нельзя.
// @Tags Access
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body RedeemRequest true "Код"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /access/redeem [post]
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.Redeem"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req RedeemRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	redeemed, err := h.service.Redeem(r.Context(), caller.ID, req.Code)
	if err != nil {
		_, outcome := status(err)
		metrics.RecordRedemption(outcome)
		h.fail(w, r, log, err)
		return
	}
	metrics.RecordRedemption("success")
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionRedeemAccessCode,
		fmt.Sprintf("Redeemed access code %d from user %d", redeemed.CodeID, redeemed.OwnerID), caller.Meta)
	response.OK(w, r, http.StatusOK, redeemed)
}

// Me godoc
// @Summary Выпущенные коды
// @Description Коды пользователя со статусом Available, Used, Inactive или Expired.
// @Tags Access
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /access/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.Me"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	codes, err := h.service.ListIssued(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, codes)
}

// Revoke godoc
// @Summary Отзыв кода доступа
// @Tags Access
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID кода"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /access/revoke/{id} [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.Revoke"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	code, err := h.service.Revoke(r.Context(), caller.ID, id)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionRevokeAccessCode,
		fmt.Sprintf("Revoked access code %d", id), caller.Meta)
	response.OK(w, r, http.StatusOK, code)
}
