// Package subscriptions реализует HTTP-обработчики тарифов и подписок.
package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/subscription"
)

// Service описывает бизнес-логику подписок.
type Service interface {
	Plans(ctx context.Context) ([]models.Plan, error)
	CreatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id int64, upd models.PlanUpdate) (*models.Plan, error)
	DeletePlan(ctx context.Context, id int64) error
	Check(ctx context.Context, userID int64) (*models.Entitlement, error)
	Current(ctx context.Context, userID int64) (*models.SubscriptionDetails, error)
	Subscribe(ctx context.Context, userID, planID int64) (*models.Subscription, error)
	Cancel(ctx context.Context, userID int64) (int64, error)
	List(ctx context.Context, page models.Page) (*models.SubscriptionList, error)
}

// Auditor журнал аудита.
type Auditor interface {
	RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta)
}

// PlanRequest данные нового тарифа.
type PlanRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	Price          float64  `json:"price" validate:"gte=0"`
	DurationMonths int      `json:"duration_months" validate:"required,gt=0"`
	MaxAccessCodes int      `json:"max_access_codes" validate:"gte=0"`
	Description    string   `json:"description"`
	Features       []string `json:"features"`
}

// PlanUpdateRequest частичное обновление тарифа.
type PlanUpdateRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Price          *float64 `json:"price" validate:"omitempty,gte=0"`
	DurationMonths *int     `json:"duration_months" validate:"omitempty,gt=0"`
	MaxAccessCodes *int     `json:"max_access_codes" validate:"omitempty,gte=0"`
	Description    *string  `json:"description"`
	Features       []string `json:"features"`
}

// SubscribeRequest выбор тарифа.
type SubscribeRequest struct {
	PlanID int64 `json:"plan_id" validate:"required,gt=0"`
}

// CheckResponse статус доступа пользователя.
type CheckResponse struct {
	*models.Entitlement
	Status string `json:"status"`
}

// Handler обработчики группы /subscriptions.
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

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	known := response.Known(err,
		subscription.ErrPlanNotFound, subscription.ErrNoSubscription,
		subscription.ErrPlanExists, subscription.ErrPlanInUse)
	switch known {
	case subscription.ErrPlanNotFound, subscription.ErrNoSubscription:
		response.Fail(w, r, http.StatusNotFound, known.Error())
	case subscription.ErrPlanExists, subscription.ErrPlanInUse:
		response.Fail(w, r, http.StatusConflict, known.Error())
	default:
		log.Error("subscription operation failed", sl.Err(err))
		response.Fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

// Plans godoc
// @Summary Список тарифов
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} response.Response
// @Router /subscriptions/plans [get]
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.Plans"
	log := sl.ForRequest(h.log, op, r)

	plans, err := h.service.Plans(r.Context())
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, plans)
}

// CreatePlan godoc
// @Summary Создание тарифа
// @Tags Subscriptions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body PlanRequest true "Тариф"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /subscriptions/plans [post]
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.CreatePlan"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req PlanRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), models.Plan{
		Name:           req.Name,
		Price:          req.Price,
		DurationMonths: req.DurationMonths,
		MaxAccessCodes: req.MaxAccessCodes,
		Description:    req.Description,
		Features:       req.Features,
	})
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionCreatePlan,
		fmt.Sprintf("Created plan %s (id %d)", plan.Name, plan.ID), caller.Meta)
	response.OK(w, r, http.StatusCreated, plan)
}

// UpdatePlan godoc
// @Summary Изменение тарифа
// @Tags Subscriptions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID тарифа"
// @Param request body PlanUpdateRequest true "Изменяемые поля"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions/plans/{id} [put]
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.UpdatePlan"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req PlanUpdateRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	upd := models.PlanUpdate{
		Name:           req.Name,
		Price:          req.Price,
		DurationMonths: req.DurationMonths,
		MaxAccessCodes: req.MaxAccessCodes,
		Description:    req.Description,
		Features:       req.Features,
	}
	if upd.Name == nil && upd.Price == nil && upd.DurationMonths == nil &&
		upd.MaxAccessCodes == nil && upd.Description == nil && upd.Features == nil {
		response.Fail(w, r, http.StatusBadRequest, "no fields to update")
		return
	}

	plan, err := h.service.UpdatePlan(r.Context(), id, upd)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionUpdatePlan, fmt.Sprintf("Updated plan %d", id), caller.Meta)
	response.OK(w, r, http.StatusOK, plan)
}

// DeletePlan godoc
// @Summary Удаление тарифа
// @Description Тариф с подписками удалить нельзя.
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID тарифа"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /subscriptions/plans/{id} [delete]
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.DeletePlan"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeletePlan(r.Context(), id); err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionDeletePlan, fmt.Sprintf("Deleted plan %d", id), caller.Meta)
	response.OK(w, r, http.StatusOK, map[string]string{"message": "Subscription plan deleted successfully"})
}

// Check godoc
// @Summary Статус доступа
// @Description Подписка или погашенный код и квота на выпуск кодов.
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /subscriptions/check [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.Check"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	ent, err := h.service.Check(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, CheckResponse{Entitlement: ent, Status: ent.Status()})
}

// Me godoc
// @Summary Текущая подписка
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.Me"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	details, err := h.service.Current(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, details)
}

// Subscribe godoc
// @Summary Оформление подписки
// @Description Текущая подписка и коды по ней деактивируются.
// @Tags Subscriptions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SubscribeRequest true "Тариф"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.Subscribe"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	var req SubscribeRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	sub, err := h.service.Subscribe(r.Context(), caller.ID, req.PlanID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionSubscribe,
		fmt.Sprintf("Subscribed to plan %d until %s", sub.PlanID, sub.EndDate.Format("2006-01-02")), caller.Meta)
	log.Info("subscription created", slog.Int64("subscription_id", sub.ID), slog.Int64("plan_id", sub.PlanID))
	response.OK(w, r, http.StatusCreated, sub)
}

// Cancel godoc
// @Summary Отмена подписки
// @Description Выпущенные по подписке коды становятся неактивными.
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions/me [delete]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.Cancel"
	log := sl.ForRequest(h.log, op, r)
	caller, _ := middlewarectx.CallerFrom(r.Context())

	id, err := h.service.Cancel(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	h.audit.RecordFor(r.Context(), caller.ID, models.ActionCancelSubscription,
		fmt.Sprintf("Cancelled subscription %d", id), caller.Meta)
	response.OK(w, r, http.StatusOK, map[string]any{
		"message":         "Subscription cancelled successfully",
		"subscription_id": id,
	})
}

// All godoc
// @Summary Все подписки
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Param page query int false "Номер страницы"
// @Param per_page query int false "Размер страницы"
// @Success 200 {object} response.Response
// @Router /subscriptions/all [get]
func (h *Handler) All(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriptions.All"
	log := sl.ForRequest(h.log, op, r)

	list, err := h.service.List(r.Context(), request.Page(r))
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	response.OK(w, r, http.StatusOK, list)
}
