// Package subscription содержит бизнес-логику тарифов и подписок.
//
// Список тарифов читается часто и меняется редко, поэтому кешируется
// в redis и сбрасывается при любой правке тарифа.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

const plansCacheKey = "plans:all"

// daysPerMonth длина оплаченного месяца.
const daysPerMonth = 30

var (
	ErrPlanNotFound   = errors.New("subscription plan not found")
	ErrPlanExists     = errors.New("subscription plan with this name already exists")
	ErrPlanInUse      = errors.New("cannot delete plan with active subscriptions")
	ErrNoSubscription = errors.New("no active subscription found")
)

// Repository хранилище тарифов и подписок.
type Repository interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	PlanByID(ctx context.Context, id int64) (*models.Plan, error)
	CreatePlan(ctx context.Context, plan models.Plan) (int64, error)
	UpdatePlan(ctx context.Context, id int64, upd models.PlanUpdate) (*models.Plan, error)
	DeletePlan(ctx context.Context, id int64) error
	CountActiveByPlan(ctx context.Context, planID int64, now time.Time) (int, error)
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	// Subscribe деактивирует прежние подписки пользователя вместе с их кодами
	// и создает новую в одной транзакции.
	Subscribe(ctx context.Context, sub models.Subscription) (int64, error)
	// CancelSubscription деактивирует активную подписку и все ее коды.
	CancelSubscription(ctx context.Context, userID int64, now time.Time) (int64, error)
	CodesBySubscription(ctx context.Context, subscriptionID int64) ([]models.AccessCode, error)
	ListSubscriptions(ctx context.Context, page models.Page) ([]models.Subscription, int, error)
}

// Cache кеш для списка тарифов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Resolver источник права доступа для проверки статуса.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (*models.Entitlement, error)
}

// Service сервис подписок.
type Service struct {
	repo     Repository
	cache    Cache
	resolver Resolver
	log      *slog.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// New создает сервис подписок.
func New(repo Repository, cache Cache, resolver Resolver, log *slog.Logger, cacheTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		resolver: resolver,
		log:      log,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Plans возвращает тарифы, по возможности из кеша.
func (s *Service) Plans(ctx context.Context) ([]models.Plan, error) {
	const op = "subscription.Plans"
	var plans []models.Plan
	found, err := s.cache.Get(ctx, plansCacheKey, &plans)
	if err != nil {
		s.log.Warn("failed to read plans from cache", slog.String("op", op), sl.Err(err))
	}
	if found {
		return plans, nil
	}

	plans, err = s.repo.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	if err := s.cache.Set(ctx, plansCacheKey, plans, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache plans", slog.String("op", op), sl.Err(err))
	}
	return plans, nil
}

// CreatePlan добавляет тариф.
func (s *Service) CreatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error) {
	const op = "subscription.CreatePlan"
	id, err := s.repo.CreatePlan(ctx, plan)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, ErrPlanExists
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlans(ctx)
	plan.ID = id
	return &plan, nil
}

// UpdatePlan частично обновляет тариф.
func (s *Service) UpdatePlan(ctx context.Context, id int64, upd models.PlanUpdate) (*models.Plan, error) {
	const op = "subscription.UpdatePlan"
	plan, err := s.repo.UpdatePlan(ctx, id, upd)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrPlanNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return nil, ErrPlanExists
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlans(ctx)
	return plan, nil
}

// DeletePlan удаляет тариф, если на нем нет активных подписок.
func (s *Service) DeletePlan(ctx context.Context, id int64) error {
	const op = "subscription.DeletePlan"
	if _, err := s.repo.PlanByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrPlanNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	active, err := s.repo.CountActiveByPlan(ctx, id, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if active > 0 {
		return ErrPlanInUse
	}
	if err := s.repo.DeletePlan(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrPlanNotFound
		}
		// на тариф ссылаются завершенные подписки
		if errors.Is(err, storage.ErrReferenced) {
			return ErrPlanInUse
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlans(ctx)
	return nil
}

// Check статус доступа пользователя.
func (s *Service) Check(ctx context.Context, userID int64) (*models.Entitlement, error) {
	return s.resolver.Resolve(ctx, userID)
}

// Current активная подписка пользователя с выпущенными кодами.
func (s *Service) Current(ctx context.Context, userID int64) (*models.SubscriptionDetails, error) {
	const op = "subscription.Current"
	sub, err := s.repo.ActiveSubscription(ctx, userID, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	codes, err := s.repo.CodesBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	for i := range codes {
		codes[i].Status = codes[i].StatusAt(now)
	}
	if codes == nil {
		codes = []models.AccessCode{}
	}
	return &models.SubscriptionDetails{Subscription: *sub, AccessCodes: codes}, nil
}

// Subscribe оформляет подписку на тариф, заменяя текущую.
func (s *Service) Subscribe(ctx context.Context, userID, planID int64) (*models.Subscription, error) {
	const op = "subscription.Subscribe"
	plan, err := s.repo.PlanByID(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	start := s.now()
	sub := models.Subscription{
		UserID:        userID,
		PlanID:        plan.ID,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, daysPerMonth*plan.DurationMonths),
		IsActive:      true,
		PaymentStatus: models.PaymentCompleted,
		CreatedAt:     start,
		Plan:          plan,
	}
	sub.ID, err = s.repo.Subscribe(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// Cancel отменяет активную подписку пользователя. Коды по ней деактивируются.
func (s *Service) Cancel(ctx context.Context, userID int64) (int64, error) {
	const op = "subscription.Cancel"
	id, err := s.repo.CancelSubscription(ctx, userID, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNoSubscription
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// List все подписки для администратора.
func (s *Service) List(ctx context.Context, page models.Page) (*models.SubscriptionList, error) {
	const op = "subscription.List"
	page = page.Normalize(10, 100)
	subs, total, err := s.repo.ListSubscriptions(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	return &models.SubscriptionList{Subscriptions: subs, Pagination: models.NewPagination(page, total)}, nil
}

func (s *Service) invalidatePlans(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, plansCacheKey); err != nil {
		s.log.Warn("failed to invalidate plans cache", sl.Err(err))
	}
}
