// Package entitlement вычисляет право пользователя на платный контент.
//
// Доступ дает либо собственная активная подписка, либо погашенный код доступа,
// родительская подписка которого еще действует. Результат не кешируется.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// Store источник подписок и кодов.
type Store interface {
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	RedeemedCode(ctx context.Context, userID int64, now time.Time) (*models.AccessCode, error)
	CountIssuedCodes(ctx context.Context, userID, subscriptionID int64) (int, error)
}

// Resolver вычисляет Entitlement.
type Resolver struct {
	store Store
	now   func() time.Time
}

// New создает Resolver.
func New(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// WithClock подменяет источник времени.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve возвращает текущее состояние доступа пользователя.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*models.Entitlement, error) {
	const op = "entitlement.Resolve"
	now := r.now()
	ent := &models.Entitlement{}

	sub, err := r.store.ActiveSubscription(ctx, userID, now)
	switch {
	case err == nil:
		ent.HasSubscription = true
		ent.Source = models.SourceSubscription
		ent.SubscriptionID = sub.ID
		ent.ExpiresAt = &sub.EndDate
		ent.Plan = sub.Plan
		issued, err := r.store.CountIssuedCodes(ctx, userID, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ent.IssuedCodes = issued
		if sub.Plan != nil {
			ent.MaxCodes = sub.Plan.MaxAccessCodes
		}
		ent.RemainingCodes = max(0, ent.MaxCodes-issued)
		return ent, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	code, err := r.store.RedeemedCode(ctx, userID, now)
	switch {
	case err == nil:
		ent.HasAccessCode = true
		ent.Source = models.SourceAccessCode
		// срок доступа по коду равен сроку родительской подписки
		expires := code.ExpiresAt
		if code.Subscription != nil {
			expires = code.Subscription.EndDate
			ent.Plan = code.Subscription.Plan
			ent.OwnerUsername = code.Subscription.Username
		}
		ent.ExpiresAt = &expires
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ent, nil
}
