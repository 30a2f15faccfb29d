package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userID, now)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *StoreMock) RedeemedCode(ctx context.Context, userID int64, now time.Time) (*models.AccessCode, error) {
	args := m.Called(ctx, userID, now)
	code, _ := args.Get(0).(*models.AccessCode)
	return code, args.Error(1)
}

func (m *StoreMock) CountIssuedCodes(ctx context.Context, userID, subscriptionID int64) (int, error) {
	args := m.Called(ctx, userID, subscriptionID)
	return args.Int(0), args.Error(1)
}

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestResolver_Resolve(t *testing.T) {
	plan := &models.Plan{ID: 2, Name: "Standard", MaxAccessCodes: 3}
	subEnd := now.AddDate(0, 1, 0)

	tests := []struct {
		name  string
		setup func(m *StoreMock)
		check func(t *testing.T, e *models.Entitlement)
	}{
		{
			name: "own subscription",
			setup: func(m *StoreMock) {
				m.On("ActiveSubscription", mock.Anything, int64(1), now).
					Return(&models.Subscription{ID: 10, EndDate: subEnd, Plan: plan}, nil)
				m.On("CountIssuedCodes", mock.Anything, int64(1), int64(10)).Return(1, nil)
			},
			check: func(t *testing.T, e *models.Entitlement) {
				assert.True(t, e.HasSubscription)
				assert.False(t, e.HasAccessCode)
				assert.Equal(t, "active", e.Status())
				assert.Equal(t, 1, e.IssuedCodes)
				assert.Equal(t, 3, e.MaxCodes)
				assert.Equal(t, 2, e.RemainingCodes)
				assert.Equal(t, subEnd, *e.ExpiresAt)
			},
		},
		{
			name: "redeemed code inherits parent expiry",
			setup: func(m *StoreMock) {
				m.On("ActiveSubscription", mock.Anything, int64(1), now).Return(nil, storage.ErrNotFound)
				m.On("RedeemedCode", mock.Anything, int64(1), now).Return(&models.AccessCode{
					ExpiresAt:    now.AddDate(0, 0, 5),
					Subscription: &models.Subscription{EndDate: subEnd, Plan: plan, Username: "owner"},
				}, nil)
			},
			check: func(t *testing.T, e *models.Entitlement) {
				assert.False(t, e.HasSubscription)
				assert.True(t, e.HasAccessCode)
				assert.Equal(t, "shared", e.Status())
				assert.Equal(t, subEnd, *e.ExpiresAt)
				assert.Equal(t, "owner", e.OwnerUsername)
				assert.Equal(t, 0, e.RemainingCodes)
			},
		},
		{
			name: "nothing",
			setup: func(m *StoreMock) {
				m.On("ActiveSubscription", mock.Anything, int64(1), now).Return(nil, storage.ErrNotFound)
				m.On("RedeemedCode", mock.Anything, int64(1), now).Return(nil, storage.ErrNotFound)
			},
			check: func(t *testing.T, e *models.Entitlement) {
				assert.False(t, e.Entitled())
				assert.Nil(t, e.ExpiresAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(StoreMock)
			tt.setup(store)
			r := New(store).WithClock(func() time.Time { return now })

			ent, err := r.Resolve(context.Background(), 1)
			require.NoError(t, err)
			tt.check(t, ent)
			store.AssertExpectations(t)
		})
	}
}

func TestResolver_StoreError(t *testing.T) {
	store := new(StoreMock)
	store.On("ActiveSubscription", mock.Anything, int64(1), now).Return(nil, errors.New("boom"))

	_, err := New(store).WithClock(func() time.Time { return now }).Resolve(context.Background(), 1)
	assert.Error(t, err)
}
