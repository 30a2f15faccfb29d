package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) ListPlans(ctx context.Context) ([]models.Plan, error) {
	args := m.Called(ctx)
	plans, _ := args.Get(0).([]models.Plan)
	return plans, args.Error(1)
}

func (m *RepoMock) PlanByID(ctx context.Context, id int64) (*models.Plan, error) {
	args := m.Called(ctx, id)
	plan, _ := args.Get(0).(*models.Plan)
	return plan, args.Error(1)
}

func (m *RepoMock) CreatePlan(ctx context.Context, plan models.Plan) (int64, error) {
	args := m.Called(ctx, plan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) UpdatePlan(ctx context.Context, id int64, upd models.PlanUpdate) (*models.Plan, error) {
	args := m.Called(ctx, id, upd)
	plan, _ := args.Get(0).(*models.Plan)
	return plan, args.Error(1)
}

func (m *RepoMock) DeletePlan(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RepoMock) CountActiveByPlan(ctx context.Context, planID int64, now time.Time) (int, error) {
	args := m.Called(ctx, planID, now)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userID, now)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *RepoMock) Subscribe(ctx context.Context, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) CancelSubscription(ctx context.Context, userID int64, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) CodesBySubscription(ctx context.Context, subscriptionID int64) ([]models.AccessCode, error) {
	args := m.Called(ctx, subscriptionID)
	codes, _ := args.Get(0).([]models.AccessCode)
	return codes, args.Error(1)
}

func (m *RepoMock) ListSubscriptions(ctx context.Context, page models.Page) ([]models.Subscription, int, error) {
	args := m.Called(ctx, page)
	subs, _ := args.Get(0).([]models.Subscription)
	return subs, args.Int(1), args.Error(2)
}

type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(repo *RepoMock, cache *CacheMock) *Service {
	return New(repo, cache, nil, newNoopLogger(), time.Minute).WithClock(func() time.Time { return now })
}

func TestService_Plans_CacheMissThenFill(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	plans := []models.Plan{{ID: 1, Name: "Basic"}}

	cache.On("Get", mock.Anything, plansCacheKey, mock.Anything).Return(false, nil).Once()
	repo.On("ListPlans", mock.Anything).Return(plans, nil).Once()
	cache.On("Set", mock.Anything, plansCacheKey, plans, time.Minute).Return(nil).Once()

	got, err := newService(repo, cache).Plans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plans, got)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestService_Plans_CacheHit(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	cache.On("Get", mock.Anything, plansCacheKey, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(2).(*[]models.Plan)
		*out = []models.Plan{{ID: 2, Name: "Premium"}}
	}).Return(true, nil).Once()

	got, err := newService(repo, cache).Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Premium", got[0].Name)
	repo.AssertNotCalled(t, "ListPlans", mock.Anything)
}

func TestService_Plans_CacheErrorFallsBack(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	cache.On("Get", mock.Anything, plansCacheKey, mock.Anything).Return(false, errors.New("redis down")).Once()
	repo.On("ListPlans", mock.Anything).Return(nil, nil).Once()
	cache.On("Set", mock.Anything, plansCacheKey, []models.Plan{}, time.Minute).Return(errors.New("redis down")).Once()

	got, err := newService(repo, cache).Plans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestService_Subscribe(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	plan := &models.Plan{ID: 3, Name: "Standard", DurationMonths: 3}
	repo.On("PlanByID", mock.Anything, int64(3)).Return(plan, nil).Once()
	repo.On("Subscribe", mock.Anything, mock.MatchedBy(func(s models.Subscription) bool {
		return s.UserID == 9 && s.IsActive &&
			s.PaymentStatus == models.PaymentCompleted &&
			s.EndDate.Equal(now.AddDate(0, 0, 90))
	})).Return(int64(55), nil).Once()

	sub, err := newService(repo, cache).Subscribe(context.Background(), 9, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(55), sub.ID)
	assert.Equal(t, plan, sub.Plan)
	repo.AssertExpectations(t)
}

func TestService_Subscribe_UnknownPlan(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	repo.On("PlanByID", mock.Anything, int64(404)).Return(nil, storage.ErrNotFound).Once()

	_, err := newService(repo, cache).Subscribe(context.Background(), 1, 404)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestService_DeletePlan(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *RepoMock, c *CacheMock)
		wantErr error
	}{
		{
			name: "in use",
			setup: func(r *RepoMock, _ *CacheMock) {
				r.On("PlanByID", mock.Anything, int64(1)).Return(&models.Plan{ID: 1}, nil)
				r.On("CountActiveByPlan", mock.Anything, int64(1), now).Return(2, nil)
			},
			wantErr: ErrPlanInUse,
		},
		{
			name: "missing",
			setup: func(r *RepoMock, _ *CacheMock) {
				r.On("PlanByID", mock.Anything, int64(1)).Return(nil, storage.ErrNotFound)
			},
			wantErr: ErrPlanNotFound,
		},
		{
			name: "deleted and cache invalidated",
			setup: func(r *RepoMock, c *CacheMock) {
				r.On("PlanByID", mock.Anything, int64(1)).Return(&models.Plan{ID: 1}, nil)
				r.On("CountActiveByPlan", mock.Anything, int64(1), now).Return(0, nil)
				r.On("DeletePlan", mock.Anything, int64(1)).Return(nil)
				c.On("Invalidate", mock.Anything, plansCacheKey).Return(nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cache := new(RepoMock), new(CacheMock)
			tt.setup(repo, cache)
			err := newService(repo, cache).DeletePlan(context.Background(), 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			cache.AssertExpectations(t)
		})
	}
}

func TestService_CreatePlan_Duplicate(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	repo.On("CreatePlan", mock.Anything, mock.Anything).Return(int64(0), storage.ErrAlreadyExists).Once()

	_, err := newService(repo, cache).CreatePlan(context.Background(), models.Plan{Name: "Basic"})
	assert.ErrorIs(t, err, ErrPlanExists)
	cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestService_Current(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	user := int64(4)
	repo.On("ActiveSubscription", mock.Anything, int64(1), now).
		Return(&models.Subscription{ID: 7, UserID: 1, IsActive: true, EndDate: now.Add(time.Hour)}, nil).Once()
	repo.On("CodesBySubscription", mock.Anything, int64(7)).Return([]models.AccessCode{
		{ID: 1, IsActive: true, ExpiresAt: now.Add(time.Hour)},
		{ID: 2, IsActive: true, UsedBy: &user, ExpiresAt: now.Add(time.Hour)},
	}, nil).Once()

	details, err := newService(repo, cache).Current(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), details.Subscription.ID)
	assert.Equal(t, models.CodeAvailable, details.AccessCodes[0].Status)
	assert.Equal(t, models.CodeUsed, details.AccessCodes[1].Status)
}

func TestService_Cancel(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	repo.On("CancelSubscription", mock.Anything, int64(1), now).Return(int64(0), storage.ErrNotFound).Once()
	repo.On("CancelSubscription", mock.Anything, int64(2), now).Return(int64(8), nil).Once()

	svc := newService(repo, cache)
	_, err := svc.Cancel(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoSubscription)

	id, err := svc.Cancel(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
}

func TestService_List(t *testing.T) {
	repo, cache := new(RepoMock), new(CacheMock)
	repo.On("ListSubscriptions", mock.Anything, models.Page{Page: 2, PerPage: 10}).
		Return([]models.Subscription{{ID: 11}}, 11, nil).Once()

	list, err := newService(repo, cache).List(context.Background(), models.Page{Page: 2})
	require.NoError(t, err)
	assert.Len(t, list.Subscriptions, 1)
	assert.Equal(t, 2, list.Pagination.TotalPages)
}
