package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/vortextv/internal/migrations"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

// TestDataFactory создает тестовые данные напрямую в БД.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его id.
func (f *TestDataFactory) CreateUser(t *testing.T, username string, role models.Role) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, 'hashedpassword', $3) RETURNING id`,
		username, username+"@example.com", role).Scan(&id)
	require.NoError(t, err)
	return id
}

// PlanID id сидированного тарифа по имени.
func (f *TestDataFactory) PlanID(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, f.storage.DB.QueryRow(`SELECT id FROM subscription_plans WHERE name = $1`, name).Scan(&id))
	return id
}

// CreateSubscription оформляет подписку через хранилище.
func (f *TestDataFactory) CreateSubscription(t *testing.T, userID, planID int64, start time.Time, days int) int64 {
	t.Helper()
	id, err := f.storage.Subscribe(context.Background(), models.Subscription{
		UserID:        userID,
		PlanID:        planID,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, days),
		IsActive:      true,
		PaymentStatus: models.PaymentCompleted,
		CreatedAt:     start,
	})
	require.NoError(t, err)
	return id
}

// CreateCode выпускает код по подписке.
func (f *TestDataFactory) CreateCode(t *testing.T, code string, ownerID, subscriptionID int64, expires time.Time) int64 {
	t.Helper()
	id, err := f.storage.CreateCode(context.Background(), models.AccessCode{
		Code:           code,
		CreatedBy:      ownerID,
		SubscriptionID: subscriptionID,
		IsActive:       true,
		ExpiresAt:      expires,
		CreatedAt:      time.Now(),
	}, 100)
	require.NoError(t, err)
	return id
}

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	migrationsPath, err := filepath.Abs(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath), "Failed to apply migrations")

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", fmt.Sprint(err))
		}
	}
	return storage, cleanup
}
