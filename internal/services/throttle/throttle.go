// Package throttle блокирует вход в учетную запись после серии неудачных попыток.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Attempts счетчики неудачных попыток входа.
type Attempts struct {
	Failed       int
	LastFailedAt *time.Time
}

// Store хранилище счетчиков, обычно строка учетной записи.
type Store interface {
	LoginAttempts(ctx context.Context, accountID int64) (Attempts, error)
	SaveLoginAttempts(ctx context.Context, accountID int64, a Attempts) error
	MarkLoginSuccess(ctx context.Context, accountID int64, at time.Time) error
}

// LockedError учетная запись временно заблокирована.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

// Minutes оставшееся время блокировки в минутах, округленное вверх.
func (e *LockedError) Minutes() int {
	return max(1, int(math.Ceil(e.Remaining.Minutes())))
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Account is temporarily locked. Please try again in %d minute(s).", e.Minutes())
}

// IsLocked сообщает, что err вызвана блокировкой.
func IsLocked(err error) (*LockedError, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}

// Throttle учет неудачных входов.
type Throttle struct {
	store       Store
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// New создает Throttle с порогом maxAttempts и окном блокировки window.
func New(store Store, maxAttempts int, window time.Duration) *Throttle {
	return &Throttle{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// WithClock подменяет источник времени.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Check вызывается до проверки пароля. Попытку не расходует.
func (t *Throttle) Check(ctx context.Context, accountID int64) error {
	const op = "throttle.Check"
	a, err := t.store.LoginAttempts(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if locked := t.lockedUntil(a); locked != nil {
		return locked
	}
	return nil
}

// RecordFailure учитывает неудачную попытку и возвращает новые счетчики.
func (t *Throttle) RecordFailure(ctx context.Context, accountID int64) (Attempts, error) {
	const op = "throttle.RecordFailure"
	a, err := t.store.LoginAttempts(ctx, accountID)
	if err != nil {
		return Attempts{}, fmt.Errorf("%s: %w", op, err)
	}

	now := t.now()
	switch {
	case a.Failed >= t.maxAttempts && t.withinWindow(a, now):
		a.Failed++
	case a.Failed >= t.maxAttempts:
		// окно истекло, отсчет начинается заново
		a.Failed = 1
	default:
		a.Failed++
	}
	a.LastFailedAt = &now

	if err := t.store.SaveLoginAttempts(ctx, accountID, a); err != nil {
		return Attempts{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// RecordSuccess сбрасывает счетчики и отмечает время входа.
func (t *Throttle) RecordSuccess(ctx context.Context, accountID int64) error {
	const op = "throttle.RecordSuccess"
	if err := t.store.MarkLoginSuccess(ctx, accountID, t.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemainingAttempts сколько попыток осталось до блокировки.
func (t *Throttle) RemainingAttempts(a Attempts) int {
	return max(0, t.maxAttempts-a.Failed)
}

func (t *Throttle) withinWindow(a Attempts, now time.Time) bool {
	return a.LastFailedAt != nil && now.Before(a.LastFailedAt.Add(t.window))
}

func (t *Throttle) lockedUntil(a Attempts) *LockedError {
	now := t.now()
	if a.Failed < t.maxAttempts || !t.withinWindow(a, now) {
		return nil
	}
	until := a.LastFailedAt.Add(t.window)
	return &LockedError{Until: until, Remaining: until.Sub(now)}
}

// MemoryStore хранит счетчики в памяти.
type MemoryStore struct {
	mu        sync.Mutex
	attempts  map[int64]Attempts
	lastLogin map[int64]time.Time
}

// NewMemoryStore создает пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts:  make(map[int64]Attempts),
		lastLogin: make(map[int64]time.Time),
	}
}

func (m *MemoryStore) LoginAttempts(_ context.Context, accountID int64) (Attempts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[accountID], nil
}

func (m *MemoryStore) SaveLoginAttempts(_ context.Context, accountID int64, a Attempts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[accountID] = a
	return nil
}

func (m *MemoryStore) MarkLoginSuccess(_ context.Context, accountID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, accountID)
	m.lastLogin[accountID] = at
	return nil
}

// LastLogin время последнего успешного входа.
func (m *MemoryStore) LastLogin(accountID int64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastLogin[accountID]
	return at, ok
}
