package token

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationStore хранит отозванные jti в памяти процесса.
// Подходит для тестов и одиночного инстанса.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore создает пустое хранилище.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke запоминает jti до момента until.
func (m *MemoryRevocationStore) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	m.entries[jti] = until
	return nil
}

// IsRevoked сообщает, отозван ли jti.
func (m *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !until.After(m.now()) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}

// Len количество хранимых записей.
func (m *MemoryRevocationStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryRevocationStore) prune() {
	now := m.now()
	for jti, until := range m.entries {
		if !until.After(now) {
			delete(m.entries, jti)
		}
	}
}
