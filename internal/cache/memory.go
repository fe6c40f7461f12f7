package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryEntry — значение с собственным временем истечения.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore — in-memory Store поверх expirable LRU.
// Общий TTL LRU ограничивает срок жизни сверху, TTL записи проверяется при чтении.
// Используется без Redis (один экземпляр) и в тестах.
type MemoryStore struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryStore создаёт хранилище на maxEntries записей.
// maxTTL — верхняя граница жизни записи (0 — без ограничения).
func NewMemoryStore(maxEntries int, maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
}

// Get реализует Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.lru.Remove(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set реализует Store.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, entry)
	return nil
}

// Delete реализует Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len возвращает количество записей (включая ещё не вычищенные истёкшие).
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}

// Keys возвращает ключи от самых старых к самым новым.
func (m *MemoryStore) Keys() []string {
	return m.lru.Keys()
}

// CheckReady — in-memory хранилище всегда готово.
func (m *MemoryStore) CheckReady() (status, message string) {
	return "ok", "in-memory кэш"
}
