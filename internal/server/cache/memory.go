package cache

import (
	"context"
	"sync"
	"time"
)

// Memory — in-memory реализация Store с поддержкой TTL.
// Используется в тестах и для локальной разработки без Redis
type Memory struct {
	entries map[string]memoryEntry
	prefix  string
	mu      sync.RWMutex
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero = без истечения
}

var _ Store = (*Memory)(nil)

// NewMemory создает пустой in-memory кеш
func NewMemory(prefix string) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		prefix:  prefix,
	}
}

// Get читает запись кеша; истекшие записи удаляются лениво
func (m *Memory) Get(ctx context.Context, t Type, key string) Result {
	k := Key(m.prefix, t, key)

	m.mu.RLock()
	entry, ok := m.entries[k]
	m.mu.RUnlock()

	if !ok {
		return Miss()
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
		return Miss()
	}

	env, err := decodeEnvelope(entry.data)
	if err != nil {
		return Fail(err)
	}

	return Hit(env.Schema, env.Payload)
}

// Set атомарно записывает значение с TTL
func (m *Memory) Set(ctx context.Context, t Type, key, schema string, value any, ttl time.Duration) error {
	data, err := Encode(schema, value)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[Key(m.prefix, t, key)] = memoryEntry{data: data, expiresAt: expiresAt}
	m.mu.Unlock()

	return nil
}

// Delete удаляет запись; возвращает true, если запись существовала
func (m *Memory) Delete(ctx context.Context, t Type, key string) (bool, error) {
	k := Key(m.prefix, t, key)

	m.mu.Lock()
	_, ok := m.entries[k]
	delete(m.entries, k)
	m.mu.Unlock()

	return ok, nil
}

// Has проверяет наличие ключа
func (m *Memory) Has(ctx context.Context, t Type, key string) (bool, error) {
	res := m.Get(ctx, t, key)
	return res.Status == StatusHit || res.Status == StatusError, nil
}

// SetRaw записывает сырые байты без envelope.
// Нужен в тестах для симуляции записи от чужого сервиса или порчи данных
func (m *Memory) SetRaw(t Type, key string, data []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[Key(m.prefix, t, key)] = memoryEntry{data: data, expiresAt: expiresAt}
	m.mu.Unlock()
}
