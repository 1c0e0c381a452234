// memory.go — in-memory реализация Store для тестов и локального запуска.
// Per-key TTL и итерация по glob-паттерну не укладываются в expirable LRU
// (один TTL на весь кэш, нет обхода ключей), поэтому map + RWMutex.
// Истёкшие записи удаляются лениво при чтении/обходе.
package kvstore

import (
	"context"
	"sync"
	"time"
)

// memoryEntry — запись in-memory хранилища.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore — потокобезопасное in-memory key-value хранилище с TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get возвращает значение по ключу. Истёкшая запись удаляется и считается отсутствующей.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// SetWithTTL сохраняет значение с временем жизни.
func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete удаляет ключ. Возвращает true, если ключ существовал и не истёк.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return !time.Now().After(e.expiresAt), nil
}

// DeleteByPattern удаляет все ключи по glob-паттерну.
func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if MatchPattern(pattern, key) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// CountByPattern возвращает количество живых ключей по glob-паттерну.
func (s *MemoryStore) CountByPattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if MatchPattern(pattern, key) {
			n++
		}
	}
	return n, nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close освобождает хранилище.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}
