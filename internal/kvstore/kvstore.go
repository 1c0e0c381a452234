// Пакет kvstore — абстракция key-value хранилища для кэша аналитики.
// Контракт намеренно узкий: get/set-with-ttl/delete + операции по glob-паттерну
// (инвалидация по scope). Реализации: Valkey (production) и in-memory (тесты).
package kvstore

import (
	"context"
	"time"
)

// Store — key-value хранилище с TTL и операциями по паттерну.
// Паттерн — glob в стиле Redis MATCH: `*` — любая подстрока,
// остальные символы — литералы.
type Store interface {
	// Get возвращает значение по ключу. ok=false — ключ отсутствует или истёк.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetWithTTL сохраняет значение с временем жизни (ttl > 0 обязателен).
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete удаляет ключ. Возвращает true, если ключ существовал.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteByPattern удаляет все ключи, совпадающие с паттерном.
	// Возвращает количество удалённых ключей.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	// CountByPattern возвращает количество ключей, совпадающих с паттерном.
	CountByPattern(ctx context.Context, pattern string) (int, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Close освобождает ресурсы клиента.
	Close() error
}

// MatchPattern проверяет соответствие строки glob-паттерну (только `*`).
// Используется in-memory реализацией; Valkey выполняет MATCH на стороне сервера
// с теми же семантиками для подмножества `*`.
func MatchPattern(pattern, s string) bool {
	// Итеративный greedy-алгоритм с откатом к последней `*`
	pi, si := 0, 0
	star, mark := -1, 0

	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star != -1:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}

	// Хвост паттерна может состоять только из `*`
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
