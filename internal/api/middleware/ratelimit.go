// ratelimit.go — middleware ограничения частоты запросов.
// Алгоритм лимитирования скрыт за интерфейсом Limiter; базовая реализация —
// fixed window на expirable LRU (окно задаётся TTL записи, счётчики
// вытесняются автоматически, без фоновой очистки).
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	apierrors "github.com/formsight/formsight/internal/api/errors"
)

// Limiter — интерфейс проверки лимита для ключа (субъект, IP).
type Limiter interface {
	// Allow возвращает true, если запрос с данным ключом укладывается в лимит.
	Allow(key string) bool
}

// windowCounter — счётчик запросов в текущем окне.
type windowCounter struct {
	mu    sync.Mutex
	count int
}

// WindowLimiter — fixed-window лимитер поверх expirable LRU.
// Запись создаётся при первом запросе ключа и вытесняется по TTL (= окно),
// что автоматически открывает новое окно.
type WindowLimiter struct {
	buckets *expirable.LRU[string, *windowCounter]
	max     int
}

// maxTrackedKeys — ограничение количества одновременно отслеживаемых ключей.
const maxTrackedKeys = 16384

// NewWindowLimiter создаёт лимитер: не более max запросов на ключ за window.
func NewWindowLimiter(max int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		buckets: expirable.NewLRU[string, *windowCounter](maxTrackedKeys, nil, window),
		max:     max,
	}
}

// Allow учитывает запрос и возвращает true, если лимит не превышен.
func (l *WindowLimiter) Allow(key string) bool {
	c, ok := l.buckets.Get(key)
	if !ok {
		c = &windowCounter{}
		l.buckets.Add(key, c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count <= l.max
}

// RateLimit возвращает middleware, отклоняющий запросы сверх лимита (429).
// Ключ — sub из JWT claims; для неаутентифицированных запросов — RemoteAddr.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := SubjectFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			if !limiter.Allow(key) {
				apierrors.RateLimited(w, "Превышен лимит запросов, повторите позже")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
