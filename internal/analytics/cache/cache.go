package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/kvstore"
)

// Метрики кэша запросов.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_hits_total",
		Help: "Количество попаданий в кэш запросов",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_misses_total",
		Help: "Количество промахов кэша запросов",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_errors_total",
		Help: "Количество ошибок обращения к хранилищу кэша",
	})
	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "as_cache_invalidations_total",
		Help: "Количество удалённых ключей по областям инвалидации",
	}, []string{"scope"})
)

// TTLConfig — время жизни записей по типам ресурсов.
type TTLConfig struct {
	Summary  time.Duration
	Question time.Duration
	Trend    time.Duration
}

// QueryCache — кэш запросов аналитики поверх key-value хранилища.
// Ошибки хранилища не всплывают к вызывающему: чтение при сбое
// трактуется как промах, запись и инвалидация — как no-op с записью
// в лог. Сервис продолжает отвечать из хранилища ответов.
type QueryCache struct {
	store  kvstore.Store
	ttl    TTLConfig
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New создаёт кэш запросов поверх хранилища store.
func New(store kvstore.Store, ttl TTLConfig, logger *slog.Logger) *QueryCache {
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get возвращает сырое значение по ключу. Второй результат —
// признак попадания. Ошибка хранилища считается промахом.
func (c *QueryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		cacheErrors.Inc()
		c.logger.Warn("кэш недоступен, чтение пропущено", "key", key, "error", err)
		c.misses.Add(1)
		cacheMisses.Inc()
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		cacheMisses.Inc()
		return nil, false
	}
	c.hits.Add(1)
	cacheHits.Inc()
	return val, true
}

// Set сохраняет значение с заданным TTL. Ошибка хранилища логируется
// и не возвращается.
func (c *QueryCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := c.store.SetWithTTL(ctx, key, val, ttl); err != nil {
		cacheErrors.Inc()
		c.logger.Warn("кэш недоступен, запись пропущена", "key", key, "error", err)
	}
}

// GetJSON читает значение по ключу и декодирует его в dest.
// Повреждённая запись удаляется и считается промахом.
func (c *QueryCache) GetJSON(ctx context.Context, key string, dest any) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		c.logger.Warn("повреждённая запись в кэше, удаляется", "key", key, "error", err)
		_, _ = c.store.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON кодирует значение в JSON и сохраняет с заданным TTL.
func (c *QueryCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	data, err := json.Marshal(val)
	if err != nil {
		c.logger.Error("сериализация значения кэша", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, data, ttl)
}

// TTLFor возвращает TTL для типа ресурса.
func (c *QueryCache) TTLFor(resource string) time.Duration {
	switch resource {
	case ResourceQuestionAnalytics:
		return c.ttl.Question
	case ResourceTrendAnalysis:
		return c.ttl.Trend
	default:
		return c.ttl.Summary
	}
}

// InvalidateExact удаляет одну запись по точному ключу.
// Возвращает true, если ключ существовал.
func (c *QueryCache) InvalidateExact(ctx context.Context, key string) bool {
	deleted, err := c.store.Delete(ctx, key)
	if err != nil {
		cacheErrors.Inc()
		c.logger.Warn("кэш недоступен, удаление ключа пропущено", "key", key, "error", err)
		return false
	}
	if deleted {
		cacheInvalidations.WithLabelValues("exact").Inc()
	}
	return deleted
}

// InvalidateForm удаляет все записи формы: сводку, аналитику всех
// вопросов и тренды за любые диапазоны дат. Записи других форм
// не затрагиваются.
func (c *QueryCache) InvalidateForm(ctx context.Context, formID string) int {
	return c.deleteByPatterns(ctx, "form", formScopePatterns(formID))
}

// InvalidateQuestion удаляет записи одного вопроса формы.
func (c *QueryCache) InvalidateQuestion(ctx context.Context, formID, questionID string) int {
	return c.deleteByPatterns(ctx, "question", questionScopePatterns(formID, questionID))
}

// InvalidateAll удаляет все записи кэша аналитики.
func (c *QueryCache) InvalidateAll(ctx context.Context) int {
	return c.deleteByPatterns(ctx, "all", []string{allScopePattern()})
}

func (c *QueryCache) deleteByPatterns(ctx context.Context, scope string, patterns []string) int {
	total := 0
	for _, p := range patterns {
		n, err := c.store.DeleteByPattern(ctx, p)
		if err != nil {
			cacheErrors.Inc()
			c.logger.Warn("кэш недоступен, инвалидация пропущена", "pattern", p, "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		cacheInvalidations.WithLabelValues(scope).Add(float64(total))
	}
	c.logger.Info("инвалидация кэша", "scope", scope, "deleted", total)
	return total
}

// Stats возвращает счётчики попаданий и промахов с момента старта
// процесса и текущее количество ключей в хранилище.
func (c *QueryCache) Stats(ctx context.Context) model.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	keys, err := c.store.CountByPattern(ctx, allScopePattern())
	if err != nil {
		cacheErrors.Inc()
		c.logger.Warn("кэш недоступен, количество ключей неизвестно", "error", err)
		keys = -1
	}

	return model.CacheStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Keys:    int64(keys),
	}
}
