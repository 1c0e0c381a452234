// Пакет service — бизнес-логика аналитики: cache-aside чтение агрегатов
// и административная инвалидация кэша.
package service

import (
	"context"
	"log/slog"

	"github.com/formsight/formsight/internal/analytics/cache"
	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/analytics/warehouse"
)

// AnalyticsService — cache-aside фасад над хранилищем ответов.
// Каждое чтение: сначала кэш, при промахе — запрос к хранилищу
// и запись результата в кэш с TTL типа ресурса.
type AnalyticsService struct {
	warehouse warehouse.Warehouse
	cache     *cache.QueryCache
	logger    *slog.Logger
}

// New создаёт сервис аналитики.
func New(wh warehouse.Warehouse, qc *cache.QueryCache, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		warehouse: wh,
		cache:     qc,
		logger:    logger,
	}
}

// FormSummary возвращает сводку по форме.
// useCache=false полностью обходит кэш: ни чтения, ни записи.
func (s *AnalyticsService) FormSummary(ctx context.Context, formID string, r model.DateRange, useCache bool) (*model.FormSummary, error) {
	key := cache.SummaryKey(formID, r.Start, r.End)

	if useCache {
		var cached model.FormSummary
		if s.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	summary, err := s.warehouse.FormSummary(ctx, formID, r)
	if err != nil {
		return nil, err
	}

	if useCache {
		s.cache.SetJSON(ctx, key, summary, s.cache.TTLFor(cache.ResourceFormSummary))
	}
	return summary, nil
}

// QuestionAnalytics возвращает распределение ответов по вопросу.
func (s *AnalyticsService) QuestionAnalytics(ctx context.Context, formID, questionID string, r model.DateRange, useCache bool) (*model.QuestionAnalytics, error) {
	key := cache.QuestionKey(formID, questionID, r.Start, r.End)

	if useCache {
		var cached model.QuestionAnalytics
		if s.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	qa, err := s.warehouse.QuestionAnalytics(ctx, formID, questionID, r)
	if err != nil {
		return nil, err
	}

	if useCache {
		s.cache.SetJSON(ctx, key, qa, s.cache.TTLFor(cache.ResourceQuestionAnalytics))
	}
	return qa, nil
}

// TrendAnalysis возвращает динамику ответов. Гранулярность периода
// входит в ключ кэша: тренды по дням и неделям живут раздельно.
func (s *AnalyticsService) TrendAnalysis(ctx context.Context, formID string, period model.TrendPeriod, r model.DateRange, useCache bool) (*model.TrendAnalysis, error) {
	key := cache.TrendKey(formID, string(period), r.Start, r.End)

	if useCache {
		var cached model.TrendAnalysis
		if s.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	ta, err := s.warehouse.TrendAnalysis(ctx, formID, period, r)
	if err != nil {
		return nil, err
	}

	if useCache {
		s.cache.SetJSON(ctx, key, ta, s.cache.TTLFor(cache.ResourceTrendAnalysis))
	}
	return ta, nil
}

// Invalidate выполняет административную инвалидацию по области запроса.
// Возвращает количество удалённых ключей.
func (s *AnalyticsService) Invalidate(ctx context.Context, req model.InvalidateRequest) model.InvalidateResult {
	var n int
	switch {
	case req.All:
		n = s.cache.InvalidateAll(ctx)
	case req.QuestionID != "":
		n = s.cache.InvalidateQuestion(ctx, req.FormID, req.QuestionID)
	default:
		n = s.cache.InvalidateForm(ctx, req.FormID)
	}
	return model.InvalidateResult{Invalidated: n}
}

// CacheStats возвращает счётчики кэша запросов.
func (s *AnalyticsService) CacheStats(ctx context.Context) model.CacheStats {
	return s.cache.Stats(ctx)
}
