package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/formsight/formsight/internal/analytics/cache"
	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/kvstore"
)

// fakeWarehouse считает обращения к хранилищу ответов.
type fakeWarehouse struct {
	summaryCalls  int
	questionCalls int
	trendCalls    int
}

func (f *fakeWarehouse) FormSummary(_ context.Context, formID string, _ model.DateRange) (*model.FormSummary, error) {
	f.summaryCalls++
	return &model.FormSummary{FormID: formID, TotalResponses: int64(f.summaryCalls)}, nil
}

func (f *fakeWarehouse) QuestionAnalytics(_ context.Context, formID, questionID string, _ model.DateRange) (*model.QuestionAnalytics, error) {
	f.questionCalls++
	return &model.QuestionAnalytics{FormID: formID, QuestionID: questionID}, nil
}

func (f *fakeWarehouse) TrendAnalysis(_ context.Context, formID string, period model.TrendPeriod, _ model.DateRange) (*model.TrendAnalysis, error) {
	f.trendCalls++
	return &model.TrendAnalysis{FormID: formID, Period: period}, nil
}

func newTestService() (*AnalyticsService, *fakeWarehouse) {
	wh := &fakeWarehouse{}
	qc := cache.New(kvstore.NewMemoryStore(), cache.TTLConfig{
		Summary:  time.Minute,
		Question: time.Minute,
		Trend:    time.Minute,
	}, slog.New(slog.DiscardHandler))
	return New(wh, qc, slog.New(slog.DiscardHandler)), wh
}

// TestFormSummary_CacheAside проверяет, что повторный запрос
// обслуживается из кэша без обращения к хранилищу.
func TestFormSummary_CacheAside(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()

	s1, err := svc.FormSummary(ctx, "f1", model.DateRange{}, true)
	if err != nil {
		t.Fatalf("FormSummary: %v", err)
	}
	s2, err := svc.FormSummary(ctx, "f1", model.DateRange{}, true)
	if err != nil {
		t.Fatalf("FormSummary: %v", err)
	}

	if wh.summaryCalls != 1 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 1", wh.summaryCalls)
	}
	if s1.TotalResponses != s2.TotalResponses {
		t.Error("повторный запрос вернул другой результат")
	}
}

// TestFormSummary_DateRangeSeparateKeys проверяет, что запросы
// с разными диапазонами дат кэшируются раздельно.
func TestFormSummary_DateRangeSeparateKeys(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true)
	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{Start: start}, true)

	if wh.summaryCalls != 2 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 2", wh.summaryCalls)
	}
}

// TestFormSummary_CacheBypass проверяет, что useCache=false
// обходит кэш и ничего в него не пишет.
func TestFormSummary_CacheBypass(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()

	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, false)
	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, false)

	if wh.summaryCalls != 2 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 2", wh.summaryCalls)
	}

	// После обходов кэш пуст: обычный запрос снова идёт в хранилище
	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true)
	if wh.summaryCalls != 3 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 3", wh.summaryCalls)
	}
}

// TestTrendAnalysis_PeriodSeparateKeys проверяет раздельное
// кэширование разной гранулярности.
func TestTrendAnalysis_PeriodSeparateKeys(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()

	_, _ = svc.TrendAnalysis(ctx, "f1", model.PeriodDay, model.DateRange{}, true)
	_, _ = svc.TrendAnalysis(ctx, "f1", model.PeriodWeek, model.DateRange{}, true)
	_, _ = svc.TrendAnalysis(ctx, "f1", model.PeriodDay, model.DateRange{}, true)

	if wh.trendCalls != 2 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 2", wh.trendCalls)
	}
}

// TestInvalidate_FormScope проверяет, что после инвалидации формы
// следующий запрос идёт в хранилище, а другие формы остаются в кэше.
func TestInvalidate_FormScope(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()

	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true)
	_, _ = svc.QuestionAnalytics(ctx, "f1", "q1", model.DateRange{}, true)
	_, _ = svc.FormSummary(ctx, "f2", model.DateRange{}, true)

	res := svc.Invalidate(ctx, model.InvalidateRequest{FormID: "f1"})
	if res.Invalidated != 2 {
		t.Errorf("инвалидировано %d ключей, ожидалось 2", res.Invalidated)
	}

	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true) // снова хранилище
	_, _ = svc.FormSummary(ctx, "f2", model.DateRange{}, true) // из кэша

	if wh.summaryCalls != 3 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 3", wh.summaryCalls)
	}
}

// TestInvalidate_QuestionScope проверяет область одного вопроса.
func TestInvalidate_QuestionScope(t *testing.T) {
	ctx := context.Background()
	svc, wh := newTestService()

	_, _ = svc.QuestionAnalytics(ctx, "f1", "q1", model.DateRange{}, true)
	_, _ = svc.QuestionAnalytics(ctx, "f1", "q2", model.DateRange{}, true)

	res := svc.Invalidate(ctx, model.InvalidateRequest{FormID: "f1", QuestionID: "q1"})
	if res.Invalidated != 1 {
		t.Errorf("инвалидирован %d ключ, ожидался 1", res.Invalidated)
	}

	_, _ = svc.QuestionAnalytics(ctx, "f1", "q1", model.DateRange{}, true)
	_, _ = svc.QuestionAnalytics(ctx, "f1", "q2", model.DateRange{}, true)

	if wh.questionCalls != 3 {
		t.Errorf("обращений к хранилищу = %d, ожидалось 3", wh.questionCalls)
	}
}

// TestCacheStats считает попадания и промахи через сервис.
func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true) // промах
	_, _ = svc.FormSummary(ctx, "f1", model.DateRange{}, true) // попадание

	stats := svc.CacheStats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, ожидалось 1/1", stats.Hits, stats.Misses)
	}
}
