package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formsight/formsight/internal/analytics/cache"
	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/analytics/service"
	"github.com/formsight/formsight/internal/analytics/warehouse"
	apihandlers "github.com/formsight/formsight/internal/api/handlers"
	"github.com/formsight/formsight/internal/kvstore"
)

// stubWarehouse знает только форму f1.
type stubWarehouse struct{}

func (stubWarehouse) FormSummary(_ context.Context, formID string, _ model.DateRange) (*model.FormSummary, error) {
	if formID != "f1" {
		return nil, warehouse.ErrFormNotFound
	}
	return &model.FormSummary{FormID: formID, TotalResponses: 7}, nil
}

func (stubWarehouse) QuestionAnalytics(_ context.Context, formID, questionID string, _ model.DateRange) (*model.QuestionAnalytics, error) {
	if formID != "f1" {
		return nil, warehouse.ErrFormNotFound
	}
	return &model.QuestionAnalytics{FormID: formID, QuestionID: questionID}, nil
}

func (stubWarehouse) TrendAnalysis(_ context.Context, formID string, period model.TrendPeriod, _ model.DateRange) (*model.TrendAnalysis, error) {
	if formID != "f1" {
		return nil, warehouse.ErrFormNotFound
	}
	return &model.TrendAnalysis{FormID: formID, Period: period}, nil
}

func newTestRouter() http.Handler {
	logger := slog.New(slog.DiscardHandler)
	qc := cache.New(kvstore.NewMemoryStore(), cache.TTLConfig{
		Summary:  time.Minute,
		Question: time.Minute,
		Trend:    time.Minute,
	}, logger)
	svc := service.New(stubWarehouse{}, qc, logger)
	health := apihandlers.NewHealthHandler("analytics-service", "test", nil)
	h := NewAPIHandler(health, svc, logger)

	r := chi.NewRouter()
	r.Get("/api/v1/analytics/{form_id}/summary", h.GetFormSummary)
	r.Get("/api/v1/analytics/{form_id}/questions/{question_id}", h.GetQuestionAnalytics)
	r.Get("/api/v1/analytics/{form_id}/trend", h.GetTrendAnalysis)
	r.Post("/api/v1/analytics/cache/invalidate", h.InvalidateCache)
	r.Get("/api/v1/analytics/cache/stats", h.GetCacheStats)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestGetFormSummary_OK проверяет успешный ответ сводки.
func TestGetFormSummary_OK(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200: %s", rec.Code, rec.Body.String())
	}

	var s model.FormSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if s.TotalResponses != 7 {
		t.Errorf("TotalResponses = %d, ожидалось 7", s.TotalResponses)
	}
}

// TestGetFormSummary_NotFound — неизвестная форма даёт 404 с кодом NOT_FOUND.
func TestGetFormSummary_NotFound(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodGet, "/api/v1/analytics/unknown/summary", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("статус = %d, ожидался 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOT_FOUND") {
		t.Errorf("в ответе нет кода NOT_FOUND: %s", rec.Body.String())
	}
}

// TestGetFormSummary_BadDates — некорректные даты дают 400.
func TestGetFormSummary_BadDates(t *testing.T) {
	router := newTestRouter()

	cases := []string{
		"/api/v1/analytics/f1/summary?start_date=not-a-date",
		"/api/v1/analytics/f1/summary?start_date=2026-02-01&end_date=2026-01-01",
	}
	for _, path := range cases {
		rec := doRequest(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: статус = %d, ожидался 400", path, rec.Code)
		}
	}
}

// TestGetTrendAnalysis_Period проверяет валидацию гранулярности.
func TestGetTrendAnalysis_Period(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/trend?period=week", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/trend?period=year", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400 для period=year", rec.Code)
	}
}

// TestGetFormSummary_UseCacheFalse — обход кэша не трогает его счётчики.
func TestGetFormSummary_UseCacheFalse(t *testing.T) {
	router := newTestRouter()

	doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/summary?use_cache=false", "")
	doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/summary?use_cache=false", "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/analytics/cache/stats", "")
	var stats model.CacheStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Hits/Misses = %d/%d, ожидалось 0/0", stats.Hits, stats.Misses)
	}
}

// TestInvalidateCache_Validation проверяет валидацию области инвалидации.
func TestInvalidateCache_Validation(t *testing.T) {
	router := newTestRouter()

	// Пустая область
	rec := doRequest(t, router, http.MethodPost, "/api/v1/analytics/cache/invalidate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400 для пустой области", rec.Code)
	}

	// Несовместимые параметры
	rec = doRequest(t, router, http.MethodPost, "/api/v1/analytics/cache/invalidate",
		`{"all":true,"form_id":"f1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400 для all+form_id", rec.Code)
	}

	// Корректная область формы
	rec = doRequest(t, router, http.MethodPost, "/api/v1/analytics/cache/invalidate",
		`{"form_id":"f1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидался 200: %s", rec.Code, rec.Body.String())
	}
}

// TestGetCacheStats возвращает счётчики кэша.
func TestGetCacheStats(t *testing.T) {
	router := newTestRouter()

	// Один промах и одно попадание
	doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/summary", "")
	doRequest(t, router, http.MethodGet, "/api/v1/analytics/f1/summary", "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/analytics/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	var stats model.CacheStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, ожидалось 1/1", stats.Hits, stats.Misses)
	}
}
