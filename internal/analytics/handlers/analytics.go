// analytics.go — обработчики аналитики: сводка по форме, аналитика
// по вопросу, тренды, административная инвалидация и статистика кэша.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/analytics/warehouse"
	apierrors "github.com/formsight/formsight/internal/api/errors"
)

// parseDateRange разбирает необязательные параметры start_date/end_date.
// Принимаются RFC3339 и короткая форма YYYY-MM-DD.
func parseDateRange(r *http.Request) (model.DateRange, error) {
	var out model.DateRange
	var err error

	if v := r.URL.Query().Get("start_date"); v != "" {
		out.Start, err = parseDate(v)
		if err != nil {
			return out, errors.New("start_date: " + err.Error())
		}
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		out.End, err = parseDate(v)
		if err != nil {
			return out, errors.New("end_date: " + err.Error())
		}
	}
	if !out.Start.IsZero() && !out.End.IsZero() && out.End.Before(out.Start) {
		return out, errors.New("end_date раньше start_date")
	}
	return out, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.New("ожидается RFC3339 или YYYY-MM-DD")
	}
	return t, nil
}

// parseUseCache разбирает параметр use_cache. По умолчанию true;
// use_cache=false полностью обходит кэш запросов.
func parseUseCache(r *http.Request) bool {
	return r.URL.Query().Get("use_cache") != "false"
}

// GetFormSummary — реализация GET /api/v1/analytics/{form_id}/summary.
func (h *APIHandler) GetFormSummary(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")
	if formID == "" {
		apierrors.ValidationError(w, "form_id обязателен")
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	summary, err := h.analytics.FormSummary(r.Context(), formID, dr, parseUseCache(r))
	if err != nil {
		h.writeAnalyticsError(w, formID, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetQuestionAnalytics — реализация
// GET /api/v1/analytics/{form_id}/questions/{question_id}.
func (h *APIHandler) GetQuestionAnalytics(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")
	questionID := chi.URLParam(r, "question_id")
	if formID == "" || questionID == "" {
		apierrors.ValidationError(w, "form_id и question_id обязательны")
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	qa, err := h.analytics.QuestionAnalytics(r.Context(), formID, questionID, dr, parseUseCache(r))
	if err != nil {
		h.writeAnalyticsError(w, formID, err)
		return
	}

	writeJSON(w, http.StatusOK, qa)
}

// GetTrendAnalysis — реализация GET /api/v1/analytics/{form_id}/trend.
// Параметр period: hour, day (по умолчанию), week, month.
func (h *APIHandler) GetTrendAnalysis(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")
	if formID == "" {
		apierrors.ValidationError(w, "form_id обязателен")
		return
	}

	period := model.TrendPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = model.PeriodDay
	}
	if !model.ValidPeriod(period) {
		apierrors.ValidationError(w, "period: допустимые значения hour, day, week, month")
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ta, err := h.analytics.TrendAnalysis(r.Context(), formID, period, dr, parseUseCache(r))
	if err != nil {
		h.writeAnalyticsError(w, formID, err)
		return
	}

	writeJSON(w, http.StatusOK, ta)
}

// InvalidateCache — реализация POST /api/v1/analytics/cache/invalidate.
// Только для роли admin (проверяется middleware).
func (h *APIHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req model.InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	if !req.All && req.FormID == "" {
		apierrors.ValidationError(w, "укажите form_id или all=true")
		return
	}
	if req.All && (req.FormID != "" || req.QuestionID != "") {
		apierrors.ValidationError(w, "all=true несовместим с form_id и question_id")
		return
	}

	res := h.analytics.Invalidate(r.Context(), req)
	writeJSON(w, http.StatusOK, res)
}

// GetCacheStats — реализация GET /api/v1/analytics/cache/stats.
// Только для роли admin (проверяется middleware).
func (h *APIHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analytics.CacheStats(r.Context()))
}

// writeAnalyticsError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeAnalyticsError(w http.ResponseWriter, formID string, err error) {
	if errors.Is(err, warehouse.ErrFormNotFound) {
		apierrors.NotFound(w, "Форма не найдена")
		return
	}
	h.logger.Error("Ошибка чтения аналитики",
		slog.String("form_id", formID),
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, "Внутренняя ошибка при чтении аналитики")
}
