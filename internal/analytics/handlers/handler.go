// handler.go — основной обработчик API Analytics Service.
// Объединяет health и бизнес-обработчики аналитики.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/formsight/formsight/internal/analytics/service"
	"github.com/formsight/formsight/internal/api/handlers"
)

// APIHandler — основной обработчик API Analytics Service.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health    *handlers.HealthHandler
	analytics *service.AnalyticsService
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *handlers.HealthHandler,
	analytics *service.AnalyticsService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		analytics: analytics,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
