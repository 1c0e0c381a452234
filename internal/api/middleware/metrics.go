// metrics.go — Prometheus HTTP метрики для сервисов Formsight.
// Регистрирует метрики: formsight_http_requests_total,
// formsight_http_request_duration_seconds (лейбл service различает сервисы).
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Formsight
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsight_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"service", "method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsight_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// service — имя сервиса для лейбла (analytics-service, upload-service).
func MetricsMiddleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем динамические сегменты на плейсхолдеры)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(service, r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(service, r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет динамические сегменты пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/analytics/f-123/summary → /api/v1/analytics/{form_id}/summary
// /api/v1/uploads/a1b2.../events → /api/v1/uploads/{id}/events
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/uploads", "/api/v1/admin/cleanup",
		"/api/v1/analytics/cache/stats":
		return path
	}

	segments := strings.Split(path, "/")

	// /api/v1/analytics/{form_id}/...
	if len(segments) >= 5 && segments[1] == "api" && segments[2] == "v1" && segments[3] == "analytics" {
		segments[4] = "{form_id}"
		// /api/v1/analytics/{form_id}/questions/{question_id}
		if len(segments) >= 7 && segments[5] == "questions" {
			segments[6] = "{question_id}"
		}
		return strings.Join(segments, "/")
	}

	// /api/v1/uploads/{id} и /api/v1/uploads/{id}/events
	if len(segments) >= 5 && segments[1] == "api" && segments[2] == "v1" && segments[3] == "uploads" {
		segments[4] = "{id}"
		return strings.Join(segments, "/")
	}

	// /api/v1/files/{filename}
	if len(segments) >= 5 && segments[1] == "api" && segments[2] == "v1" && segments[3] == "files" {
		segments[4] = "{filename}"
		return strings.Join(segments, "/")
	}

	return path
}
