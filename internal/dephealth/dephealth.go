// Пакет dephealth — мониторинг зависимостей через topologymetrics SDK.
//
// Analytics Service мониторит PostgreSQL (critical) и IdP (JWKS endpoint).
// Upload Service дополнительно мониторит S3-совместимое хранилище
// через HTTP checker.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package dephealth

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
)

// Dependency — описание одной HTTP-зависимости сервиса.
type Dependency struct {
	// Имя вершины графа зависимостей
	Name string
	// Базовый URL зависимости
	URL string
	// Путь health-проверки (по умолчанию /health/ready)
	HealthPath string
	// Критичность: при false сбой не влияет на readiness сервиса
	Critical bool
}

// Service — сервис мониторинга зависимостей.
type Service struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// New создаёт сервис мониторинга зависимостей. Метрики регистрируются
// в глобальном Prometheus registry.
//
// PostgreSQL проверяется в connection pool mode: через *sql.DB
// (адаптер pgxpool из stdlib.OpenDBFromPool), что отражает реальное
// состояние пула соединений. db может быть nil, если сервис не
// использует PostgreSQL.
func New(
	serviceID string,
	group string,
	db *sql.DB,
	pgConnURL string,
	httpDeps []Dependency,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*Service, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
	}

	if db != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(pgConnURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
	}

	for _, dep := range httpDeps {
		healthPath := dep.HealthPath
		if healthPath == "" {
			healthPath = "/health/ready"
		}
		opts = append(opts, dephealth.HTTP(dep.Name,
			dephealth.FromURL(dep.URL),
			dephealth.WithHTTPHealthPath(healthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(dep.Critical),
		))
	}

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Мониторинг зависимостей запущен")
	return s.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (s *Service) Stop() {
	s.dh.Stop()
	s.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (s *Service) Health() map[string]bool {
	return s.dh.Health()
}
