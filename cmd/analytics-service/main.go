// main.go — точка входа Analytics Service.
// Собирает зависимости явно: конфигурация, логгер, PostgreSQL,
// кэш запросов, JWT, rate limiting, мониторинг зависимостей, HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/formsight/formsight/internal/analytics/cache"
	"github.com/formsight/formsight/internal/analytics/config"
	"github.com/formsight/formsight/internal/analytics/handlers"
	"github.com/formsight/formsight/internal/analytics/service"
	"github.com/formsight/formsight/internal/analytics/warehouse"
	apihandlers "github.com/formsight/formsight/internal/api/handlers"
	"github.com/formsight/formsight/internal/api/middleware"
	"github.com/formsight/formsight/internal/database"
	"github.com/formsight/formsight/internal/dephealth"
	"github.com/formsight/formsight/internal/kvstore"
	"github.com/formsight/formsight/internal/server"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Analytics Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	if cfg.MigrateOnStart {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg.DatabaseDSN, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Хранилище кэша: Valkey или in-memory fallback
	var store kvstore.Store
	if cfg.ValkeyAddr != "" {
		store, err = kvstore.NewValkeyStore(ctx, cfg.ValkeyAddr, cfg.ValkeyPassword)
		if err != nil {
			logger.Error("Ошибка подключения к Valkey", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Кэш запросов: Valkey", slog.String("addr", cfg.ValkeyAddr))
	} else {
		store = kvstore.NewMemoryStore()
		logger.Warn("AS_VALKEY_ADDR не задан, кэш запросов работает в памяти процесса")
	}
	defer func() { _ = store.Close() }()

	// 6. Кэш запросов и сервис аналитики
	queryCache := cache.New(store, cache.TTLConfig{
		Summary:  cfg.SummaryTTL,
		Question: cfg.QuestionTTL,
		Trend:    cfg.TrendTTL,
	}, logger)
	analyticsSvc := service.New(warehouse.New(pool), queryCache, logger)

	// 7. Мониторинг зависимостей (topologymetrics).
	// Адаптер pgxpool → *sql.DB: проверка идёт через существующий пул.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	depSvc, err := dephealth.New("analytics-service", "formsight", pgDB, cfg.DatabaseDSN,
		nil, 30*time.Second, logger)
	if err != nil {
		logger.Error("Ошибка создания мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := depSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer depSvc.Stop()

	// 8. Readiness checkers: PostgreSQL критичен, кэш — degraded
	healthHandler := apihandlers.NewHealthHandler("analytics-service", config.Version,
		map[string]apihandlers.ReadinessChecker{
			"postgresql": database.NewReadinessChecker(pool),
			"cache":      kvstore.NewReadinessChecker(store),
		})

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, analyticsSvc, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSURL, cfg.JWKSCAFile, "", cfg.AdminGroups,
		10*time.Second, 15*time.Minute, 30*time.Second, logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()

	// 11. Rate limiters: окна на пользователя по типам запросов
	summaryLimit := middleware.NewWindowLimiter(cfg.SummaryRateLimit, time.Hour)
	questionLimit := middleware.NewWindowLimiter(cfg.QuestionRateLimit, time.Hour)
	trendLimit := middleware.NewWindowLimiter(cfg.TrendRateLimit, time.Hour)
	invalidateLimit := middleware.NewWindowLimiter(cfg.InvalidateRateLimit, 5*time.Minute)

	// 12. Маршрутизация
	r := chi.NewRouter()
	r.Use(middleware.MetricsMiddleware("analytics-service"))
	r.Use(middleware.RequestLogger("analytics-service", logger))
	r.Use(middleware.WithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"))

	r.Get("/health/live", apiHandler.HealthLive)
	r.Get("/health/ready", apiHandler.HealthReady)
	r.Get("/metrics", apiHandler.GetMetrics)

	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.With(middleware.RateLimit(summaryLimit)).
			Get("/{form_id}/summary", apiHandler.GetFormSummary)
		r.With(middleware.RateLimit(questionLimit)).
			Get("/{form_id}/questions/{question_id}", apiHandler.GetQuestionAnalytics)
		r.With(middleware.RateLimit(trendLimit)).
			Get("/{form_id}/trend", apiHandler.GetTrendAnalysis)

		// Административные операции кэша
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.With(middleware.RateLimit(invalidateLimit)).
				Post("/cache/invalidate", apiHandler.InvalidateCache)
			r.Get("/cache/stats", apiHandler.GetCacheStats)
		})
	})

	// 13. HTTP-сервер с graceful shutdown
	srv := server.New(server.Options{
		Port:            cfg.Port,
		ReadTimeout:     cfg.HTTPReadTimeout,
		WriteTimeout:    cfg.HTTPWriteTimeout,
		IdleTimeout:     cfg.HTTPIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, r, logger)

	// 14. Запуск сервера (блокирующий вызов)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Analytics Service остановлен")
}
