// main.go — точка входа Upload Service.
// Собирает зависимости явно: конфигурация, логгер, PostgreSQL,
// объектное хранилище, JWT, фоновая очистка, HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/stdlib"

	apihandlers "github.com/formsight/formsight/internal/api/handlers"
	"github.com/formsight/formsight/internal/api/middleware"
	"github.com/formsight/formsight/internal/database"
	"github.com/formsight/formsight/internal/dephealth"
	"github.com/formsight/formsight/internal/server"
	"github.com/formsight/formsight/internal/upload/config"
	"github.com/formsight/formsight/internal/upload/handlers"
	"github.com/formsight/formsight/internal/upload/repository"
	"github.com/formsight/formsight/internal/upload/service"
	"github.com/formsight/formsight/internal/upload/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Upload Service запускается",
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

	// 5. Объектное хранилище
	objStorage, err := storage.New(ctx, storage.Options{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		UsePathStyle: cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Объектное хранилище подключено",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("endpoint", cfg.S3Endpoint),
	)

	// 6. Репозиторий и сервисы
	repo := repository.New(pool)
	uploadSvc := service.New(repo, objStorage, cfg.GrantTTL, logger)
	sweeper := service.NewCleanupSweeper(repo, objStorage, cfg.CleanupInterval, cfg.CleanupBatchSize, logger)

	// 7. Мониторинг зависимостей (topologymetrics).
	// Адаптер pgxpool → *sql.DB: проверка идёт через существующий пул.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	var httpDeps []dephealth.Dependency
	if cfg.S3Endpoint != "" {
		httpDeps = append(httpDeps, dephealth.Dependency{
			Name:       "object-storage",
			URL:        cfg.S3Endpoint,
			HealthPath: "/minio/health/live",
			Critical:   true,
		})
	}

	depSvc, err := dephealth.New("upload-service", "formsight", pgDB, cfg.DatabaseDSN,
		httpDeps, 30*time.Second, logger)
	if err != nil {
		logger.Error("Ошибка создания мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := depSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer depSvc.Stop()

	// 8. Фоновая очистка истёкших заявок
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 9. Readiness checker: PostgreSQL критичен
	healthHandler := apihandlers.NewHealthHandler("upload-service", config.Version,
		map[string]apihandlers.ReadinessChecker{
			"postgresql": database.NewReadinessChecker(pool),
		})

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, uploadSvc, sweeper, logger)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSURL, cfg.JWKSCAFile, "", cfg.AdminGroups,
		10*time.Second, 15*time.Minute, 30*time.Second, logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()

	// 12. Rate limiter на создание заявок
	uploadLimit := middleware.NewWindowLimiter(cfg.UploadRateLimit, time.Hour)

	// 13. Маршрутизация
	r := chi.NewRouter()
	r.Use(middleware.MetricsMiddleware("upload-service"))
	r.Use(middleware.RequestLogger("upload-service", logger))
	r.Use(middleware.WithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"))

	r.Get("/health/live", apiHandler.HealthLive)
	r.Get("/health/ready", apiHandler.HealthReady)
	r.Get("/metrics", apiHandler.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(uploadLimit)).
			Post("/uploads", apiHandler.CreateUpload)
		r.Get("/uploads/{id}", apiHandler.GetUpload)
		r.Post("/uploads/{id}/events", apiHandler.PostUploadEvent)
		r.Delete("/files/{filename}", apiHandler.DeleteFile)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Post("/admin/cleanup", apiHandler.RunCleanup)
		})
	})

	// 14. HTTP-сервер с graceful shutdown
	srv := server.New(server.Options{
		Port:            cfg.Port,
		ReadTimeout:     cfg.HTTPReadTimeout,
		WriteTimeout:    cfg.HTTPWriteTimeout,
		IdleTimeout:     cfg.HTTPIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, r, logger)

	// 15. Запуск сервера (блокирующий вызов)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Upload Service остановлен")
}
