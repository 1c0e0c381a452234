// Пакет config — загрузка и валидация конфигурации Upload Service
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Upload Service.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8050-8059)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration

	// --- База данных ---

	// DSN подключения к PostgreSQL
	DatabaseDSN string
	// Выполнять миграции при старте (по умолчанию true)
	MigrateOnStart bool

	// --- Объектное хранилище ---

	// Адрес S3-совместимого хранилища. Пустое значение — AWS S3.
	S3Endpoint string
	// Регион (по умолчанию us-east-1)
	S3Region string
	// Имя бакета
	S3Bucket string
	// Path-style адресация (требуется для MinIO, по умолчанию true)
	S3UsePathStyle bool

	// --- Гранты на загрузку ---

	// Срок действия гранта (по умолчанию 1h)
	GrantTTL time.Duration

	// --- Очистка ---

	// Интервал фоновой очистки (по умолчанию 1h)
	CleanupInterval time.Duration
	// Максимум заявок за один проход очистки (по умолчанию 500)
	CleanupBatchSize int

	// --- JWT ---

	// URL JWKS-эндпоинта IdP
	JWKSURL string
	// Путь к CA-сертификату для TLS-соединения с IdP (опционально)
	JWKSCAFile string
	// Группы IdP, дающие роль admin (через запятую)
	AdminGroups []string

	// --- Rate limiting ---

	// Лимит создания заявок на пользователя в час (по умолчанию 30)
	UploadRateLimit int
}

// Load загружает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// US_PORT — порт HTTP-сервера (по умолчанию 8050)
	cfg.Port, err = getEnvInt("US_PORT", 8050)
	if err != nil {
		return nil, fmt.Errorf("US_PORT: %w", err)
	}

	// US_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("US_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("US_LOG_LEVEL: %w", err)
	}

	// US_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("US_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("US_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("US_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("US_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("US_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("US_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("US_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("US_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("US_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("US_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- База данных ---

	cfg.DatabaseDSN, err = getEnvRequired("US_DATABASE_DSN")
	if err != nil {
		return nil, err
	}
	cfg.MigrateOnStart, err = getEnvBool("US_MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("US_MIGRATE_ON_START: %w", err)
	}

	// --- Объектное хранилище ---

	cfg.S3Endpoint = getEnvDefault("US_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("US_S3_REGION", "us-east-1")
	cfg.S3Bucket, err = getEnvRequired("US_S3_BUCKET")
	if err != nil {
		return nil, err
	}
	cfg.S3UsePathStyle, err = getEnvBool("US_S3_USE_PATH_STYLE", true)
	if err != nil {
		return nil, fmt.Errorf("US_S3_USE_PATH_STYLE: %w", err)
	}

	// --- Гранты на загрузку ---

	// US_GRANT_TTL — срок действия гранта (по умолчанию 1h)
	cfg.GrantTTL, err = getEnvDuration("US_GRANT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("US_GRANT_TTL: %w", err)
	}
	if cfg.GrantTTL <= 0 {
		return nil, fmt.Errorf("US_GRANT_TTL: значение должно быть > 0")
	}

	// --- Очистка ---

	cfg.CleanupInterval, err = getEnvDuration("US_CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("US_CLEANUP_INTERVAL: %w", err)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("US_CLEANUP_INTERVAL: значение должно быть > 0")
	}
	cfg.CleanupBatchSize, err = getEnvInt("US_CLEANUP_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("US_CLEANUP_BATCH_SIZE: %w", err)
	}
	if cfg.CleanupBatchSize <= 0 {
		return nil, fmt.Errorf("US_CLEANUP_BATCH_SIZE: значение должно быть > 0")
	}

	// --- JWT ---

	cfg.JWKSURL, err = getEnvRequired("US_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWKSCAFile = getEnvDefault("US_JWKS_CA_FILE", "")

	adminGroups := getEnvDefault("US_ADMIN_GROUPS", "formsight-admins")
	cfg.AdminGroups = splitAndTrim(adminGroups)

	// --- Rate limiting ---

	cfg.UploadRateLimit, err = getEnvInt("US_RATE_LIMIT_UPLOADS", 30)
	if err != nil {
		return nil, fmt.Errorf("US_RATE_LIMIT_UPLOADS: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// splitAndTrim разбивает строку по запятым и убирает пробелы.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
