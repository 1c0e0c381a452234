// Пакет config — загрузка и валидация конфигурации Analytics Service
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

// Config содержит все параметры конфигурации Analytics Service.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- База данных (хранилище ответов) ---

	// DSN подключения к PostgreSQL
	DatabaseDSN string
	// Выполнять миграции при старте (по умолчанию true)
	MigrateOnStart bool

	// --- Кэш запросов ---

	// Адрес Valkey (host:port). Пустое значение — in-memory кэш.
	ValkeyAddr string
	// Пароль Valkey (опционально)
	ValkeyPassword string
	// TTL сводки по форме (по умолчанию 15m)
	SummaryTTL time.Duration
	// TTL аналитики по вопросу (по умолчанию 15m)
	QuestionTTL time.Duration
	// TTL анализа трендов (по умолчанию 1h)
	TrendTTL time.Duration

	// --- JWT ---

	// URL JWKS-эндпоинта IdP
	JWKSURL string
	// Путь к CA-сертификату для TLS-соединения с IdP (опционально)
	JWKSCAFile string
	// Группы IdP, дающие роль admin (через запятую)
	AdminGroups []string

	// --- Rate limiting ---

	// Лимит запросов сводки на пользователя в час (по умолчанию 100)
	SummaryRateLimit int
	// Лимит запросов по вопросам на пользователя в час (по умолчанию 200)
	QuestionRateLimit int
	// Лимит запросов трендов на пользователя в час (по умолчанию 50)
	TrendRateLimit int
	// Лимит административных инвалидаций за 5 минут (по умолчанию 10)
	InvalidateRateLimit int
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AS_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("AS_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("AS_PORT: %w", err)
	}

	// AS_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("AS_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("AS_LOG_LEVEL: %w", err)
	}

	// AS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AS_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("AS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("AS_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("AS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("AS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- База данных ---

	// AS_DATABASE_DSN — строка подключения к PostgreSQL (обязательная)
	cfg.DatabaseDSN, err = getEnvRequired("AS_DATABASE_DSN")
	if err != nil {
		return nil, err
	}

	// AS_MIGRATE_ON_START — выполнять миграции при старте (по умолчанию true)
	cfg.MigrateOnStart, err = getEnvBool("AS_MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("AS_MIGRATE_ON_START: %w", err)
	}

	// --- Кэш запросов ---

	// AS_VALKEY_ADDR — адрес Valkey. Если не задан, используется in-memory кэш.
	cfg.ValkeyAddr = getEnvDefault("AS_VALKEY_ADDR", "")
	cfg.ValkeyPassword = getEnvDefault("AS_VALKEY_PASSWORD", "")

	cfg.SummaryTTL, err = getEnvDuration("AS_CACHE_SUMMARY_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AS_CACHE_SUMMARY_TTL: %w", err)
	}
	cfg.QuestionTTL, err = getEnvDuration("AS_CACHE_QUESTION_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AS_CACHE_QUESTION_TTL: %w", err)
	}
	cfg.TrendTTL, err = getEnvDuration("AS_CACHE_TREND_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AS_CACHE_TREND_TTL: %w", err)
	}
	if cfg.SummaryTTL <= 0 || cfg.QuestionTTL <= 0 || cfg.TrendTTL <= 0 {
		return nil, fmt.Errorf("TTL кэша должен быть > 0")
	}

	// --- JWT ---

	// AS_JWKS_URL — URL JWKS-эндпоинта IdP (обязательная)
	cfg.JWKSURL, err = getEnvRequired("AS_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// AS_JWKS_CA_FILE — CA-сертификат для TLS-соединения с IdP (опционально)
	cfg.JWKSCAFile = getEnvDefault("AS_JWKS_CA_FILE", "")

	// AS_ADMIN_GROUPS — группы IdP с ролью admin (по умолчанию formsight-admins)
	adminGroups := getEnvDefault("AS_ADMIN_GROUPS", "formsight-admins")
	cfg.AdminGroups = splitAndTrim(adminGroups)

	// --- Rate limiting ---

	cfg.SummaryRateLimit, err = getEnvInt("AS_RATE_LIMIT_SUMMARY", 100)
	if err != nil {
		return nil, fmt.Errorf("AS_RATE_LIMIT_SUMMARY: %w", err)
	}
	cfg.QuestionRateLimit, err = getEnvInt("AS_RATE_LIMIT_QUESTION", 200)
	if err != nil {
		return nil, fmt.Errorf("AS_RATE_LIMIT_QUESTION: %w", err)
	}
	cfg.TrendRateLimit, err = getEnvInt("AS_RATE_LIMIT_TREND", 50)
	if err != nil {
		return nil, fmt.Errorf("AS_RATE_LIMIT_TREND: %w", err)
	}
	cfg.InvalidateRateLimit, err = getEnvInt("AS_RATE_LIMIT_INVALIDATE", 10)
	if err != nil {
		return nil, fmt.Errorf("AS_RATE_LIMIT_INVALIDATE: %w", err)
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
// Пустые элементы отбрасываются.
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
