package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabasePath      string
	SessionSecret     string
	GinMode           string
	SuperRootUserName string
	SuperRootPassword string

	LogLevel  string
	LogFormat string

	// DefaultTimezone 是用户未设置时区时使用的日界线，默认 UTC。
	DefaultTimezone     string
	StarterMissionLimit int
	ResolverTimeout     time.Duration
	RetryAttempts       int
	RetryBackoff        time.Duration
	BatchConcurrency    int

	ReconcileEnabled bool
	ReconcileAt      string
	CatalogFile      string

	TrackingRateLimit float64
	TrackingRateBurst int
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 若工作目录存在 .env 文件，会先将其载入环境变量（不覆盖已存在的值）。
func Load() AppConfig {
	_ = godotenv.Load()

	port := envString("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	return AppConfig{
		ListenAddr:          listenAddr,
		Port:                port,
		DatabasePath:        envString("DATABASE_PATH", "wellnesslog.db"),
		SessionSecret:       envString("SESSION_SECRET", "wellnesslog-dev-secret"),
		GinMode:             envString("GIN_MODE", "release"),
		SuperRootUserName:   strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_NAME")),
		SuperRootPassword:   strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD")),
		LogLevel:            envString("LOG_LEVEL", "info"),
		LogFormat:           envString("LOG_FORMAT", "text"),
		DefaultTimezone:     envString("DEFAULT_TIMEZONE", "UTC"),
		StarterMissionLimit: envInt("STARTER_MISSION_LIMIT", 3),
		ResolverTimeout:     envDuration("RESOLVER_TIMEOUT", 3*time.Second),
		RetryAttempts:       envInt("STORE_RETRY_ATTEMPTS", 3),
		RetryBackoff:        envDuration("STORE_RETRY_BACKOFF", 100*time.Millisecond),
		BatchConcurrency:    envInt("BATCH_CONCURRENCY", 4),
		ReconcileEnabled:    envBool("RECONCILE_ENABLED", true),
		ReconcileAt:         envString("RECONCILE_AT", "00:15"),
		CatalogFile:         strings.TrimSpace(os.Getenv("CATALOG_FILE")),
		TrackingRateLimit:   envFloat("TRACKING_RATE_LIMIT", 5),
		TrackingRateBurst:   envInt("TRACKING_RATE_BURST", 10),
	}
}

// Location 解析默认时区，无法识别时回退到 UTC。
func (c AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.DefaultTimezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("load default timezone %q: %w", name, err)
	}
	return loc, nil
}

func envString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
