// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the ops middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// HoursCacheConfig provides settings for the business hours cache.
type HoursCacheConfig interface {
	GetRedisURL() string
	GetHoursCacheTTL() time.Duration
}

// DeliveryConfig provides settings for the delivery dispatcher.
type DeliveryConfig interface {
	GetDeliveryTimeout() time.Duration
	GetDeliveryMaxAttempts() int
	GetDeliveryBodyCap() int64
	GetPostbackBaseURL() string
	GetDeliveryAllowInsecure() bool
}

// ArchiveConfig provides settings for the delivery audit archive.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetArchiveBucket() string
	IsArchiveEnabled() bool
}

// AlertConfig provides settings for the alert emitter.
type AlertConfig interface {
	GetAlertEmailEnabled() bool
	GetAlertRecipients() []string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromName() string
	GetAlertFromAddress() string
}

// SweepConfig provides settings for the rescheduler sweeps.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetUnmatchedRetryWindow() time.Duration
	GetStalePendingAfter() time.Duration
	GetFailureBurstThreshold() int
}

// =============================================================================
// Config Implementation
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr     string
	CORSAllowAll bool
	CORSOrigins  []string

	DatabaseURL string

	JWTAccessSecret string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	HoursCacheTTL time.Duration

	DeliveryTimeout       time.Duration
	DeliveryMaxAttempts   int
	DeliveryBodyCap       int64
	PostbackBaseURL       string
	DeliveryAllowInsecure bool

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	ArchiveBucket  string
	ArchiveEnabled bool

	AlertEmailEnabled bool
	AlertRecipients   []string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	AlertFromName     string
	AlertFromAddress  string

	SweepInterval         time.Duration
	UnmatchedRetryWindow  time.Duration
	StalePendingAfter     time.Duration
	FailureBurstThreshold int
}

// Load reads configuration from the environment, loading .env first if present.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),

		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:  splitEnv("CORS_ORIGINS"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "leadflow"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		HoursCacheTTL: getDurationEnv("HOURS_CACHE_TTL", 3*time.Minute),

		DeliveryTimeout:       getDurationEnv("DELIVERY_TIMEOUT", 15*time.Second),
		DeliveryMaxAttempts:   getIntEnv("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryBodyCap:       int64(getIntEnv("DELIVERY_BODY_CAP_BYTES", 64*1024)),
		PostbackBaseURL:       getEnv("POSTBACK_BASE_URL", "https://localhost:8080"),
		DeliveryAllowInsecure: getBoolEnv("DELIVERY_ALLOW_INSECURE", false),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:    getBoolEnv("MINIO_USE_SSL", true),
		ArchiveBucket:  getEnv("DELIVERY_ARCHIVE_BUCKET", "delivery-archive"),
		ArchiveEnabled: getBoolEnv("DELIVERY_ARCHIVE_ENABLED", false),

		AlertEmailEnabled: getBoolEnv("ALERT_EMAIL_ENABLED", false),
		AlertRecipients:   splitEnv("ALERT_RECIPIENTS"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		AlertFromName:     getEnv("ALERT_FROM_NAME", "Leadflow Alerts"),
		AlertFromAddress:  getEnv("ALERT_FROM_ADDRESS", "alerts@localhost"),

		SweepInterval:         getDurationEnv("SWEEP_INTERVAL", 30*time.Second),
		UnmatchedRetryWindow:  getDurationEnv("UNMATCHED_RETRY_WINDOW", 24*time.Hour),
		StalePendingAfter:     getDurationEnv("STALE_PENDING_AFTER", 15*time.Minute),
		FailureBurstThreshold: getIntEnv("FAILURE_BURST_THRESHOLD", 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required outside development")
	}
	if cfg.ArchiveEnabled && cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required when the delivery archive is enabled")
	}
	if cfg.AlertEmailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when alert email is enabled")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string                 { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string             { return c.JWTAccessSecret }
func (c *Config) GetHTTPAddr() string                    { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool                  { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string               { return c.CORSOrigins }
func (c *Config) GetRedisURL() string                    { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool              { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string              { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int               { return c.AsynqConcurrency }
func (c *Config) GetHoursCacheTTL() time.Duration        { return c.HoursCacheTTL }
func (c *Config) GetDeliveryTimeout() time.Duration      { return c.DeliveryTimeout }
func (c *Config) GetDeliveryMaxAttempts() int            { return c.DeliveryMaxAttempts }
func (c *Config) GetDeliveryBodyCap() int64              { return c.DeliveryBodyCap }
func (c *Config) GetPostbackBaseURL() string             { return c.PostbackBaseURL }
func (c *Config) GetDeliveryAllowInsecure() bool         { return c.DeliveryAllowInsecure }
func (c *Config) GetMinIOEndpoint() string               { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string              { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string              { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                   { return c.MinIOUseSSL }
func (c *Config) GetArchiveBucket() string               { return c.ArchiveBucket }
func (c *Config) IsArchiveEnabled() bool                 { return c.ArchiveEnabled }
func (c *Config) GetAlertEmailEnabled() bool             { return c.AlertEmailEnabled }
func (c *Config) GetAlertRecipients() []string           { return c.AlertRecipients }
func (c *Config) GetSMTPHost() string                    { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                       { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string                { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string                { return c.SMTPPassword }
func (c *Config) GetAlertFromName() string               { return c.AlertFromName }
func (c *Config) GetAlertFromAddress() string            { return c.AlertFromAddress }
func (c *Config) GetSweepInterval() time.Duration        { return c.SweepInterval }
func (c *Config) GetUnmatchedRetryWindow() time.Duration { return c.UnmatchedRetryWindow }
func (c *Config) GetStalePendingAfter() time.Duration    { return c.StalePendingAfter }
func (c *Config) GetFailureBurstThreshold() int          { return c.FailureBurstThreshold }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
