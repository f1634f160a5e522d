package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Server
	Port int    `validate:"min=1,max=65535"`
	Env  string `validate:"oneof=development production test"`

	// CORS
	AllowedOrigins []string

	// Database URLs. ClickHouse and Redis are optional; without them the
	// fetch archive and unlock notifications are disabled.
	PostgresURL   string `validate:"required"`
	ClickHouseURL string
	RedisURL      string

	// Provider
	ProviderBaseURL       string        `validate:"required,url"`
	ProviderTimeout       time.Duration `validate:"gt=0"`
	ProviderRatePerSecond float64       `validate:"gt=0"`
	ProviderBurst         int           `validate:"min=1"`
	BreakerFailures       int           `validate:"min=1"`
	BreakerCooldown       time.Duration `validate:"gt=0"`

	// Sync
	DailySyncInterval  time.Duration `validate:"gt=0"`
	WeeklySyncInterval time.Duration `validate:"gtfield=DailySyncInterval"`
	DailyTTL           time.Duration `validate:"gt=0"`
	WeeklyTTL          time.Duration `validate:"gt=0"`
	RangeKey           string        `validate:"required"`
	SyncConcurrency    int           `validate:"min=1"`
	YesterdayGrace     time.Duration `validate:"min=0"`

	// Leaderboard
	DeltaThreshold int64 `validate:"min=0"`
	PodiumCount    int   `validate:"min=0"`
	AroundCount    int   `validate:"min=0"`

	// Fetch archive pool
	ArchiveWorkers       int
	ArchiveQueueSize     int
	ArchiveBatchSize     int
	ArchiveFlushInterval time.Duration

	// Backfill
	BackfillMaxRetries    int           `validate:"min=0"`
	BackfillBaseDelay     time.Duration `validate:"gt=0"`
	BackfillMaxDelay      time.Duration `validate:"gtefield=BackfillBaseDelay"`
	BackfillProgressEvery int           `validate:"min=1"`
}

var validate = validator.New()

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", "https://wakatime.com/api/v1"),
		ProviderTimeout:       getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
		ProviderRatePerSecond: getEnvFloat("PROVIDER_RATE_PER_SECOND", 5),
		ProviderBurst:         getEnvInt("PROVIDER_BURST", 10),
		BreakerFailures:       getEnvInt("PROVIDER_BREAKER_FAILURES", 5),
		BreakerCooldown:       getEnvDuration("PROVIDER_BREAKER_COOLDOWN", 30*time.Second),

		DailySyncInterval:  getEnvDuration("DAILY_SYNC_INTERVAL", 10*time.Minute),
		WeeklySyncInterval: getEnvDuration("WEEKLY_SYNC_INTERVAL", time.Hour),
		DailyTTL:           getEnvDuration("DAILY_TTL", 5*time.Minute),
		WeeklyTTL:          getEnvDuration("WEEKLY_TTL", 30*time.Minute),
		RangeKey:           getEnv("RANGE_KEY", "last_7_days"),
		SyncConcurrency:    getEnvInt("SYNC_CONCURRENCY", 8),
		YesterdayGrace:     getEnvDuration("YESTERDAY_GRACE", 2*time.Hour),

		DeltaThreshold: int64(getEnvInt("DELTA_THRESHOLD_SECONDS", 300)),
		PodiumCount:    getEnvInt("PODIUM_COUNT", 3),
		AroundCount:    getEnvInt("AROUND_COUNT", 1),

		ArchiveWorkers:       getEnvInt("ARCHIVE_WORKERS", 2),
		ArchiveQueueSize:     getEnvInt("ARCHIVE_QUEUE_SIZE", 10000),
		ArchiveBatchSize:     getEnvInt("ARCHIVE_BATCH_SIZE", 500),
		ArchiveFlushInterval: getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 2*time.Second),

		BackfillMaxRetries:    getEnvInt("BACKFILL_MAX_RETRIES", 5),
		BackfillBaseDelay:     getEnvDuration("BACKFILL_BASE_DELAY", 500*time.Millisecond),
		BackfillMaxDelay:      getEnvDuration("BACKFILL_MAX_DELAY", 30*time.Second),
		BackfillProgressEvery: getEnvInt("BACKFILL_PROGRESS_EVERY", 500),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether verbose development logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
