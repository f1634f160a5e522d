package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/devpulse")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.RangeKey != "last_7_days" || cfg.DeltaThreshold != 300 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.DailySyncInterval >= cfg.WeeklySyncInterval {
		t.Error("daily sync should run more often than weekly")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/devpulse")
	t.Setenv("ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DAILY_TTL", "90s")
	t.Setenv("PROVIDER_RATE_PER_SECOND", "2.5")
	t.Setenv("SYNC_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.DailyTTL != 90*time.Second || cfg.ProviderRatePerSecond != 2.5 {
		t.Errorf("overrides not applied: ttl=%v rate=%v", cfg.DailyTTL, cfg.ProviderRatePerSecond)
	}
	if cfg.SyncConcurrency != 8 {
		t.Errorf("unparseable values should fall back, got %d", cfg.SyncConcurrency)
	}
}

func TestLoadMissingPostgres(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_URL") {
		t.Errorf("expected missing POSTGRES_URL error, got %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"ENV":                  "staging",
		"WEEKLY_SYNC_INTERVAL": "1m",
		"PROVIDER_BASE_URL":    "not a url",
		"SYNC_CONCURRENCY":     "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("POSTGRES_URL", "postgres://localhost/devpulse")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q should be rejected", key, value)
			}
		})
	}
}
