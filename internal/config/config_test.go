package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" || cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 720*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("RedisURL default = %q, want empty", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("LISTS_ACCESS_TTL", "90s")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" || cfg.AccessTTL != 90*time.Second || cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("LISTS_REFRESH_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("LISTS_ACCESS_TTL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
