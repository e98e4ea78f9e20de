package token

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.Issuer != "haven" {
		t.Fatalf("Issuer = %q, want %q", cfg.Issuer, "haven")
	}
	if cfg.AccessTTL != 48*time.Hour {
		t.Fatalf("AccessTTL = %v, want %v", cfg.AccessTTL, 48*time.Hour)
	}
	if cfg.RefreshTTL != 336*time.Hour {
		t.Fatalf("RefreshTTL = %v, want %v", cfg.RefreshTTL, 336*time.Hour)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("HAVEN_TOKEN_ISSUER", "haven-test")
	t.Setenv("HAVEN_TOKEN_ACCESS_TTL", "1h")
	t.Setenv("HAVEN_TOKEN_REFRESH_TTL", "24h")

	cfg := LoadConfigFromEnv()
	if cfg.Issuer != "haven-test" {
		t.Fatalf("Issuer = %q, want %q", cfg.Issuer, "haven-test")
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("AccessTTL = %v, want %v", cfg.AccessTTL, time.Hour)
	}
	if cfg.RefreshTTL != 24*time.Hour {
		t.Fatalf("RefreshTTL = %v, want %v", cfg.RefreshTTL, 24*time.Hour)
	}
}

func TestLoadConfigFromEnvRefreshNotShorterThanAccess(t *testing.T) {
	t.Setenv("HAVEN_TOKEN_ACCESS_TTL", "48h")
	t.Setenv("HAVEN_TOKEN_REFRESH_TTL", "1h")

	cfg := LoadConfigFromEnv()
	if cfg.RefreshTTL != 336*time.Hour {
		t.Fatalf("RefreshTTL = %v, want fallback %v", cfg.RefreshTTL, 336*time.Hour)
	}
}
