package passkey

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "localhost" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "localhost")
	}
	if cfg.RPDisplayName != "Haven" {
		t.Fatalf("RPDisplayName = %q, want %q", cfg.RPDisplayName, "Haven")
	}
	if cfg.RPIDMode != RPIDModeStatic {
		t.Fatalf("RPIDMode = %q, want %q", cfg.RPIDMode, RPIDModeStatic)
	}
	if cfg.ChallengeTTL != 5*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 5*time.Minute)
	}
}

func TestLoadConfigFromEnvCustomRPID(t *testing.T) {
	t.Setenv("HAVEN_WEBAUTHN_RP_ID", "example.com")
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "example.com" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "example.com")
	}
}

func TestLoadConfigFromEnvOriginMode(t *testing.T) {
	t.Setenv("HAVEN_WEBAUTHN_RP_ID_MODE", "origin")
	cfg := LoadConfigFromEnv()
	if cfg.RPIDMode != RPIDModeOrigin {
		t.Fatalf("RPIDMode = %q, want %q", cfg.RPIDMode, RPIDModeOrigin)
	}
}

func TestLoadConfigFromEnvUnknownModeFallsBack(t *testing.T) {
	t.Setenv("HAVEN_WEBAUTHN_RP_ID_MODE", "bogus")
	cfg := LoadConfigFromEnv()
	if cfg.RPIDMode != RPIDModeStatic {
		t.Fatalf("RPIDMode = %q, want %q", cfg.RPIDMode, RPIDModeStatic)
	}
}

func TestLoadConfigFromEnvCustomTTL(t *testing.T) {
	t.Setenv("HAVEN_WEBAUTHN_CHALLENGE_TTL", "10m")
	cfg := LoadConfigFromEnv()
	if cfg.ChallengeTTL != 10*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 10*time.Minute)
	}
}

func TestProviderRPIDDerivation(t *testing.T) {
	p := NewProvider(Config{RPID: "example.com", RPIDMode: RPIDModeStatic})
	rpID, err := p.RPID("https://sub.other.test:8443")
	if err != nil {
		t.Fatalf("RPID: %v", err)
	}
	if rpID != "example.com" {
		t.Fatalf("static RPID = %q, want example.com", rpID)
	}

	p = NewProvider(Config{RPIDMode: RPIDModeOrigin})
	rpID, err = p.RPID("https://sub.other.test:8443")
	if err != nil {
		t.Fatalf("RPID: %v", err)
	}
	if rpID != "sub.other.test" {
		t.Fatalf("origin RPID = %q, want sub.other.test", rpID)
	}
}
