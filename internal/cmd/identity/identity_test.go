package identity

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8086 {
		t.Fatalf("expected default port 8086, got %d", cfg.Port)
	}
}

func TestParseConfigEnvOverride(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "HAVEN_IDENTITY_PORT" {
			return "9001", true
		}
		return "", false
	}
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Port)
	}
}

func TestParseConfigFlagBeatsEnv(t *testing.T) {
	lookup := func(string) (string, bool) { return "9001", true }
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9100"}, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected port 9100, got %d", cfg.Port)
	}
}

func TestParseConfigIgnoresBadEnvPort(t *testing.T) {
	lookup := func(string) (string, bool) { return "not-a-port", true }
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8086 {
		t.Fatalf("expected fallback port 8086, got %d", cfg.Port)
	}
}
