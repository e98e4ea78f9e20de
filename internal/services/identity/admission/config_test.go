package admission

import "testing"

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if !cfg.AllowRegistration {
		t.Fatal("AllowRegistration = false, want true")
	}
	if cfg.MaxMembers != 0 {
		t.Fatalf("MaxMembers = %d, want 0", cfg.MaxMembers)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("HAVEN_ADMISSION_ALLOW_REGISTRATION", "false")
	t.Setenv("HAVEN_ADMISSION_MAX_MEMBERS", "25")

	cfg := LoadConfigFromEnv()
	if cfg.AllowRegistration {
		t.Fatal("AllowRegistration = true, want false")
	}
	if cfg.MaxMembers != 25 {
		t.Fatalf("MaxMembers = %d, want 25", cfg.MaxMembers)
	}
}

func TestLoadConfigFromEnvNegativeCap(t *testing.T) {
	t.Setenv("HAVEN_ADMISSION_MAX_MEMBERS", "-3")
	cfg := LoadConfigFromEnv()
	if cfg.MaxMembers != 0 {
		t.Fatalf("MaxMembers = %d, want 0", cfg.MaxMembers)
	}
}
