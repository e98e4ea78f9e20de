package token

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls session token issuance.
type Config struct {
	Issuer     string        `env:"HAVEN_TOKEN_ISSUER"      envDefault:"haven"`
	AccessTTL  time.Duration `env:"HAVEN_TOKEN_ACCESS_TTL"  envDefault:"48h"`
	RefreshTTL time.Duration `env:"HAVEN_TOKEN_REFRESH_TTL" envDefault:"336h"`
}

// LoadConfigFromEnv returns token configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{Issuer: "haven", AccessTTL: 48 * time.Hour, RefreshTTL: 336 * time.Hour}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 48 * time.Hour
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		cfg.RefreshTTL = 336 * time.Hour
	}
	return cfg
}
