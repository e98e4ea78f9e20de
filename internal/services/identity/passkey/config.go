package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// RPIDMode selects how the relying party id derives from a request origin.
type RPIDMode string

const (
	// RPIDModeStatic uses the configured RPID for every origin.
	RPIDModeStatic RPIDMode = "static"
	// RPIDModeOrigin uses the request origin's hostname as the RPID.
	RPIDModeOrigin RPIDMode = "origin"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"HAVEN_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Haven"`
	RPID          string        `env:"HAVEN_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPIDMode      RPIDMode      `env:"HAVEN_WEBAUTHN_RP_ID_MODE"      envDefault:"static"`
	ChallengeTTL  time.Duration `env:"HAVEN_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Haven",
			RPID:          "localhost",
			RPIDMode:      RPIDModeStatic,
			ChallengeTTL:  5 * time.Minute,
		}
	}
	if cfg.RPIDMode != RPIDModeOrigin {
		cfg.RPIDMode = RPIDModeStatic
	}
	return cfg
}
