package admission

import "github.com/caarlos0/env/v11"

// Config is the deployment's member-capacity policy.
type Config struct {
	AllowRegistration bool `env:"HAVEN_ADMISSION_ALLOW_REGISTRATION" envDefault:"true"`
	// MaxMembers caps members plus pending temp members; zero means no cap.
	MaxMembers int `env:"HAVEN_ADMISSION_MAX_MEMBERS" envDefault:"0"`
}

// LoadConfigFromEnv returns admission configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{AllowRegistration: true}
	}
	if cfg.MaxMembers < 0 {
		cfg.MaxMembers = 0
	}
	return cfg
}
