// Package config loads runtime configuration from the environment and the
// marketplace policy from a YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the process configuration, populated from environment variables.
type Config struct {
	Server struct {
		Addr string `env:"SERVER_ADDR,default=:8080"`
	}

	Database struct {
		// DSN selects the Postgres backend; empty means in-memory.
		DSN string `env:"DATABASE_DSN"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=text"`
		Output string `env:"LOG_OUTPUT,default=stdout"`
	}

	Redis struct {
		// Addr enables the Redis observation sink when set.
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		Channel  string `env:"REDIS_CHANNEL,default=observations"`
	}

	Auth struct {
		// Secret signs bearer tokens; empty enables the X-Identity
		// development fallback.
		Secret string `env:"AUTH_SECRET"`
	}

	RateLimit struct {
		RequestsPerSecond int `env:"RATE_LIMIT_RPS,default=50"`
		Burst             int `env:"RATE_LIMIT_BURST,default=100"`
	}

	Market struct {
		SweepSchedule string `env:"MARKET_SWEEP_SCHEDULE,default=@every 30s"`
	}

	Rates struct {
		// URL enables the background exchange-rate fetcher when set.
		URL      string        `env:"RATE_SOURCE_URL"`
		Currency string        `env:"RATE_SOURCE_CURRENCY"`
		Path     string        `env:"RATE_SOURCE_PATH,default=price"`
		Scale    int64         `env:"RATE_SOURCE_SCALE,default=100"`
		Interval time.Duration `env:"RATE_FETCH_INTERVAL,default=5m"`
	}

	// PolicyPath points at the YAML policy file (fees, signers, minters).
	PolicyPath string `env:"POLICY_PATH,default=config/policy.yaml"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// missing .env is fine, the environment may be set directly
		_ = godotenv.Load(envFile)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}
