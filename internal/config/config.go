// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// DatabaseURL selects the Postgres store. Empty keeps everything in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret    string        `env:"JWT_SECRET"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDev       bool          `env:"LOG_DEV" envDefault:"false"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	IdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"2m"`

	// AllowedOrigins is passed to the websocket origin check.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads an optional .env file and then the environment. Variables
// already set win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing file is fine
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("ADDR must not be empty"))
	}
	if c.JWTSecret == "" {
		err = multierr.Append(err, errors.New("JWT_SECRET is required"))
	}
	if c.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("TICK_INTERVAL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		err = multierr.Append(err, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.IdleTimeout <= 0 {
		err = multierr.Append(err, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}
	return err
}
