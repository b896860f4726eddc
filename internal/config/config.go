// Package config loads the table server's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings.
type Config struct {
	Addr        string        `env:"CRAPS_ADDR" envDefault:":8080"`
	DBPath      string        `env:"CRAPS_DB_PATH" envDefault:"craps.db"`
	StartWallet int           `env:"CRAPS_START_WALLET" envDefault:"1000"`
	TickHz      int           `env:"CRAPS_TICK_HZ" envDefault:"60"`
	BroadcastHz int           `env:"CRAPS_BROADCAST_HZ" envDefault:"20"`
	MaxSettle   time.Duration `env:"CRAPS_MAX_SETTLE" envDefault:"20s"`
	ClientSeed  string        `env:"CRAPS_CLIENT_SEED"`
}

// Load reads .env files (missing ones are skipped) and then parses the
// environment. Variables already set take precedence over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges the env tags cannot express.
func (c Config) Validate() error {
	switch {
	case c.StartWallet <= 0:
		return fmt.Errorf("CRAPS_START_WALLET must be positive, got %d", c.StartWallet)
	case c.TickHz <= 0 || c.TickHz > 1000:
		return fmt.Errorf("CRAPS_TICK_HZ must be in 1..1000, got %d", c.TickHz)
	case c.BroadcastHz <= 0 || c.BroadcastHz > c.TickHz:
		return fmt.Errorf("CRAPS_BROADCAST_HZ must be in 1..%d, got %d", c.TickHz, c.BroadcastHz)
	case c.MaxSettle < time.Second:
		return fmt.Errorf("CRAPS_MAX_SETTLE must be at least 1s, got %s", c.MaxSettle)
	}
	return nil
}
