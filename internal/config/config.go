// Package config loads the tracker configuration from environment
// variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Drivers the store layer supports.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// defaultDatabaseFile is the SQLite file used when no DSN is configured,
// kept in the user's home directory.
const defaultDatabaseFile = "poker_bankroll.db"

// Config holds the application configuration.
type Config struct {
	Driver string // BANKROLL_DRIVER: sqlite (default) or postgres
	DSN    string // BANKROLL_DSN: sqlite file path or postgres connection string
}

// Load reads configuration from environment variables, applying defaults
// for the embedded SQLite store.
func Load() (*Config, error) {
	cfg := &Config{
		Driver: os.Getenv("BANKROLL_DRIVER"),
		DSN:    os.Getenv("BANKROLL_DSN"),
	}

	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	cfg.Driver = strings.ToLower(cfg.Driver)

	if cfg.DSN == "" && cfg.Driver == DriverSQLite {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.New("BANKROLL_DSN is not set and the home directory is unknown")
		}
		cfg.DSN = filepath.Join(home, defaultDatabaseFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.New("BANKROLL_DRIVER must be sqlite or postgres, got " + c.Driver)
	}
	if c.DSN == "" {
		return errors.New("BANKROLL_DSN is required for the " + c.Driver + " driver")
	}
	return nil
}
