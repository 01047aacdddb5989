// Package config loads service configuration from the environment so main
// stays lean.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config captures everything cmd/api needs to run.
type Config struct {
	Addr     string `env:"GUILDRY_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GUILDRY_GRPC_ADDR"` // empty disables the gRPC listener

	// PGDSN selects the Postgres store; when empty the in-memory store is
	// used (suitable for development only).
	PGDSN string `env:"GUILDRY_PG_DSN"`

	// Moderator bootstraps the global moderator account on first start.
	Moderator string `env:"GUILDRY_MODERATOR"`

	RateBurst  int `env:"GUILDRY_RATE_BURST" envDefault:"50"`
	RatePerSec int `env:"GUILDRY_RATE_PER_SEC" envDefault:"25"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
