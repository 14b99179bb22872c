// Package engine parses engine command flags and launches the turn
// orchestration service.
package engine

import (
	"context"
	"flag"

	"github.com/emberloom/emberloom/internal/platform/config"
	server "github.com/emberloom/emberloom/internal/services/engine/app"
)

// Config holds engine command configuration.
type Config struct {
	Port int `env:"EMBERLOOM_ENGINE_PORT" envDefault:"8090"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engine HTTP server port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the turn orchestration service.
func Run(ctx context.Context, cfg Config) error {
	return server.Run(ctx, cfg.Port)
}
