// Package bootstrap wires the link sweeper in phases: config, logger,
// database, scan state, services, then the HTTP server or scheduler.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// DefaultConfigPath is used when neither a flag nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yml"

// ResolveConfigPath picks the flag value, then CONFIG_PATH, then the default.
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return DefaultConfigPath
}

// LoadConfig loads the configuration. debug forces development logging.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// CreateLogger builds the service logger.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", "link-sweeper"), logger.String("version", version)), nil
}
