// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd implements the peek subcommands.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/install"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/monitor"
)

// Stdout and Stderr are swapped out by tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// DefaultConfigPath is where the config file is looked up when -c is not
// given.
func DefaultConfigPath() string {
	return install.GetConfigPath(config.DefaultFileName)
}

// configFlag registers the shared -c flag.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("c", DefaultConfigPath(), "Path to configuration file")
}

// loadConfig loads path and installs the configured log level as the
// process default.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	lc := logging.DefaultConfig()
	if os.Getenv("PEEK_LOG_LEVEL") == "" {
		lc.Level = logging.ParseLevel(cfg.LogLevel)
	}
	lc.Output = Stderr
	logging.SetDefault(logging.New(lc))
}

// newEngine builds a monitor service for one-shot commands.
func newEngine(cfg *config.Config) (*monitor.Service, error) {
	svc, err := monitor.NewService(cfg, monitor.Deps{}, logging.WithComponent("peek"))
	if err != nil {
		return nil, err
	}
	if err := svc.LoadOverrides(); err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	return svc, nil
}
