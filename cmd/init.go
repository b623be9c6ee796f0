// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/peek/internal/config"
)

// RunInit implements 'peek init': write a default config file, or with
// -check validate an existing one.
func RunInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := configFlag(fs)
	force := fs.Bool("force", false, "Overwrite an existing file")
	check := fs.Bool("check", false, "Validate the config file instead of writing one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *check {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := validateForMonitor(cfg); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		fmt.Fprintf(Stdout, "%s: OK\n", *configPath)
		return nil
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *configPath)
	}
	if err := os.MkdirAll(filepath.Dir(*configPath), 0o700); err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	if err := os.WriteFile(*configPath, config.EncodeHCL(cfg), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(Stdout, "Wrote %s\n", *configPath)
	return nil
}
