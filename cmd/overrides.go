// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"

	"grimm.is/peek/internal/api"
	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/overrides"
	"grimm.is/peek/internal/protect"
)

// RunOverride implements 'peek override <path> <status>'. A running
// monitor receives the change over its API; otherwise the file is edited
// directly.
func RunOverride(args []string) error {
	fs := flag.NewFlagSet("override", flag.ExitOnError)
	configPath := configFlag(fs)
	offline := fs.Bool("offline", false, "Edit the override file even if a monitor is running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: peek override [-c file] <path> <trusted|threat|reset>")
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	status, err := model.ParseTrustStatus(fs.Arg(1))
	if err != nil {
		return err
	}
	if status != model.TrustUnknown && !status.IsManual() {
		return fmt.Errorf("override status must be trusted, threat or reset, got %q", fs.Arg(1))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if !*offline && cfg.APIEnabled() {
		token, err := api.ReadToken(cfg.DataDir)
		if err != nil {
			logging.Debug("no api token, sending unauthenticated", "error", err)
		}
		err = newAPIClient(cfg.API.Listen, token).applyOverride(path, status)
		if err == nil {
			fmt.Fprintf(Stdout, "%s -> %s (applied by running monitor)\n", path, status)
			return nil
		}
		var re *remoteError
		if errors.As(err, &re) {
			return re
		}
		logging.Debug("monitor not reachable, editing overrides offline", "error", err)
	}

	store, err := openOverrides(cfg)
	if err != nil {
		return err
	}
	if err := store.Apply(path, status); err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "%s -> %s\n", path, status)
	return nil
}

// RunOverrides implements 'peek overrides': list stored overrides.
func RunOverrides(args []string) error {
	fs := flag.NewFlagSet("overrides", flag.ExitOnError)
	configPath := configFlag(fs)
	format := fs.String("o", FormatTable, "Output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := openOverrides(cfg)
	if err != nil {
		return err
	}
	return renderOverrides(Stdout, *format, store.List())
}

func openOverrides(cfg *config.Config) (*overrides.Store, error) {
	p, err := protect.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init override protection: %w", err)
	}
	store := overrides.New(cfg.OverridesPath(), p, logging.WithComponent("overrides"))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	return store, nil
}
