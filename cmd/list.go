// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
)

// RunList implements 'peek list': one enumeration, optionally classified.
func RunList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := configFlag(fs)
	format := fs.String("o", FormatTable, "Output format: table, json or yaml")
	classify := fs.Bool("classify", false, "Hash and verify every process image")
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
	svc, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conns, err := svc.Snapshot(ctx, *classify)
	if err != nil {
		return fmt.Errorf("failed to enumerate connections: %w", err)
	}
	return renderConnections(Stdout, *format, conns)
}
