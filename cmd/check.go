// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
)

// RunCheck implements 'peek check <path>'.
func RunCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := configFlag(fs)
	format := fs.String("o", FormatTable, "Output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: peek check [-c file] [-o format] <path>")
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
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
	return renderResult(Stdout, *format, svc.ClassifyPath(context.Background(), path))
}
