// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"os"

	"grimm.is/peek/cmd"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/monitor"
)

var version = "dev"

const usage = `peek - connection monitor with executable trust classification

Usage:
  peek <command> [flags]

Commands:
  monitor     Run the monitor in the foreground with the control API
  list        Print current connections once
  check       Classify a single executable
  override    Set or reset a manual trust override
  overrides   List manual trust overrides
  history     Show journaled connections and trust decisions
  init        Write a default config file
  version     Print the version

Run 'peek <command> -h' for command flags.
`

func main() {
	monitor.Version = version

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "monitor":
		err = cmd.RunMonitor(args)
	case "list", "ls":
		err = cmd.RunList(args)
	case "check":
		err = cmd.RunCheck(args)
	case "override":
		err = cmd.RunOverride(args)
	case "overrides":
		err = cmd.RunOverrides(args)
	case "history":
		err = cmd.RunHistory(args)
	case "init":
		err = cmd.RunInit(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.GetKind(err).ExitCode())
	}
}
