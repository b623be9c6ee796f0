// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"grimm.is/peek/internal/history"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/validation"
)

// RunHistory implements 'peek history': recent journaled connections, or
// the trust decisions for one path with -path.
func RunHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := configFlag(fs)
	format := fs.String("o", FormatTable, "Output format: table, json or yaml")
	limit := fs.Int("n", 50, "Number of connections to show")
	path := fs.String("path", "", "Show trust history for this executable")
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
	if !cfg.HistoryEnabled() {
		return fmt.Errorf("history is disabled in %s", *configPath)
	}

	store, err := history.Open(cfg.History.Path, "", logging.WithComponent("history"))
	if err != nil {
		return err
	}
	defer store.Close()

	if *path != "" {
		events, err := store.TrustHistory(*path)
		if err != nil {
			return err
		}
		return renderTrustEvents(Stdout, *format, events)
	}
	recs, err := store.RecentConnections(*limit)
	if err != nil {
		return err
	}
	return renderHistory(Stdout, *format, recs)
}

func renderHistory(w io.Writer, format string, recs []history.ConnectionRecord) error {
	if format != FormatTable {
		if recs == nil {
			recs = []history.ConnectionRecord{}
		}
		return writeStructured(w, format, recs)
	}
	st := newStyledTable(w, -1, "SEEN", "PROTO", "LOCAL", "REMOTE", "DIR", "PID", "PROCESS")
	for _, r := range recs {
		st.row(model.TrustUnknown,
			r.SeenAt.Local().Format("2006-01-02 15:04:05"),
			r.Protocol,
			r.Local,
			r.Remote,
			r.Direction,
			strconv.Itoa(int(r.PID)),
			validation.SanitizeString(r.Process),
		)
	}
	return st.render(w)
}

func renderTrustEvents(w io.Writer, format string, events []history.TrustEvent) error {
	if format != FormatTable {
		if events == nil {
			events = []history.TrustEvent{}
		}
		return writeStructured(w, format, events)
	}
	st := newStyledTable(w, 1, "AT", "STATUS", "SOURCE", "HASH")
	for _, e := range events {
		status, _ := model.ParseTrustStatus(e.Status)
		st.row(status, e.At.Local().Format("2006-01-02 15:04:05"), e.Status, e.Source, shortHash(e.Hash))
	}
	return st.render(w)
}
