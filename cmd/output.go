// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/overrides"
	"grimm.is/peek/internal/trust"
	"grimm.is/peek/internal/validation"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	colorGood  = lipgloss.Color("42")
	colorWarn  = lipgloss.Color("214")
	colorBad   = lipgloss.Color("196")
	colorError = lipgloss.Color("171")
	colorMuted = lipgloss.Color("240")
	colorDeep  = lipgloss.Color("62")
)

func checkFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// statusColor picks the table colour for a trust status.
func statusColor(s model.TrustStatus) lipgloss.Color {
	switch s {
	case model.TrustMicrosoftSigned, model.TrustVerifiedSigned, model.TrustManuallyTrusted:
		return colorGood
	case model.TrustUnsigned:
		return colorWarn
	case model.TrustInvalidSignature, model.TrustManuallyThreat:
		return colorBad
	case model.TrustVerificationError:
		return colorError
	default:
		return colorMuted
	}
}

// termWidth returns the terminal width of w, or 0 when w is not a terminal.
func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkFormat(format)
}

type styledTable struct {
	re     *lipgloss.Renderer
	t      *table.Table
	status []model.TrustStatus
	col    int
}

func newStyledTable(w io.Writer, statusCol int, headers ...string) *styledTable {
	re := lipgloss.NewRenderer(w)
	st := &styledTable{re: re, col: statusCol}

	header := re.NewStyle().Bold(true).Padding(0, 1)
	cell := re.NewStyle().Padding(0, 1)
	st.t = table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Foreground(colorDeep)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == st.col && row >= 0 && row < len(st.status) {
				return cell.Foreground(statusColor(st.status[row]))
			}
			return cell
		})
	if width := termWidth(w); width > 0 {
		st.t.Width(width)
	}
	return st
}

func (st *styledTable) row(status model.TrustStatus, cells ...string) {
	st.status = append(st.status, status)
	st.t.Row(cells...)
}

func (st *styledTable) render(w io.Writer) error {
	_, err := fmt.Fprintln(w, st.t.Render())
	return err
}

func trustLabel(c model.Connection) string {
	if !c.Computed && c.Trust == model.TrustUnknown {
		return "pending"
	}
	return c.Trust.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// renderConnections writes conns in the requested format.
func renderConnections(w io.Writer, format string, conns []model.Connection) error {
	if format != FormatTable {
		if conns == nil {
			conns = []model.Connection{}
		}
		return writeStructured(w, format, conns)
	}

	st := newStyledTable(w, 6, "PROTO", "LOCAL", "REMOTE", "DIR", "PID", "PROCESS", "TRUST", "HASH")
	for _, c := range conns {
		proto := c.Protocol.String()
		if c.IPVersion == model.IPv6 {
			proto += "6"
		}
		st.row(c.Trust,
			proto,
			c.Local(),
			c.Remote(),
			c.Direction.String(),
			strconv.Itoa(int(c.PID)),
			validation.SanitizeString(c.ProcessName),
			trustLabel(c),
			shortHash(c.Hash),
		)
	}
	return st.render(w)
}

// renderResult writes a single classification result.
func renderResult(w io.Writer, format string, res trust.Result) error {
	if format != FormatTable {
		return writeStructured(w, format, res)
	}
	st := newStyledTable(w, 1, "PATH", "TRUST", "SIGNER", "SOURCE", "SHA256")
	st.row(res.Status, validation.SanitizeString(res.Path), res.Status.String(),
		validation.SanitizeString(res.Signer), res.Source, res.Hash)
	return st.render(w)
}

// renderOverrides writes the override list.
func renderOverrides(w io.Writer, format string, list []overrides.Override) error {
	if format != FormatTable {
		if list == nil {
			list = []overrides.Override{}
		}
		return writeStructured(w, format, list)
	}
	st := newStyledTable(w, 1, "PATH", "STATUS")
	for _, o := range list {
		st.row(o.Status, validation.SanitizeString(o.Path), o.Status.String())
	}
	return st.render(w)
}
