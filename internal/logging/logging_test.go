// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Config{Level: LevelWarn, Output: &buf})

	lg.Info("poll cycle", "new", 3)
	assert.Empty(t, buf.String())

	lg.Warn("table unavailable", "kind", "tcp6")
	assert.Contains(t, buf.String(), "table unavailable")
	assert.Contains(t, buf.String(), "tcp6")
}

func TestJSONOutputWithComponent(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Config{Level: LevelDebug, Output: &buf, JSON: true}).WithComponent("netstat")

	lg.Debug("enumerated", "count", 12)

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "enumerated", rec["msg"])
	assert.Equal(t, "netstat", rec["prefix"])
	assert.EqualValues(t, 12, rec["count"])
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(Config{Level: LevelInfo, Output: &buf}))
	Info("override saved", "path", "/usr/bin/curl")
	assert.Contains(t, buf.String(), "/usr/bin/curl")

	SetDefault(nil)
	assert.NotNil(t, Default())
}
