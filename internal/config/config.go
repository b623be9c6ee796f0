// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the peek configuration file.
package config

import (
	"path/filepath"
	"time"

	"grimm.is/peek/internal/install"
	"grimm.is/peek/internal/model"
)

// CurrentSchemaVersion is the schema version written by this build.
const CurrentSchemaVersion = "1.0"

// Default values.
const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultStopTimeout   = 2 * time.Second
	DefaultDirectionMode = "listen_table"
	DefaultAPIListen     = "127.0.0.1:7411"
	DefaultMetricsListen = "127.0.0.1:9411"

	// OverridesFileName is the trust override store inside the data dir.
	OverridesFileName = "trust_overrides.dat"
	// HistoryFileName is the default history database inside the data dir.
	HistoryFileName = "history.db"
)

// Config is the top-level peek configuration.
type Config struct {
	// Schema version for forward compatibility.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// How often the socket tables are polled.
	// @default: "500ms"
	PollInterval string `hcl:"poll_interval,optional" json:"poll_interval,omitempty"`

	// How long Stop waits for an in-flight bulk classification.
	// @default: "2s"
	StopTimeout string `hcl:"stop_timeout,optional" json:"stop_timeout,omitempty"`

	// Report loopback-only connections.
	// @default: true
	ShowLocalhost *bool `hcl:"show_localhost,optional" json:"show_localhost,omitempty"`

	// How TCP direction is inferred.
	// @enum: listen_table, port_range
	// @default: "listen_table"
	DirectionMode string `hcl:"direction_mode,optional" json:"direction_mode,omitempty"`

	// Where overrides, keys and history live. Empty means the per-user
	// application data directory.
	DataDir string `hcl:"data_dir,optional" json:"data_dir,omitempty"`

	// @enum: debug, info, warn, error
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`

	// Classification worker pool size (1-8).
	// @default: 8
	Workers int `hcl:"workers,optional" json:"workers,omitempty"`

	// Security cache capacity (1-500).
	// @default: 500
	CacheSize int `hcl:"cache_size,optional" json:"cache_size,omitempty"`

	Trust   *TrustConfig   `hcl:"trust,block" json:"trust,omitempty"`
	API     *APIConfig     `hcl:"api,block" json:"api,omitempty"`
	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty"`
	History *HistoryConfig `hcl:"history,block" json:"history,omitempty"`
}

// TrustConfig tunes signature classification.
type TrustConfig struct {
	// Signer name substrings that mark the platform vendor. Case-sensitive.
	// @default: ["Microsoft", "Windows"]
	VendorFragments []string `hcl:"vendor_fragments,optional" json:"vendor_fragments,omitempty"`

	// Publishers whose detached ed25519 signatures are trusted on hosts
	// without an OS code-signing facility.
	Publishers []PublisherConfig `hcl:"publisher,block" json:"publisher,omitempty"`
}

// PublisherConfig names one trusted signing key.
type PublisherConfig struct {
	Name      string `hcl:"name,label" json:"name"`
	PublicKey string `hcl:"public_key" json:"public_key"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty"`
	// @default: "127.0.0.1:7411"
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`
	// @default: "127.0.0.1:9411"
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// HistoryConfig configures the sqlite connection journal.
type HistoryConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty"`
	// Empty means <data_dir>/history.db.
	Path string `hcl:"path,optional" json:"path,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// DefaultConfig returns a fully populated configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval.String()
	}
	if c.StopTimeout == "" {
		c.StopTimeout = DefaultStopTimeout.String()
	}
	if c.ShowLocalhost == nil {
		c.ShowLocalhost = boolPtr(true)
	}
	if c.DirectionMode == "" {
		c.DirectionMode = DefaultDirectionMode
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Workers == 0 {
		c.Workers = model.MaxWorkers
	}
	if c.CacheSize == 0 {
		c.CacheSize = model.MaxCacheEntries
	}

	if c.Trust == nil {
		c.Trust = &TrustConfig{}
	}
	if c.Trust.VendorFragments == nil {
		c.Trust.VendorFragments = []string{"Microsoft", "Windows"}
	}
	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Enabled == nil {
		c.API.Enabled = boolPtr(true)
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.History == nil {
		c.History = &HistoryConfig{}
	}
	if c.History.Enabled == nil {
		c.History.Enabled = boolPtr(true)
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, HistoryFileName)
	}
}

// Poll returns the parsed poll interval.
func (c *Config) Poll() time.Duration {
	return parseDurationOr(c.PollInterval, DefaultPollInterval)
}

// Stop returns the parsed stop timeout.
func (c *Config) Stop() time.Duration {
	return parseDurationOr(c.StopTimeout, DefaultStopTimeout)
}

// ShowLocal reports whether loopback connections are reported.
func (c *Config) ShowLocal() bool {
	return c.ShowLocalhost == nil || *c.ShowLocalhost
}

// APIEnabled reports whether the control API should be served.
func (c *Config) APIEnabled() bool {
	return c.API != nil && (c.API.Enabled == nil || *c.API.Enabled)
}

// MetricsEnabled reports whether /metrics should be served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics != nil && c.Metrics.Enabled
}

// HistoryEnabled reports whether the connection journal is kept.
func (c *Config) HistoryEnabled() bool {
	return c.History != nil && (c.History.Enabled == nil || *c.History.Enabled)
}

// OverridesPath is the location of the trust override store.
func (c *Config) OverridesPath() string {
	return filepath.Join(c.DataDir, OverridesFileName)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DefaultDataDir is the per-user application data directory for peek.
// On Windows this is %APPDATA%\Peek. PEEK_DATA_DIR overrides it.
func DefaultDataDir() string {
	return install.GetDataDir()
}
