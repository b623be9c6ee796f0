// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package install resolves where peek keeps its files.
package install

import (
	"os"
	"path/filepath"
)

// Environment overrides.
const (
	EnvPrefix  = "PEEK"
	EnvDataDir = EnvPrefix + "_DATA_DIR"
	EnvConfig  = EnvPrefix + "_CONFIG"
	EnvRoot    = EnvPrefix + "_PREFIX"
)

// AppDirName is the directory created under the user config dir.
const AppDirName = "Peek"

// BuildDefaultDataDir overrides the per-user default. Set via -ldflags.
var BuildDefaultDataDir = ""

// GetDataDir returns the data directory.
// Priority: PEEK_DATA_DIR > PEEK_PREFIX/data > build default > user config dir.
func GetDataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvRoot); prefix != "" {
		return filepath.Join(prefix, "data")
	}
	if BuildDefaultDataDir != "" {
		return BuildDefaultDataDir
	}
	return userDataDir()
}

// GetConfigPath returns the config file path given its file name.
// Priority: PEEK_CONFIG > <data dir>/name.
func GetConfigPath(name string) string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(GetDataDir(), name)
}

// userDataDir is %APPDATA%\Peek on Windows and the XDG config dir elsewhere.
func userDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppDirName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".peek")
	}
	return filepath.Join(os.TempDir(), "peek")
}
