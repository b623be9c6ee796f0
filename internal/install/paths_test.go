// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDataDirPriority(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvRoot, "")
	assert.Equal(t, AppDirName, filepath.Base(GetDataDir()))

	t.Setenv(EnvRoot, "/opt/peek")
	assert.Equal(t, filepath.Join("/opt/peek", "data"), GetDataDir())

	t.Setenv(EnvDataDir, "/srv/peek")
	assert.Equal(t, "/srv/peek", GetDataDir())
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(EnvDataDir, "/srv/peek")
	t.Setenv(EnvConfig, "")
	assert.Equal(t, filepath.Join("/srv/peek", "peek.hcl"), GetConfigPath("peek.hcl"))

	t.Setenv(EnvConfig, "/etc/peek.hcl")
	assert.Equal(t, "/etc/peek.hcl", GetConfigPath("peek.hcl"))
}
