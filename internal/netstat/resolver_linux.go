// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package netstat

import (
	"context"

	"github.com/prometheus/procfs"
)

func platformTiers() []PathTier {
	return []PathTier{
		{Name: "procfs", Lookup: procfsExe},
		{Name: "gopsutil", Lookup: gopsutilExe},
	}
}

// procfsExe reads /proc/<pid>/exe. It needs the same uid or CAP_SYS_PTRACE.
func procfsExe(_ context.Context, pid int32) (string, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return "", err
	}
	p, err := fs.Proc(int(pid))
	if err != nil {
		return "", err
	}
	return p.Executable()
}
