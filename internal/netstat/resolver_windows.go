// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

package netstat

import (
	"context"

	"golang.org/x/sys/windows"
)

func platformTiers() []PathTier {
	return []PathTier{
		{Name: "query_information+vm_read", Lookup: imageLookup(windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ)},
		{Name: "query_information", Lookup: imageLookup(windows.PROCESS_QUERY_INFORMATION)},
		{Name: "query_limited_information", Lookup: imageLookup(windows.PROCESS_QUERY_LIMITED_INFORMATION)},
	}
}

func imageLookup(access uint32) func(context.Context, int32) (string, error) {
	return func(_ context.Context, pid int32) (string, error) {
		h, err := windows.OpenProcess(access, false, uint32(pid))
		if err != nil {
			return "", err
		}
		defer windows.CloseHandle(h)

		buf := make([]uint16, windows.MAX_LONG_PATH)
		size := uint32(len(buf))
		if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
			return "", err
		}
		return windows.UTF16ToString(buf[:size]), nil
	}
}
