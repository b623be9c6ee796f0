// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build unix

package protect

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// New returns the protector for the current user, keyed from dataDir.
func New(dataDir string) (Protector, error) {
	return NewKeyFileProtector(dataDir, []byte("uid:"+strconv.Itoa(unix.Getuid())))
}
