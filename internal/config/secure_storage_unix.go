// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build unix

package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func replaceFile(from, to string) error {
	return os.Rename(from, to)
}

// syncDir makes a completed rename durable. Errors are ignored; some
// filesystems do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

func setSecurePermissions(filename string) error {
	if err := unix.Chown(filename, unix.Getuid(), unix.Getgid()); err != nil {
		return fmt.Errorf("failed to set ownership: %w", err)
	}
	if err := unix.Chmod(filename, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return nil
}

func checkSecurePermissions(filename string) error {
	var st unix.Stat_t
	if err := unix.Stat(filename, &st); err != nil {
		return &os.PathError{Op: "stat", Path: filename, Err: err}
	}
	if int(st.Uid) != unix.Getuid() {
		return fmt.Errorf("file is not owned by current user")
	}
	if st.Mode&0o077 != 0 {
		return fmt.Errorf("file has insecure permissions: %s", os.FileMode(st.Mode&0o777))
	}
	return nil
}
