// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"

	"grimm.is/peek/internal/errors"
)

// SecureWriteFile atomically replaces filename with data. The bytes go to
// filename.tmp (0600), are fsynced, swapped into place with the platform's
// replace primitive, and the result is restricted to the current user.
func SecureWriteFile(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, errors.KindPermission, "create data directory")
	}

	tempFile := filename + ".tmp"
	f, err := os.OpenFile(tempFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, errors.KindPermission, "create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return errors.Wrap(err, errors.KindInternal, "write temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return errors.Wrap(err, errors.KindInternal, "sync temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return errors.Wrap(err, errors.KindInternal, "close temp file")
	}

	if err := replaceFile(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return errors.Attr(errors.Wrap(err, errors.KindInternal, "replace file"), "path", filename)
	}
	syncDir(dir)

	if err := setSecurePermissions(filename); err != nil {
		return errors.Wrap(err, errors.KindPermission, "restrict file to owner")
	}
	return nil
}

// SecureReadFile reads a file after checking that only its owner can
// access it.
func SecureReadFile(filename string) ([]byte, error) {
	if err := checkSecurePermissions(filename); err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.KindPermission, "insecure file")
	}
	return os.ReadFile(filename)
}
