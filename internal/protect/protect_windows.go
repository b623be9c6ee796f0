// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

package protect

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"grimm.is/peek/internal/errors"
)

// Description is stored alongside DPAPI blobs.
const Description = "Peek Trust Overrides"

// DPAPI seals with CryptProtectData in the current user's scope.
type DPAPI struct{}

// New returns the DPAPI protector. dataDir is unused; DPAPI keys live in
// the user profile.
func New(_ string) (Protector, error) {
	return DPAPI{}, nil
}

func blob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

func takeBlob(out *windows.DataBlob) []byte {
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	return append([]byte(nil), unsafe.Slice(out.Data, out.Size)...)
}

func (DPAPI) Seal(plain []byte) ([]byte, error) {
	desc, err := windows.UTF16PtrFromString(Description)
	if err != nil {
		return nil, err
	}
	var out windows.DataBlob
	if err := windows.CryptProtectData(blob(plain), desc, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "CryptProtectData")
	}
	return takeBlob(&out), nil
}

func (DPAPI) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, ErrTampered
	}
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(blob(sealed), nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, ErrTampered
	}
	return takeBlob(&out), nil
}
