// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package trust

import (
	"context"
	stderrors "errors"
	"strings"
)

var (
	// ErrNoSignature means the file carries no signature at all.
	ErrNoSignature = stderrors.New("no signature")
	// ErrDistrusted means a signature is present but not trusted.
	ErrDistrusted = stderrors.New("signature not trusted")
)

// Signature describes a successfully verified signature.
type Signature struct {
	Signer string `json:"signer"`
}

// Verifier checks the code signature of an executable.
type Verifier interface {
	Verify(ctx context.Context, path string) (Signature, error)
}

// DefaultVendorFragments mark a signer as the platform vendor.
var DefaultVendorFragments = []string{"Microsoft", "Windows"}

// isVendor is a case-sensitive substring heuristic, not a certificate
// chain check.
func isVendor(signer string, fragments []string) bool {
	if signer == "" {
		return false
	}
	for _, f := range fragments {
		if f != "" && strings.Contains(signer, f) {
			return true
		}
	}
	return false
}
