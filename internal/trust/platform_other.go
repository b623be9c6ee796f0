// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows

package trust

// NewPlatformVerifier returns the host's native verifier. Outside Windows
// there is no OS code-signing facility, so detached signatures are used.
func NewPlatformVerifier(publishers []Publisher) Verifier {
	return NewSigFileVerifier(publishers)
}
