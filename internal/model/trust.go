// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TrustStatus classifies how trustworthy an executable is.
// The numeric values are persisted in the override store; do not reorder.
type TrustStatus uint32

const (
	TrustUnknown TrustStatus = iota
	TrustMicrosoftSigned
	TrustVerifiedSigned
	TrustManuallyTrusted
	TrustUnsigned
	TrustInvalidSignature
	TrustManuallyThreat
	TrustVerificationError

	trustStatusCount
)

var trustNames = [...]string{
	TrustUnknown:           "unknown",
	TrustMicrosoftSigned:   "microsoft_signed",
	TrustVerifiedSigned:    "verified_signed",
	TrustManuallyTrusted:   "manually_trusted",
	TrustUnsigned:          "unsigned",
	TrustInvalidSignature:  "invalid_signature",
	TrustManuallyThreat:    "manually_threat",
	TrustVerificationError: "verification_error",
}

// AllTrustStatuses lists every status in order.
func AllTrustStatuses() []TrustStatus {
	out := make([]TrustStatus, 0, trustStatusCount)
	for s := TrustUnknown; s < trustStatusCount; s++ {
		out = append(out, s)
	}
	return out
}

func (s TrustStatus) String() string {
	if s.Valid() {
		return trustNames[s]
	}
	return fmt.Sprintf("trust(%d)", uint32(s))
}

// Valid reports whether s is one of the defined statuses.
func (s TrustStatus) Valid() bool { return s < trustStatusCount }

// IsManual reports whether s can only come from a user override.
func (s TrustStatus) IsManual() bool {
	return s == TrustManuallyTrusted || s == TrustManuallyThreat
}

// ParseTrustStatus accepts the canonical names plus a few short aliases
// ("trusted", "threat", "auto", "reset").
func ParseTrustStatus(s string) (TrustStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "trusted", "trust":
		return TrustManuallyTrusted, nil
	case "threat", "block":
		return TrustManuallyThreat, nil
	case "auto", "reset", "":
		return TrustUnknown, nil
	}
	for i, name := range trustNames {
		if name == key {
			return TrustStatus(i), nil
		}
	}
	return TrustUnknown, fmt.Errorf("unknown trust status %q", s)
}

func (s TrustStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TrustStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		var n uint32
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		if !TrustStatus(n).Valid() {
			return fmt.Errorf("trust status %d out of range", n)
		}
		*s = TrustStatus(n)
		return nil
	}
	v, err := ParseTrustStatus(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s TrustStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TrustStatus) UnmarshalText(b []byte) error {
	v, err := ParseTrustStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
