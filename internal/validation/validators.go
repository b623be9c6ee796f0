// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package validation

import (
	"net"
	"strconv"
	"strings"
	"unicode"

	"grimm.is/peek/internal/errors"
)

// Characters that never belong in a label shown to or typed by a user.
var dangerousChars = []string{";", "|", "&", "$", "`", "<", ">", "\\", "\"", "'", "\n", "\r", "\x00"}

// ValidateExecutablePath checks a path used as an override or cache key.
// It is not required to exist.
func ValidateExecutablePath(path string, max int) error {
	if path == "" {
		return errors.New(errors.KindValidation, "path cannot be empty")
	}
	if len(path) > max {
		return errors.Attr(errors.Errorf(errors.KindValidation, "path longer than %d bytes", max), "path", path)
	}
	if strings.ContainsRune(path, 0) {
		return errors.New(errors.KindValidation, "null byte in path")
	}
	return nil
}

// ValidateLabel validates a free-form display name such as a publisher.
func ValidateLabel(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Errorf(errors.KindValidation, "%s name cannot be empty", kind)
	}
	if len(name) > 255 {
		return errors.Errorf(errors.KindValidation, "%s name too long (max 255 characters)", kind)
	}
	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return errors.Errorf(errors.KindValidation, "%s name contains dangerous character %q", kind, char)
		}
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address. The host may be
// empty.
func ValidateListenAddr(name, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid %s listen address %q", name, addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Errorf(errors.KindValidation, "invalid %s listen port %q", name, portStr)
	}
	if err := ValidatePortNumber(port); err != nil {
		return errors.Wrapf(err, errors.KindValidation, "%s listen address", name)
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return errors.Errorf(errors.KindValidation, "invalid %s listen host %q", name, host)
	}
	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.Errorf(errors.KindValidation, "unknown %s %q (want one of: %s)", field, value, strings.Join(allowed, ", "))
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf(errors.KindValidation, "invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// SanitizeString strips control characters so process-supplied text cannot
// drive the terminal.
func SanitizeString(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
