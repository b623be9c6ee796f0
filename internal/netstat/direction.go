// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"fmt"
	"net/netip"

	"grimm.is/peek/internal/model"
)

// DirectionMode selects how TCP flow direction is inferred.
type DirectionMode string

const (
	// DirectionListenTable marks a flow inbound when its owner listens on
	// the local port.
	DirectionListenTable DirectionMode = "listen_table"
	// DirectionPortRange guesses from the port numbers alone.
	DirectionPortRange DirectionMode = "port_range"
)

// ParseDirectionMode validates a configured mode. Empty means listen_table.
func ParseDirectionMode(s string) (DirectionMode, error) {
	switch DirectionMode(s) {
	case "", DirectionListenTable:
		return DirectionListenTable, nil
	case DirectionPortRange:
		return DirectionPortRange, nil
	}
	return "", fmt.Errorf("unknown direction mode %q", s)
}

const (
	wellKnownMax = 1024
	ephemeralMin = 49152
)

// ClassifyByPortRange is a heuristic: a well-known local port talking to an
// ephemeral remote port is a served (inbound) flow, the reverse is outbound.
// Anything else is treated as outbound.
func ClassifyByPortRange(localPort, remotePort uint16) model.Direction {
	if localPort < wellKnownMax && remotePort >= ephemeralMin {
		return model.DirInbound
	}
	return model.DirOutbound
}

// isLocalhost applies the loopback rule: a v4 endpoint must be in 127/8, a
// v6 endpoint must be ::1. Both endpoints must match; a missing peer only
// checks local. v4-mapped v6 addresses are judged as v4.
func isLocalhost(local, remote netip.Addr, hasPeer bool) bool {
	check := func(a netip.Addr) bool {
		if !a.IsValid() {
			return false
		}
		a = a.Unmap()
		if a.Is4() {
			return a.As4()[0] == 127
		}
		return a == netip.IPv6Loopback()
	}
	if !check(local) {
		return false
	}
	return !hasPeer || check(remote)
}
