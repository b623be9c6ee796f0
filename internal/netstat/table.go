// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"context"
	"net/netip"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// Socket table kinds, one per protocol/family pair.
const (
	KindTCP4 = "tcp4"
	KindTCP6 = "tcp6"
	KindUDP4 = "udp4"
	KindUDP6 = "udp6"
)

// Raw TCP states as reported by the host table.
const (
	StateListen      = "LISTEN"
	StateEstablished = "ESTABLISHED"
)

// SocketTable reads one kind of socket table from the host.
type SocketTable interface {
	Sockets(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)
}

// HostTable is the gopsutil-backed SocketTable.
type HostTable struct{}

func (HostTable) Sockets(ctx context.Context, kind string) ([]psnet.ConnectionStat, error) {
	return psnet.ConnectionsWithContext(ctx, kind)
}

// parseAddr turns a gopsutil address string into a netip.Addr. Empty,
// wildcard and unparsable strings give the zero Addr.
func parseAddr(s string) netip.Addr {
	if s == "" || s == "*" {
		return netip.Addr{}
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}

var netipZero netip.Addr

// hasRemote reports whether a is a concrete peer address.
func hasRemote(a netip.Addr) bool {
	return a.IsValid() && !a.IsUnspecified()
}
