// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package model holds the connection and trust types shared by the
// enumerator, tracker, classifier and control surfaces.
package model

import (
	"fmt"
	"net/netip"
	"runtime"
	"time"
)

// Capacity ceilings. Configuration may lower these, never raise them.
const (
	MaxConnections    = 2000
	MaxCacheEntries   = 500
	MaxOverrides      = 500
	MaxListeningPorts = 1000
	MaxWorkers        = 8
)

// Hash sentinels used in place of a hex digest.
const (
	HashUnavailable = "unavailable"
	HashError       = "Error"
	HashNA          = "N/A"
)

// System process sentinels.
const (
	PIDIdle   = 0
	PIDSystem = 4

	SystemProcessPath = "[System Process]"
)

type Protocol uint8

const (
	ProtoTCP Protocol = iota
	ProtoUDP
)

func (p Protocol) String() string {
	if p == ProtoUDP {
		return "udp"
	}
	return "tcp"
}

func (p Protocol) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Protocol) UnmarshalText(b []byte) error {
	switch string(b) {
	case "tcp", "TCP":
		*p = ProtoTCP
	case "udp", "UDP":
		*p = ProtoUDP
	default:
		return fmt.Errorf("unknown protocol %q", b)
	}
	return nil
}

type IPVersion uint8

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

func (v IPVersion) String() string { return fmt.Sprintf("v%d", uint8(v)) }

type Direction uint8

const (
	DirUnknown Direction = iota
	DirInbound
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "inbound":
		*d = DirInbound
	case "outbound":
		*d = DirOutbound
	case "unknown", "":
		*d = DirUnknown
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Key identifies one logical flow. Two connections with equal keys are the
// same flow and are counted once.
type Key struct {
	PID        int32      `json:"pid"`
	RemoteAddr netip.Addr `json:"remote_addr"`
	RemotePort uint16     `json:"remote_port"`
	LocalPort  uint16     `json:"local_port"`
}

func (k Key) String() string {
	remote := "-"
	if k.RemoteAddr.IsValid() {
		remote = netip.AddrPortFrom(k.RemoteAddr, k.RemotePort).String()
	}
	return fmt.Sprintf("pid=%d local=%d remote=%s", k.PID, k.LocalPort, remote)
}

// Connection is one observed socket endpoint pair with its owning process
// and trust metadata.
type Connection struct {
	Protocol    Protocol    `json:"protocol" yaml:"protocol"`
	IPVersion   IPVersion   `json:"ip_version" yaml:"ip_version"`
	LocalAddr   netip.Addr  `json:"local_addr" yaml:"local_addr"`
	LocalPort   uint16      `json:"local_port" yaml:"local_port"`
	RemoteAddr  netip.Addr  `json:"remote_addr,omitzero" yaml:"remote_addr,omitempty"`
	RemotePort  uint16      `json:"remote_port,omitempty" yaml:"remote_port,omitempty"`
	PID         int32       `json:"pid" yaml:"pid"`
	State       string      `json:"state,omitempty" yaml:"state,omitempty"`
	Direction   Direction   `json:"direction" yaml:"direction"`
	Localhost   bool        `json:"localhost" yaml:"localhost"`
	ProcessName string      `json:"process_name" yaml:"process_name"`
	ProcessPath string      `json:"process_path" yaml:"process_path"`
	Hash        string      `json:"hash" yaml:"hash"`
	Trust       TrustStatus `json:"trust" yaml:"trust"`
	Computed    bool        `json:"computed" yaml:"computed"`
	SeenAt      time.Time   `json:"seen_at" yaml:"seen_at"`
}

// Key returns the identity key of c.
func (c Connection) Key() Key {
	return Key{
		PID:        c.PID,
		RemoteAddr: c.RemoteAddr,
		RemotePort: c.RemotePort,
		LocalPort:  c.LocalPort,
	}
}

// ReservedSystemPIDs is set where pids 0 and 4 always belong to the idle
// and kernel processes. Elsewhere socket tables report pid 0 for sockets
// whose owner is not visible to the caller.
var ReservedSystemPIDs = runtime.GOOS == "windows"

// IsSystemPID reports whether pid is the idle or kernel process.
func IsSystemPID(pid int32) bool {
	return ReservedSystemPIDs && (pid == PIDIdle || pid == PIDSystem)
}

// IsSystemProcess reports whether c is owned by the idle or kernel process.
func (c Connection) IsSystemProcess() bool {
	return IsSystemPID(c.PID)
}

// Remote formats the remote endpoint, or "-" when there is none.
func (c Connection) Remote() string {
	if !c.RemoteAddr.IsValid() {
		return "-"
	}
	return netip.AddrPortFrom(c.RemoteAddr, c.RemotePort).String()
}

// Local formats the local endpoint.
func (c Connection) Local() string {
	if !c.LocalAddr.IsValid() {
		return fmt.Sprintf("*:%d", c.LocalPort)
	}
	return netip.AddrPortFrom(c.LocalAddr, c.LocalPort).String()
}

// Stats are derived counters; the seen-set is authoritative.
type Stats struct {
	Initial int `json:"initial_connections"`
	Active  int `json:"active_connections"`
	New     int `json:"new_connections"`
	Total   int `json:"total_connections"`
}
