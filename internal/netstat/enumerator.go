// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netstat snapshots the host's TCP and UDP socket tables and
// attributes each socket to its owning process.
package netstat

import (
	"context"

	psnet "github.com/shirou/gopsutil/v4/net"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// Options configures an Enumerator. Zero values select the host table,
// the platform resolver, listen-table direction and the global row limit.
type Options struct {
	Table    SocketTable
	Resolver ProcessResolver
	Mode     DirectionMode
	Limit    int
	Clock    clock.Clock
	Logger   *logging.Logger
}

// Enumerator produces connection snapshots.
type Enumerator struct {
	table    SocketTable
	resolver ProcessResolver
	index    *ListenIndex
	mode     DirectionMode
	limit    int
	clock    clock.Clock
	logger   *logging.Logger
}

type tableKind struct {
	kind  string
	proto model.Protocol
	ver   model.IPVersion
}

var tableKinds = []tableKind{
	{KindTCP4, model.ProtoTCP, model.IPv4},
	{KindTCP6, model.ProtoTCP, model.IPv6},
	{KindUDP4, model.ProtoUDP, model.IPv4},
	{KindUDP6, model.ProtoUDP, model.IPv6},
}

// NewEnumerator creates an Enumerator.
func NewEnumerator(opts Options) *Enumerator {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("netstat")
	}
	if opts.Table == nil {
		opts.Table = HostTable{}
	}
	if opts.Resolver == nil {
		opts.Resolver = NewResolver(opts.Logger)
	}
	if opts.Mode == "" {
		opts.Mode = DirectionListenTable
	}
	if opts.Limit <= 0 || opts.Limit > model.MaxConnections {
		opts.Limit = model.MaxConnections
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real
	}
	return &Enumerator{
		table:    opts.Table,
		resolver: opts.Resolver,
		index:    NewListenIndex(opts.Table, opts.Logger),
		mode:     opts.Mode,
		limit:    opts.Limit,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Index exposes the listening-port index refreshed by Enumerate.
func (e *Enumerator) Index() *ListenIndex { return e.index }

// Resolver returns the process resolver in use.
func (e *Enumerator) Resolver() ProcessResolver { return e.resolver }

// Enumerate returns one snapshot of established TCP flows and bound UDP
// sockets across both address families. A family that fails to read is
// skipped; the call fails only if every family fails or ctx is done.
func (e *Enumerator) Enumerate(ctx context.Context) ([]model.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTimeout, "enumeration cancelled")
	}

	// Each table is read once; the listen index is built from the same
	// TCP rows that are then converted.
	tables := make(map[string][]psnet.ConnectionStat, len(tableKinds))
	var lastErr error
	for _, tk := range tableKinds {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.KindTimeout, "enumeration cancelled")
		}
		rows, err := e.table.Sockets(ctx, tk.kind)
		if err != nil {
			e.logger.Warn("socket table read failed", "kind", tk.kind, "error", err)
			lastErr = err
			continue
		}
		tables[tk.kind] = rows
	}
	if e.mode == DirectionListenTable {
		e.index.Rebuild(tables)
	}
	if len(tables) == 0 {
		return nil, errors.Wrap(lastErr, errors.KindUnavailable, "no socket table could be read")
	}

	now := e.clock.Now()
	procs := newMemo(e.resolver)
	out := make([]model.Connection, 0, 128)

scan:
	for _, tk := range tableKinds {
		rows, ok := tables[tk.kind]
		if !ok {
			continue
		}
		for _, row := range rows {
			conn, ok := e.convert(tk, row)
			if !ok {
				continue
			}
			if len(out) >= e.limit {
				e.logger.Warn("connection limit reached", "limit", e.limit)
				break scan
			}
			info := procs.Resolve(ctx, conn.PID)
			conn.ProcessName = info.Name
			conn.ProcessPath = info.Path
			conn.SeenAt = now
			out = append(out, conn)
		}
	}
	return out, nil
}

func (e *Enumerator) convert(tk tableKind, row psnet.ConnectionStat) (model.Connection, bool) {
	conn := model.Connection{
		Protocol:  tk.proto,
		IPVersion: tk.ver,
		LocalAddr: parseAddr(row.Laddr.IP),
		LocalPort: uint16(row.Laddr.Port),
		PID:       row.Pid,
		State:     row.Status,
		Hash:      model.HashUnavailable,
		Trust:     model.TrustUnknown,
	}

	if tk.proto == model.ProtoUDP {
		conn.Direction = model.DirUnknown
		conn.Localhost = isLocalhost(conn.LocalAddr, netipZero, false)
		return conn, true
	}

	if row.Status != StateEstablished {
		return conn, false
	}
	remote := parseAddr(row.Raddr.IP)
	if !hasRemote(remote) {
		return conn, false
	}
	conn.RemoteAddr = remote
	conn.RemotePort = uint16(row.Raddr.Port)
	conn.Localhost = isLocalhost(conn.LocalAddr, remote, true)
	conn.Direction = e.direction(conn)
	return conn, true
}

func (e *Enumerator) direction(c model.Connection) model.Direction {
	if e.mode == DirectionPortRange {
		return ClassifyByPortRange(c.LocalPort, c.RemotePort)
	}
	if e.index.IsListening(c.LocalPort, c.PID) {
		return model.DirInbound
	}
	return model.DirOutbound
}
