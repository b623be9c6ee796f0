// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"context"
	"sync"

	psnet "github.com/shirou/gopsutil/v4/net"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

type listenKey struct {
	port uint16
	pid  int32
}

// ListenIndex is the set of (port, pid) pairs in the TCP listen table.
// It is rebuilt before each enumeration and used to tell inbound from
// outbound flows.
type ListenIndex struct {
	table  SocketTable
	logger *logging.Logger
	limit  int

	mu      sync.RWMutex
	entries map[listenKey]struct{}
}

// NewListenIndex creates an empty index over table.
func NewListenIndex(table SocketTable, logger *logging.Logger) *ListenIndex {
	if logger == nil {
		logger = logging.WithComponent("netstat")
	}
	return &ListenIndex{
		table:   table,
		logger:  logger,
		limit:   model.MaxListeningPorts,
		entries: make(map[listenKey]struct{}),
	}
}

// Refresh reads both TCP families and rebuilds the index from them.
func (li *ListenIndex) Refresh(ctx context.Context) {
	tables := make(map[string][]psnet.ConnectionStat, 2)
	for _, kind := range []string{KindTCP4, KindTCP6} {
		rows, err := li.table.Sockets(ctx, kind)
		if err != nil {
			li.logger.Warn("listen table unavailable", "kind", kind, "error", err)
			continue
		}
		tables[kind] = rows
	}
	li.Rebuild(tables)
}

// Rebuild replaces the index with the TCP listeners in tables, which maps
// a table kind to its rows. A TCP family missing from tables contributes
// nothing; if both are missing the index is left empty.
func (li *ListenIndex) Rebuild(tables map[string][]psnet.ConnectionStat) {
	next := make(map[listenKey]struct{})
	for _, kind := range []string{KindTCP4, KindTCP6} {
		for _, r := range tables[kind] {
			if r.Status != StateListen {
				continue
			}
			if len(next) >= li.limit {
				break
			}
			next[listenKey{port: uint16(r.Laddr.Port), pid: r.Pid}] = struct{}{}
		}
	}

	li.mu.Lock()
	li.entries = next
	li.mu.Unlock()
}

// IsListening reports whether pid listens on port.
func (li *ListenIndex) IsListening(port uint16, pid int32) bool {
	li.mu.RLock()
	defer li.mu.RUnlock()
	_, ok := li.entries[listenKey{port: port, pid: pid}]
	return ok
}

// Len returns the number of indexed entries.
func (li *ListenIndex) Len() int {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return len(li.entries)
}
