// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tracker keeps the set of connections seen since startup and
// derives new/total counts from it.
package tracker

import (
	"net/netip"
	"sync"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// Tracker is the seen-set. Entries are kept in insertion order and keyed by
// model.Key; a key is retained at most once.
type Tracker struct {
	mu      sync.Mutex
	logger  *logging.Logger
	limit   int
	entries []model.Connection
	index   map[model.Key]int
	stats   model.Stats
	full    bool
}

// New creates an empty tracker bounded by model.MaxConnections.
func New(logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.WithComponent("tracker")
	}
	return &Tracker{
		logger: logger,
		limit:  model.MaxConnections,
		index:  make(map[model.Key]int),
	}
}

// Seed records the startup snapshot. Nothing in it counts as new.
func (t *Tracker) Seed(conns []model.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range conns {
		t.insertLocked(c)
	}
	t.stats.Initial = len(conns)
	t.stats.Active = len(conns)
	t.stats.Total = len(t.entries)
}

// CheckNew returns the connections in current whose keys have not been seen,
// in enumeration order, and records them. Duplicate keys within current are
// reported once. Once the set is full, new keys are still reported but not
// retained.
func (t *Tracker) CheckNew(current []model.Connection) []model.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []model.Connection
	batch := make(map[model.Key]struct{})
	for _, c := range current {
		k := c.Key()
		if _, ok := t.index[k]; ok {
			continue
		}
		if _, ok := batch[k]; ok {
			continue
		}
		batch[k] = struct{}{}
		t.insertLocked(c)
		fresh = append(fresh, c)
	}

	t.stats.Active = len(current)
	t.stats.New += len(fresh)
	t.stats.Total = len(t.entries)
	return fresh
}

func (t *Tracker) insertLocked(c model.Connection) {
	k := c.Key()
	if _, ok := t.index[k]; ok {
		return
	}
	if len(t.entries) >= t.limit {
		if !t.full {
			t.logger.Warn("seen-set full, new connections are not retained", "limit", t.limit)
			t.full = true
		}
		return
	}
	t.index[k] = len(t.entries)
	t.entries = append(t.entries, c)
}

// GetAllSeen returns a copy of the seen-set in insertion order.
func (t *Tracker) GetAllSeen() []model.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Connection, len(t.entries))
	copy(out, t.entries)
	return out
}

// Clear empties the seen-set. Initial and Active are left as they were.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.index = make(map[model.Key]int)
	t.stats.New = 0
	t.stats.Total = 0
	t.full = false
}

// Find looks up one entry by its identity fields.
func (t *Tracker) Find(pid int32, remoteAddr netip.Addr, remotePort, localPort uint16) (model.Connection, bool) {
	k := model.Key{PID: pid, RemoteAddr: remoteAddr, RemotePort: remotePort, LocalPort: localPort}
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[k]
	if !ok {
		return model.Connection{}, false
	}
	return t.entries[i], true
}

// UpdateTrust stores a classification result on the entry for key.
// It reports false if the key is not tracked.
func (t *Tracker) UpdateTrust(key model.Key, hash string, status model.TrustStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[key]
	if !ok {
		return false
	}
	t.entries[i].Hash = hash
	t.entries[i].Trust = status
	t.entries[i].Computed = true
	return true
}

// ApplyOverride pushes a manual status onto every entry for path. For
// TrustUnknown the entries are marked uncomputed instead, and copies of
// them are returned so the caller can reclassify.
func (t *Tracker) ApplyOverride(path string, status model.TrustStatus) []model.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reset []model.Connection
	for i := range t.entries {
		if t.entries[i].ProcessPath != path {
			continue
		}
		if status == model.TrustUnknown {
			t.entries[i].Computed = false
			reset = append(reset, t.entries[i])
			continue
		}
		t.entries[i].Trust = status
	}
	return reset
}

// Stats returns the current counters.
func (t *Tracker) Stats() model.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
