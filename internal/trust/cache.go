// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package trust

import (
	"sync"

	"grimm.is/peek/internal/model"
)

// Entry is one cached classification.
type Entry struct {
	Path   string            `json:"path"`
	Hash   string            `json:"hash"`
	Status model.TrustStatus `json:"status"`
}

// Cache memoizes classifications by executable path. It never evicts;
// once full, new paths are simply not cached.
type Cache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]Entry
}

// NewCache creates a cache holding at most limit paths. A limit outside
// 1..model.MaxCacheEntries uses the maximum.
func NewCache(limit int) *Cache {
	if limit <= 0 || limit > model.MaxCacheEntries {
		limit = model.MaxCacheEntries
	}
	return &Cache{limit: limit, entries: make(map[string]Entry)}
}

// Lookup returns the entry for path.
func (c *Cache) Lookup(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return e, ok
}

// Insert stores a result. Existing paths are updated; new paths past the
// limit are dropped.
func (c *Cache) Insert(path, hash string, status model.TrustStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok && len(c.entries) >= c.limit {
		return false
	}
	c.entries[path] = Entry{Path: path, Hash: hash, Status: status}
	return true
}

// ApplyOverride sets the status of a cached path. TrustUnknown drops the
// entry so the next classification recomputes it.
func (c *Cache) ApplyOverride(path string, status model.TrustStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == model.TrustUnknown {
		delete(c.entries, path)
		return
	}
	if e, ok := c.entries[path]; ok {
		e.Status = status
		c.entries[path] = e
	}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}
