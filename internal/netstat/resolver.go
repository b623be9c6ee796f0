// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// ProcessInfo is the display name and executable path of a process.
// Path is empty when it could not be determined.
type ProcessInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ProcessResolver maps a PID to its process info. It never fails; the
// worst case is a synthetic name and an empty path.
type ProcessResolver interface {
	Resolve(ctx context.Context, pid int32) ProcessInfo
}

// PathTier looks up an executable path with one access level.
type PathTier struct {
	Name   string
	Lookup func(ctx context.Context, pid int32) (string, error)
}

// TieredResolver tries path tiers in order, then a name-only lookup, then
// falls back to a placeholder name.
type TieredResolver struct {
	tiers  []PathTier
	name   func(ctx context.Context, pid int32) (string, error)
	logger *logging.Logger
}

// NewResolver returns the resolver for the running platform.
func NewResolver(logger *logging.Logger) *TieredResolver {
	return NewTieredResolver(logger, platformTiers()...)
}

// NewTieredResolver builds a resolver from explicit tiers. The name-only
// fallback always uses gopsutil.
func NewTieredResolver(logger *logging.Logger, tiers ...PathTier) *TieredResolver {
	if logger == nil {
		logger = logging.WithComponent("resolver")
	}
	return &TieredResolver{
		tiers:  tiers,
		name:   gopsutilName,
		logger: logger,
	}
}

func (r *TieredResolver) Resolve(ctx context.Context, pid int32) ProcessInfo {
	if model.IsSystemPID(pid) {
		if pid == model.PIDIdle {
			return ProcessInfo{Name: "System Idle Process", Path: model.SystemProcessPath}
		}
		return ProcessInfo{Name: "System", Path: model.SystemProcessPath}
	}
	if pid == model.PIDIdle {
		return ProcessInfo{Name: fmt.Sprintf("[System] PID:%d", pid)}
	}

	for _, t := range r.tiers {
		path, err := t.Lookup(ctx, pid)
		if err != nil || path == "" {
			r.logger.Debug("path tier failed", "pid", pid, "tier", t.Name, "error", err)
			continue
		}
		return ProcessInfo{Name: baseName(path), Path: path}
	}

	if r.name != nil {
		if name, err := r.name(ctx, pid); err == nil && name != "" {
			return ProcessInfo{Name: name}
		}
	}
	return ProcessInfo{Name: fmt.Sprintf("[System] PID:%d", pid)}
}

// baseName handles both separators so Windows paths display correctly on
// any host.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return filepath.Base(path)
}

func gopsutilExe(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.ExeWithContext(ctx)
}

func gopsutilName(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}

// memoResolver caches lookups for the duration of one enumeration so a
// process owning many sockets is resolved once.
type memoResolver struct {
	inner ProcessResolver
	seen  map[int32]ProcessInfo
}

func newMemo(inner ProcessResolver) *memoResolver {
	return &memoResolver{inner: inner, seen: make(map[int32]ProcessInfo)}
}

func (m *memoResolver) Resolve(ctx context.Context, pid int32) ProcessInfo {
	if info, ok := m.seen[pid]; ok {
		return info
	}
	info := m.inner.Resolve(ctx, pid)
	m.seen[pid] = info
	return info
}
