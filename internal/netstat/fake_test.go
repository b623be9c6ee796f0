// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"context"
	"sync"

	psnet "github.com/shirou/gopsutil/v4/net"
)

type fakeTable struct {
	mu    sync.Mutex
	rows  map[string][]psnet.ConnectionStat
	errs  map[string]error
	calls map[string]int
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		rows:  make(map[string][]psnet.ConnectionStat),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeTable) add(kind, status, laddr string, lport uint32, raddr string, rport uint32, pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[kind] = append(f.rows[kind], psnet.ConnectionStat{
		Laddr:  psnet.Addr{IP: laddr, Port: lport},
		Raddr:  psnet.Addr{IP: raddr, Port: rport},
		Status: status,
		Pid:    pid,
	})
}

func (f *fakeTable) Sockets(_ context.Context, kind string) ([]psnet.ConnectionStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind]++
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return append([]psnet.ConnectionStat(nil), f.rows[kind]...), nil
}

type fakeResolver struct {
	mu    sync.Mutex
	infos map[int32]ProcessInfo
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, pid int32) ProcessInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if info, ok := f.infos[pid]; ok {
		return info
	}
	return ProcessInfo{Name: "unknown"}
}
