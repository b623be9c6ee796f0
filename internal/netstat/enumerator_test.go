// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstat

import (
	"context"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/model"
)

func newTestEnumerator(table *fakeTable, mode DirectionMode) (*Enumerator, *fakeResolver) {
	res := &fakeResolver{infos: map[int32]ProcessInfo{
		4242: {Name: "curl", Path: "/usr/bin/curl"},
		80:   {Name: "nginx", Path: "/usr/sbin/nginx"},
	}}
	e := NewEnumerator(Options{
		Table:    table,
		Resolver: res,
		Mode:     mode,
		Clock:    clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return e, res
}

func TestEnumerateOutboundTCP(t *testing.T) {
	table := newFakeTable()
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 51000, "93.184.216.34", 443, 4242)
	table.add(KindTCP4, "TIME_WAIT", "10.0.0.5", 51001, "93.184.216.34", 443, 4242)
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 51002, "0.0.0.0", 0, 4242)

	e, _ := newTestEnumerator(table, DirectionListenTable)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 1)

	c := conns[0]
	assert.Equal(t, model.ProtoTCP, c.Protocol)
	assert.Equal(t, model.IPv4, c.IPVersion)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), c.RemoteAddr)
	assert.Equal(t, uint16(443), c.RemotePort)
	assert.Equal(t, uint16(51000), c.LocalPort)
	assert.Equal(t, model.DirOutbound, c.Direction)
	assert.False(t, c.Localhost)
	assert.Equal(t, "curl", c.ProcessName)
	assert.Equal(t, "/usr/bin/curl", c.ProcessPath)
	assert.Equal(t, model.HashUnavailable, c.Hash)
	assert.Equal(t, model.TrustUnknown, c.Trust)
	assert.False(t, c.Computed)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), c.SeenAt)
}

func TestEnumerateInboundViaListenTable(t *testing.T) {
	table := newFakeTable()
	table.add(KindTCP4, StateListen, "0.0.0.0", 80, "0.0.0.0", 0, 80)
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 80, "198.51.100.7", 50123, 80)
	table.add(KindTCP6, StateListen, "::", 8443, "::", 0, 80)
	table.add(KindTCP6, StateEstablished, "2001:db8::5", 8443, "2001:db8::9", 40000, 80)

	e, _ := newTestEnumerator(table, DirectionListenTable)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, model.DirInbound, conns[0].Direction)
	assert.Equal(t, model.DirInbound, conns[1].Direction)
	assert.Equal(t, model.IPv6, conns[1].IPVersion)
	assert.True(t, e.Index().IsListening(80, 80))
	assert.False(t, e.Index().IsListening(80, 81))
}

func TestEnumerateReadsEachTableOnce(t *testing.T) {
	table := newFakeTable()
	table.add(KindTCP4, StateListen, "0.0.0.0", 22, "0.0.0.0", 0, 10)
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 22, "198.51.100.7", 50123, 10)

	e, _ := newTestEnumerator(table, DirectionListenTable)
	for i := 1; i <= 2; i++ {
		conns, err := e.Enumerate(context.Background())
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, model.DirInbound, conns[0].Direction)
		for _, k := range []string{KindTCP4, KindTCP6, KindUDP4, KindUDP6} {
			assert.Equal(t, i, table.calls[k], k)
		}
	}
}

func TestEnumeratePortRangeMode(t *testing.T) {
	table := newFakeTable()
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 22, "198.51.100.7", 50123, 80)
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 50200, "198.51.100.7", 22, 80)

	e, _ := newTestEnumerator(table, DirectionPortRange)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, model.DirInbound, conns[0].Direction)
	assert.Equal(t, model.DirOutbound, conns[1].Direction)
	assert.Zero(t, table.calls[KindTCP4]-1, "listen table is not read in port_range mode")
}

func TestEnumerateUDPAndLocalhost(t *testing.T) {
	table := newFakeTable()
	table.add(KindUDP4, "", "127.0.0.1", 53, "", 0, 80)
	table.add(KindUDP6, "", "::", 5353, "", 0, 80)
	table.add(KindTCP4, StateEstablished, "127.0.0.1", 50000, "127.0.0.1", 8080, 4242)
	table.add(KindTCP6, StateEstablished, "::1", 50001, "::1", 8080, 4242)
	table.add(KindTCP4, StateEstablished, "127.0.0.1", 50002, "10.0.0.1", 8080, 4242)

	e, _ := newTestEnumerator(table, DirectionListenTable)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 5)

	byPort := map[uint16]model.Connection{}
	for _, c := range conns {
		byPort[c.LocalPort] = c
	}
	assert.True(t, byPort[50000].Localhost)
	assert.True(t, byPort[50001].Localhost)
	assert.False(t, byPort[50002].Localhost)

	udp := byPort[53]
	assert.Equal(t, model.ProtoUDP, udp.Protocol)
	assert.Equal(t, model.DirUnknown, udp.Direction)
	assert.False(t, udp.RemoteAddr.IsValid())
	assert.True(t, udp.Localhost)
	assert.False(t, byPort[5353].Localhost)
}

func TestEnumeratePartialFailure(t *testing.T) {
	table := newFakeTable()
	table.errs[KindTCP6] = fmt.Errorf("no ipv6")
	table.errs[KindUDP6] = fmt.Errorf("no ipv6")
	table.add(KindTCP4, StateEstablished, "10.0.0.5", 51000, "93.184.216.34", 443, 4242)

	e, _ := newTestEnumerator(table, DirectionListenTable)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestEnumerateTotalFailure(t *testing.T) {
	table := newFakeTable()
	for _, k := range []string{KindTCP4, KindTCP6, KindUDP4, KindUDP6} {
		table.errs[k] = fmt.Errorf("denied")
	}
	e, _ := newTestEnumerator(table, DirectionListenTable)
	_, err := e.Enumerate(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
	assert.Zero(t, e.Index().Len())
}

func TestEnumerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _ := newTestEnumerator(newFakeTable(), DirectionListenTable)
	_, err := e.Enumerate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnumerateLimitAndMemo(t *testing.T) {
	table := newFakeTable()
	for i := 0; i < model.MaxConnections+50; i++ {
		table.add(KindUDP4, "", "10.0.0.5", uint32(10000+i), "", 0, 4242)
	}
	e, res := newTestEnumerator(table, DirectionListenTable)
	conns, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Len(t, conns, model.MaxConnections)
	assert.Equal(t, 1, res.calls, "one resolve per pid per snapshot")
}

func TestResolverSystemPIDs(t *testing.T) {
	reserved := model.ReservedSystemPIDs
	t.Cleanup(func() { model.ReservedSystemPIDs = reserved })
	model.ReservedSystemPIDs = true

	r := NewTieredResolver(nil)
	r.name = nil

	info := r.Resolve(context.Background(), 0)
	assert.Equal(t, ProcessInfo{Name: "System Idle Process", Path: "[System Process]"}, info)

	info = r.Resolve(context.Background(), 4)
	assert.Equal(t, ProcessInfo{Name: "System", Path: "[System Process]"}, info)

	info = r.Resolve(context.Background(), 31337)
	assert.Equal(t, ProcessInfo{Name: "[System] PID:31337"}, info)
}

func TestResolverUnownedSocketIsNotSystem(t *testing.T) {
	reserved := model.ReservedSystemPIDs
	t.Cleanup(func() { model.ReservedSystemPIDs = reserved })
	model.ReservedSystemPIDs = false

	called := false
	r := NewTieredResolver(nil, PathTier{Name: "exe", Lookup: func(context.Context, int32) (string, error) {
		called = true
		return "/usr/sbin/sshd", nil
	}})
	r.name = nil

	assert.Equal(t, ProcessInfo{Name: "[System] PID:0"}, r.Resolve(context.Background(), 0))
	assert.False(t, called)

	info := r.Resolve(context.Background(), 4)
	assert.Equal(t, "/usr/sbin/sshd", info.Path)
}

func TestResolverTierOrder(t *testing.T) {
	var order []string
	tier := func(name, path string, err error) PathTier {
		return PathTier{Name: name, Lookup: func(context.Context, int32) (string, error) {
			order = append(order, name)
			return path, err
		}}
	}
	r := NewTieredResolver(nil,
		tier("full", "", fmt.Errorf("access denied")),
		tier("limited", `C:\Program Files\App\app.exe`, nil),
		tier("never", "/bad", nil),
	)
	info := r.Resolve(context.Background(), 1234)
	assert.Equal(t, []string{"full", "limited"}, order)
	assert.Equal(t, "app.exe", info.Name)
	assert.Equal(t, `C:\Program Files\App\app.exe`, info.Path)
}

func TestResolverNameOnlyFallback(t *testing.T) {
	r := NewTieredResolver(nil)
	r.name = func(context.Context, int32) (string, error) { return "svchost.exe", nil }
	info := r.Resolve(context.Background(), 900)
	assert.Equal(t, ProcessInfo{Name: "svchost.exe"}, info)
}

func TestClassifyByPortRange(t *testing.T) {
	assert.Equal(t, model.DirInbound, ClassifyByPortRange(443, 55000))
	assert.Equal(t, model.DirOutbound, ClassifyByPortRange(55000, 443))
	assert.Equal(t, model.DirOutbound, ClassifyByPortRange(8080, 30000))
}

func TestParseDirectionMode(t *testing.T) {
	m, err := ParseDirectionMode("")
	require.NoError(t, err)
	assert.Equal(t, DirectionListenTable, m)
	m, err = ParseDirectionMode("port_range")
	require.NoError(t, err)
	assert.Equal(t, DirectionPortRange, m)
	_, err = ParseDirectionMode("guess")
	assert.Error(t, err)
}

func TestListenIndexRefresh(t *testing.T) {
	table := newFakeTable()
	table.add(KindTCP6, StateListen, "::", 8443, "::", 0, 31)
	table.errs[KindTCP4] = fmt.Errorf("denied")

	li := NewListenIndex(table, nil)
	li.Refresh(context.Background())
	assert.True(t, li.IsListening(8443, 31))
	assert.Equal(t, 1, li.Len())

	table.errs[KindTCP6] = fmt.Errorf("denied")
	li.Refresh(context.Background())
	assert.Zero(t, li.Len())
}
