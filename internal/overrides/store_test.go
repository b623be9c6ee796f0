// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package overrides

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/protect"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	p, err := protect.NewKeyFileProtector(dir, []byte("uid:test"))
	require.NoError(t, err)
	s := New(filepath.Join(dir, "trust_overrides.dat"), p, nil)
	s.clock = clock.NewMockClock(time.UnixMilli(1767225600000))
	return s
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	require.NoError(t, s.Load())

	paths := []string{
		`C:\app.exe`,
		`C:\Program Files\Vendor Tool\evil.exe`,
		"/usr/bin/curl",
		"/opt/ünïcode/bin/agent",
		`\\server\share\tool.exe`,
		"/tmp/with space/x",
		"relative/name",
	}
	statuses := model.AllTrustStatuses()[1:]
	require.Len(t, statuses, len(paths))
	for i, st := range statuses {
		require.NoError(t, s.Set(paths[i], st), st.String())
	}

	reloaded := newTestStore(t, dir)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, s.List(), reloaded.List())
	for i, st := range statuses {
		assert.Equal(t, st, reloaded.Get(paths[i]), paths[i])
	}

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, Magic, binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, Version, binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, uint32(len(statuses)), binary.LittleEndian.Uint32(raw[8:]))
	assert.NotContains(t, string(raw), "evil.exe")
}

func TestMissingFileIsFirstRun(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	require.NoError(t, s.Load())
	assert.Empty(t, s.List())
}

func TestGetAfterApplyAndReset(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	require.NoError(t, s.Load())

	require.NoError(t, s.Apply(`C:\app.exe`, model.TrustManuallyTrusted))
	assert.Equal(t, model.TrustManuallyTrusted, s.Get(`C:\app.exe`))

	require.NoError(t, s.Apply(`C:\app.exe`, model.TrustUnknown))
	assert.Equal(t, model.TrustUnknown, s.Get(`C:\app.exe`))
	assert.Empty(t, s.List())

	reloaded := newTestStore(t, dir)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, model.TrustUnknown, reloaded.Get(`C:\app.exe`))
}

func TestCorruptMagicIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	require.NoError(t, s.Set(`C:\app.exe`, model.TrustManuallyTrusted))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	raw[0] ^= 0xff
	require.NoError(t, os.WriteFile(s.Path(), raw, 0o600))

	fresh := newTestStore(t, dir)
	require.NoError(t, fresh.Load())
	assert.Empty(t, fresh.List())

	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.Path() + ".corrupt.1767225600000")
	assert.NoError(t, err)
}

func TestCorruptionCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short header", func(b []byte) []byte { return b[:5] }},
		{"bad version", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:], 1); return b }},
		{"count over capacity", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:], 501); return b }},
		{"count mismatch", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:], 2); return b }},
		{"tampered payload", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := newTestStore(t, dir)
			require.NoError(t, s.Set(`C:\app.exe`, model.TrustManuallyTrusted))

			raw, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(s.Path(), tt.mutate(raw), 0o600))

			fresh := newTestStore(t, dir)
			require.NoError(t, fresh.Load())
			assert.Empty(t, fresh.List())

			matches, _ := filepath.Glob(s.Path() + ".corrupt.*")
			assert.Len(t, matches, 1)
		})
	}
}

func TestInvalidStatusRecordIsCorrupt(t *testing.T) {
	plain := encodeRecords([]record{{path: "/a", status: model.TrustManuallyTrusted, valid: true}})
	binary.LittleEndian.PutUint32(plain[recordPathSize:], 99)
	_, err := decodeRecords(plain, 1)
	require.Error(t, err)
	assert.Equal(t, errors.KindCorrupt, errors.GetKind(err))
}

func TestTombstonesSkippedOnLoad(t *testing.T) {
	recs, err := decodeRecords(encodeRecords([]record{
		{path: "/live", status: model.TrustManuallyTrusted, valid: true},
		{path: "/dead", status: model.TrustManuallyThreat, valid: false},
	}), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "/dead", recs[0].path)
	assert.False(t, recs[0].valid)
}

func TestSetValidation(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	err := s.Set("", model.TrustManuallyTrusted)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = s.Set("/"+strings.Repeat("a", PathMax), model.TrustManuallyTrusted)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	require.NoError(t, s.Set("/"+strings.Repeat("a", PathMax-1), model.TrustManuallyTrusted))

	err = s.Set("/x", model.TrustStatus(42))
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestCapacity(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	s.limit = 3
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("/bin/%d", i), model.TrustManuallyTrusted))
	}
	err := s.Set("/bin/overflow", model.TrustManuallyTrusted)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	// Updating an existing path still works when full.
	require.NoError(t, s.Set("/bin/0", model.TrustManuallyThreat))
	// Freeing a slot makes room.
	require.NoError(t, s.Set("/bin/1", model.TrustUnknown))
	require.NoError(t, s.Set("/bin/overflow", model.TrustManuallyTrusted))
	assert.Equal(t, 3, s.Len())
}

type failingProtector struct{}

func (failingProtector) Seal([]byte) ([]byte, error) { return nil, fmt.Errorf("no key") }
func (failingProtector) Open([]byte) ([]byte, error) { return nil, protect.ErrTampered }

func TestFailedSaveDoesNotPropagate(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "trust_overrides.dat"), failingProtector{}, nil)
	called := false
	s.AddPropagator(PropagatorFunc(func(string, model.TrustStatus) { called = true }))

	err := s.Apply(`C:\app.exe`, model.TrustManuallyThreat)
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, model.TrustUnknown, s.Get(`C:\app.exe`), "table rolled back")
}

func TestApplyPropagatesAfterSave(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	var mu sync.Mutex
	var seen []Override
	s.AddPropagator(PropagatorFunc(func(path string, status model.TrustStatus) {
		// The file must already hold the new value.
		check := newTestStore(t, dir)
		require.NoError(t, check.Load())
		assert.Equal(t, status, check.Get(path))

		mu.Lock()
		seen = append(seen, Override{Path: path, Status: status})
		mu.Unlock()
	}))

	require.NoError(t, s.Apply(`C:\app.exe`, model.TrustManuallyTrusted))
	require.NoError(t, s.Apply(`C:\app.exe`, model.TrustUnknown))
	assert.Equal(t, []Override{
		{Path: `C:\app.exe`, Status: model.TrustManuallyTrusted},
		{Path: `C:\app.exe`, Status: model.TrustUnknown},
	}, seen)
}

func TestConcurrentSetAndGet(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				path := fmt.Sprintf("/bin/%d-%d", w, i)
				assert.NoError(t, s.Set(path, model.TrustManuallyTrusted))
				assert.Equal(t, model.TrustManuallyTrusted, s.Get(path))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 40, s.Len())
}

type lastStatus struct {
	mu   sync.Mutex
	last map[string]model.TrustStatus
}

func (l *lastStatus) ApplyOverride(path string, status model.TrustStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[path] = status
}

func TestConcurrentApplyPropagatesInSaveOrder(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	require.NoError(t, s.Load())
	seen := &lastStatus{last: make(map[string]model.TrustStatus)}
	s.AddPropagator(seen)

	const path = `C:\contested.exe`
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := model.TrustManuallyTrusted
			if i%2 == 1 {
				st = model.TrustManuallyThreat
			}
			assert.NoError(t, s.Apply(path, st))
		}(i)
	}
	wg.Wait()

	reloaded := newTestStore(t, filepath.Dir(s.Path()))
	require.NoError(t, reloaded.Load())
	seen.mu.Lock()
	defer seen.mu.Unlock()
	assert.Equal(t, s.Get(path), seen.last[path])
	assert.Equal(t, reloaded.Get(path), seen.last[path])
}
