// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/netstat"
)

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

type countingVerifier struct {
	inner   Verifier
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (v *countingVerifier) Verify(ctx context.Context, path string) (Signature, error) {
	v.calls.Add(1)
	n := v.active.Add(1)
	defer v.active.Add(-1)
	for {
		m := v.maxSeen.Load()
		if n <= m || v.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if v.delay > 0 {
		time.Sleep(v.delay)
	}
	return v.inner.Verify(ctx, path)
}

type staticVerifier struct {
	sig Signature
	err error
}

func (s staticVerifier) Verify(context.Context, string) (Signature, error) { return s.sig, s.err }

type mapOverrides struct {
	mu sync.Mutex
	m  map[string]model.TrustStatus
}

func (o *mapOverrides) Get(path string) model.TrustStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.m[path]
}

func (o *mapOverrides) set(path string, s model.TrustStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[path] = s
}

type stubResolver struct{ info netstat.ProcessInfo }

func (r stubResolver) Resolve(context.Context, int32) netstat.ProcessInfo { return r.info }

func writeExe(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func TestClassifyUnsigned(t *testing.T) {
	dir := t.TempDir()
	exe := writeExe(t, dir, "app", "plain binary")

	c := NewClassifier(ClassifierOptions{Verifier: NewSigFileVerifier(nil)})
	res := c.ClassifyPath(context.Background(), exe)

	assert.Equal(t, model.TrustUnsigned, res.Status)
	assert.Regexp(t, hexHash, res.Hash)
	assert.Equal(t, SourceComputed, res.Source)
	assert.Equal(t, 1, c.Cache().Len())
}

func TestClassifySigFile(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	vendor, err := ParsePublisher("Microsoft Corporation", base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)
	thirdParty := Publisher{Name: "Example Corp", Key: vendor.Key}

	signed := writeExe(t, dir, "signed", "signed binary")
	require.NoError(t, SignFile(context.Background(), signed, priv))

	forged := writeExe(t, dir, "forged", "forged binary")
	require.NoError(t, SignFile(context.Background(), forged, otherPriv))

	garbled := writeExe(t, dir, "garbled", "garbled binary")
	require.NoError(t, os.WriteFile(garbled+SigFileSuffix, []byte("not base64!"), 0o644))

	tests := []struct {
		name       string
		publishers []Publisher
		path       string
		want       model.TrustStatus
	}{
		{"vendor signer", []Publisher{vendor}, signed, model.TrustMicrosoftSigned},
		{"third party signer", []Publisher{thirdParty}, signed, model.TrustVerifiedSigned},
		{"unknown key", []Publisher{vendor}, forged, model.TrustInvalidSignature},
		{"malformed sig", []Publisher{vendor}, garbled, model.TrustVerificationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(ClassifierOptions{Verifier: NewSigFileVerifier(tt.publishers)})
			res := c.ClassifyPath(context.Background(), tt.path)
			assert.Equal(t, tt.want, res.Status)
			assert.Regexp(t, hexHash, res.Hash)
		})
	}
}

func TestParsePublisherRejectsBadKeys(t *testing.T) {
	_, err := ParsePublisher("x", "%%%")
	assert.Error(t, err)
	_, err = ParsePublisher("x", base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestVendorHeuristicIsCaseSensitive(t *testing.T) {
	assert.True(t, isVendor("Microsoft Windows", DefaultVendorFragments))
	assert.False(t, isVendor("microsoft-ish Corp", DefaultVendorFragments))
	assert.False(t, isVendor("", DefaultVendorFragments))
}

func TestClassifyCacheConvergence(t *testing.T) {
	exe := writeExe(t, t.TempDir(), "app", "content")
	v := &countingVerifier{inner: staticVerifier{err: ErrNoSignature}}
	c := NewClassifier(ClassifierOptions{Verifier: v})

	first := c.ClassifyPath(context.Background(), exe)
	second := c.ClassifyPath(context.Background(), exe)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestClassifyOverridePrecedence(t *testing.T) {
	exe := writeExe(t, t.TempDir(), "app", "content")
	overrides := &mapOverrides{m: map[string]model.TrustStatus{}}
	v := &countingVerifier{inner: staticVerifier{sig: Signature{Signer: "Example Corp"}}}
	c := NewClassifier(ClassifierOptions{Verifier: v, Overrides: overrides})

	assert.Equal(t, model.TrustVerifiedSigned, c.ClassifyPath(context.Background(), exe).Status)

	overrides.set(exe, model.TrustManuallyThreat)
	c.Cache().ApplyOverride(exe, model.TrustManuallyThreat)
	res := c.ClassifyPath(context.Background(), exe)
	assert.Equal(t, model.TrustManuallyThreat, res.Status)
	assert.Equal(t, SourceOverride, res.Source)
	assert.Regexp(t, hexHash, res.Hash)

	c.Cache().Clear()
	res = c.ClassifyPath(context.Background(), exe)
	assert.Equal(t, model.TrustManuallyThreat, res.Status)
	assert.Regexp(t, hexHash, res.Hash)
	assert.Zero(t, c.Cache().Len(), "override results are not cached")

	overrides.set(exe, model.TrustUnknown)
	c.Cache().ApplyOverride(exe, model.TrustUnknown)
	assert.Equal(t, model.TrustVerifiedSigned, c.ClassifyPath(context.Background(), exe).Status)
}

func TestClassifyUnreadable(t *testing.T) {
	c := NewClassifier(ClassifierOptions{Verifier: staticVerifier{err: fmt.Errorf("file locked")}})
	res := c.ClassifyPath(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, model.HashError, res.Hash)
	assert.Equal(t, model.TrustVerificationError, res.Status)
}

func TestClassifyConnectionSpecialCases(t *testing.T) {
	c := NewClassifier(ClassifierOptions{
		Resolver: stubResolver{},
		Verifier: staticVerifier{err: ErrNoSignature},
	})

	res := c.Classify(context.Background(), model.Connection{PID: 999})
	assert.Equal(t, model.HashNA, res.Hash)
	assert.Equal(t, model.TrustUnknown, res.Status)

	reserved := model.ReservedSystemPIDs
	t.Cleanup(func() { model.ReservedSystemPIDs = reserved })
	model.ReservedSystemPIDs = true
	res = c.Classify(context.Background(), model.Connection{PID: 4, ProcessPath: model.SystemProcessPath})
	assert.Equal(t, model.HashNA, res.Hash)
	assert.Equal(t, model.TrustMicrosoftSigned, res.Status)

	// pid 0 without reserved system pids is an unowned socket, not the kernel.
	model.ReservedSystemPIDs = false
	res = c.Classify(context.Background(), model.Connection{PID: 0})
	assert.Equal(t, model.HashNA, res.Hash)
	assert.Equal(t, model.TrustUnknown, res.Status)
	assert.Equal(t, SourceNone, res.Source)

	unowned := writeExe(t, t.TempDir(), "unowned", "y")
	res = c.Classify(context.Background(), model.Connection{PID: 0, ProcessPath: unowned})
	assert.Equal(t, model.TrustUnsigned, res.Status)
	assert.Equal(t, SourceComputed, res.Source)

	exe := writeExe(t, t.TempDir(), "late", "x")
	c = NewClassifier(ClassifierOptions{
		Resolver: stubResolver{info: netstat.ProcessInfo{Name: "late", Path: exe}},
		Verifier: staticVerifier{err: ErrNoSignature},
	})
	res = c.Classify(context.Background(), model.Connection{PID: 77})
	assert.Equal(t, exe, res.Path)
	assert.Equal(t, model.TrustUnsigned, res.Status)
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	assert.True(t, c.Insert("/a", "h1", model.TrustUnsigned))
	assert.True(t, c.Insert("/b", "h2", model.TrustUnsigned))
	assert.False(t, c.Insert("/c", "h3", model.TrustUnsigned))
	assert.True(t, c.Insert("/a", "h1b", model.TrustVerifiedSigned))

	e, ok := c.Lookup("/a")
	require.True(t, ok)
	assert.Equal(t, "h1b", e.Hash)
	_, ok = c.Lookup("/c")
	assert.False(t, ok)

	c.ApplyOverride("/b", model.TrustManuallyTrusted)
	e, _ = c.Lookup("/b")
	assert.Equal(t, model.TrustManuallyTrusted, e.Status)

	c.ApplyOverride("/b", model.TrustUnknown)
	_, ok = c.Lookup("/b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	assert.Equal(t, model.MaxCacheEntries, NewCache(10000).limit)
}

type recordingSink struct {
	mu      sync.Mutex
	updates map[model.Key]model.TrustStatus
}

func (s *recordingSink) UpdateTrust(key model.Key, _ string, status model.TrustStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[key] = status
	return true
}

func TestSchedulerDrainsBatch(t *testing.T) {
	dir := t.TempDir()
	v := &countingVerifier{inner: staticVerifier{err: ErrNoSignature}, delay: 5 * time.Millisecond}
	c := NewClassifier(ClassifierOptions{Verifier: v})
	sink := &recordingSink{updates: map[model.Key]model.TrustStatus{}}
	s := NewScheduler(c, 3, sink, nil)

	var conns []model.Connection
	for i := 0; i < 20; i++ {
		exe := writeExe(t, dir, fmt.Sprintf("app%d", i), fmt.Sprintf("body %d", i))
		conns = append(conns, model.Connection{PID: int32(100 + i), LocalPort: uint16(i), ProcessPath: exe})
	}
	conns[0].Computed = true
	conns[0].Trust = model.TrustVerifiedSigned

	var observed atomic.Int32
	s.SetObserver(func(model.Connection, Result) { observed.Add(1) })

	require.NoError(t, s.ClassifyAll(context.Background(), conns))

	assert.Equal(t, model.TrustVerifiedSigned, conns[0].Trust, "computed entries are skipped")
	for _, conn := range conns[1:] {
		assert.True(t, conn.Computed)
		assert.Equal(t, model.TrustUnsigned, conn.Trust)
		assert.Regexp(t, hexHash, conn.Hash)
	}
	assert.Len(t, sink.updates, 19)
	assert.Equal(t, int32(19), observed.Load())
	assert.LessOrEqual(t, v.maxSeen.Load(), int32(3))
}

func TestSchedulerCancelledBeforeDispatch(t *testing.T) {
	c := NewClassifier(ClassifierOptions{Verifier: staticVerifier{err: ErrNoSignature}})
	s := NewScheduler(c, 2, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conns := []model.Connection{{PID: 10, ProcessPath: "/nope"}}
	err := s.ClassifyAll(ctx, conns)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, conns[0].Computed)
}

func TestSchedulerOverrideWins(t *testing.T) {
	exe := writeExe(t, t.TempDir(), "app", "content")
	overrides := &mapOverrides{m: map[string]model.TrustStatus{exe: model.TrustManuallyTrusted}}
	c := NewClassifier(ClassifierOptions{Verifier: staticVerifier{err: ErrNoSignature}, Overrides: overrides})
	s := NewScheduler(c, 0, nil, nil)
	assert.Equal(t, model.MaxWorkers, s.Workers())

	got := s.ClassifyOne(context.Background(), model.Connection{PID: 5, ProcessPath: exe})
	assert.True(t, got.Computed)
	assert.Equal(t, model.TrustManuallyTrusted, got.Trust)
}

type gatedHasher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedHasher() *gatedHasher {
	return &gatedHasher{entered: make(chan struct{}), release: make(chan struct{})}
}

func (h *gatedHasher) Hash(ctx context.Context, path string) (string, error) {
	h.once.Do(func() { close(h.entered) })
	<-h.release
	return SHA256Hasher{}.Hash(ctx, path)
}

func TestSchedulerOverrideResetWhileHashing(t *testing.T) {
	exe := writeExe(t, t.TempDir(), "app", "content")
	overrides := &mapOverrides{m: map[string]model.TrustStatus{exe: model.TrustManuallyThreat}}
	hasher := newGatedHasher()
	c := NewClassifier(ClassifierOptions{
		Verifier:  staticVerifier{err: ErrNoSignature},
		Overrides: overrides,
		Hasher:    hasher,
	})
	sink := &recordingSink{updates: map[model.Key]model.TrustStatus{}}
	s := NewScheduler(c, 1, sink, nil)

	conn := model.Connection{PID: 77, ProcessPath: exe, RemotePort: 443, LocalPort: 50000}
	done := make(chan model.Connection, 1)
	go func() { done <- s.ClassifyOne(context.Background(), conn) }()

	select {
	case <-hasher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("hasher never called")
	}
	overrides.set(exe, model.TrustUnknown)
	close(hasher.release)

	var got model.Connection
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("classification did not finish")
	}
	assert.True(t, got.Computed)
	assert.Equal(t, model.TrustUnsigned, got.Trust)
	assert.Regexp(t, hexHash, got.Hash)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, model.TrustUnsigned, sink.updates[conn.Key()])
}
