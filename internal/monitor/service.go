// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package monitor runs the connection poll loop and ties enumeration,
// tracking, classification and overrides together.
package monitor

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/history"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/metrics"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/netstat"
	"grimm.is/peek/internal/overrides"
	"grimm.is/peek/internal/protect"
	"grimm.is/peek/internal/tracker"
	"grimm.is/peek/internal/trust"
)

// Version is reported by Status. Set at link time.
var Version = "dev"

// Enumerator produces connection snapshots.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]model.Connection, error)
}

// Deps are the replaceable collaborators of a Service. Nil fields are
// built from the config.
type Deps struct {
	Enumerator Enumerator
	Resolver   netstat.ProcessResolver
	Verifier   trust.Verifier
	Overrides  *overrides.Store
	History    *history.Store
	Metrics    *metrics.Registry
	Clock      clock.Clock
	Session    string // generated when empty
}

// Status describes a running or stopped engine.
type Status struct {
	Running      bool        `json:"running"`
	Session      string      `json:"session"`
	Version      string      `json:"version"`
	StartedAt    time.Time   `json:"started_at,omitzero"`
	Uptime       string      `json:"uptime,omitempty"`
	Stats        model.Stats `json:"stats"`
	CacheEntries int         `json:"cache_entries"`
	Overrides    int         `json:"overrides"`
	Workers      int         `json:"workers"`
	PollInterval string      `json:"poll_interval"`
	DataDir      string      `json:"data_dir"`
	Subscribers  int         `json:"subscribers"`
}

// Service is the engine.
type Service struct {
	cfg        *config.Config
	logger     *logging.Logger
	clock      clock.Clock
	session    string
	enum       Enumerator
	tracker    *tracker.Tracker
	cache      *trust.Cache
	classifier *trust.Classifier
	scheduler  *trust.Scheduler
	store      *overrides.Store
	history    *history.Store
	journal    *journal
	metrics    *metrics.Registry
	hub        *EventHub

	mu        sync.Mutex
	running   bool
	starting  bool
	startedAt time.Time
	cancel    context.CancelFunc
	bulkDone  chan struct{}
	wg        sync.WaitGroup
	bg        sync.WaitGroup
}

// NewService wires a Service from cfg and deps. cfg must already be
// validated.
func NewService(cfg *config.Config, deps Deps, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.WithComponent("monitor")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real
	}
	if deps.Session == "" {
		deps.Session = uuid.New().String()
	}

	if deps.Resolver == nil {
		deps.Resolver = netstat.NewResolver(logger.WithComponent("resolver"))
	}
	if deps.Enumerator == nil {
		mode, err := netstat.ParseDirectionMode(cfg.DirectionMode)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "direction_mode")
		}
		deps.Enumerator = netstat.NewEnumerator(netstat.Options{
			Resolver: deps.Resolver,
			Mode:     mode,
			Clock:    deps.Clock,
			Logger:   logger.WithComponent("netstat"),
		})
	}
	if deps.Verifier == nil {
		pubs, err := Publishers(cfg)
		if err != nil {
			return nil, err
		}
		deps.Verifier = trust.NewPlatformVerifier(pubs)
	}
	if deps.Overrides == nil {
		p, err := protect.New(cfg.DataDir)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "init override protection")
		}
		deps.Overrides = overrides.New(cfg.OverridesPath(), p, logger.WithComponent("overrides"))
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		clock:   deps.Clock,
		session: deps.Session,
		enum:    deps.Enumerator,
		tracker: tracker.New(logger.WithComponent("tracker")),
		cache:   trust.NewCache(cfg.CacheSize),
		store:   deps.Overrides,
		history: deps.History,
		metrics: deps.Metrics,
	}

	var onDrop func()
	if s.metrics != nil {
		onDrop = s.metrics.EventsDropped.Inc
	}
	s.hub = NewEventHub(onDrop)

	if s.history != nil {
		var onJournalDrop func()
		if s.metrics != nil {
			onJournalDrop = s.metrics.JournalDropped.Inc
		}
		s.journal = newJournal(s.history, logger.WithComponent("journal"), onJournalDrop)
	}

	s.classifier = trust.NewClassifier(trust.ClassifierOptions{
		Cache:           s.cache,
		Overrides:       s.store,
		Resolver:        deps.Resolver,
		Verifier:        deps.Verifier,
		VendorFragments: cfg.Trust.VendorFragments,
		Logger:          logger.WithComponent("trust"),
	})
	s.scheduler = trust.NewScheduler(s.classifier, cfg.Workers, s.tracker, logger.WithComponent("scheduler"))
	s.scheduler.SetObserver(s.observe)

	// Cache first so a reset is visible before reclassification starts.
	s.store.AddPropagator(s.cache)
	s.store.AddPropagator(overrides.PropagatorFunc(s.propagateToTracker))
	s.store.AddPropagator(overrides.PropagatorFunc(s.publishOverride))
	if s.history != nil {
		s.store.AddPropagator(s.history)
	}
	return s, nil
}

// Publishers parses the configured publisher keys.
func Publishers(cfg *config.Config) ([]trust.Publisher, error) {
	if cfg.Trust == nil {
		return nil, nil
	}
	pubs := make([]trust.Publisher, 0, len(cfg.Trust.Publishers))
	for _, pc := range cfg.Trust.Publishers {
		p, err := trust.ParsePublisher(pc.Name, pc.PublicKey)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}

// Start seeds the seen-set from one enumeration, kicks off a bulk
// classification and begins polling.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return errors.New(errors.KindConflict, "monitor already running")
	}
	s.starting = true
	s.mu.Unlock()

	initial, err := s.Enumerate(ctx)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return err
	}
	s.tracker.Seed(initial)
	s.recordConnections(initial)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.starting = false
	s.running = true
	s.startedAt = s.clock.Now()
	s.cancel = cancel
	s.bulkDone = done
	s.mu.Unlock()

	s.logger.Info("Starting connection monitor",
		"session", s.session,
		"initial", len(initial),
		"poll_interval", s.cfg.Poll().String(),
		"workers", s.scheduler.Workers())

	go func() {
		defer close(done)
		if err := s.ClassifyAll(runCtx); err != nil {
			s.logger.Debug("bulk classification interrupted", "error", err)
		}
	}()

	s.wg.Add(1)
	go s.pollLoop(runCtx)
	return nil
}

// Stop ends polling and waits up to stop_timeout for the bulk
// classification. Single-connection classifications may still be running
// when it returns.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.bulkDone
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	select {
	case <-done:
	case <-time.After(s.cfg.Stop()):
		s.logger.Warn("bulk classification still running at shutdown", "timeout", s.cfg.Stop().String())
	}
	s.logger.Info("Connection monitor stopped")
}

// Wait blocks until background single-connection classifications finish.
func (s *Service) Wait() { s.bg.Wait() }

func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Poll())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.CheckNew(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("poll skipped", errors.LogValues(err)...)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Enumerate takes one snapshot, honoring show_localhost.
func (s *Service) Enumerate(ctx context.Context) ([]model.Connection, error) {
	start := time.Now()
	conns, err := s.enum.Enumerate(ctx)
	if s.metrics != nil {
		s.metrics.ObservePoll(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.ShowLocal() {
		return conns, nil
	}
	out := conns[:0]
	for _, c := range conns {
		if !c.Localhost {
			out = append(out, c)
		}
	}
	return out, nil
}

// CheckNew runs one poll cycle: enumerate, diff against the seen-set,
// publish and classify what is new. Classification happens off the
// caller's goroutine.
func (s *Service) CheckNew(ctx context.Context) ([]model.Connection, error) {
	conns, err := s.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	fresh := s.tracker.CheckNew(conns)
	for _, c := range fresh {
		conn := c
		s.hub.Publish(Event{Type: EventConnectionAdded, At: s.clock.Now(), Connection: &conn})
		s.classifyAsync(conn)
	}
	s.recordConnections(fresh)
	return fresh, nil
}

func (s *Service) classifyAsync(c model.Connection) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.scheduler.ClassifyOne(context.Background(), c)
	}()
}

// ClassifyAll classifies every uncomputed entry in the seen-set and returns
// once the batch has drained.
func (s *Service) ClassifyAll(ctx context.Context) error {
	return s.scheduler.ClassifyAll(ctx, s.tracker.GetAllSeen())
}

// Snapshot enumerates once without touching the seen-set. With classify
// set every connection is classified before returning.
func (s *Service) Snapshot(ctx context.Context, classify bool) ([]model.Connection, error) {
	conns, err := s.Enumerate(ctx)
	if err != nil || !classify {
		return conns, err
	}
	if err := s.scheduler.ClassifyAll(ctx, conns); err != nil {
		return conns, err
	}
	return conns, nil
}

// ClassifyPath classifies a bare executable path.
func (s *Service) ClassifyPath(ctx context.Context, path string) trust.Result {
	return s.classifier.ClassifyPath(ctx, path)
}

// observe runs after every classification.
func (s *Service) observe(conn model.Connection, res trust.Result) {
	if s.metrics != nil {
		s.metrics.ObserveClassification(res.Status, res.Source)
	}
	if s.history != nil && res.Source == trust.SourceComputed {
		if err := s.history.RecordTrust(res.Path, res.Hash, res.Status, history.SourceAuto); err != nil {
			s.logger.Warn("failed to journal classification", "path", res.Path, "error", err)
		}
	}
	status := res.Status
	s.hub.Publish(Event{
		Type:       EventTrustChanged,
		At:         s.clock.Now(),
		Connection: &conn,
		Path:       res.Path,
		Status:     &status,
		Source:     res.Source,
	})
}

func (s *Service) recordConnections(conns []model.Connection) {
	if s.journal != nil {
		s.journal.enqueue(conns)
	}
}

// Close flushes the history journal. Call it after Stop and before the
// history store is closed.
func (s *Service) Close() {
	if s.journal != nil {
		s.journal.close()
	}
}

// GetAllSeen returns a snapshot of the seen-set.
func (s *Service) GetAllSeen() []model.Connection { return s.tracker.GetAllSeen() }

// Clear empties the seen-set. The cache and overrides are untouched.
func (s *Service) Clear() {
	s.tracker.Clear()
	s.logger.Info("seen-set cleared")
}

// GetStats returns the tracker counters.
func (s *Service) GetStats() model.Stats { return s.tracker.Stats() }

// FindConnection looks up one seen connection by identity.
func (s *Service) FindConnection(pid int32, remoteAddr netip.Addr, remotePort, localPort uint16) (model.Connection, bool) {
	return s.tracker.Find(pid, remoteAddr, remotePort, localPort)
}

// LoadOverrides rereads the override file and pushes every override onto
// the seen-set and cache.
func (s *Service) LoadOverrides() error {
	if err := s.store.Load(); err != nil {
		return err
	}
	for _, o := range s.store.List() {
		s.cache.ApplyOverride(o.Path, o.Status)
		s.tracker.ApplyOverride(o.Path, o.Status)
	}
	return nil
}

// GetOverride returns the manual status for path, or TrustUnknown.
func (s *Service) GetOverride(path string) model.TrustStatus { return s.store.Get(path) }

// ListOverrides returns every override sorted by path.
func (s *Service) ListOverrides() []overrides.Override { return s.store.List() }

// ApplyOverride persists an override and propagates it. TrustUnknown
// removes the override and reclassifies affected connections in the
// background.
func (s *Service) ApplyOverride(path string, status model.TrustStatus) error {
	return s.store.Apply(path, status)
}

func (s *Service) propagateToTracker(path string, status model.TrustStatus) {
	for _, c := range s.tracker.ApplyOverride(path, status) {
		s.classifyAsync(c)
	}
}

func (s *Service) publishOverride(path string, status model.TrustStatus) {
	s.hub.Publish(Event{
		Type:   EventTrustChanged,
		At:     s.clock.Now(),
		Path:   path,
		Status: &status,
		Source: trust.SourceOverride,
	})
}

// Hub returns the event hub.
func (s *Service) Hub() *EventHub { return s.hub }

// Session returns this engine's session id.
func (s *Service) Session() string { return s.session }

// CacheLen returns the number of cached executables.
func (s *Service) CacheLen() int { return s.cache.Len() }

// OverrideCount returns the number of live overrides.
func (s *Service) OverrideCount() int { return s.store.Len() }

// Status reports engine state.
func (s *Service) Status() Status {
	s.mu.Lock()
	running, started := s.running, s.startedAt
	s.mu.Unlock()

	st := Status{
		Running:      running,
		Session:      s.session,
		Version:      Version,
		Stats:        s.tracker.Stats(),
		CacheEntries: s.cache.Len(),
		Overrides:    s.store.Len(),
		Workers:      s.scheduler.Workers(),
		PollInterval: s.cfg.Poll().String(),
		DataDir:      s.cfg.DataDir,
		Subscribers:  s.hub.Subscribers(),
	}
	if running {
		st.StartedAt = started
		st.Uptime = s.clock.Now().Sub(started).Round(time.Second).String()
	}
	return st
}
