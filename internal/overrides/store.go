// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package overrides persists the user's manual trust decisions in an
// encrypted, atomically replaced file.
package overrides

import (
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/protect"
	"grimm.is/peek/internal/validation"
)

// Override is one manual trust decision.
type Override struct {
	Path   string            `json:"path" yaml:"path"`
	Status model.TrustStatus `json:"status" yaml:"status"`
}

// Propagator is told about every override that has been durably saved.
type Propagator interface {
	ApplyOverride(path string, status model.TrustStatus)
}

// PropagatorFunc adapts a function to Propagator.
type PropagatorFunc func(path string, status model.TrustStatus)

func (f PropagatorFunc) ApplyOverride(path string, status model.TrustStatus) { f(path, status) }

// Store is the override table and its backing file.
type Store struct {
	path      string
	protector protect.Protector
	clock     clock.Clock
	logger    *logging.Logger
	limit     int

	mu      sync.RWMutex
	entries map[string]*record

	// applyMu keeps propagation in the same order as saves.
	applyMu sync.Mutex

	propMu sync.Mutex
	props  []Propagator
}

// New creates a Store for the file at path. The table is empty until Load.
func New(path string, protector protect.Protector, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.WithComponent("overrides")
	}
	return &Store{
		path:      path,
		protector: protector,
		clock:     clock.Real,
		logger:    logger,
		limit:     model.MaxOverrides,
		entries:   make(map[string]*record),
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// AddPropagator registers p to run after each successful Apply.
func (s *Store) AddPropagator(p Propagator) {
	s.propMu.Lock()
	defer s.propMu.Unlock()
	s.props = append(s.props, p)
}

// Load replaces the in-memory table with the file contents. A missing file
// is a first run. A corrupt file is moved aside and the table starts empty;
// that is logged, not returned.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if stderrors.Is(err, os.ErrNotExist) {
		s.entries = make(map[string]*record)
		s.logger.Debug("no override file, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "read override file")
	}

	recs, err := s.decode(data)
	if err != nil {
		s.entries = make(map[string]*record)
		s.quarantine(err)
		return nil
	}

	entries := make(map[string]*record, len(recs))
	for _, r := range recs {
		if !r.valid || r.path == "" {
			continue
		}
		rec := r
		entries[r.path] = &rec
	}
	s.entries = entries
	s.logger.Info("loaded trust overrides", "count", len(entries), "path", s.path)
	return nil
}

func (s *Store) decode(data []byte) ([]record, error) {
	count, err := decodeHeader(data, s.limit)
	if err != nil {
		return nil, err
	}
	plain, err := s.protector.Open(data[headerSize:])
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCorrupt, "unseal override records")
	}
	return decodeRecords(plain, count)
}

// quarantine moves the live file to <file>.corrupt.<unix-millis>.
func (s *Store) quarantine(cause error) {
	dest := fmt.Sprintf("%s.corrupt.%d", s.path, s.clock.Now().UnixMilli())
	if err := os.Rename(s.path, dest); err != nil {
		s.logger.Error("override file corrupt and could not be moved aside", "path", s.path, "error", cause, "rename_error", err)
		return
	}
	s.logger.Warn("override file corrupt, moved aside", append([]any{"path", s.path, "quarantine", dest}, errors.LogValues(cause)...)...)
}

// Save compacts tombstones and atomically rewrites the file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	recs := make([]record, 0, len(s.entries))
	for path, r := range s.entries {
		if !r.valid {
			delete(s.entries, path)
			continue
		}
		recs = append(recs, *r)
	}

	sealed, err := s.protector.Seal(encodeRecords(recs))
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "seal override records")
	}
	data := append(encodeHeader(len(recs)), sealed...)
	if err := config.SecureWriteFile(s.path, data); err != nil {
		return errors.Wrap(err, errors.KindInternal, "write override file")
	}
	return nil
}

// Get returns the override for path, or TrustUnknown.
func (s *Store) Get(path string) model.TrustStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.entries[path]; ok && r.valid {
		return r.status
	}
	return model.TrustUnknown
}

// List returns the live overrides sorted by path.
func (s *Store) List() []Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Override, 0, len(s.entries))
	for _, r := range s.entries {
		if r.valid {
			out = append(out, Override{Path: r.path, Status: r.status})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of live overrides.
func (s *Store) Len() int {
	return len(s.List())
}

// Set records an override and saves. TrustUnknown removes it. If the save
// fails the table is left as it was.
func (s *Store) Set(path string, status model.TrustStatus) error {
	if err := validation.ValidateExecutablePath(path, PathMax); err != nil {
		return errors.Wrap(err, errors.KindValidation, "override")
	}
	if !status.Valid() {
		return errors.Errorf(errors.KindValidation, "invalid trust status %d", uint32(status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[path]
	var saved record
	if existed {
		saved = *prev
	}

	switch {
	case status == model.TrustUnknown:
		if !existed {
			return nil
		}
		prev.valid = false
	case existed:
		prev.status = status
		prev.valid = true
	default:
		if s.liveLocked() >= s.limit {
			return errors.Attr(errors.Errorf(errors.KindConflict, "override table full (%d entries)", s.limit), "path", path)
		}
		s.entries[path] = &record{path: path, status: status, valid: true}
	}

	if err := s.saveLocked(); err != nil {
		if existed {
			s.entries[path] = &saved
		} else {
			delete(s.entries, path)
		}
		return err
	}
	return nil
}

func (s *Store) liveLocked() int {
	n := 0
	for _, r := range s.entries {
		if r.valid {
			n++
		}
	}
	return n
}

// Apply sets the override and, once it is on disk, notifies every
// registered propagator.
func (s *Store) Apply(path string, status model.TrustStatus) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if err := s.Set(path, status); err != nil {
		return err
	}

	s.propMu.Lock()
	props := append([]Propagator(nil), s.props...)
	s.propMu.Unlock()

	for _, p := range props {
		p.ApplyOverride(path, status)
	}
	s.logger.Info("trust override applied", "path", path, "status", status)
	return nil
}
