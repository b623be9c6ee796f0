// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package history journals observed connections and trust decisions to
// SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/peek/internal/clock"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// Trust event sources.
const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// ConnectionRecord is one journaled connection sighting.
type ConnectionRecord struct {
	Session   string    `json:"session"`
	SeenAt    time.Time `json:"seen_at"`
	Protocol  string    `json:"protocol"`
	IPVersion int       `json:"ip_version"`
	Local     string    `json:"local"`
	Remote    string    `json:"remote"`
	PID       int32     `json:"pid"`
	Process   string    `json:"process"`
	Path      string    `json:"path"`
	Direction string    `json:"direction"`
}

// TrustEvent is one journaled trust decision.
type TrustEvent struct {
	Session string    `json:"session"`
	At      time.Time `json:"at"`
	Path    string    `json:"path"`
	Status  string    `json:"status"`
	Hash    string    `json:"hash,omitempty"`
	Source  string    `json:"source"`
}

// Store handles persistence of history to SQLite.
type Store struct {
	db      *sql.DB
	session string
	clock   clock.Clock
	logger  *logging.Logger
}

// Open opens or creates the history database. session tags every row
// written through this Store.
func Open(path, session string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.WithComponent("history")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	s := &Store{db: db, session: session, clock: clock.Real, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Session returns the session id rows are tagged with.
func (s *Store) Session() string { return s.session }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		seen_at INTEGER NOT NULL, -- Unix millis
		protocol TEXT NOT NULL,
		ip_version INTEGER NOT NULL,
		local TEXT NOT NULL,
		remote TEXT,
		pid INTEGER NOT NULL,
		process TEXT,
		path TEXT,
		direction TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_connections_seen ON connections(seen_at);
	CREATE INDEX IF NOT EXISTS idx_connections_path ON connections(path);

	CREATE TABLE IF NOT EXISTS trust_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		at INTEGER NOT NULL, -- Unix millis
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		hash TEXT,
		source TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trust_events_path ON trust_events(path);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordConnections journals a batch of connections in one transaction.
func (s *Store) RecordConnections(conns []model.Connection) error {
	if len(conns) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO connections (session, seen_at, protocol, ip_version, local, remote, pid, process, path, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range conns {
		seen := c.SeenAt
		if seen.IsZero() {
			seen = s.clock.Now()
		}
		_, err := stmt.Exec(
			s.session,
			seen.UnixMilli(),
			c.Protocol.String(),
			int(c.IPVersion),
			c.Local(),
			c.Remote(),
			c.PID,
			c.ProcessName,
			c.ProcessPath,
			c.Direction.String(),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecordTrust journals one trust decision.
func (s *Store) RecordTrust(path, hash string, status model.TrustStatus, source string) error {
	_, err := s.db.Exec(`
		INSERT INTO trust_events (session, at, path, status, hash, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.session, s.clock.Now().UnixMilli(), path, status.String(), hash, source)
	return err
}

// ApplyOverride journals a manual decision. It satisfies
// overrides.Propagator.
func (s *Store) ApplyOverride(path string, status model.TrustStatus) {
	if err := s.RecordTrust(path, "", status, SourceManual); err != nil {
		s.logger.Warn("failed to journal override", "path", path, "error", err)
	}
}

// RecentConnections returns up to limit connections, newest first.
func (s *Store) RecentConnections(limit int) ([]ConnectionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT session, seen_at, protocol, ip_version, local, remote, pid, process, path, direction
		FROM connections
		ORDER BY seen_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConnectionRecord
	for rows.Next() {
		var (
			r    ConnectionRecord
			ms   int64
			rem  sql.NullString
			proc sql.NullString
			path sql.NullString
			dir  sql.NullString
		)
		if err := rows.Scan(&r.Session, &ms, &r.Protocol, &r.IPVersion, &r.Local, &rem, &r.PID, &proc, &path, &dir); err != nil {
			return nil, err
		}
		r.SeenAt = time.UnixMilli(ms)
		r.Remote = rem.String
		r.Process = proc.String
		r.Path = path.String
		r.Direction = dir.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrustHistory returns every decision recorded for path, oldest first.
func (s *Store) TrustHistory(path string) ([]TrustEvent, error) {
	rows, err := s.db.Query(`
		SELECT session, at, path, status, hash, source
		FROM trust_events
		WHERE path = ?
		ORDER BY at ASC, id ASC
	`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrustEvent
	for rows.Next() {
		var (
			e    TrustEvent
			ms   int64
			hash sql.NullString
		)
		if err := rows.Scan(&e.Session, &ms, &e.Path, &e.Status, &hash, &e.Source); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(ms)
		e.Hash = hash.String
		out = append(out, e)
	}
	return out, rows.Err()
}
