// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"net/netip"
	"strconv"

	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/model"
)

const defaultHistoryLimit = 100

// OverrideRequest is the body of POST /overrides.
type OverrideRequest struct {
	Path   string            `json:"path"`
	Status model.TrustStatus `json:"status"`
}

// handleGetConnections returns the seen-set, or with ?new=1 runs one check
// cycle and returns only what it found.
func (s *Server) handleGetConnections(w http.ResponseWriter, r *http.Request) {
	if isTrue(r.URL.Query().Get("new")) {
		fresh, err := s.engine.CheckNew(r.Context())
		if err != nil {
			WriteKindError(w, "Enumeration failed", err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"connections": nonNil(fresh),
			"count":       len(fresh),
		})
		return
	}

	conns := s.engine.GetAllSeen()
	WriteJSON(w, http.StatusOK, map[string]any{
		"connections": nonNil(conns),
		"count":       len(conns),
	})
}

func (s *Server) handleClearConnections(w http.ResponseWriter, r *http.Request) {
	s.engine.Clear()
	WriteJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleFindConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pid, err := strconv.ParseInt(q.Get("pid"), 10, 32)
	if err != nil {
		WriteErrorDetails(w, http.StatusBadRequest, ErrInvalidQuery, errors.Wrap(err, errors.KindValidation, "pid"))
		return
	}
	var addr netip.Addr
	if raw := q.Get("remote_addr"); raw != "" {
		addr, err = netip.ParseAddr(raw)
		if err != nil {
			WriteErrorDetails(w, http.StatusBadRequest, ErrInvalidQuery, errors.Wrap(err, errors.KindValidation, "remote_addr"))
			return
		}
	}
	rport, err := parsePort(q.Get("remote_port"))
	if err != nil {
		WriteErrorDetails(w, http.StatusBadRequest, ErrInvalidQuery, errors.Wrap(err, errors.KindValidation, "remote_port"))
		return
	}
	lport, err := parsePort(q.Get("local_port"))
	if err != nil {
		WriteErrorDetails(w, http.StatusBadRequest, ErrInvalidQuery, errors.Wrap(err, errors.KindValidation, "local_port"))
		return
	}

	conn, ok := s.engine.FindConnection(int32(pid), addr.Unmap(), rport, lport)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, conn)
}

func (s *Server) handleClassifyAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClassifyAll(r.Context()); err != nil {
		WriteErrorDetails(w, http.StatusServiceUnavailable, "Classification interrupted", err)
		return
	}
	WriteJSON(w, http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Status())
}

// handleCheck classifies a single executable path.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	WriteJSON(w, http.StatusOK, s.engine.ClassifyPath(r.Context(), path))
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	list := s.engine.ListOverrides()
	WriteJSON(w, http.StatusOK, map[string]any{
		"overrides": nonNil(list),
		"count":     len(list),
	})
}

func (s *Server) handleLookupOverride(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	WriteJSON(w, http.StatusOK, OverrideRequest{Path: path, Status: s.engine.GetOverride(path)})
}

func (s *Server) handleApplyOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if err := s.engine.ApplyOverride(req.Path, req.Status); err != nil {
		WriteKindError(w, "Failed to apply override", err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (s *Server) handleReloadOverrides(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.LoadOverrides(); err != nil {
		WriteKindError(w, "Failed to reload overrides", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"count":  len(s.engine.ListOverrides()),
	})
}

func (s *Server) handleHistoryConnections(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNoHistory)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, ErrInvalidQuery)
			return
		}
		limit = n
	}
	recs, err := s.history.RecentConnections(limit)
	if err != nil {
		WriteKindError(w, "Failed to read history", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"connections": nonNil(recs),
		"count":       len(recs),
	})
}

func (s *Server) handleHistoryTrust(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNoHistory)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	events, err := s.history.TrustHistory(path)
	if err != nil {
		WriteKindError(w, "Failed to read history", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"path":   path,
		"events": nonNil(events),
	})
}

func parsePort(raw string) (uint16, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	return uint16(n), err
}

func isTrue(raw string) bool {
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
