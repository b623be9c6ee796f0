// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api exposes the monitor over a local HTTP and WebSocket surface.
package api

import (
	"context"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/history"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/monitor"
	"grimm.is/peek/internal/overrides"
	"grimm.is/peek/internal/trust"
)

// Engine is the monitor surface the API drives.
type Engine interface {
	GetAllSeen() []model.Connection
	CheckNew(ctx context.Context) ([]model.Connection, error)
	FindConnection(pid int32, remoteAddr netip.Addr, remotePort, localPort uint16) (model.Connection, bool)
	Clear()
	ClassifyAll(ctx context.Context) error
	ClassifyPath(ctx context.Context, path string) trust.Result
	GetStats() model.Stats
	Status() monitor.Status
	ListOverrides() []overrides.Override
	GetOverride(path string) model.TrustStatus
	ApplyOverride(path string, status model.TrustStatus) error
	LoadOverrides() error
	Hub() *monitor.EventHub
}

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns conservative limits for a local control
// surface. WriteTimeout stays zero so event streams are not cut off.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
	}
}

// ServerOptions holds the API server dependencies.
type ServerOptions struct {
	Engine  Engine
	History *history.Store // optional
	Metrics http.Handler   // optional, mounted on /metrics
	Token   string         // required on mutating requests when set
	Config  *ServerConfig
	Logger  *logging.Logger
}

// Server handles API requests.
type Server struct {
	engine   Engine
	history  *history.Store
	metrics  http.Handler
	token    string
	cfg      *ServerConfig
	logger   *logging.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates an API server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New(errors.KindValidation, "api: engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		engine:  opts.Engine,
		history: opts.History,
		metrics: opts.Metrics,
		token:   opts.Token,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	s.router = mux.NewRouter()
	s.RegisterRoutes(s.router)
	s.router.Use(s.logRequests, s.guard, s.limitBody)
	return s, nil
}

// RegisterRoutes registers API routes.
func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/connections", s.handleGetConnections).Methods(http.MethodGet)
	v1.HandleFunc("/connections", s.handleClearConnections).Methods(http.MethodDelete)
	v1.HandleFunc("/connections/find", s.handleFindConnection).Methods(http.MethodGet)
	v1.HandleFunc("/connections/classify", s.handleClassifyAll).Methods(http.MethodPost)

	v1.HandleFunc("/stats", s.handleGetStats).Methods(http.MethodGet)
	v1.HandleFunc("/status", s.handleGetStatus).Methods(http.MethodGet)
	v1.HandleFunc("/check", s.handleCheck).Methods(http.MethodGet)

	v1.HandleFunc("/overrides", s.handleListOverrides).Methods(http.MethodGet)
	v1.HandleFunc("/overrides", s.handleApplyOverride).Methods(http.MethodPost)
	v1.HandleFunc("/overrides/lookup", s.handleLookupOverride).Methods(http.MethodGet)
	v1.HandleFunc("/overrides/reload", s.handleReloadOverrides).Methods(http.MethodPost)

	v1.HandleFunc("/history/connections", s.handleHistoryConnections).Methods(http.MethodGet)
	v1.HandleFunc("/history/trust", s.handleHistoryTrust).Methods(http.MethodGet)

	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and blocks until Shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("API server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.KindUnavailable, "api server")
	}
	return nil
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}
