// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"grimm.is/peek/internal/api"
	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/history"
	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/metrics"
	"grimm.is/peek/internal/monitor"
)

// RunMonitor implements 'peek monitor': the foreground daemon.
func RunMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath := configFlag(fs)
	listen := fs.String("listen", "", "Override api.listen")
	noAPI := fs.Bool("no-api", false, "Disable the control API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	if *noAPI {
		off := false
		cfg.API.Enabled = &off
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.WithComponent("monitor")

	var reg *metrics.Registry
	if cfg.MetricsEnabled() || cfg.APIEnabled() {
		reg = metrics.NewRegistry()
	}

	deps := monitor.Deps{Metrics: reg, Session: uuid.New().String()}

	var hist *history.Store
	if cfg.HistoryEnabled() {
		hist, err = history.Open(cfg.History.Path, deps.Session, logging.WithComponent("history"))
		if err != nil {
			logger.Warn("history journal disabled", "path", cfg.History.Path, "error", err)
			hist = nil
		} else {
			defer hist.Close()
			deps.History = hist
		}
	}

	svc, err := monitor.NewService(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.LoadOverrides(); err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	defer svc.Stop()

	var collector *metrics.Collector
	if reg != nil {
		collector = metrics.NewCollector(reg, svc, logging.WithComponent("metrics"), 0)
		collector.Start()
		defer collector.Stop()
	}

	errCh := make(chan error, 2)
	var servers []interface{ Shutdown(context.Context) error }

	if cfg.APIEnabled() {
		token, err := api.LoadOrCreateToken(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to prepare api token: %w", err)
		}
		opts := api.ServerOptions{
			Token:   token,
			Engine:  svc,
			History: hist,
			Logger:  logging.WithComponent("api"),
		}
		// Served alongside the API unless a dedicated listener is configured.
		if reg != nil && !cfg.MetricsEnabled() {
			opts.Metrics = reg.Handler()
		}
		srv, err := api.NewServer(opts)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
		go func() { errCh <- srv.Start(cfg.API.Listen) }()
	}

	if cfg.MetricsEnabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		msrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, msrv)
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Stop())
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}
	svc.Hub().Close()
	return runErr
}

// validateForMonitor is shared with 'peek init -check'.
func validateForMonitor(cfg *config.Config) error {
	if _, err := monitor.Publishers(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}
