// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes engine counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/peek/internal/model"
)

// Registry owns the peek metric set. Each Registry has its own
// prometheus registry so tests and multiple engines never collide.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsInitial prometheus.Gauge
	ConnectionsActive  prometheus.Gauge
	ConnectionsNew     prometheus.Gauge
	ConnectionsTotal   prometheus.Gauge
	CacheEntries       prometheus.Gauge
	OverrideEntries    prometheus.Gauge
	Classifications    *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	PollErrors         prometheus.Counter
	EventsDropped      prometheus.Counter
	JournalDropped     prometheus.Counter
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ConnectionsInitial: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_connections_initial",
			Help: "Connections present when monitoring started",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_connections_active",
			Help: "Connections reported by the last poll",
		}),
		ConnectionsNew: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_connections_new",
			Help: "Connections first seen this session",
		}),
		ConnectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_connections_seen",
			Help: "Distinct connections in the seen-set",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_security_cache_entries",
			Help: "Executables in the security cache",
		}),
		OverrideEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peek_trust_overrides",
			Help: "Manual trust overrides in effect",
		}),
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peek_classifications_total",
				Help: "Executable classifications by resulting status and source",
			},
			[]string{"status", "source"},
		),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "peek_poll_duration_seconds",
			Help:    "Time spent enumerating sockets per poll",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peek_poll_errors_total",
			Help: "Polls skipped because no socket table could be read",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peek_events_dropped_total",
			Help: "Events dropped because a subscriber was not keeping up",
		}),
		JournalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peek_journal_dropped_total",
			Help: "Connection batches not written to history because the writer was behind",
		}),
	}

	r.reg.MustRegister(
		r.ConnectionsInitial,
		r.ConnectionsActive,
		r.ConnectionsNew,
		r.ConnectionsTotal,
		r.CacheEntries,
		r.OverrideEntries,
		r.Classifications,
		r.PollDuration,
		r.PollErrors,
		r.EventsDropped,
		r.JournalDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetStats mirrors the tracker counters.
func (r *Registry) SetStats(s model.Stats) {
	r.ConnectionsInitial.Set(float64(s.Initial))
	r.ConnectionsActive.Set(float64(s.Active))
	r.ConnectionsNew.Set(float64(s.New))
	r.ConnectionsTotal.Set(float64(s.Total))
}

// ObserveClassification counts one classification result.
func (r *Registry) ObserveClassification(status model.TrustStatus, source string) {
	r.Classifications.WithLabelValues(status.String(), source).Inc()
}

// ObservePoll records one poll cycle.
func (r *Registry) ObservePoll(d time.Duration, err error) {
	r.PollDuration.Observe(d.Seconds())
	if err != nil {
		r.PollErrors.Inc()
	}
}
