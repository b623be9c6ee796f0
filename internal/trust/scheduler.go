// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package trust

import (
	"context"

	"golang.org/x/sync/errgroup"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// Sink receives classification results for tracked connections.
type Sink interface {
	UpdateTrust(key model.Key, hash string, status model.TrustStatus) bool
}

// Observer is told about every classified connection.
type Observer func(conn model.Connection, res Result)

// Scheduler fans classification out over a bounded worker pool.
type Scheduler struct {
	classifier *Classifier
	workers    int
	sink       Sink
	observer   Observer
	logger     *logging.Logger
}

// NewScheduler creates a Scheduler. workers is clamped to 1..MaxWorkers.
// sink may be nil.
func NewScheduler(classifier *Classifier, workers int, sink Sink, logger *logging.Logger) *Scheduler {
	if workers <= 0 || workers > model.MaxWorkers {
		workers = model.MaxWorkers
	}
	if logger == nil {
		logger = logging.WithComponent("scheduler")
	}
	return &Scheduler{
		classifier: classifier,
		workers:    workers,
		sink:       sink,
		logger:     logger,
	}
}

// SetObserver registers fn to run after each classification. Not safe to
// call while a batch is running.
func (s *Scheduler) SetObserver(fn Observer) { s.observer = fn }

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// ClassifyAll classifies every uncomputed entry of conns in place and
// returns once the batch has drained. Cancelling ctx stops dispatch; work
// already started runs to completion.
func (s *Scheduler) ClassifyAll(ctx context.Context, conns []model.Connection) error {
	var g errgroup.Group
	g.SetLimit(s.workers)

	work := context.WithoutCancel(ctx)
	dispatched := 0
	for i := range conns {
		if conns[i].Computed {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			s.classifyInto(work, &conns[i])
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("batch classified", "dispatched", dispatched, "total", len(conns))
	return ctx.Err()
}

// ClassifyOne classifies a single connection and returns the updated copy.
func (s *Scheduler) ClassifyOne(ctx context.Context, conn model.Connection) model.Connection {
	s.classifyInto(ctx, &conn)
	return conn
}

func (s *Scheduler) classifyInto(ctx context.Context, conn *model.Connection) {
	res := s.classifier.Classify(ctx, *conn)

	// The override table may have changed while hashing.
	if res.Path != "" {
		switch o := s.classifier.Override(res.Path); {
		case o != model.TrustUnknown:
			res.Status = o
			res.Source = SourceOverride
		case res.Source == SourceOverride:
			res = s.classifier.ClassifyPath(ctx, res.Path)
		}
	}

	conn.Hash = res.Hash
	conn.Trust = res.Status
	conn.Computed = true
	if conn.ProcessPath == "" {
		conn.ProcessPath = res.Path
	}

	if s.sink != nil {
		s.sink.UpdateTrust(conn.Key(), res.Hash, res.Status)
	}
	if s.observer != nil {
		s.observer(*conn, res)
	}
}
