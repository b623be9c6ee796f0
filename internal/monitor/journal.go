// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package monitor

import (
	"sync"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

const journalBuffer = 64

// connectionRecorder is the write side of the history store.
type connectionRecorder interface {
	RecordConnections(conns []model.Connection) error
}

// journal writes first sightings to the history store on its own
// goroutine so a slow database never holds up a poll.
type journal struct {
	store  connectionRecorder
	logger *logging.Logger
	onDrop func()

	mu     sync.Mutex
	ch     chan []model.Connection
	closed bool
	done   chan struct{}
}

func newJournal(store connectionRecorder, logger *logging.Logger, onDrop func()) *journal {
	j := &journal{
		store:  store,
		logger: logger,
		onDrop: onDrop,
		ch:     make(chan []model.Connection, journalBuffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *journal) run() {
	defer close(j.done)
	for batch := range j.ch {
		if err := j.store.RecordConnections(batch); err != nil {
			j.logger.Warn("failed to journal connections", "count", len(batch), "error", err)
		}
	}
}

// enqueue hands a batch to the writer. It never blocks; when the writer
// is behind by a full buffer the batch is dropped.
func (j *journal) enqueue(conns []model.Connection) {
	if len(conns) == 0 {
		return
	}
	batch := make([]model.Connection, len(conns))
	copy(batch, conns)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- batch:
	default:
		j.logger.Warn("history journal behind, dropping batch", "count", len(batch))
		if j.onDrop != nil {
			j.onDrop()
		}
	}
}

// close stops accepting batches and waits for queued ones to be written.
func (j *journal) close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.ch)
	}
	j.mu.Unlock()
	<-j.done
}
