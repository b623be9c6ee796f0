// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

type slowRecorder struct {
	release chan struct{}
	mu      sync.Mutex
	rows    int
}

func (r *slowRecorder) RecordConnections(conns []model.Connection) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows += len(conns)
	return nil
}

func TestJournalDoesNotBlockCaller(t *testing.T) {
	rec := &slowRecorder{release: make(chan struct{})}
	var dropped atomic.Int32
	j := newJournal(rec, logging.WithComponent("journal"), func() { dropped.Add(1) })

	batch := []model.Connection{outbound(1, "1.1.1.1", 40000, "")}
	done := make(chan struct{})
	go func() {
		defer close(done)
		// One batch is held by the writer, the rest fill the buffer and
		// the last two overflow it.
		for i := 0; i < journalBuffer+3; i++ {
			j.enqueue(batch)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked on a stalled writer")
	}
	assert.GreaterOrEqual(t, dropped.Load(), int32(2))

	close(rec.release)
	j.close()
	j.enqueue(batch)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, journalBuffer+3-int(dropped.Load()), rec.rows)
}
