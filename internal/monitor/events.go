// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package monitor

import (
	"sync"
	"time"

	"grimm.is/peek/internal/model"
)

// EventType names an engine event.
type EventType string

const (
	EventConnectionAdded EventType = "connection_added"
	EventTrustChanged    EventType = "trust_changed"
)

// Event is published to subscribers. Connection is set for per-connection
// events; Path and Status are set for trust changes.
type Event struct {
	Type       EventType          `json:"type"`
	At         time.Time          `json:"at"`
	Connection *model.Connection  `json:"connection,omitempty"`
	Path       string             `json:"path,omitempty"`
	Status     *model.TrustStatus `json:"status,omitempty"`
	Source     string             `json:"source,omitempty"`
}

// EventHub fans events out to subscribers. A subscriber that falls behind
// loses events rather than stalling the publisher.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	onDrop func()
}

// NewEventHub creates an empty hub. onDrop, if set, runs for every event
// dropped on a full subscriber.
func NewEventHub(onDrop func()) *EventHub {
	return &EventHub{subs: make(map[int]chan Event), onDrop: onDrop}
}

// Subscribe returns a channel of events and a func that unsubscribes and
// closes it.
func (h *EventHub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
			h.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (h *EventHub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
