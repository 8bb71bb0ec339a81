// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"sync"
	"time"

	"github.com/vidlift/vidlift/pkg/logger"
)

// EventType discriminates events delivered to subscribers.
type EventType string

const (
	EventJobStarted     EventType = "started"
	EventJobProgress    EventType = "progress"
	EventJobCompleted   EventType = "completed"
	EventBatchProgress  EventType = "batchProgress"
	EventBatchCompleted EventType = "batchCompleted"
)

// Event is one job-level or batch-level notification.
type Event struct {
	Type EventType
	Time time.Time

	// Job-level fields.
	JobID    string
	Snapshot *Snapshot // set for EventJobProgress
	Success  bool      // set for EventJobCompleted
	RemoteID string    // set for successful EventJobCompleted
	Err      string    // set for failed EventJobCompleted

	// Batch-level fields.
	Batch *BatchProgress // set for batch events
}

// defaultEventBuffer sizes subscriber channels. A slow subscriber drops
// events rather than stalling workers.
const defaultEventBuffer = 256

// Subscription receives events on a buffered channel until cancelled.
type Subscription struct {
	ch chan Event
}

// C returns the event channel. Closed when the subscription is cancelled
// or the manager shuts down.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// bus fans events out to subscribers. Delivery is best-effort per
// subscriber but in-order: sends happen under the bus lock.
type bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func newBus(buffer int) *bus {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *bus) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, b.buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

func (b *bus) publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			EventsDroppedTotal.Inc()
			logger.Warn().
				Str("type", string(evt.Type)).
				Str("job_id", evt.JobID).
				Msg("uploader: slow subscriber, event dropped")
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
