package session

import (
	"context"
	"sync"

	"github.com/probelab/inquest/pkg/models"
)

// EventLog buffers one turn's event sequence so an SSE subscriber attaching
// after the run started still sees every event from the beginning. The log
// is append-only and closed exactly once, when the turn's sequence ends.
type EventLog struct {
	mu      sync.Mutex
	events  []models.StreamEvent
	closed  bool
	changed chan struct{}
}

func NewEventLog() *EventLog {
	return &EventLog{changed: make(chan struct{})}
}

// Append records one event and wakes waiting readers.
func (l *EventLog) Append(ev models.StreamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events = append(l.events, ev)
	close(l.changed)
	l.changed = make(chan struct{})
}

// Close marks the end of the turn's sequence. Idempotent.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.changed)
}

// Next returns the event at index i, blocking until it exists or the log
// closes. The second return is false when the sequence ended before i.
func (l *EventLog) Next(ctx context.Context, i int) (models.StreamEvent, bool) {
	for {
		l.mu.Lock()
		if i < len(l.events) {
			ev := l.events[i]
			l.mu.Unlock()
			return ev, true
		}
		if l.closed {
			l.mu.Unlock()
			return models.StreamEvent{}, false
		}
		wait := l.changed
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return models.StreamEvent{}, false
		}
	}
}

// Len returns the number of buffered events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
