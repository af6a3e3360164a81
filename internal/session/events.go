package session

import (
	"sync"

	"shortvol-trader/internal/models"
)

// maxEvents bounds the session event log; older entries are discarded.
const maxEvents = 200

// EventLog is a bounded, time-ordered log of human-readable events for
// the external observability layer.
type EventLog struct {
	mu      sync.RWMutex
	entries []models.Event
	limit   int
}

// NewEventLog creates an event log that retains at most limit entries.
func NewEventLog(limit int) *EventLog {
	return &EventLog{limit: limit}
}

// Add appends an entry, discarding the oldest once the limit is reached.
func (e *EventLog) Add(ev models.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, ev)
	if len(e.entries) > e.limit {
		e.entries = e.entries[len(e.entries)-e.limit:]
	}
}

// Last returns the most recent n entries in time order.
func (e *EventLog) Last(n int) []models.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n > len(e.entries) {
		n = len(e.entries)
	}
	out := make([]models.Event, n)
	copy(out, e.entries[len(e.entries)-n:])
	return out
}

// Len returns the number of retained entries.
func (e *EventLog) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
