package logger

import (
	"sync"
	"time"
)

// DefaultRingCapacity bounds the in-memory live log view.
const DefaultRingCapacity = 1000

// Entry is a single structured log record as held by the ring buffer
// and by run captures.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Ring is a fixed-capacity FIFO of recent log entries. When full, the
// oldest entry is evicted.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewRing creates a ring buffer holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{cap: capacity}
}

// Append adds an entry, evicting the oldest when at capacity.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.cap {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, e)
}

// Recent returns up to limit of the newest entries, oldest first.
// limit <= 0 returns everything buffered.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, limit)
	copy(out, r.entries[n-limit:])
	return out
}

// Len reports how many entries are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Cap reports the fixed capacity.
func (r *Ring) Cap() int { return r.cap }

// Clear drops all buffered entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Buffer exposes the default logger's ring buffer for the live log view.
func Buffer() *Ring { return defaultLogger.buffer }
