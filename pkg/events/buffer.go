package events

import (
	"sync"
	"time"
)

// DefaultRetention is how long events are kept in the buffer before a
// cleanup pass drops them.
const DefaultRetention = time.Hour

// Buffer is an append-only, time-bounded sequence of recent security
// events. It is safe for concurrent use; the coordinator is the only
// writer in practice but background ticks read and trim it.
type Buffer struct {
	mu        sync.RWMutex
	events    []SecurityEvent
	retention time.Duration
}

// NewBuffer creates a buffer with the given retention horizon. A zero or
// negative retention falls back to DefaultRetention.
func NewBuffer(retention time.Duration) *Buffer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Buffer{
		events:    make([]SecurityEvent, 0, 256),
		retention: retention,
	}
}

// Add appends an event unconditionally. A zero timestamp is stamped with
// the current time.
func (b *Buffer) Add(ev SecurityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Recent returns events newer than now-window in insertion order. A zero
// or negative window uses the buffer's retention horizon.
func (b *Buffer) Recent(window time.Duration) []SecurityEvent {
	if window <= 0 {
		window = b.retention
	}
	cutoff := time.Now().Add(-window)

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SecurityEvent, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Timestamp.After(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// CountSince counts events newer than cutoff matching the predicate. A nil
// predicate matches everything.
func (b *Buffer) CountSince(cutoff time.Time, match func(SecurityEvent) bool) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, ev := range b.events {
		if !ev.Timestamp.After(cutoff) {
			continue
		}
		if match == nil || match(ev) {
			n++
		}
	}
	return n
}

// Cleanup drops events older than the retention horizon and returns how
// many were removed.
func (b *Buffer) Cleanup() int {
	cutoff := time.Now().Add(-b.retention)

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]SecurityEvent, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	removed := len(b.events) - len(kept)
	b.events = kept
	return removed
}

// Len returns the number of buffered events, including any not yet trimmed.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
