package auditstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatmetrics/watchtower/pkg/events"
)

// MemoryStore is an in-process Store used by tests and single-node runs
// without a database. Records are kept in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]Record, 0, 128)}
}

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CountEvents(_ context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.records {
		if f.matches(rec) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountriesForUser(_ context.Context, userID string, types []events.EventType, since time.Time) ([]string, error) {
	f := Filter{UserID: userID, Types: types, Since: since}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range m.records {
		if rec.Country == "" || !f.matches(rec) {
			continue
		}
		seen[rec.Country] = struct{}{}
	}

	countries := make([]string, 0, len(seen))
	for c := range seen {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	return countries, nil
}

func (m *MemoryStore) HourlyAverage(_ context.Context, eventType events.EventType, hourOfDay int, days int) (float64, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.records {
		if rec.Type != eventType || !rec.Timestamp.After(since) {
			continue
		}
		if rec.Timestamp.Hour() == hourOfDay {
			n++
		}
	}
	return float64(n) / float64(days), nil
}

func (m *MemoryStore) EventsInRange(_ context.Context, start, end time.Time, companyID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		if companyID != "" && rec.CompanyID != companyID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
