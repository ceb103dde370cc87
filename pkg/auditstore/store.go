// Package auditstore defines the boundary to the historical audit-log
// store. The monitoring engine appends records to it and runs the small
// set of aggregate queries the detectors and metrics need; it does not
// own the storage.
package auditstore

import (
	"context"
	"time"

	"github.com/chatmetrics/watchtower/pkg/events"
)

// Record is a persisted audit-log entry. Unlike buffered events, records
// survive process restarts and carry the action string the caller logged.
type Record struct {
	Timestamp    time.Time              `json:"timestamp"`
	Type         events.EventType       `json:"type"`
	Action       string                 `json:"action"`
	Outcome      events.Outcome         `json:"outcome"`
	Severity     events.Severity        `json:"severity"`
	UserID       string                 `json:"user_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Country      string                 `json:"country,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	CompanyID    string                 `json:"company_id,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Filter narrows a count query. Zero-valued fields are ignored.
type Filter struct {
	IPAddress string
	UserID    string
	Types     []events.EventType
	Outcome   events.Outcome
	Since     time.Time
}

// Store is the historical audit-log client the engine depends on. All
// calls are potentially slow; callers bound them with a context timeout
// and treat errors as "no match".
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec Record) error
	// CountEvents returns how many records match the filter.
	CountEvents(ctx context.Context, f Filter) (int, error)
	// CountriesForUser returns the distinct countries seen for a user's
	// records of the given types since the cutoff.
	CountriesForUser(ctx context.Context, userID string, types []events.EventType, since time.Time) ([]string, error)
	// HourlyAverage returns the per-day average count of records of the
	// given type that fall in the given hour of day, over the trailing
	// number of days.
	HourlyAverage(ctx context.Context, eventType events.EventType, hourOfDay int, days int) (float64, error)
	// EventsInRange returns records between start and end, optionally
	// scoped to one company.
	EventsInRange(ctx context.Context, start, end time.Time, companyID string) ([]Record, error)
}

func (f Filter) matches(rec Record) bool {
	if f.IPAddress != "" && rec.IPAddress != f.IPAddress {
		return false
	}
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.Outcome != "" && rec.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && !rec.Timestamp.After(f.Since) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if rec.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
