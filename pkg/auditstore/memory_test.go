package auditstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatmetrics/watchtower/pkg/events"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	recs := []Record{
		{Timestamp: now.Add(-10 * time.Minute), Type: events.EventAuthentication, Action: "login", Outcome: events.OutcomeFailure, Severity: events.SeverityMedium, UserID: "u1", IPAddress: "1.2.3.4", Country: "DE"},
		{Timestamp: now.Add(-8 * time.Minute), Type: events.EventAuthentication, Action: "login", Outcome: events.OutcomeFailure, Severity: events.SeverityMedium, UserID: "u1", IPAddress: "1.2.3.4", Country: "DE"},
		{Timestamp: now.Add(-5 * time.Minute), Type: events.EventAuthentication, Action: "login", Outcome: events.OutcomeSuccess, Severity: events.SeverityInfo, UserID: "u2", IPAddress: "5.6.7.8", Country: "FR", CompanyID: "acme"},
		{Timestamp: now.Add(-2 * time.Minute), Type: events.EventRateLimiting, Action: "api_call", Outcome: events.OutcomeRateLimited, Severity: events.SeverityLow, IPAddress: "1.2.3.4"},
		{Timestamp: now.Add(-25 * time.Hour), Type: events.EventAuthentication, Action: "login", Outcome: events.OutcomeFailure, Severity: events.SeverityMedium, UserID: "u1", IPAddress: "1.2.3.4", Country: "US"},
	}
	for _, rec := range recs {
		assert.NoError(t, store.Append(ctx, rec))
	}
	return store
}

func TestMemoryStore_CountEvents(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	t.Run("ByIPAndOutcome", func(t *testing.T) {
		n, err := store.CountEvents(ctx, Filter{
			IPAddress: "1.2.3.4",
			Types:     []events.EventType{events.EventAuthentication},
			Outcome:   events.OutcomeFailure,
			Since:     time.Now().Add(-time.Hour),
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("SinceExcludesOld", func(t *testing.T) {
		n, err := store.CountEvents(ctx, Filter{
			IPAddress: "1.2.3.4",
			Outcome:   events.OutcomeFailure,
			Since:     time.Now().Add(-48 * time.Hour),
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("EmptyFilterCountsAll", func(t *testing.T) {
		n, err := store.CountEvents(ctx, Filter{})
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
	})
}

func TestMemoryStore_CountriesForUser(t *testing.T) {
	store := seedStore(t)

	countries, err := store.CountriesForUser(context.Background(), "u1",
		[]events.EventType{events.EventAuthentication}, time.Now().Add(-48*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, []string{"DE", "US"}, countries)

	// Narrow window drops the US record
	countries, err = store.CountriesForUser(context.Background(), "u1",
		[]events.EventType{events.EventAuthentication}, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, []string{"DE"}, countries)
}

func TestMemoryStore_EventsInRange(t *testing.T) {
	store := seedStore(t)
	now := time.Now()

	recs, err := store.EventsInRange(context.Background(), now.Add(-time.Hour), now, "")
	assert.NoError(t, err)
	assert.Len(t, recs, 4)

	scoped, err := store.EventsInRange(context.Background(), now.Add(-time.Hour), now, "acme")
	assert.NoError(t, err)
	assert.Len(t, scoped, 1)
	assert.Equal(t, "u2", scoped[0].UserID)
}

func TestMemoryStore_HourlyAverage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// 14 events at the current hour over the trailing week: avg 2/day.
	// Pin the minute so the timestamps never cross an hour boundary.
	base := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 30, 0, 0, now.Location())
	for day := 0; day < 7; day++ {
		for i := 0; i < 2; i++ {
			store.Append(ctx, Record{
				Timestamp: base.AddDate(0, 0, -day).Add(time.Duration(i) * time.Second),
				Type:      events.EventAuthentication,
				Action:    "login",
				Outcome:   events.OutcomeSuccess,
				Severity:  events.SeverityInfo,
			})
		}
	}

	avg, err := store.HourlyAverage(ctx, events.EventAuthentication, now.Hour(), 7)
	assert.NoError(t, err)
	assert.InDelta(t, 2.0, avg, 0.5)

	avg, err = store.HourlyAverage(ctx, events.EventCSRF, now.Hour(), 7)
	assert.NoError(t, err)
	assert.Zero(t, avg)
}
