package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func authFailure(ip string, ts time.Time) SecurityEvent {
	return SecurityEvent{
		Timestamp: ts,
		Type:      EventAuthentication,
		Outcome:   OutcomeFailure,
		Severity:  SeverityMedium,
		Context:   Context{IPAddress: ip},
	}
}

func TestBuffer_AddAndRecent(t *testing.T) {
	buf := NewBuffer(time.Hour)
	now := time.Now()

	buf.Add(authFailure("1.2.3.4", now.Add(-2*time.Hour))) // outside window
	buf.Add(authFailure("1.2.3.4", now.Add(-30*time.Minute)))
	buf.Add(authFailure("5.6.7.8", now.Add(-time.Minute)))

	recent := buf.Recent(0)
	assert.Len(t, recent, 2)
	assert.Equal(t, "1.2.3.4", recent[0].Context.IPAddress)
	assert.Equal(t, "5.6.7.8", recent[1].Context.IPAddress)

	// Narrower window
	assert.Len(t, buf.Recent(5*time.Minute), 1)
}

func TestBuffer_AddStampsZeroTimestamp(t *testing.T) {
	buf := NewBuffer(time.Hour)
	buf.Add(SecurityEvent{Type: EventCSRF, Outcome: OutcomeBlocked})

	recent := buf.Recent(time.Minute)
	assert.Len(t, recent, 1)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestBuffer_Cleanup(t *testing.T) {
	buf := NewBuffer(time.Hour)
	now := time.Now()

	buf.Add(authFailure("1.2.3.4", now.Add(-2*time.Hour)))
	buf.Add(authFailure("1.2.3.4", now.Add(-90*time.Minute)))
	buf.Add(authFailure("1.2.3.4", now.Add(-time.Minute)))
	assert.Equal(t, 3, buf.Len())

	removed := buf.Cleanup()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, buf.Len())

	// Second pass is a no-op
	assert.Equal(t, 0, buf.Cleanup())
}

func TestBuffer_CountSince(t *testing.T) {
	buf := NewBuffer(time.Hour)
	now := time.Now()

	buf.Add(authFailure("1.2.3.4", now.Add(-10*time.Minute)))
	buf.Add(authFailure("5.6.7.8", now.Add(-5*time.Minute)))
	buf.Add(SecurityEvent{
		Timestamp: now.Add(-time.Minute),
		Type:      EventRateLimiting,
		Outcome:   OutcomeRateLimited,
	})

	assert.Equal(t, 3, buf.CountSince(now.Add(-time.Hour), nil))
	assert.Equal(t, 2, buf.CountSince(now.Add(-time.Hour), func(ev SecurityEvent) bool {
		return ev.Type == EventAuthentication
	}))
	assert.Equal(t, 1, buf.CountSince(now.Add(-2*time.Minute), nil))
}

func TestSeverity_Rank(t *testing.T) {
	ordered := []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}
	assert.True(t, SeverityCritical.Valid())
	assert.False(t, Severity("bogus").Valid())
}
