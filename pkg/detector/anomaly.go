package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/events"
)

// baselineDays is the trailing window both anomaly baselines are built
// over.
const baselineDays = 7

// minTemporalBaseline is the smallest per-day hourly average the temporal
// rule will compare against. Rare event types with a lower baseline are
// skipped rather than flagged on every occurrence.
const minTemporalBaseline = 0.5

// temporalSpikeFactor is how far above the baseline the live count must
// be to count as anomalous.
const temporalSpikeFactor = 3.0

// Anomaly is the verdict of the baseline detectors.
type Anomaly struct {
	IsAnomaly          bool     `json:"is_anomaly"`
	Confidence         float64  `json:"confidence"`
	Type               string   `json:"type,omitempty"`
	Description        string   `json:"description,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

// DetectAnomalies runs the geographic then the temporal baseline check.
// The first confident match wins; otherwise a zero-confidence verdict is
// returned.
func (d *Detector) DetectAnomalies(ctx context.Context, ev events.SecurityEvent) Anomaly {
	if a := d.checkGeographic(ctx, ev); a.IsAnomaly {
		return a
	}
	if a := d.checkTemporal(ctx, ev); a.IsAnomaly {
		return a
	}
	return Anomaly{}
}

// checkGeographic flags activity from a country never before seen for
// this user and event type over the baseline window.
func (d *Detector) checkGeographic(ctx context.Context, ev events.SecurityEvent) Anomaly {
	if ev.Context.UserID == "" || ev.Context.Country == "" {
		return Anomaly{}
	}

	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	since := time.Now().AddDate(0, 0, -baselineDays)
	countries, err := d.store.CountriesForUser(qctx, ev.Context.UserID, []events.EventType{ev.Type}, since)
	if err != nil {
		d.logger.Error().Err(err).Str("rule", "geographic").Msg("Country baseline query failed, skipping rule")
		return Anomaly{}
	}
	if len(countries) == 0 {
		return Anomaly{}
	}
	for _, c := range countries {
		if c == ev.Context.Country {
			return Anomaly{}
		}
	}

	return Anomaly{
		IsAnomaly:  true,
		Confidence: 0.8,
		Type:       "geographical_anomaly",
		Description: fmt.Sprintf("User %s active from %s, previously seen only in %v",
			ev.Context.UserID, ev.Context.Country, countries),
		RecommendedActions: []string{
			"Verify the session with the user",
			"Require re-authentication for sensitive operations",
			"Review recent activity for this account",
		},
	}
}

// checkTemporal compares the live event rate for this hour of day against
// the historical average for the same hour.
func (d *Detector) checkTemporal(ctx context.Context, ev events.SecurityEvent) Anomaly {
	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	hour := time.Now().Hour()
	avg, err := d.store.HourlyAverage(qctx, ev.Type, hour, baselineDays)
	if err != nil {
		d.logger.Error().Err(err).Str("rule", "temporal").Msg("Hourly baseline query failed, skipping rule")
		return Anomaly{}
	}
	if avg < minTemporalBaseline {
		return Anomaly{}
	}

	cutoff := time.Now().Add(-time.Hour)
	live := d.buffer.CountSince(cutoff, func(e events.SecurityEvent) bool {
		return e.Type == ev.Type
	})
	if float64(live) <= temporalSpikeFactor*avg {
		return Anomaly{}
	}

	return Anomaly{
		IsAnomaly:  true,
		Confidence: 0.7,
		Type:       "temporal_anomaly",
		Description: fmt.Sprintf("%d %s events in the last hour against a %.1f average for this hour of day",
			live, ev.Type, avg),
		RecommendedActions: []string{
			"Inspect the recent event stream for this event type",
			"Check for automated or scripted activity",
		},
	}
}

// SeverityForConfidence maps an anomaly confidence to an alert severity.
func SeverityForConfidence(confidence float64) alerts.Severity {
	switch {
	case confidence >= 0.9:
		return alerts.SeverityCritical
	case confidence >= 0.8:
		return alerts.SeverityHigh
	case confidence >= 0.6:
		return alerts.SeverityMedium
	default:
		return alerts.SeverityLow
	}
}
