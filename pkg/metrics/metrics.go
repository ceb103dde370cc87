// Package metrics computes the aggregate security posture served to the
// dashboard: event and alert breakdowns, the composite security score,
// the coarse threat level and per-user risk scores.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/events"
)

// ThreatLevel is the coarse four-tier posture classification.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatModerate ThreatLevel = "moderate"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// TypeCount pairs a label with its occurrence count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// UserRisk is one user's accumulated risk score, clamped to [0,100].
type UserRisk struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

// SecurityMetrics is the full posture snapshot for a time range.
type SecurityMetrics struct {
	Start            time.Time        `json:"start"`
	End              time.Time        `json:"end"`
	TotalEvents      int              `json:"total_events"`
	CriticalEvents   int              `json:"critical_events"`
	ActiveAlerts     int              `json:"active_alerts"`
	ResolvedAlerts   int              `json:"resolved_alerts"`
	EventsByType     map[string]int   `json:"events_by_type"`
	TopAlertTypes    []TypeCount      `json:"top_alert_types"`
	EventsByCountry  map[string]int   `json:"events_by_country"`
	EventsByHour     [24]int          `json:"events_by_hour"`
	UserRiskScores   []UserRisk       `json:"user_risk_scores"`
	SecurityScore    int              `json:"security_score"`
	ThreatLevel      ThreatLevel      `json:"threat_level"`
}

// Service computes metrics from the historical store plus an alert
// snapshot taken by the caller.
type Service struct {
	store  auditstore.Store
	logger zerolog.Logger
}

// NewService creates a metrics service.
func NewService(store auditstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "metrics_service").Logger(),
	}
}

// Calculate builds the posture snapshot for [start, end], optionally
// scoped to one company. alertSnapshot is the alert manager's current
// state; alerts are counted regardless of company scope.
func (s *Service) Calculate(ctx context.Context, start, end time.Time, companyID string, alertSnapshot []alerts.Alert) (*SecurityMetrics, error) {
	records, err := s.store.EventsInRange(ctx, start, end, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events in range: %w", err)
	}

	m := &SecurityMetrics{
		Start:           start,
		End:             end,
		TotalEvents:     len(records),
		EventsByType:    make(map[string]int),
		EventsByCountry: make(map[string]int),
	}

	for _, rec := range records {
		m.EventsByType[string(rec.Type)]++
		if rec.Country != "" {
			m.EventsByCountry[rec.Country]++
		}
		m.EventsByHour[rec.Timestamp.Hour()]++
		if rec.Severity == events.SeverityCritical {
			m.CriticalEvents++
		}
	}

	alertTypeCounts := make(map[alerts.AlertType]int)
	for _, a := range alertSnapshot {
		alertTypeCounts[a.Type]++
		if a.Acknowledged {
			m.ResolvedAlerts++
		} else {
			m.ActiveAlerts++
		}
	}
	m.TopAlertTypes = topAlertTypes(alertTypeCounts, 5)

	m.UserRiskScores = userRiskScores(records)
	m.SecurityScore = securityScore(m.TotalEvents, m.CriticalEvents, m.ActiveAlerts, alertTypeCounts)
	m.ThreatLevel = threatLevel(m.SecurityScore, m.ActiveAlerts, m.CriticalEvents)

	return m, nil
}

// highRiskAlertTypes are the categories whose presence drags the score
// down hardest.
var highRiskAlertTypes = []alerts.AlertType{
	alerts.TypeBruteForceAttack,
	alerts.TypeDataBreachAttempt,
	alerts.TypePrivilegeEscalation,
}

// securityScore computes the 0-100 composite health score, 100 being
// healthiest.
func securityScore(totalEvents, criticalEvents, activeAlerts int, alertTypeCounts map[alerts.AlertType]int) int {
	score := 100.0

	score -= math.Min(30, float64(criticalEvents)*2)
	score -= math.Min(25, float64(activeAlerts)*3)

	highRisk := 0
	for _, t := range highRiskAlertTypes {
		highRisk += alertTypeCounts[t]
	}
	score -= math.Min(20, float64(highRisk)*5)

	if totalEvents > 1000 {
		score -= math.Min(15, float64(totalEvents-1000)/100)
	}

	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// threatLevel classifies the posture. Checks run in priority order and
// the first match wins.
func threatLevel(score, activeAlerts, criticalEvents int) ThreatLevel {
	switch {
	case score < 50 || activeAlerts >= 5 || criticalEvents >= 3:
		return ThreatCritical
	case score < 70 || activeAlerts >= 3 || criticalEvents >= 2:
		return ThreatHigh
	case score < 85 || activeAlerts >= 1 || criticalEvents >= 1:
		return ThreatModerate
	default:
		return ThreatLow
	}
}

// userRiskScores accumulates a risk score per user over the record set
// and returns the top 10 by score descending.
func userRiskScores(records []auditstore.Record) []UserRisk {
	type userStats struct {
		failedAuth  int
		rateLimited int
		critical    int
		countries   map[string]struct{}
	}

	stats := make(map[string]*userStats)
	for _, rec := range records {
		if rec.UserID == "" {
			continue
		}
		st, ok := stats[rec.UserID]
		if !ok {
			st = &userStats{countries: make(map[string]struct{})}
			stats[rec.UserID] = st
		}
		if rec.Type == events.EventAuthentication && rec.Outcome == events.OutcomeFailure {
			st.failedAuth++
		}
		if rec.Outcome == events.OutcomeRateLimited {
			st.rateLimited++
		}
		if rec.Severity == events.SeverityCritical {
			st.critical++
		}
		if rec.Country != "" {
			st.countries[rec.Country] = struct{}{}
		}
	}

	risks := make([]UserRisk, 0, len(stats))
	for userID, st := range stats {
		score := st.failedAuth*10 + st.rateLimited*15 + st.critical*25
		if len(st.countries) > 2 {
			score += 20
		}
		if score > 100 {
			score = 100
		}
		risks = append(risks, UserRisk{UserID: userID, Score: score})
	}

	sort.Slice(risks, func(i, j int) bool {
		if risks[i].Score != risks[j].Score {
			return risks[i].Score > risks[j].Score
		}
		return risks[i].UserID < risks[j].UserID
	})
	if len(risks) > 10 {
		risks = risks[:10]
	}
	return risks
}

func topAlertTypes(counts map[alerts.AlertType]int, n int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: string(t), Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
