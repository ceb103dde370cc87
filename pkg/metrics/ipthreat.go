package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/events"
)

// IPThreatAssessment is the per-IP risk evaluation over the trailing
// 24 hours.
type IPThreatAssessment struct {
	IPAddress       string      `json:"ip_address"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	EventCount      int         `json:"event_count"`
	RiskFactors     []string    `json:"risk_factors"`
	Recommendations []string    `json:"recommendations"`
}

// IPThreatLevel assesses one IP address. Each matched risk factor raises
// the level: three or more is critical, two high, one moderate.
func (s *Service) IPThreatLevel(ctx context.Context, ipAddress string) (*IPThreatAssessment, error) {
	since := time.Now().Add(-24 * time.Hour)

	failedLogins, err := s.store.CountEvents(ctx, auditstore.Filter{
		IPAddress: ipAddress,
		Types:     []events.EventType{events.EventAuthentication},
		Outcome:   events.OutcomeFailure,
		Since:     since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count failed logins: %w", err)
	}

	rateLimited, err := s.store.CountEvents(ctx, auditstore.Filter{
		IPAddress: ipAddress,
		Outcome:   events.OutcomeRateLimited,
		Since:     since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count rate-limit violations: %w", err)
	}

	records, err := s.store.EventsInRange(ctx, since, time.Now(), "")
	if err != nil {
		return nil, fmt.Errorf("failed to query events for ip: %w", err)
	}

	eventCount := 0
	targetedUsers := make(map[string]struct{})
	for _, rec := range records {
		if rec.IPAddress != ipAddress {
			continue
		}
		eventCount++
		if rec.UserID != "" {
			targetedUsers[rec.UserID] = struct{}{}
		}
	}

	assessment := &IPThreatAssessment{
		IPAddress:  ipAddress,
		EventCount: eventCount,
	}

	if failedLogins > 10 {
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("%d failed login attempts in 24h", failedLogins))
		assessment.Recommendations = append(assessment.Recommendations,
			"Consider blocking this IP address")
	}
	if rateLimited > 5 {
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("%d rate-limit violations in 24h", rateLimited))
		assessment.Recommendations = append(assessment.Recommendations,
			"Tighten rate limits for this IP address")
	}
	if len(targetedUsers) > 5 {
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("activity against %d distinct user accounts", len(targetedUsers)))
		assessment.Recommendations = append(assessment.Recommendations,
			"Review targeted accounts for compromise")
	}

	switch len(assessment.RiskFactors) {
	case 0:
		assessment.ThreatLevel = ThreatLow
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("%d events observed in 24h", eventCount))
		assessment.Recommendations = append(assessment.Recommendations,
			"Continue monitoring")
	case 1:
		assessment.ThreatLevel = ThreatModerate
	case 2:
		assessment.ThreatLevel = ThreatHigh
	default:
		assessment.ThreatLevel = ThreatCritical
	}

	return assessment, nil
}
