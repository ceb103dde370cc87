// Package detector evaluates threshold rules and baseline comparisons
// against incoming security events. Every rule is best-effort: a failed
// historical-store query downgrades to "no threat found" for that rule.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/config"
	"github.com/chatmetrics/watchtower/pkg/events"
)

// DefaultQueryTimeout bounds every historical-store query a rule makes.
const DefaultQueryTimeout = 3 * time.Second

// Threat is one candidate threat found by an immediate rule.
type Threat struct {
	Type        alerts.AlertType
	Severity    alerts.Severity
	Title       string
	Description string
}

// Detector runs the rule set. It is stateless per call; all state lives
// in the event buffer and the historical store.
type Detector struct {
	store      auditstore.Store
	buffer     *events.Buffer
	thresholds func() config.Thresholds
	timeout    time.Duration
	logger     zerolog.Logger
}

// New creates a detector. thresholds is read on every evaluation so
// configuration updates apply without restarting.
func New(store auditstore.Store, buffer *events.Buffer, thresholds func() config.Thresholds, logger zerolog.Logger) *Detector {
	return &Detector{
		store:      store,
		buffer:     buffer,
		thresholds: thresholds,
		timeout:    DefaultQueryTimeout,
		logger:     logger.With().Str("component", "threat_detector").Logger(),
	}
}

// DetectImmediateThreats evaluates every threshold rule against the event.
// Rules are independent; one event may produce several threats.
func (d *Detector) DetectImmediateThreats(ctx context.Context, ev events.SecurityEvent) []Threat {
	var threats []Threat
	cfg := d.thresholds()

	if t := d.checkBruteForce(ctx, ev, cfg); t != nil {
		threats = append(threats, *t)
	}
	if t := d.checkAdminActivity(ctx, ev, cfg); t != nil {
		threats = append(threats, *t)
	}
	if t := d.checkRateLimitBreach(ctx, ev, cfg); t != nil {
		threats = append(threats, *t)
	}
	if t := d.checkCSPViolations(ctx, ev, cfg); t != nil {
		threats = append(threats, *t)
	}
	return threats
}

func (d *Detector) checkBruteForce(ctx context.Context, ev events.SecurityEvent, cfg config.Thresholds) *Threat {
	if ev.Type != events.EventAuthentication || ev.Outcome != events.OutcomeFailure || ev.Context.IPAddress == "" {
		return nil
	}

	count, ok := d.countEvents(ctx, "brute_force", auditstore.Filter{
		IPAddress: ev.Context.IPAddress,
		Types:     []events.EventType{events.EventAuthentication},
		Outcome:   events.OutcomeFailure,
		Since:     time.Now().Add(-5 * time.Minute),
	})
	if !ok || count < cfg.FailedLoginsPerMinute {
		return nil
	}

	return &Threat{
		Type:     alerts.TypeBruteForceAttack,
		Severity: alerts.SeverityHigh,
		Title:    "Brute force attack detected",
		Description: fmt.Sprintf("%d failed login attempts from %s in the last 5 minutes",
			count, ev.Context.IPAddress),
	}
}

func (d *Detector) checkAdminActivity(ctx context.Context, ev events.SecurityEvent, cfg config.Thresholds) *Threat {
	if ev.Type != events.EventPlatformAdmin && ev.Type != events.EventUserManagement {
		return nil
	}
	if ev.Context.UserID == "" {
		return nil
	}

	count, ok := d.countEvents(ctx, "admin_activity", auditstore.Filter{
		UserID: ev.Context.UserID,
		Types:  []events.EventType{events.EventPlatformAdmin, events.EventUserManagement},
		Since:  time.Now().Add(-time.Hour),
	})
	if !ok || count < cfg.AdminActionsPerHour {
		return nil
	}

	return &Threat{
		Type:     alerts.TypeUnusualAdminActivity,
		Severity: alerts.SeverityMedium,
		Title:    "Unusual admin activity",
		Description: fmt.Sprintf("User %s performed %d admin actions in the last hour",
			ev.Context.UserID, count),
	}
}

func (d *Detector) checkRateLimitBreach(ctx context.Context, ev events.SecurityEvent, cfg config.Thresholds) *Threat {
	if ev.Outcome != events.OutcomeRateLimited || ev.Context.IPAddress == "" {
		return nil
	}

	count, ok := d.countEvents(ctx, "rate_limit", auditstore.Filter{
		IPAddress: ev.Context.IPAddress,
		Outcome:   events.OutcomeRateLimited,
		Since:     time.Now().Add(-time.Minute),
	})
	if !ok || count < cfg.RateLimitViolationsPerMinute {
		return nil
	}

	return &Threat{
		Type:     alerts.TypeRateLimitBreach,
		Severity: alerts.SeverityMedium,
		Title:    "Rate limit breach",
		Description: fmt.Sprintf("%d rate-limited requests from %s in the last minute",
			count, ev.Context.IPAddress),
	}
}

func (d *Detector) checkCSPViolations(ctx context.Context, ev events.SecurityEvent, cfg config.Thresholds) *Threat {
	if ev.Type != events.EventSecurityHeaders || ev.Context.IPAddress == "" {
		return nil
	}

	count, ok := d.countEvents(ctx, "csp_violations", auditstore.Filter{
		IPAddress: ev.Context.IPAddress,
		Types:     []events.EventType{events.EventSecurityHeaders},
		Since:     time.Now().Add(-time.Minute),
	})
	if !ok || count < cfg.CSPViolationsPerMinute {
		return nil
	}

	return &Threat{
		Type:     alerts.TypeCSPViolation,
		Severity: alerts.SeverityMedium,
		Title:    "Repeated CSP violations",
		Description: fmt.Sprintf("%d content security policy violations from %s in the last minute",
			count, ev.Context.IPAddress),
	}
}

// countEvents runs a bounded count query. The bool result is false when
// the query failed and the rule should be skipped.
func (d *Detector) countEvents(ctx context.Context, rule string, f auditstore.Filter) (int, bool) {
	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	count, err := d.store.CountEvents(qctx, f)
	if err != nil {
		d.logger.Error().Err(err).Str("rule", rule).Msg("Historical count query failed, skipping rule")
		return 0, false
	}
	return count, true
}
