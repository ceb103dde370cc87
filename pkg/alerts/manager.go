package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/config"
	"github.com/chatmetrics/watchtower/pkg/events"
)

var (
	alertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_alerts_created_total",
		Help: "Alerts created, by type and severity.",
	}, []string{"type", "severity"})

	alertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_alerts_suppressed_total",
		Help: "Alert candidates dropped as duplicates within the suppression window.",
	}, []string{"type"})
)

// Manager owns the alert lifecycle: suppression, creation, acknowledgment,
// retention and export. It is the single source of truth for what is
// currently actionable.
type Manager struct {
	mu        sync.RWMutex
	alerts    []Alert
	byID      map[string]int
	lastSeen  map[suppressionKey]time.Time
	notifiers []Notifier
	audit     auditstore.Store
	cfg       func() config.MonitoringConfig
	logger    zerolog.Logger
}

type suppressionKey struct {
	alertType AlertType
	ipAddress string
}

// NewManager creates an alert manager. cfg is read on every call so
// runtime configuration updates take effect immediately; audit may be nil
// when no historical store is wired.
func NewManager(cfg func() config.MonitoringConfig, audit auditstore.Store, logger zerolog.Logger, notifiers ...Notifier) *Manager {
	return &Manager{
		byID:      make(map[string]int),
		lastSeen:  make(map[suppressionKey]time.Time),
		notifiers: notifiers,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.With().Str("component", "alert_manager").Logger(),
	}
}

// Create stores a new alert from the candidate unless an alert of the
// same type and IP address was created within the suppression window.
// Returns the stored alert and true, or nil and false when suppressed.
func (m *Manager) Create(ctx context.Context, c Candidate) (*Alert, bool) {
	cfg := m.cfg()
	window := time.Duration(cfg.Alerting.SuppressDuplicateMinutes) * time.Minute
	key := suppressionKey{alertType: c.Type, ipAddress: c.Context.IPAddress}
	now := time.Now()

	m.mu.Lock()
	if last, ok := m.lastSeen[key]; ok && window > 0 && now.Sub(last) < window {
		m.mu.Unlock()
		alertsSuppressed.WithLabelValues(string(c.Type)).Inc()
		m.logger.Debug().
			Str("type", string(c.Type)).
			Str("ip_address", c.Context.IPAddress).
			Msg("Duplicate alert suppressed")
		return nil, false
	}

	alert := Alert{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Severity:    c.Severity,
		Type:        c.Type,
		Title:       c.Title,
		Description: c.Description,
		EventType:   c.EventType,
		Context:     c.Context,
		Metadata:    c.Metadata,
	}
	m.lastSeen[key] = now
	m.byID[alert.ID] = len(m.alerts)
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	alertsCreated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	m.logger.Warn().
		Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("ip_address", alert.Context.IPAddress).
		Msg("Security alert created")

	m.auditTrail(ctx, "security_alert_created", alert, "")

	if cfg.Alerting.Enabled {
		m.dispatch(ctx, alert)
	}

	return &alert, true
}

// Acknowledge marks the alert as handled. Returns false for unknown ids.
// Re-acknowledging overwrites the actor and timestamp.
func (m *Manager) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) bool {
	m.mu.Lock()
	idx, ok := m.byID[alertID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	now := time.Now()
	m.alerts[idx].Acknowledged = true
	m.alerts[idx].AcknowledgedBy = acknowledgedBy
	m.alerts[idx].AcknowledgedAt = &now
	alert := m.alerts[idx]
	m.mu.Unlock()

	m.logger.Info().
		Str("alert_id", alertID).
		Str("acknowledged_by", acknowledgedBy).
		Msg("Alert acknowledged")

	m.auditTrail(ctx, "security_alert_acknowledged", alert, acknowledgedBy)
	return true
}

// Active returns unacknowledged alerts in insertion order, optionally
// filtered by severity.
func (m *Manager) Active(severity *Severity) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Acknowledged {
			continue
		}
		if severity != nil && a.Severity != *severity {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Snapshot returns a copy of every retained alert.
func (m *Manager) Snapshot() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alert(nil), m.alerts...)
}

// InRange returns alerts whose timestamp falls in [start, end].
func (m *Manager) InRange(start, end time.Time) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Timestamp.Before(start) || a.Timestamp.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CleanupOld drops alerts older than the configured retention and returns
// how many were removed.
func (m *Manager) CleanupOld() int {
	days := m.cfg().Retention.AlertRetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(m.alerts) - len(kept)
	if removed > 0 {
		m.alerts = kept
		m.byID = make(map[string]int, len(kept))
		for i, a := range kept {
			m.byID[a.ID] = i
		}
		m.logger.Info().Int("removed", removed).Msg("Old alerts cleaned up")
	}
	return removed
}

func (m *Manager) dispatch(ctx context.Context, alert Alert) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			m.logger.Error().
				Err(err).
				Str("notifier", n.Name()).
				Str("alert_id", alert.ID).
				Msg("Alert notification failed")
		}
	}
}

// auditTrail writes the lifecycle event back into the historical store
// for traceability. Failures are logged, never propagated.
func (m *Manager) auditTrail(ctx context.Context, action string, alert Alert, actor string) {
	if m.audit == nil {
		return
	}
	rec := auditstore.Record{
		Timestamp: time.Now(),
		Type:      events.EventSystemConfig,
		Action:    action,
		Outcome:   events.OutcomeSuccess,
		Severity:  events.SeverityInfo,
		UserID:    actor,
		IPAddress: alert.Context.IPAddress,
		CompanyID: alert.Context.CompanyID,
		Metadata: map[string]interface{}{
			"alert_id":   alert.ID,
			"alert_type": string(alert.Type),
			"severity":   string(alert.Severity),
		},
	}
	if err := m.audit.Append(ctx, rec); err != nil {
		m.logger.Error().Err(err).Str("action", action).Msg("Failed to write alert audit record")
	}
}
