// Package monitor wires the event buffer, threat detector, alert manager
// and metrics service behind a single coordinator that the rest of the
// application calls into.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/config"
	"github.com/chatmetrics/watchtower/pkg/detector"
	"github.com/chatmetrics/watchtower/pkg/events"
	"github.com/chatmetrics/watchtower/pkg/metrics"
)

// anomalyAlertThreshold is the confidence above which an anomaly verdict
// becomes an alert.
const anomalyAlertThreshold = 0.7

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchtower_events_processed_total",
	Help: "Security events processed, by type and outcome.",
}, []string{"type", "outcome"})

// Service is the monitoring coordinator. It is a long-lived object
// constructed once at startup and shut down explicitly with Stop.
type Service struct {
	cfgMu sync.RWMutex
	cfg   config.MonitoringConfig

	buffer   *events.Buffer
	alerts   *alerts.Manager
	detector *detector.Detector
	metrics  *metrics.Service
	store    auditstore.Store
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService builds the coordinator and its owned components.
func NewService(cfg config.MonitoringConfig, store auditstore.Store, logger zerolog.Logger, notifiers ...alerts.Notifier) *Service {
	s := &Service{
		cfg:    cfg,
		buffer: events.NewBuffer(events.DefaultRetention),
		store:  store,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
	s.alerts = alerts.NewManager(s.Config, store, logger, notifiers...)
	s.detector = detector.New(store, s.buffer, s.thresholds, logger)
	s.metrics = metrics.NewService(store, logger)
	return s
}

// Config returns a snapshot of the current monitoring configuration.
func (s *Service) Config() config.MonitoringConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// UpdateConfig applies a typed partial update to the monitoring
// configuration. No semantic validation is performed: a zero threshold
// degenerates to "always fire".
func (s *Service) UpdateConfig(patch config.Patch) config.MonitoringConfig {
	s.cfgMu.Lock()
	patch.Apply(&s.cfg)
	updated := s.cfg
	s.cfgMu.Unlock()

	s.logger.Info().Msg("Monitoring configuration updated")
	return updated
}

// ReplaceConfig swaps in a full configuration, used by the file watcher.
func (s *Service) ReplaceConfig(cfg config.MonitoringConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.logger.Info().Msg("Monitoring configuration reloaded")
}

func (s *Service) thresholds() config.Thresholds {
	return s.Config().Thresholds
}

// ProcessSecurityEvent is the single entry point for every
// security-relevant action observed elsewhere in the application.
// Detector and store failures never propagate to the caller; recording
// the event always succeeds.
func (s *Service) ProcessSecurityEvent(ctx context.Context, eventType events.EventType, outcome events.Outcome, severity events.Severity, evCtx events.Context, metadata map[string]interface{}) {
	ev := events.SecurityEvent{
		Timestamp: time.Now(),
		Type:      eventType,
		Outcome:   outcome,
		Severity:  severity,
		Context:   evCtx,
		Metadata:  metadata,
	}
	s.buffer.Add(ev)
	eventsProcessed.WithLabelValues(string(eventType), string(outcome)).Inc()

	for _, threat := range s.detector.DetectImmediateThreats(ctx, ev) {
		s.alerts.Create(ctx, alerts.Candidate{
			Severity:    threat.Severity,
			Type:        threat.Type,
			Title:       threat.Title,
			Description: threat.Description,
			EventType:   eventType,
			Context:     evCtx,
			Metadata:    metadata,
		})
	}

	if anomaly := s.detector.DetectAnomalies(ctx, ev); anomaly.IsAnomaly && anomaly.Confidence > anomalyAlertThreshold {
		s.alerts.Create(ctx, alerts.Candidate{
			Severity:    detector.SeverityForConfidence(anomaly.Confidence),
			Type:        anomalyAlertType(anomaly.Type),
			Title:       "Anomalous activity detected",
			Description: anomaly.Description,
			EventType:   eventType,
			Context:     evCtx,
			Metadata: map[string]interface{}{
				"confidence":          anomaly.Confidence,
				"anomaly_type":        anomaly.Type,
				"recommended_actions": anomaly.RecommendedActions,
			},
		})
	}

	s.buffer.Cleanup()
}

// EnhancedSecurityLog writes the event to the historical audit store and
// feeds it through the monitoring pipeline. This is the inbound wrapper
// the audit logger calls on every security-relevant write.
func (s *Service) EnhancedSecurityLog(ctx context.Context, eventType events.EventType, action string, outcome events.Outcome, evCtx events.Context, severity events.Severity, errorMessage string, metadata map[string]interface{}) {
	rec := auditstore.Record{
		Timestamp:    time.Now(),
		Type:         eventType,
		Action:       action,
		Outcome:      outcome,
		Severity:     severity,
		UserID:       evCtx.UserID,
		IPAddress:    evCtx.IPAddress,
		Country:      evCtx.Country,
		SessionID:    evCtx.SessionID,
		CompanyID:    evCtx.CompanyID,
		ErrorMessage: errorMessage,
		Metadata:     metadata,
	}
	if err := s.store.Append(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Failed to append audit record")
	}

	s.ProcessSecurityEvent(ctx, eventType, outcome, severity, evCtx, metadata)
}

// GetSecurityMetrics computes the posture snapshot for the time range.
func (s *Service) GetSecurityMetrics(ctx context.Context, start, end time.Time, companyID string) (*metrics.SecurityMetrics, error) {
	return s.metrics.Calculate(ctx, start, end, companyID, s.alerts.Snapshot())
}

// GetActiveAlerts returns unacknowledged alerts, optionally filtered by
// severity.
func (s *Service) GetActiveAlerts(severity *alerts.Severity) []alerts.Alert {
	return s.alerts.Active(severity)
}

// AcknowledgeAlert marks an alert as handled. Returns false for unknown
// alert ids.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy string) bool {
	return s.alerts.Acknowledge(ctx, alertID, acknowledgedBy)
}

// ExportSecurityData renders the alerts in the time range as CSV or JSON.
func (s *Service) ExportSecurityData(format alerts.ExportFormat, start, end time.Time) ([]byte, error) {
	return s.alerts.Export(format, start, end)
}

// CalculateIPThreatLevel assesses one IP over the trailing 24 hours.
func (s *Service) CalculateIPThreatLevel(ctx context.Context, ipAddress string) (*metrics.IPThreatAssessment, error) {
	return s.metrics.IPThreatLevel(ctx, ipAddress)
}

// Alerts exposes the alert manager for the API layer.
func (s *Service) Alerts() *alerts.Manager {
	return s.alerts
}

func anomalyAlertType(anomalyType string) alerts.AlertType {
	switch anomalyType {
	case "geographical_anomaly":
		return alerts.TypeGeolocationAnomaly
	case "temporal_anomaly":
		return alerts.TypeTemporalAnomaly
	default:
		return alerts.TypeSuspiciousIPActivity
	}
}
