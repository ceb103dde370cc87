package alerts

import (
	"time"

	"github.com/chatmetrics/watchtower/pkg/events"
)

// Severity grades an alert. Unlike event severities there is no "info"
// level: anything worth an alert is at least low.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity, low lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AlertType names the threat category an alert belongs to.
type AlertType string

const (
	TypeBruteForceAttack     AlertType = "brute_force_attack"
	TypeRateLimitBreach      AlertType = "rate_limit_breach"
	TypeCSRFAttack           AlertType = "csrf_attack"
	TypeCSPViolation         AlertType = "csp_violation"
	TypeGeolocationAnomaly   AlertType = "geolocation_anomaly"
	TypeTemporalAnomaly      AlertType = "temporal_anomaly"
	TypeUnusualAdminActivity AlertType = "unusual_admin_activity"
	TypeSuspiciousIPActivity AlertType = "suspicious_ip_activity"
	TypePrivilegeEscalation  AlertType = "privilege_escalation"
	TypeDataBreachAttempt    AlertType = "data_breach_attempt"
	TypeMassDataAccess       AlertType = "mass_data_access"
	TypeSessionHijack        AlertType = "session_hijack"
	TypePasswordSpray        AlertType = "password_spray_attack"
	TypeAccountTakeover      AlertType = "account_takeover"
	TypeConfigTampering      AlertType = "config_tampering"
)

// Alert is a de-duplicated, actionable notification. Immutable after
// creation except for the acknowledgment fields.
type Alert struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	Severity       Severity               `json:"severity"`
	Type           AlertType              `json:"type"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	EventType      events.EventType       `json:"event_type"`
	Context        events.Context         `json:"context"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Acknowledged   bool                   `json:"acknowledged"`
	AcknowledgedBy string                 `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at,omitempty"`
}

// Candidate is what a detector hands the manager; the manager assigns
// the identity and timestamp.
type Candidate struct {
	Severity    Severity
	Type        AlertType
	Title       string
	Description string
	EventType   events.EventType
	Context     events.Context
	Metadata    map[string]interface{}
}
