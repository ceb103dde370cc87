package events

import "time"

// EventType categorizes the origin of a security event.
type EventType string

const (
	EventAuthentication    EventType = "authentication"
	EventAuthorization     EventType = "authorization"
	EventUserManagement    EventType = "user_management"
	EventCompanyManagement EventType = "company_management"
	EventRateLimiting      EventType = "rate_limiting"
	EventCSRF              EventType = "csrf"
	EventSecurityHeaders   EventType = "security_headers"
	EventPasswordReset     EventType = "password_reset"
	EventPlatformAdmin     EventType = "platform_admin"
	EventDataPrivacy       EventType = "data_privacy"
	EventSystemConfig      EventType = "system_config"
	EventAPISecurity       EventType = "api_security"
)

// Outcome describes how the observed action ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSuspicious  Outcome = "suspicious"
)

// Severity grades an event. Values are ordered; use Rank for comparisons.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity, info lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Context carries the request-scoped attributes attached to an event.
// All fields are optional; Metadata holds anything the caller wants kept.
type Context struct {
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	Country   string                 `json:"country,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	CompanyID string                 `json:"company_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SecurityEvent is a single observed security-relevant occurrence.
// Events are ephemeral: they live in the in-memory buffer until the
// retention horizon passes.
type SecurityEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Outcome   Outcome                `json:"outcome"`
	Severity  Severity               `json:"severity"`
	Context   Context                `json:"context"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
