package config

// Patch is a partial MonitoringConfig update. Nil fields are left
// untouched; set fields replace the current value wholesale (arrays
// included). Nested patches merge field-by-field, mirroring the
// deep-merge semantics of the dashboard's settings API without
// reflection.
type Patch struct {
	Thresholds *ThresholdsPatch `json:"thresholds,omitempty"`
	Alerting   *AlertingPatch   `json:"alerting,omitempty"`
	Retention  *RetentionPatch  `json:"retention,omitempty"`
}

type ThresholdsPatch struct {
	FailedLoginsPerMinute        *int `json:"failed_logins_per_minute,omitempty"`
	FailedLoginsPerHour          *int `json:"failed_logins_per_hour,omitempty"`
	RateLimitViolationsPerMinute *int `json:"rate_limit_violations_per_minute,omitempty"`
	CSPViolationsPerMinute       *int `json:"csp_violations_per_minute,omitempty"`
	AdminActionsPerHour          *int `json:"admin_actions_per_hour,omitempty"`
	MassDataAccessThreshold      *int `json:"mass_data_access_threshold,omitempty"`
	SuspiciousIPThreshold        *int `json:"suspicious_ip_threshold,omitempty"`
}

type AlertingPatch struct {
	Enabled                  *bool     `json:"enabled,omitempty"`
	NotificationChannels     *[]string `json:"notification_channels,omitempty"`
	SuppressDuplicateMinutes *int      `json:"suppress_duplicate_minutes,omitempty"`
	EscalationTimeoutMinutes *int      `json:"escalation_timeout_minutes,omitempty"`
}

type RetentionPatch struct {
	AlertRetentionDays   *int `json:"alert_retention_days,omitempty"`
	MetricsRetentionDays *int `json:"metrics_retention_days,omitempty"`
}

// Apply merges the patch into cfg.
func (p Patch) Apply(cfg *MonitoringConfig) {
	if p.Thresholds != nil {
		p.Thresholds.apply(&cfg.Thresholds)
	}
	if p.Alerting != nil {
		p.Alerting.apply(&cfg.Alerting)
	}
	if p.Retention != nil {
		p.Retention.apply(&cfg.Retention)
	}
}

func (p ThresholdsPatch) apply(t *Thresholds) {
	setInt(&t.FailedLoginsPerMinute, p.FailedLoginsPerMinute)
	setInt(&t.FailedLoginsPerHour, p.FailedLoginsPerHour)
	setInt(&t.RateLimitViolationsPerMinute, p.RateLimitViolationsPerMinute)
	setInt(&t.CSPViolationsPerMinute, p.CSPViolationsPerMinute)
	setInt(&t.AdminActionsPerHour, p.AdminActionsPerHour)
	setInt(&t.MassDataAccessThreshold, p.MassDataAccessThreshold)
	setInt(&t.SuspiciousIPThreshold, p.SuspiciousIPThreshold)
}

func (p AlertingPatch) apply(a *AlertingConfig) {
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	}
	if p.NotificationChannels != nil {
		a.NotificationChannels = append([]string(nil), (*p.NotificationChannels)...)
	}
	setInt(&a.SuppressDuplicateMinutes, p.SuppressDuplicateMinutes)
	setInt(&a.EscalationTimeoutMinutes, p.EscalationTimeoutMinutes)
}

func (p RetentionPatch) apply(r *RetentionConfig) {
	setInt(&r.AlertRetentionDays, p.AlertRetentionDays)
	setInt(&r.MetricsRetentionDays, p.MetricsRetentionDays)
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
