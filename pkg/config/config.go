package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the top-level configuration struct for the application.
// Tags are used by Viper to map YAML keys to struct fields.
type Config struct {
	LogLevel    string           `mapstructure:"log_level" json:"log_level"`
	APIPort     string           `mapstructure:"api_port" json:"api_port"`
	DatabaseURL string           `mapstructure:"database_url" json:"database_url"`
	NATSUrl     string           `mapstructure:"nats_url" json:"nats_url"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring" json:"monitoring"`
}

// MonitoringConfig holds the tunables of the threat-detection engine.
type MonitoringConfig struct {
	Thresholds Thresholds      `mapstructure:"thresholds" json:"thresholds"`
	Alerting   AlertingConfig  `mapstructure:"alerting" json:"alerting"`
	Retention  RetentionConfig `mapstructure:"retention" json:"retention"`
}

// Thresholds are the per-rule trigger counts. A zero or negative value
// degenerates to "always fire"; no semantic validation is applied.
type Thresholds struct {
	FailedLoginsPerMinute        int `mapstructure:"failed_logins_per_minute" json:"failed_logins_per_minute"`
	FailedLoginsPerHour          int `mapstructure:"failed_logins_per_hour" json:"failed_logins_per_hour"`
	RateLimitViolationsPerMinute int `mapstructure:"rate_limit_violations_per_minute" json:"rate_limit_violations_per_minute"`
	CSPViolationsPerMinute       int `mapstructure:"csp_violations_per_minute" json:"csp_violations_per_minute"`
	AdminActionsPerHour          int `mapstructure:"admin_actions_per_hour" json:"admin_actions_per_hour"`
	MassDataAccessThreshold      int `mapstructure:"mass_data_access_threshold" json:"mass_data_access_threshold"`
	SuspiciousIPThreshold        int `mapstructure:"suspicious_ip_threshold" json:"suspicious_ip_threshold"`
}

// AlertingConfig controls alert creation and notification dispatch.
type AlertingConfig struct {
	Enabled                  bool     `mapstructure:"enabled" json:"enabled"`
	NotificationChannels     []string `mapstructure:"notification_channels" json:"notification_channels"`
	SuppressDuplicateMinutes int      `mapstructure:"suppress_duplicate_minutes" json:"suppress_duplicate_minutes"`
	EscalationTimeoutMinutes int      `mapstructure:"escalation_timeout_minutes" json:"escalation_timeout_minutes"`
}

// RetentionConfig controls how long alerts and metrics history are kept.
type RetentionConfig struct {
	AlertRetentionDays   int `mapstructure:"alert_retention_days" json:"alert_retention_days"`
	MetricsRetentionDays int `mapstructure:"metrics_retention_days" json:"metrics_retention_days"`
}

// LoadConfig reads the configuration from a YAML file (e.g. config.yaml)
// and environment variables. Defaults cover every threshold so the engine
// runs with an empty config file.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/watchtower/")

	setDefaults(v)

	v.SetEnvPrefix("WATCHTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("api_port", "8080")

	v.SetDefault("monitoring.thresholds.failed_logins_per_minute", 5)
	v.SetDefault("monitoring.thresholds.failed_logins_per_hour", 20)
	v.SetDefault("monitoring.thresholds.rate_limit_violations_per_minute", 10)
	v.SetDefault("monitoring.thresholds.csp_violations_per_minute", 5)
	v.SetDefault("monitoring.thresholds.admin_actions_per_hour", 50)
	v.SetDefault("monitoring.thresholds.mass_data_access_threshold", 1000)
	v.SetDefault("monitoring.thresholds.suspicious_ip_threshold", 3)

	v.SetDefault("monitoring.alerting.enabled", true)
	v.SetDefault("monitoring.alerting.notification_channels", []string{"log"})
	v.SetDefault("monitoring.alerting.suppress_duplicate_minutes", 10)
	v.SetDefault("monitoring.alerting.escalation_timeout_minutes", 30)

	v.SetDefault("monitoring.retention.alert_retention_days", 90)
	v.SetDefault("monitoring.retention.metrics_retention_days", 365)
}

// Watch re-reads the config file on change and hands the fresh Config to
// onChange. Unparseable edits are reported via onError and skipped.
func Watch(onChange func(*Config), onError func(error)) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/watchtower/")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal config on reload: %w", err))
			}
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}
