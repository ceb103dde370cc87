package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Notifier delivers a newly created alert to an external channel.
// Delivery is best-effort: the manager logs failures and moves on.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback
// channel and never fails.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs at a level matching the
// alert severity.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_notifier").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	var ev *zerolog.Event
	switch alert.Severity {
	case SeverityCritical, SeverityHigh:
		ev = n.logger.Error()
	case SeverityMedium:
		ev = n.logger.Warn()
	default:
		ev = n.logger.Info()
	}
	ev.Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("ip_address", alert.Context.IPAddress).
		Msg(alert.Title)
	return nil
}

// NATSNotifier publishes alerts as JSON to a NATS subject so downstream
// consumers (pagers, ticketing, the dashboard websocket feed) can react.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// DefaultAlertSubject is where alerts are published unless overridden.
const DefaultAlertSubject = "watchtower.alerts"

// NewNATSNotifier wraps an existing NATS connection. An empty subject
// uses DefaultAlertSubject.
func NewNATSNotifier(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultAlertSubject
	}
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_notifier").Logger(),
	}
}

func (n *NATSNotifier) Name() string { return "nats" }

func (n *NATSNotifier) Notify(_ context.Context, alert Alert) error {
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("nats connection not available")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.ID)
	headers.Set("x-alert-type", string(alert.Type))
	headers.Set("x-severity", string(alert.Severity))

	msg := &nats.Msg{Subject: n.subject, Data: payload, Header: headers}
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	n.logger.Debug().
		Str("alert_id", alert.ID).
		Str("subject", n.subject).
		Msg("Alert published")
	return nil
}
