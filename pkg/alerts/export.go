package alerts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat selects the rendering of an alert export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// Export renders the alerts created in [start, end] in the given format.
func (m *Manager) Export(format ExportFormat, start, end time.Time) ([]byte, error) {
	alerts := m.InRange(start, end)

	switch format {
	case FormatJSON:
		return json.MarshalIndent(alerts, "", "  ")
	case FormatCSV:
		return renderCSV(alerts)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func renderCSV(alerts []Alert) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "timestamp", "severity", "type", "title", "description",
		"event_type", "ip_address", "user_id", "acknowledged",
		"acknowledged_by", "acknowledged_at",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, a := range alerts {
		ackAt := ""
		if a.AcknowledgedAt != nil {
			ackAt = a.AcknowledgedAt.Format(time.RFC3339)
		}
		row := []string{
			a.ID,
			a.Timestamp.Format(time.RFC3339),
			string(a.Severity),
			string(a.Type),
			a.Title,
			a.Description,
			string(a.EventType),
			a.Context.IPAddress,
			a.Context.UserID,
			fmt.Sprintf("%t", a.Acknowledged),
			a.AcknowledgedBy,
			ackAt,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
