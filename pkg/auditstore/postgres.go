package auditstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/events"
)

// PostgresStore implements Store against the audit_log table owned by the
// dashboard's persistence layer.
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore opens a connection pool to the given database URL and
// verifies connectivity.
func NewPostgresStore(databaseURL string, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Msg("Connected to PostgreSQL audit store")

	return &PostgresStore{
		db:     db,
		logger: logger.With().Str("component", "audit_store").Logger(),
	}, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Append(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	var metadata []byte
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = b
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(ts, event_type, action, outcome, severity, user_id, ip_address,
			 country, session_id, company_id, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.Timestamp, string(rec.Type), rec.Action, string(rec.Outcome),
		string(rec.Severity), nullable(rec.UserID), nullable(rec.IPAddress),
		nullable(rec.Country), nullable(rec.SessionID), nullable(rec.CompanyID),
		nullable(rec.ErrorMessage), metadata)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountEvents(ctx context.Context, f Filter) (int, error) {
	where, args := filterClauses(f)

	query := "SELECT COUNT(*) FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) CountriesForUser(ctx context.Context, userID string, types []events.EventType, since time.Time) ([]string, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT country FROM audit_log
		WHERE user_id = $1
		  AND event_type = ANY($2)
		  AND ts > $3
		  AND country IS NOT NULL
		ORDER BY country`,
		userID, pq.Array(typeNames), since)
	if err != nil {
		return nil, fmt.Errorf("countries query failed: %w", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (p *PostgresStore) HourlyAverage(ctx context.Context, eventType events.EventType, hourOfDay int, days int) (float64, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE event_type = $1
		  AND ts > $2
		  AND EXTRACT(HOUR FROM ts) = $3`,
		string(eventType), since, hourOfDay).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hourly average query failed: %w", err)
	}
	return float64(n) / float64(days), nil
}

func (p *PostgresStore) EventsInRange(ctx context.Context, start, end time.Time, companyID string) ([]Record, error) {
	query := `
		SELECT ts, event_type, action, outcome, severity,
		       COALESCE(user_id, ''), COALESCE(ip_address, ''),
		       COALESCE(country, ''), COALESCE(session_id, ''),
		       COALESCE(company_id, ''), COALESCE(error_message, ''), metadata
		FROM audit_log
		WHERE ts >= $1 AND ts <= $2`
	args := []interface{}{start, end}
	if companyID != "" {
		query += " AND company_id = $3"
		args = append(args, companyID)
	}
	query += " ORDER BY ts"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var eventType, outcome, severity string
		var metadata []byte
		if err := rows.Scan(&rec.Timestamp, &eventType, &rec.Action, &outcome,
			&severity, &rec.UserID, &rec.IPAddress, &rec.Country,
			&rec.SessionID, &rec.CompanyID, &rec.ErrorMessage, &metadata); err != nil {
			return nil, err
		}
		rec.Type = events.EventType(eventType)
		rec.Outcome = events.Outcome(outcome)
		rec.Severity = events.Severity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to decode record metadata, skipping field")
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func filterClauses(f Filter) ([]string, []interface{}) {
	var where []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.IPAddress != "" {
		where = append(where, "ip_address = "+arg(f.IPAddress))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.Outcome != "" {
		where = append(where, "outcome = "+arg(string(f.Outcome)))
	}
	if !f.Since.IsZero() {
		where = append(where, "ts > "+arg(f.Since))
	}
	if len(f.Types) > 0 {
		names := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			names = append(names, string(t))
		}
		where = append(where, "event_type = ANY("+arg(pq.Array(names))+")")
	}
	return where, args
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
