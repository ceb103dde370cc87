// Package api serves the dashboard-facing query surface: posture
// metrics, active alerts, exports and configuration, plus health and
// Prometheus endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/config"
	"github.com/chatmetrics/watchtower/pkg/monitor"
)

// Server is the HTTP front for the monitoring coordinator.
type Server struct {
	srv     *http.Server
	monitor *monitor.Service
	logger  zerolog.Logger
}

// NewServer builds the HTTP server on the given port.
func NewServer(port string, svc *monitor.Service, logger zerolog.Logger) *Server {
	s := &Server{
		monitor: svc,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/metrics", s.handleSecurityMetrics)
	mux.HandleFunc("GET /api/v1/alerts", s.handleActiveAlerts)
	mux.HandleFunc("POST /api/v1/alerts/{id}/ack", s.handleAcknowledge)
	mux.HandleFunc("GET /api/v1/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/threat/ip", s.handleIPThreat)
	mux.HandleFunc("GET /api/v1/config", s.handleGetConfig)
	mux.HandleFunc("PATCH /api/v1/config", s.handlePatchConfig)

	s.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("API server starting")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	m, err := s.monitor.GetSecurityMetrics(r.Context(), start, end, r.URL.Query().Get("company"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute security metrics")
		http.Error(w, "failed to compute metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, m)
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	var severity *alerts.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		sev := alerts.Severity(raw)
		if !sev.Valid() {
			http.Error(w, "unknown severity", http.StatusBadRequest)
			return
		}
		severity = &sev
	}
	s.writeJSON(w, s.monitor.GetActiveAlerts(severity))
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AcknowledgedBy == "" {
		http.Error(w, "acknowledged_by is required", http.StatusBadRequest)
		return
	}

	alertID := r.PathValue("id")
	if !s.monitor.AcknowledgeAlert(r.Context(), alertID, body.AcknowledgedBy) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]bool{"acknowledged": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := alerts.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = alerts.FormatJSON
	}
	hours := queryInt(r, "hours", 24)
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	data, err := s.monitor.ExportSecurityData(format, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case alerts.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(data)
}

func (s *Server) handleIPThreat(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "ip is required", http.StatusBadRequest)
		return
	}

	assessment, err := s.monitor.CalculateIPThreatLevel(r.Context(), ip)
	if err != nil {
		s.logger.Error().Err(err).Str("ip", ip).Msg("IP threat assessment failed")
		http.Error(w, "assessment failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, assessment)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.Config())
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid config patch", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.monitor.UpdateConfig(patch))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
