package monitor

import (
	"context"
	"time"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/events"
)

const (
	cleanupInterval = 5 * time.Minute
	scanInterval    = time.Minute

	// volumeSpikeThreshold is the events-per-minute count above which the
	// buffer scan raises a volume-spike alert.
	volumeSpikeThreshold = 50
)

// Start launches the two background tasks: the retention cleanup tick and
// the buffer volume scan. Call Stop to shut them down.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info().Msg("Monitoring background tasks starting...")

	s.wg.Add(1)
	go s.runTicker(ctx, "cleanup", cleanupInterval, func(context.Context) {
		removedAlerts := s.alerts.CleanupOld()
		removedEvents := s.buffer.Cleanup()
		if removedAlerts > 0 || removedEvents > 0 {
			s.logger.Debug().
				Int("alerts", removedAlerts).
				Int("events", removedEvents).
				Msg("Retention cleanup pass completed")
		}
	})

	s.wg.Add(1)
	go s.runTicker(ctx, "buffer_scan", scanInterval, s.scanBuffer)
}

// Stop cancels the background tasks and waits for them to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Monitoring background tasks stopped")
}

func (s *Service) runTicker(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick(ctx)
		case <-ctx.Done():
			s.logger.Debug().Str("task", name).Msg("Background task received shutdown signal")
			return
		}
	}
}

// scanBuffer checks the event rate over the last minute and raises a
// volume-spike alert when it exceeds the threshold. The alert is not tied
// to a specific IP; the normal suppression window keeps it from repeating
// every minute during a sustained spike.
func (s *Service) scanBuffer(ctx context.Context) {
	count := s.buffer.CountSince(time.Now().Add(-time.Minute), nil)
	if count <= volumeSpikeThreshold {
		return
	}

	s.logger.Warn().Int("count", count).Msg("Event volume spike detected")

	s.alerts.Create(ctx, alerts.Candidate{
		Severity:    alerts.SeverityMedium,
		Type:        alerts.TypeSuspiciousIPActivity,
		Title:       "Event volume spike",
		Description: "Unusually high event volume in the last minute",
		EventType:   events.EventAPISecurity,
		Metadata:    map[string]interface{}{"events_last_minute": count},
	})
}
