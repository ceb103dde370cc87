package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/api"
	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/config"
	"github.com/chatmetrics/watchtower/pkg/logger"
	"github.com/chatmetrics/watchtower/pkg/monitor"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitLogger(cfg.LogLevel)

	log.Info().Msg("Watchtower security monitor starting...")

	// Historical audit store: Postgres when configured, otherwise an
	// in-process store for local runs.
	var store auditstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := auditstore.NewPostgresStore(cfg.DatabaseURL, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to audit store")
		}
		defer pg.Close()
		store = pg
	} else {
		log.Warn().Msg("No database_url configured, using in-memory audit store")
		store = auditstore.NewMemoryStore()
	}

	notifiers := []alerts.Notifier{alerts.NewLogNotifier(log.Logger)}
	if cfg.NATSUrl != "" {
		nc, err := nats.Connect(cfg.NATSUrl, nats.Name("watchtower"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS, alerts will only be logged")
		} else {
			defer nc.Close()
			notifiers = append(notifiers, alerts.NewNATSNotifier(nc, "", log.Logger))
		}
	}

	svc := monitor.NewService(cfg.Monitoring, store, log.Logger, notifiers...)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal: %s. Shutting down gracefully...", sig)
		cancel()
	}()

	svc.Start(ctx)

	// Pick up config file edits without a restart.
	config.Watch(func(fresh *config.Config) {
		svc.ReplaceConfig(fresh.Monitoring)
	}, func(err error) {
		log.Error().Err(err).Msg("Config reload failed")
	})

	server := api.NewServer(cfg.APIPort, svc, log.Logger)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	svc.Stop()

	log.Info().Msg("Watchtower stopped.")
}
