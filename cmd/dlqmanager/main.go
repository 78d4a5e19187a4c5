package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/fitnesscenter/internal/config"
	"example.com/fitnesscenter/internal/database"
	"example.com/fitnesscenter/internal/logger"
	"example.com/fitnesscenter/internal/outbox"
	httptransport "example.com/fitnesscenter/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "fitness-center-dlqmanager"})

	if !cfg.UsePostgres() {
		log.Fatal().Msg("dlq manager requires FITNESS_POSTGRES_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Open(ctx, database.Options{URL: cfg.PostgresURL, TraceSQL: cfg.TraceSQL}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("bootstrap schema")
	}

	manager := outbox.NewDLQManager(pool, log, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	go func() {
		log.Info().Str("address", cfg.MetricsAddress).Msg("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	log.Info().
		Dur("interval", cfg.DLQPollInterval).
		Int("max_retries", cfg.DLQMaxRetries).
		Msg("dlq manager started")

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ticker.C:
			result, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("dlq pass failed")
			}
			if result.Total() > 0 {
				log.Info().
					Int("requeued", result.Requeued).
					Int("deferred", result.Deferred).
					Int("quarantined", result.Quarantined).
					Msg("dlq pass complete")
			}
		}
	}

	log.Info().Msg("dlq manager shutdown requested")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
}
