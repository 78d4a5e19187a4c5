package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/fitnesscenter/internal/config"
	"example.com/fitnesscenter/internal/consumer"
	"example.com/fitnesscenter/internal/database"
	"example.com/fitnesscenter/internal/logger"
	httptransport "example.com/fitnesscenter/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "fitness-center-consumer"})

	if !cfg.UsePostgres() || !cfg.KafkaEnabled() {
		log.Fatal().Msg("consumer requires FITNESS_POSTGRES_URL and FITNESS_KAFKA_BROKERS")
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

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	go func() {
		log.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.RunGroup(ctx, consumer.GroupConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ConsumerGroupID,
			Topics:  cfg.ConsumerTopics,
		}, consumer.NewPersistenceHandler(pool), log)
	}()

	<-ctx.Done()
	log.Info().Msg("consumer shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}

	<-done
}
