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

	"example.com/fitnesscenter/internal/api"
	"example.com/fitnesscenter/internal/config"
	"example.com/fitnesscenter/internal/database"
	"example.com/fitnesscenter/internal/domain"
	"example.com/fitnesscenter/internal/logger"
	"example.com/fitnesscenter/internal/outbox"
	"example.com/fitnesscenter/internal/persistence/memory"
	"example.com/fitnesscenter/internal/persistence/postgres"
	httptransport "example.com/fitnesscenter/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "fitness-center-api"})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)
	if cfg.UsePostgres() {
		pool, err := database.Open(ctx, database.Options{URL: cfg.PostgresURL, TraceSQL: cfg.TraceSQL}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to postgres")
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("bootstrap schema")
		}
		repo = postgres.NewRepository(pool)

		if cfg.KafkaEnabled() {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, log.With().Str("component", "outbox").Logger(), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		} else {
			log.Warn().Msg("no kafka brokers configured; outbox events stay in postgres")
		}
	} else {
		log.Warn().Msg("FITNESS_POSTGRES_URL not set; using the in-memory store")
		repo = memory.NewRepository()
	}

	service := domain.NewService(repo)

	mux := http.NewServeMux()
	api.NewHandler(service, log).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Wrap(mux, log, cfg.CORSOrigin))

	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Msg("fitness-center api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
