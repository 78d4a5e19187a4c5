// Package database opens the Postgres connection pool and bootstraps the schema.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"example.com/fitnesscenter/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// PingTimeout bounds the startup connectivity check.
const PingTimeout = 10 * time.Second

// Options controls pool creation.
type Options struct {
	URL      string
	TraceSQL bool
}

// Open creates the process-wide pool and verifies the database is reachable.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	if opts.TraceSQL {
		sqlLog := log.With().Str("component", "pgx").Logger()
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(sqlLog),
			LogLevel: logger.PgxTraceLevel(log.GetLevel()),
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info().Str("host", poolCfg.ConnConfig.Host).Str("database", poolCfg.ConnConfig.Database).Msg("connected to postgres")
	return pool, nil
}

// EnsureSchema creates the tables the service needs when they are missing.
// Statements are idempotent so it is safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
