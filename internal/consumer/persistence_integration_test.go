//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fitnesscenter/internal/database"
	"example.com/fitnesscenter/internal/events"
)

func TestPersistenceHandlerStoresEvent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"member_id":7,"occurred_at":"2024-01-10T00:00:00Z"}`)
	msg := Message{
		EventType:     events.TypeMemberDeleted,
		SchemaID:      42,
		SchemaSubject: "member_deleted-value",
		Topic:         "member_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery is absorbed")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM member_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		storedPayload []byte
		eventType     string
		schemaID      int
	)
	err := pool.QueryRow(ctx, `SELECT payload, event_type, schema_id FROM member_event_log LIMIT 1`).Scan(&storedPayload, &eventType, &schemaID)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
	require.Equal(t, events.TypeMemberDeleted, eventType)
	require.Equal(t, 42, schemaID)
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fitness"),
		postgrescontainer.WithUsername("fitness"),
		postgrescontainer.WithPassword("fitness"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, database.EnsureSchema(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
