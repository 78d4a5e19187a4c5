//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fitnesscenter/internal/database"
	"example.com/fitnesscenter/internal/domain"
	"example.com/fitnesscenter/internal/events"
	"example.com/fitnesscenter/internal/persistence/postgres"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedMember(t, ctx, pool, "ana@x.com")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, zerolog.Nop(), 10*time.Millisecond, 5)

	publishedCounter := eventsPublished.WithLabelValues("member_events", events.TypeMemberCreated)
	beforePublished := testutil.ToFloat64(publishedCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "member_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	record := producer.writes[0].messages[0]
	schemaID, _, err := events.DecodeFrame(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	require.Equal(t, []string{"member_events-value"}, registry.calls)

	require.InDelta(t, beforePublished+1, testutil.ToFloat64(publishedCounter), 0.0001)
	require.NotZero(t, testutil.ToFloat64(lastPublishedGauge))
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published events are not delivered twice")
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	member := seedMember(t, ctx, pool, "bo@x.com")

	producer := &stubProducer{err: errors.New("kafka write failed")}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(pool, producer, registry, zerolog.Nop(), 10*time.Millisecond, 5)

	deadLettered := eventsDeadLettered.WithLabelValues("member_events", events.TypeMemberCreated)
	beforeDLQ := testutil.ToFloat64(deadLettered)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(deadLettered), 0.0001)

	var (
		dlqCount int
		reason   string
	)
	err := pool.QueryRow(ctx, `SELECT COUNT(*), MAX(reason) FROM outbox_dlq WHERE aggregate_id = $1`, member.ID).Scan(&dlqCount, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, dlqCount)
	require.Contains(t, reason, "kafka write failed")

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherDeadLetteringIsAtomic(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedMember(t, ctx, pool, "atomic@x.com")
	_, err := pool.Exec(ctx, `ALTER TABLE outbox ADD CONSTRAINT outbox_never_published CHECK (published_at IS NULL)`)
	require.NoError(t, err)

	deadLettered := eventsDeadLettered.WithLabelValues("member_events", events.TypeMemberCreated)
	beforeDLQ := testutil.ToFloat64(deadLettered)

	dispatcher := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, &stubRegistry{id: 7}, zerolog.Nop(), 10*time.Millisecond, 5)
	require.Error(t, dispatcher.processBatch(ctx))

	var dlqRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqRows))
	require.Zero(t, dlqRows, "dead-letter insert rolls back with the failed retire")
	require.InDelta(t, beforeDLQ, testutil.ToFloat64(deadLettered), 0.0001)

	var unpublished int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	require.Equal(t, 1, unpublished)
}

func TestDispatcherSkipsRowsClaimedByAnotherInstance(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedMember(t, ctx, pool, "lease@x.com")

	first := NewDispatcher(pool, &stubProducer{}, &stubRegistry{id: 1}, zerolog.Nop(), 10*time.Millisecond, 5)
	second := NewDispatcher(pool, &stubProducer{}, &stubRegistry{id: 1}, zerolog.Nop(), 10*time.Millisecond, 5)

	claimed, err := first.fetchAndClaim(ctx)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := second.fetchAndClaim(ctx)
	require.NoError(t, err)
	require.Empty(t, again, "an in-flight claim is not handed out twice")

	later := time.Now().UTC().Add(claimLease + time.Minute)
	second.now = func() time.Time { return later }
	reclaimed, err := second.fetchAndClaim(ctx)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1, "an expired claim is offered again")
	require.Equal(t, claimed[0].EventID, reclaimed[0].EventID)
}

func TestDispatcherRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		seedMember(t, ctx, pool, email)
	}

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 1}, zerolog.Nop(), 10*time.Millisecond, 2)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes[0].messages, 2)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 2)
	require.Len(t, producer.writes[1].messages, 1)
}

func TestDispatcherUnknownEventTypeMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	var eventID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ('member', 1, 'member.renamed', 'member_events', 'member_events-value', '1', '{}')
         RETURNING event_id`).Scan(&eventID)
	require.NoError(t, err)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, zerolog.Nop(), 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "unknown event types skip kafka writes")
	require.Empty(t, registry.calls, "schema registry is not consulted without metadata")

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=member.renamed")
}

func TestDispatcherStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool, cleanup := setupPostgres(t, context.Background())
	defer cleanup()

	seedMember(t, context.Background(), pool, "run@x.com")

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 3}, zerolog.Nop(), 10*time.Millisecond, 5)
	go dispatcher.Start(ctx)

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.writes) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	dispatcher.Wait()
}

func seedMember(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email string) domain.Member {
	t.Helper()
	member, err := postgres.NewRepository(pool).CreateMember(ctx, domain.Member{Name: "Seed", Email: email})
	require.NoError(t, err)
	return member
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

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
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
