// Package outbox delivers member and workout events recorded in the outbox
// table to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/fitnesscenter/internal/events"
)

// claimLease is how long a claimed row stays invisible to other claims. Rows
// whose delivery did not finish within the lease are offered again.
const claimLease = 5 * time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   int64
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	// RetryCount is the number of DLQ replays this event has been through.
	RetryCount int
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	log              zerolog.Logger
	pollInterval     time.Duration
	batchSize        int
	now              func() time.Time
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, log zerolog.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		log:              log.With().Str("component", "outbox").Logger(),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		now:              func() time.Time { return time.Now().UTC() },
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	d.log.Info().Dur("poll_interval", d.pollInterval).Int("batch_size", d.batchSize).Msg("outbox dispatcher started")
	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Msg("outbox batch failed")
		}

		select {
		case <-ctx.Done():
			d.log.Info().Msg("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.log.Warn().Err(err).Int("events", len(messages)).Msg("delivery failed, routing batch to dlq")
		if dlqErr := d.moveToDLQ(ctx, messages, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return nil
	}

	if err := markPublished(ctx, d.pool, messages); err != nil {
		return err
	}
	recordPublished(messages, d.now())
	d.log.Debug().Int("events", len(messages)).Msg("outbox batch delivered")
	return nil
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) (messages []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(messages) == 0 {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, retry_count
        FROM outbox
        WHERE published_at IS NULL AND (claimed_at IS NULL OR claimed_at < $2)
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	now := d.now()
	rows, err := tx.Query(ctx, query, d.batchSize, now.Add(-claimLease))
	if err != nil {
		return nil, err
	}
	messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload, &msg.RetryCount)
		return msg, err
	})
	if err != nil || len(messages) == 0 {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = $2 WHERE event_id = ANY($1)`, eventIDs(messages), now); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// deliver publishes the batch grouped by topic. Any failure fails the whole batch.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	topics := make([]string, 0)

	for _, msg := range messages {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}
		if _, ok := batches[msg.Topic]; !ok {
			topics = append(topics, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], buildRecord(msg, schemaID, d.now()))
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return fmt.Errorf("write %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + msg.EventType
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", msg.SchemaSubject, err)
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// buildRecord frames the payload and sets the headers consumers route on.
func buildRecord(msg Message, schemaID int, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: events.EncodeFrame(schemaID, msg.Payload),
		Time:  at,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
			{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}
}

func markPublished(ctx context.Context, db execer, messages []Message) error {
	_, err := db.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
	return err
}

// moveToDLQ dead-letters the batch and retires it from the outbox in one
// transaction, so a batch is never both dead-lettered and redelivered.
func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, msg := range messages {
		if err := writeDLQ(ctx, tx, msg, fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)); err != nil {
			return err
		}
	}
	if err := markPublished(ctx, tx, messages); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	recordDeadLettered(messages)
	return nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}
