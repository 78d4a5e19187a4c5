package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered events into the outbox and quarantines
// entries that cannot be replayed.
type DLQManager struct {
	pool       *pgxpool.Pool
	log        zerolog.Logger
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
}

// ReplayResult summarises one RunOnce pass.
type ReplayResult struct {
	Requeued    int
	Deferred    int
	Quarantined int
}

// Total is the number of entries touched in the pass.
func (r ReplayResult) Total() int {
	return r.Requeued + r.Deferred + r.Quarantined
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to
// five retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, log zerolog.Logger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{
		pool:       pool,
		log:        log.With().Str("component", "dlq").Logger(),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce handles up to batchSize due entries, oldest first. Each entry is
// handled in its own transaction so concurrent managers never replay the same row.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (ReplayResult, error) {
	var result ReplayResult
	defer updateBacklogGauge(ctx, m.pool)

	for i := 0; i < batchSize; i++ {
		outcome, err := m.replayNext(ctx)
		if err != nil {
			return result, err
		}
		switch outcome {
		case outcomeNone:
			return result, nil
		case outcomeRequeued:
			result.Requeued++
		case outcomeDeferred:
			result.Deferred++
		case outcomeQuarantined:
			result.Quarantined++
		}
	}
	return result, nil
}

type replayOutcome int

const (
	outcomeNone replayOutcome = iota
	outcomeRequeued
	outcomeDeferred
	outcomeQuarantined
)

func (m *DLQManager) replayNext(ctx context.Context) (replayOutcome, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return outcomeNone, err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT dlq_id, event_id, event_type, topic, aggregate_type, aggregate_id, schema_subject, partition_key, payload,
               retry_count, created_at, next_retry_at
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= $1)
        ORDER BY created_at, dlq_id
        LIMIT 1
        FOR UPDATE SKIP LOCKED`

	var entry dlqEntry
	err = tx.QueryRow(ctx, query, m.now()).Scan(
		&entry.ID, &entry.Msg.EventID, &entry.Msg.EventType, &entry.Msg.Topic, &entry.Msg.AggregateType,
		&entry.Msg.AggregateID, &entry.Msg.SchemaSubject, &entry.Msg.PartitionKey, &entry.Msg.Payload,
		&entry.RetryCount, &entry.CreatedAt, &entry.NextRetryAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return outcomeNone, nil
	}
	if err != nil {
		return outcomeNone, err
	}

	outcome, err := m.handleEntry(ctx, tx, entry)
	if err != nil {
		return outcomeNone, err
	}
	if err := tx.Commit(ctx); err != nil {
		return outcomeNone, err
	}
	recordDLQOutcome(entry, outcome)
	return outcome, nil
}

func (m *DLQManager) handleEntry(ctx context.Context, tx pgx.Tx, entry dlqEntry) (replayOutcome, error) {
	entryLog := m.log.With().Int64("dlq_id", entry.ID).Str("event_type", entry.Msg.EventType).Logger()

	if reason := quarantineReason(entry, m.maxRetries); reason != "" {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = $1, quarantine_reason = $2 WHERE dlq_id = $3`,
			m.now(), reason, entry.ID)
		if err != nil {
			return outcomeNone, err
		}
		entryLog.Warn().Str("reason", reason).Msg("dlq entry quarantined")
		return outcomeQuarantined, nil
	}

	if due, ok := replayDueAt(entry, m.baseDelay); ok && due.After(m.now()) {
		_, err := tx.Exec(ctx, `UPDATE outbox_dlq SET next_retry_at = $1 WHERE dlq_id = $2`, due, entry.ID)
		if err != nil {
			return outcomeNone, err
		}
		entryLog.Debug().Int("retry_count", entry.RetryCount).Time("next_retry_at", due).Msg("dlq replay scheduled")
		return outcomeDeferred, nil
	}

	// Savepoint so a failed insert leaves the outer transaction usable.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return outcomeNone, err
	}
	if insertErr := requeue(ctx, sp, entry.Msg, entry.RetryCount+1); insertErr != nil {
		if err := sp.Rollback(ctx); err != nil {
			return outcomeNone, err
		}
		nextAttempt := m.now().Add(backoffDelay(m.baseDelay, entry.RetryCount+1))
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1, last_attempt_at = $1, next_retry_at = $2, reason = $3
              WHERE dlq_id = $4`,
			m.now(), nextAttempt, insertErr.Error(), entry.ID)
		if err != nil {
			return outcomeNone, err
		}
		entryLog.Warn().Err(insertErr).Time("next_retry_at", nextAttempt).Msg("dlq replay deferred")
		return outcomeDeferred, nil
	}
	if err := sp.Commit(ctx); err != nil {
		return outcomeNone, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return outcomeNone, err
	}
	entryLog.Info().Msg("dlq entry requeued")
	return outcomeRequeued, nil
}

// quarantineReason returns a non-empty reason when replaying entry cannot succeed.
func quarantineReason(entry dlqEntry, maxRetries int) string {
	if entry.RetryCount >= maxRetries {
		return "retry limit reached"
	}
	if _, ok := schemaCatalog[entry.Msg.EventType]; !ok {
		return fmt.Sprintf("no schema metadata for event_type=%s", entry.Msg.EventType)
	}
	return ""
}

// backoffDelay doubles base for every attempt after the first, capped at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

// replayDueAt reports when an entry that has already been replayed at least
// once becomes eligible again. Entries with a schedule, or on their first
// failure, are due immediately.
func replayDueAt(entry dlqEntry, base time.Duration) (time.Time, bool) {
	if entry.NextRetryAt != nil || entry.RetryCount == 0 {
		return time.Time{}, false
	}
	return entry.CreatedAt.Add(backoffDelay(base, entry.RetryCount)), true
}

// requeue inserts msg back into the outbox with one more replay on its
// budget, so a repeat delivery failure lands in the DLQ with that count.
func requeue(ctx context.Context, tx pgx.Tx, msg Message, retryCount int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, retry_count)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.SchemaSubject, msg.PartitionKey, msg.Payload, retryCount,
	)
	return err
}

type dlqEntry struct {
	ID          int64
	Msg         Message
	RetryCount  int
	CreatedAt   time.Time
	NextRetryAt *time.Time
}
