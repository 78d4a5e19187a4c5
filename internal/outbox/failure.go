package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// writeDLQ copies msg into outbox_dlq with the failure reason. The replay
// count travels with the event so the DLQ manager can enforce its budget.
func writeDLQ(ctx context.Context, db execer, msg Message, reason string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, aggregate_type, aggregate_id, schema_subject, partition_key, payload, reason, retry_count)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		msg.EventID, msg.EventType, msg.Topic, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey, msg.Payload, reason, msg.RetryCount,
	)
	return err
}
