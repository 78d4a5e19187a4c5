package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqReplayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "Number of DLQ entries handled by the replayer, labeled by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitness_center",
		Subsystem: "dlq",
		Name:      "pending_entries",
		Help:      "Entries in outbox_dlq that are not quarantined.",
	})
)

func init() {
	prometheus.MustRegister(dlqReplayCounter, dlqBacklogGauge)
}

func (o replayOutcome) String() string {
	switch o {
	case outcomeRequeued:
		return "requeued"
	case outcomeDeferred:
		return "deferred"
	case outcomeQuarantined:
		return "quarantined"
	default:
		return "none"
	}
}

func recordDLQOutcome(entry dlqEntry, outcome replayOutcome) {
	dlqReplayCounter.WithLabelValues(entry.Msg.Topic, entry.Msg.EventType, outcome.String()).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
