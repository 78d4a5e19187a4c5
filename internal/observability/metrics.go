package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	memberWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "members",
		Name:      "writes_total",
		Help:      "Number of successful member writes, labeled by operation.",
	}, []string{"operation"})

	workoutsScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "workouts",
		Name:      "scheduled_total",
		Help:      "Number of workout sessions scheduled.",
	})

	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitness_center",
		Subsystem: "persistence",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful write to the store.",
	})
)

func init() {
	prometheus.MustRegister(memberWrites, workoutsScheduled, lastWriteGauge)
}

// RecordMemberCreated counts a member insert and updates the write watermark.
func RecordMemberCreated(ts time.Time) {
	memberWrites.WithLabelValues("create").Inc()
	recordWrite(ts)
}

// RecordMemberUpdated counts a member update and updates the write watermark.
func RecordMemberUpdated(ts time.Time) {
	memberWrites.WithLabelValues("update").Inc()
	recordWrite(ts)
}

// RecordMemberDeleted counts a member delete and updates the write watermark.
func RecordMemberDeleted(ts time.Time) {
	memberWrites.WithLabelValues("delete").Inc()
	recordWrite(ts)
}

// RecordWorkoutScheduled counts a workout insert and updates the write watermark.
func RecordWorkoutScheduled(ts time.Time) {
	workoutsScheduled.Inc()
	recordWrite(ts)
}

func recordWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastWriteGauge.Set(float64(ts.Unix()))
}
