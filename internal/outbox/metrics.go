package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Member and workout events published to Kafka.",
	}, []string{"topic", "event_type"})

	eventsDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "outbox",
		Name:      "events_dead_lettered_total",
		Help:      "Member and workout events moved to outbox_dlq after a failed publish.",
	}, []string{"topic", "event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fitness_center",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, publish and retire one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	lastPublishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitness_center",
		Subsystem: "outbox",
		Name:      "last_published_timestamp_seconds",
		Help:      "Unix timestamp of the most recent batch of member or workout events reaching Kafka.",
	})
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDeadLettered, batchDuration, lastPublishedGauge)
}

func recordPublished(messages []Message, at time.Time) {
	for _, msg := range messages {
		eventsPublished.WithLabelValues(msg.Topic, msg.EventType).Inc()
	}
	lastPublishedGauge.Set(float64(at.Unix()))
}

func recordDeadLettered(messages []Message) {
	for _, msg := range messages {
		eventsDeadLettered.WithLabelValues(msg.Topic, msg.EventType).Inc()
	}
}
