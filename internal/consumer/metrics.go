package consumer

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "event_log",
		Name:      "events_logged_total",
		Help:      "Member and workout events recorded in the audit log.",
	}, []string{"aggregate", "event_type"})

	eventLogFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "event_log",
		Name:      "log_failures_total",
		Help:      "Member and workout events left uncommitted because the audit log rejected them.",
	}, []string{"aggregate", "event_type"})

	recordsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_center",
		Subsystem: "event_log",
		Name:      "records_rejected_total",
		Help:      "Records dropped from member and workout topics for a missing event_type header or a bad frame.",
	}, []string{"topic"})

	lastLoggedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitness_center",
		Subsystem: "event_log",
		Name:      "last_logged_timestamp_seconds",
		Help:      "Broker timestamp of the latest event recorded per aggregate.",
	}, []string{"aggregate"})
)

func init() {
	prometheus.MustRegister(eventsLogged, eventLogFailures, recordsRejected, lastLoggedGauge)
}

// aggregateOf maps "member.created" to "member".
func aggregateOf(eventType string) string {
	prefix, _, ok := strings.Cut(eventType, ".")
	if !ok || prefix == "" {
		return "unknown"
	}
	return prefix
}

func recordLogged(msg Message) {
	aggregate := aggregateOf(msg.EventType)
	eventsLogged.WithLabelValues(aggregate, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastLoggedGauge.WithLabelValues(aggregate).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordLogFailure(msg Message) {
	eventLogFailures.WithLabelValues(aggregateOf(msg.EventType), msg.EventType).Inc()
}

func recordRejected(topic string) {
	recordsRejected.WithLabelValues(topic).Inc()
}
