// Package metrics holds the Prometheus collectors for the messaging service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clubdesk"

var (
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dispatched_total",
		Help:      "Messages created, by addressing mode.",
	}, []string{"mode"})

	DeliveriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_created_total",
		Help:      "Delivery records inserted.",
	})

	PartialFanouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partial_fanouts_total",
		Help:      "Sends that committed the message but not every delivery record.",
	})

	ReadMarkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_mark_failures_total",
		Help:      "Read-state updates that failed and were skipped.",
	})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Delivery events published, by kind.",
	}, []string{"kind"})

	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_outcomes_total",
		Help:      "Pending messages handled by the orphan reconciler, by outcome.",
	}, []string{"outcome"})

	SendsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_throttled_total",
		Help:      "Send requests rejected by the per-principal rate limiter.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
