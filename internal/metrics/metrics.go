// Package metrics exposes engine counters. They register on the default
// prometheus registry; embedding applications decide whether to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendsTotal counts sendMessage attempts by transport path.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "sends_total",
			Help:      "Chat send attempts, labeled by transport path.",
		},
		[]string{"path"},
	)

	// SendFailuresTotal counts failed sends by error kind.
	SendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "send_failures_total",
			Help:      "Failed chat sends, labeled by error kind.",
		},
		[]string{"kind"},
	)

	// RefreshAttemptsTotal counts token refresh attempts by outcome.
	RefreshAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "token_refresh_attempts_total",
			Help:      "Access token refresh attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// PersistenceFailuresTotal counts durable writes that failed. These are
	// warnings, never user-facing errors.
	PersistenceFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "persistence_failures_total",
			Help:      "Durable store writes that failed and were dropped.",
		},
	)

	// QueueSubmissionsTotal counts jobs accepted by the send queue.
	QueueSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "queue_submissions_total",
			Help:      "Jobs accepted into the send queue, labeled by shard.",
		},
		[]string{"shard"},
	)
)
