package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssignmentsCreated counts join rows inserted by fan-out calls, labelled
	// by strategy (direct|bulk|role).
	AssignmentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sekolahku_assignments_created_total",
			Help: "Total number of user-notification assignments created",
		},
		[]string{"strategy"},
	)

	// AssignmentsSkipped counts candidate pairs that already existed, labelled
	// by strategy (direct|bulk|role).
	AssignmentsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sekolahku_assignments_skipped_total",
			Help: "Total number of user-notification assignments skipped as duplicates",
		},
		[]string{"strategy"},
	)

	// NotificationsRead counts UNREAD to READ transitions.
	NotificationsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sekolahku_notifications_read_total",
			Help: "Total number of notifications marked read",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sekolahku_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
