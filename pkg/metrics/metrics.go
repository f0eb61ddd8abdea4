package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmergenciesCreated counts inbound emergencies by dispatch mode (queued|manual).
	EmergenciesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunarmitra_emergencies_created_total",
			Help: "Total number of emergency requests received",
		},
		[]string{"dispatch_status"},
	)

	// DispatchRuns records dispatch outcomes (dispatched|no_candidates|skipped).
	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunarmitra_dispatch_runs_total",
			Help: "Total number of dispatch orchestrator runs",
		},
		[]string{"result"},
	)

	// DispatchCandidates observes how many workers each dispatch notified.
	DispatchCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hunarmitra_dispatch_candidates",
			Help:    "Number of candidates notified per dispatch",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// AcceptAttempts counts worker accept attempts by result (accepted|conflict|error).
	AcceptAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunarmitra_accept_attempts_total",
			Help: "Total number of worker accept attempts",
		},
		[]string{"result"},
	)

	// Escalations counts emergencies flagged by the timeout monitor.
	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hunarmitra_escalations_total",
			Help: "Total number of emergencies flagged for escalation",
		},
	)

	// PushDeliveries counts per-record delivery outcomes (sent|failed|retry|skipped|delayed).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunarmitra_push_deliveries_total",
			Help: "Total number of push delivery outcomes",
		},
		[]string{"result"},
	)

	// QueueTasks counts processed background tasks by kind and result (ok|error|retry).
	QueueTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunarmitra_queue_tasks_total",
			Help: "Total number of background tasks processed",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hunarmitra_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
