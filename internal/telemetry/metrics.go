package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора. Экспортируются через /metrics в каждом бинаре.
var (
	// TickDuration — длительность тика оркестратора.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetacs_tick_duration_seconds",
		Help:    "Duration of one orchestrator tick.",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveWorkflows — количество активных workflow на последнем тике.
	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetacs_active_workflows",
		Help: "Number of active workflows seen by the last tick.",
	})

	// ExecutionsCreated — созданные executions.
	ExecutionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_executions_created_total",
		Help: "Executions created by the orchestrator.",
	})

	// ExecutionsQueued — постановки задач в очередь (включая retry).
	ExecutionsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_executions_queued_total",
		Help: "Task enqueues, including retries.",
	})

	// ExecutionsCompleted — успешно завершённые executions.
	ExecutionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_executions_completed_total",
		Help: "Executions finished successfully.",
	})

	// ExecutionsFailed — executions, исчерпавшие retry.
	ExecutionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_executions_failed_total",
		Help: "Executions that exhausted their retries.",
	})

	// ExecutionsSkipped — пропущенные executions.
	ExecutionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_executions_skipped_total",
		Help: "Executions skipped (device left group or run-once satisfied).",
	})

	// DispatchFailures — неудачные попытки постановки задачи.
	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_dispatch_failures_total",
		Help: "Failed task enqueue attempts.",
	})

	// BreakerTrips — срабатывания circuit breaker.
	BreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetacs_breaker_trips_total",
		Help: "Workflows auto-paused by the failure-ratio circuit breaker.",
	})
)
