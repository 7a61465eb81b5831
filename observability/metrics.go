// Package observability centralizes the Prometheus metrics exported by
// the execution core and job scheduler, scraped via the /metrics route
// in httpapi.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskQueueDepth tracks the number of queued tasks.
	TaskQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_queue_depth",
		Help: "Current number of queued tasks by priority",
	}, []string{"priority"})

	// TaskDispatchTotal counts completed dispatch attempts.
	TaskDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainsignal_task_dispatch_total",
		Help: "Total dispatch attempts by task type and outcome",
	}, []string{"task_type", "outcome"})

	// TaskDispatchDuration tracks dispatch latency observed by the
	// Executor, independent of any one slot's own timeout budget.
	TaskDispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainsignal_task_dispatch_duration_seconds",
		Help:    "Duration of a single dispatch call through the Executor",
		Buckets: prometheus.DefBuckets,
	})

	// TaskRetries counts requeues due to a non-OK dispatch result.
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainsignal_task_retries_total",
		Help: "Total number of task retry attempts",
	})

	// SlotUsedInWindow mirrors each enabled slot's current hourly usage.
	SlotUsedInWindow = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_slot_used_in_window",
		Help: "Current hourly usage counter per slot",
	}, []string{"slot_id"})

	// SlotCapacity mirrors each enabled slot's hourly quota.
	SlotCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_slot_capacity",
		Help: "Configured hourly quota per slot",
	}, []string{"slot_id"})

	// SlotHealth tracks the last-observed health of each slot
	// (0=ok, 1=degraded, 2=error, 3=unknown).
	SlotHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_slot_health",
		Help: "Last observed slot health (0=ok, 1=degraded, 2=error, 3=unknown)",
	}, []string{"slot_id"})

	// NoAvailableSlotTotal counts times RunSync found zero eligible
	// slots, broken down by the dominant disqualifying reason.
	NoAvailableSlotTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainsignal_no_available_slot_total",
		Help: "Total times no eligible slot was found, by reason",
	}, []string{"reason"})

	// SchedulerTickTotal counts every scheduler tick outcome.
	SchedulerTickTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainsignal_scheduler_tick_total",
		Help: "Total scheduled job ticks by job name and outcome",
	}, []string{"job", "outcome"}) // outcome: ok, error, dropped, panic

	// SchedulerJobDuration tracks how long each job's handler runs.
	SchedulerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainsignal_scheduler_job_duration_seconds",
		Help:    "Duration of a single scheduled job invocation",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// WorkerRunning tracks whether the async worker loop is active.
	WorkerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainsignal_worker_running",
		Help: "Whether the taskqueue Worker loop is currently running (1) or not (0)",
	})

	// ReputationScoreCount tracks the live population per tier.
	ReputationScoreCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_reputation_score_count",
		Help: "Current number of subjects scored per reputation tier",
	}, []string{"tier"})

	// ModelDriftScore tracks the last observed drift reading per model.
	ModelDriftScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainsignal_model_drift_score",
		Help: "Last observed drift score per model",
	}, []string{"model"})
)

// HealthToValue maps a store.Health string to the numeric encoding
// SlotHealth exports, kept here rather than in store to avoid a
// store -> observability import for a display concern.
func HealthToValue(health string) float64 {
	switch health {
	case "ok":
		return 0
	case "degraded":
		return 1
	case "error":
		return 2
	default:
		return 3
	}
}
