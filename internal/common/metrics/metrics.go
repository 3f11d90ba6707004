package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_batches_total",
			Help: "Reminder batch runs by result",
		},
		[]string{"result"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_batch_duration_seconds",
			Help:    "Wall time of a reminder batch run",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_evaluations_total",
			Help: "Item evaluations by outcome",
		},
		[]string{"outcome"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_total",
			Help: "Logged dispatch outcomes by channel and status",
		},
		[]string{"channel", "status"},
	)

	DispatchAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reminder_dispatch_attempts",
			Help:    "Adapter calls needed per logged dispatch",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"channel"},
	)

	DispatchSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_skipped_total",
			Help: "Tuples skipped before or during dispatch by reason",
		},
		[]string{"reason"},
	)

	LogIndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_log_index_failures_total",
			Help: "Notification log entries that could not be mirrored to Elasticsearch",
		},
	)
)
