package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Solicitud metrics
	SolicitudesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_solicitudes_created_total",
			Help: "Total number of solicitudes submitted",
		},
	)

	SolicitudesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_solicitudes_completed_total",
			Help: "Total number of solicitudes finalized",
		},
	)

	// Evaluation metrics
	EvaluationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_evaluations_started_total",
			Help: "Total number of track evaluations started",
		},
		[]string{"track"},
	)

	EvaluationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_evaluations_completed_total",
			Help: "Total number of track evaluations persisted",
		},
		[]string{"track", "estado"},
	)

	// Run polling metrics
	RunPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_run_polls_total",
			Help: "Total number of run status polls",
		},
	)

	RunRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_run_restarts_total",
			Help: "Total number of runs restarted after completing without a required action",
		},
	)

	RunStatusFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_run_status_fetch_failures_total",
			Help: "Total number of status fetches that failed after all retries",
		},
	)

	ToolOutputsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_tool_outputs_submitted_total",
			Help: "Total number of tool call outputs acknowledged",
		},
	)

	RunPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigia_run_poll_duration_seconds",
			Help:    "Wall-clock duration of one run poll, restarts included",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// Remote file store metrics
	FilesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_files_uploaded_total",
			Help: "Total number of files uploaded to the remote store",
		},
	)

	FilesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_files_deleted_total",
			Help: "Total number of remote files deleted during finalization",
		},
	)
)
