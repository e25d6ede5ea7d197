package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scripta_contributions_total",
			Help: "Contribution submissions by outcome (accepted or error kind).",
		},
		[]string{"result"},
	)

	ScreeningSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scripta_screening_skipped_total",
			Help: "Submissions accepted without content screening under the fail-open policy.",
		},
		[]string{"reason"},
	)

	GhostwriterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scripta_ghostwriter_runs_total",
			Help: "Ghostwriter runs by outcome.",
		},
		[]string{"status"},
	)

	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scripta_oracle_requests_total",
			Help: "Requests to the text oracle.",
		},
		[]string{"provider", "status"},
	)

	OracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scripta_oracle_request_duration_seconds",
			Help:    "Text oracle request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scripta_tasks_total",
			Help: "Scheduled lifecycle task executions.",
		},
		[]string{"type", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scripta_task_duration_seconds",
			Help:    "Scheduled lifecycle task durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)
