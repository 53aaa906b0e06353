package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskminder_reminder_sweeps_total",
			Help: "Total number of reminder sweeps by outcome",
		},
		[]string{"status"},
	)

	remindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskminder_reminders_total",
			Help: "Total number of reminder dispatch attempts by outcome",
		},
		[]string{"status"},
	)

	collectionErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskminder_reminder_collection_errors_total",
			Help: "Total number of collections whose reminded flags could not be saved",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskminder_reminder_sweep_duration_seconds",
			Help:    "Duration of reminder sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	lastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskminder_reminder_last_sweep_timestamp_seconds",
			Help: "Unix time of the last completed reminder sweep",
		},
	)
)
