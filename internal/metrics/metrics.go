// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts terminal outcomes by operation.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeshare",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by operation and terminal outcome",
	}, []string{"operation", "outcome"})

	// PipelineDuration observes end-to-end run latency, lock wait included.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bikeshare",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Pipeline run duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	// LockWait observes time spent acquiring the global lock.
	LockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bikeshare",
		Subsystem: "pipeline",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the global pipeline lock",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
	})

	// BatchWrites counts write descriptors by table and result.
	BatchWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeshare",
		Subsystem: "batch",
		Name:      "writes_total",
		Help:      "Committed write descriptors by table and result",
	}, []string{"table", "result"})

	// BatchFallbacks counts tables that fell back to per-row writes.
	BatchFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeshare",
		Subsystem: "batch",
		Name:      "fallbacks_total",
		Help:      "Batch write failures that fell back to per-row writes",
	}, []string{"table"})

	// SettingsReloads counts settings loads by result.
	SettingsReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeshare",
		Subsystem: "settings",
		Name:      "reloads_total",
		Help:      "Settings snapshot loads by result",
	}, []string{"result"})

	// NotificationsDispatched counts notification intents by channel and result.
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeshare",
		Subsystem: "notify",
		Name:      "intents_total",
		Help:      "Notification intents dispatched by channel and result",
	}, []string{"channel", "result"})
)
