// Package metrics exposes Prometheus collectors for the pipeline stages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes recorded on StageRunsTotal.
const (
	OutcomeDone      = "done"
	OutcomeSolo      = "solo"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

var (
	// StageRunsTotal counts finished jobs.
	// Labels: stage (transcription/diarization), outcome (done/solo/cancelled/error)
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binky_stage_runs_total",
			Help: "Total number of pipeline jobs finished by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// StageErrorsTotal counts failed jobs by error taxonomy.
	// Labels: stage, kind (network/io/decode/model/inference/panic/...)
	StageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binky_stage_errors_total",
			Help: "Total number of pipeline job failures by stage and error kind",
		},
		[]string{"stage", "kind"},
	)

	// StageDuration tracks wall time per job, including download and decode.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "binky_stage_duration_seconds",
			Help:    "Pipeline job duration in seconds by stage",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
		[]string{"stage"},
	)

	// DownloadBytesTotal counts bytes written by the acquisition step.
	DownloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binky_download_bytes_total",
			Help: "Total bytes downloaded by stage",
		},
		[]string{"stage"},
	)

	// InferenceWindowsTotal counts transcription windows processed.
	InferenceWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binky_inference_windows_total",
			Help: "Total number of transcription windows processed",
		},
	)

	// QueueLength reports pending jobs per stage, excluding the active one.
	QueueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "binky_queue_length",
			Help: "Pending jobs per stage",
		},
		[]string{"stage"},
	)

	// ActiveJobs is 1 while a stage is processing a job.
	ActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "binky_active_jobs",
			Help: "Jobs currently running per stage (0 or 1)",
		},
		[]string{"stage"},
	)

	// InferenceSlotsInUse reports held inference semaphore slots.
	InferenceSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "binky_inference_slots_in_use",
			Help: "Inference slots currently held across stages",
		},
	)
)

// RecordOutcome records a finished job and its duration.
func RecordOutcome(stage, outcome string, elapsed time.Duration) {
	StageRunsTotal.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordError records a failed job's error kind.
func RecordError(stage, kind string) {
	StageErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// RecordDownload adds downloaded bytes for a stage.
func RecordDownload(stage string, bytes int64) {
	if bytes > 0 {
		DownloadBytesTotal.WithLabelValues(stage).Add(float64(bytes))
	}
}

// RecordWindow counts one transcription window.
func RecordWindow() {
	InferenceWindowsTotal.Inc()
}

// SetQueue publishes a stage's queue snapshot.
func SetQueue(stage string, pending int, active bool) {
	QueueLength.WithLabelValues(stage).Set(float64(pending))
	if active {
		ActiveJobs.WithLabelValues(stage).Set(1)
	} else {
		ActiveJobs.WithLabelValues(stage).Set(0)
	}
}
