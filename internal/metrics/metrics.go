package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VideosProcessedTotal counts pipeline outcomes per result (success/failed/skipped).
	VideosProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcriber_videos_processed_total",
			Help: "Total number of videos handled by the pipeline, by result",
		},
		[]string{"result"},
	)

	// ProcessingDuration observes end-to-end per-video pipeline time in seconds.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcriber_processing_duration_seconds",
			Help:    "End-to-end processing duration per video in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// BatchRunsTotal counts completed batch runs.
	BatchRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcriber_batch_runs_total",
			Help: "Total number of completed batch runs",
		},
	)

	// TranscriptionTasksTotal counts remote ASR task outcomes
	// (submitted/succeeded/failed/timeout).
	TranscriptionTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcriber_transcription_tasks_total",
			Help: "Total number of remote transcription tasks, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordVideoProcessed records one pipeline outcome and its duration.
func RecordVideoProcessed(success bool, seconds float64) {
	result := "success"
	if !success {
		result = "failed"
	}
	VideosProcessedTotal.WithLabelValues(result).Inc()
	ProcessingDuration.Observe(seconds)
}

// RecordVideoSkipped records an idempotent skip of an already-completed video.
func RecordVideoSkipped() {
	VideosProcessedTotal.WithLabelValues("skipped").Inc()
}

// RecordBatchRun records a completed batch run.
func RecordBatchRun() {
	BatchRunsTotal.Inc()
}

// RecordTranscriptionTask records one remote ASR task outcome.
func RecordTranscriptionTask(outcome string) {
	TranscriptionTasksTotal.WithLabelValues(outcome).Inc()
}
