package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidshield_jobs_processed_total",
		Help: "Total number of redaction jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidshield_job_processing_duration_seconds",
		Help:    "Duration of redaction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidshield_frames_sampled_total",
		Help: "Total number of frames sampled across all jobs",
	})

	RegionsMosaickedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidshield_regions_mosaicked_total",
		Help: "Total number of detection regions supplied for mosaic application",
	})

	ValidationChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidshield_validation_checks_total",
		Help: "Validation check outcomes, by stage and status",
	}, []string{"stage", "status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidshield_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidshield_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
