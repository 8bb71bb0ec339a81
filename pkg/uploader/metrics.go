package uploader

import (
	"github.com/vidlift/vidlift/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// UploadsTotal tracks terminal jobs by outcome
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "uploads_total",
		Help:      "Total number of uploads reaching a terminal state",
	}, []string{"status"}) // status: "completed", "failed", "cancelled"

	// UploadBytesTotal tracks bytes acknowledged by the remote
	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "upload_bytes_total",
		Help:      "Total bytes acknowledged by the remote API",
	})

	// UploadDuration tracks wall time from submission to terminal state
	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "upload_duration_seconds",
		Help:      "Time from job start to terminal state",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// ActiveUploads tracks currently running workers
	ActiveUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "active_uploads",
		Help:      "Number of upload workers currently running",
	})

	// BatchesCompletedTotal counts settled batches
	BatchesCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "batches_completed_total",
		Help:      "Total number of batches that fully settled",
	})

	// EventsDroppedTotal counts events dropped due to slow subscribers
	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidlift",
		Subsystem: "uploader",
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped due to slow subscribers",
	})
)

func init() {
	debug.Registry().MustRegister(
		UploadsTotal,
		UploadBytesTotal,
		UploadDuration,
		ActiveUploads,
		BatchesCompletedTotal,
		EventsDroppedTotal,
	)
}
