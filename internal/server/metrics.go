package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platescan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platescan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Job metrics
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platescan_jobs_total",
			Help: "Total number of detection jobs",
		},
		[]string{"kind", "status"}, // kind: image, video, unsupported
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platescan_job_duration_seconds",
			Help:    "Detection job duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	platesPerJob = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platescan_plates_detected",
			Help:    "Number of plates recognized per job",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"kind"},
	)

	framesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platescan_video_frames_total",
			Help: "Total number of video frames written",
		},
	)

	frameErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platescan_video_frame_errors_total",
			Help: "Video frames written unannotated after a detection failure",
		},
	)

	ocrFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platescan_ocr_failures_total",
			Help: "Plates whose text could not be recognized",
		},
	)

	tempCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platescan_temp_cleanup_failures_total",
			Help: "Temp files that could not be removed after a job",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platescan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024, 200 * 1024 * 1024},
		},
		[]string{"kind"},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platescan_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platescan_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
