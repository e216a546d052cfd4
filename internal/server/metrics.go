package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pocrop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pocrop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Corner detection metrics
	cornerDetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pocrop_corner_detection_duration_seconds",
			Help:    "Harris and rectangle detection duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	cornerDetectionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pocrop_corner_detection_failures_total",
			Help: "Total number of failed corner detections",
		},
		[]string{"reason"}, // reason: insufficient_corners, too_many_corners, timeout, error
	)

	// Correction metrics
	warpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pocrop_warp_duration_seconds",
			Help:    "Perspective correction duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	filterOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pocrop_filter_operations_total",
			Help: "Total number of image filter operations",
		},
		[]string{"filter", "status"},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pocrop_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pocrop_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pocrop_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pocrop_active_sessions",
			Help: "Number of open interactive editing sessions",
		},
	)
)
