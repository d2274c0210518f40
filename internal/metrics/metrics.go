package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total messages appended to partitions",
		},
		[]string{"message_type"},
	)

	PolicyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_policy_rejections_total",
			Help: "Total writes rejected by room policy",
		},
		[]string{"reason"}, // "slow_mode", "daily_cap", "banned", "validation"
	)

	PartitionsProvisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_partitions_provisioned_total",
			Help: "Total partition files created",
		},
	)

	// Streaming metrics
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_streams",
			Help: "Currently open streaming connections",
		},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_sent_total",
			Help: "Total push-stream frames written",
		},
		[]string{"event"},
	)

	StreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_errors_total",
			Help: "Total streaming-loop errors reported to clients",
		},
	)
)
