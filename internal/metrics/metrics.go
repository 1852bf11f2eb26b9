package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmood_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmood_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmood_messages_processed_total",
			Help: "Inbound messages by pipeline outcome",
		},
		[]string{"outcome"},
	)

	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmood_dedup_hits_total",
			Help: "Messages skipped because their id was already seen",
		},
	)

	InferenceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmood_inference_attempts_total",
			Help: "Inference endpoint attempts by result",
		},
		[]string{"result"}, // "ok", "transport", "http", "malformed", "other"
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatmood_inference_duration_seconds",
			Help:    "Inference endpoint latency per attempt",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatmood_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmood_store_latency_seconds",
			Help:    "Database operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"driver", "op"},
	)
)
