package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artgen_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artgen_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Queue metrics
	QueueWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "artgen_queue_waiting",
			Help: "Number of queued generation messages waiting for a worker",
		},
	)

	QueueActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "artgen_queue_active",
			Help: "Number of generation messages currently held by workers",
		},
	)

	QueueCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artgen_queue_completed_total",
			Help: "Total number of queue messages processed successfully",
		},
	)

	QueueFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artgen_queue_failed_total",
			Help: "Total number of queue messages that exhausted their retries",
		},
	)

	QueueRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artgen_queue_retries_total",
			Help: "Total number of queue message retry attempts",
		},
	)

	// Generation metrics
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artgen_generations_total",
			Help: "Pipeline run outcomes by resulting status",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artgen_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// Provider metrics
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artgen_provider_tokens_total",
			Help: "LLM tokens consumed by kind (prompt, completion)",
		},
		[]string{"kind"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artgen_provider_requests_total",
			Help: "Outbound provider HTTP calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(QueueWaiting)
	prometheus.MustRegister(QueueActive)
	prometheus.MustRegister(QueueCompletedTotal)
	prometheus.MustRegister(QueueFailedTotal)
	prometheus.MustRegister(QueueRetriesTotal)
	prometheus.MustRegister(GenerationsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(ProviderTokensTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
