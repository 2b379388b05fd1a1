// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nemo_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nemo_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nemo_relay_invocations_total",
			Help: "Total relay invocations by outcome",
		},
		[]string{"outcome"}, // "streamed", "bad_request", "no_stream", "invoke_error", "stream_error"
	)

	RelayBytesForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nemo_relay_bytes_forwarded_total",
			Help: "Total bytes forwarded from the agent runtime to clients",
		},
	)

	RelayActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nemo_relay_active_streams",
			Help: "Streams currently being relayed",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nemo_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"path"},
	)
)

// Relay outcomes.
const (
	OutcomeStreamed    = "streamed"
	OutcomeBadRequest  = "bad_request"
	OutcomeNoStream    = "no_stream"
	OutcomeInvokeError = "invoke_error"
	OutcomeStreamError = "stream_error"
)
