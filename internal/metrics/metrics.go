package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ModeSend   = "send"
	ModeStream = "stream"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_requests_total",
			Help: "Total number of provider requests",
		},
		[]string{"provider", "model", "mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatgw_request_duration_seconds",
			Help:    "Request duration in seconds, until the last fragment for streams",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "mode"},
	)

	TimeToFirstFragment = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatgw_time_to_first_fragment_seconds",
			Help:    "Delay between opening a stream and its first fragment",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_tokens_total",
			Help: "Total number of tokens processed",
		},
		[]string{"provider", "model", "type", "estimated"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_cost_usd_total",
			Help: "Total estimated cost in USD",
		},
		[]string{"provider", "model"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_provider_errors_total",
			Help: "Total number of provider errors by category",
		},
		[]string{"provider", "error_type"},
	)

	ActiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatgw_active_streams",
			Help: "Number of streams currently open",
		},
		[]string{"provider"},
	)

	StreamFragments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_stream_fragments_total",
			Help: "Total number of fragments delivered to callers",
		},
		[]string{"provider"},
	)
)

func RecordRequest(provider, model, mode, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(provider, model, mode, status).Inc()
	RequestDuration.WithLabelValues(provider, model, mode).Observe(durationSec)
}

func RecordTokens(provider, model string, inputTokens, outputTokens int, estimated bool) {
	est := "false"
	if estimated {
		est = "true"
	}
	TokensTotal.WithLabelValues(provider, model, "input", est).Add(float64(inputTokens))
	TokensTotal.WithLabelValues(provider, model, "output", est).Add(float64(outputTokens))
}

func RecordCost(provider, model string, costUSD float64) {
	CostTotal.WithLabelValues(provider, model).Add(costUSD)
}

func RecordProviderError(provider, errorType string) {
	ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

func RecordFirstFragment(provider string, delaySec float64) {
	TimeToFirstFragment.WithLabelValues(provider).Observe(delaySec)
}

func RecordFragment(provider string) {
	StreamFragments.WithLabelValues(provider).Inc()
}

func IncrementActiveStreams(provider string) {
	ActiveStreams.WithLabelValues(provider).Inc()
}

func DecrementActiveStreams(provider string) {
	ActiveStreams.WithLabelValues(provider).Dec()
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
