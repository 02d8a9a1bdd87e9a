package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	FilterActionTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	TranscriptErrors  prometheus.Counter
}

// NewMetrics creates the relay metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_request_total",
			Help: "Total number of relay calls by task, model, status and error code.",
		}, []string{"task", "model", "status", "code"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_ms",
			Help:    "Relay call duration in milliseconds, including upstream latency.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"task", "model"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tokens_total",
			Help: "Total tokens reported by the upstream.",
		}, []string{"model", "direction"}),

		FilterActionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_filter_action_total",
			Help: "Total filter actions taken.",
		}, []string{"filter", "action"}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),

		TranscriptErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_transcript_errors_total",
			Help: "Failures recording a relay exchange to the conversation store.",
		}),
	}
}

// RecordRequest records metrics for a finished relay call.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Task, labels.Model, labels.Status, labels.Code,
	).Inc()

	m.RequestDurationMs.WithLabelValues(
		labels.Task, labels.Model,
	).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
}

// RecordFilterAction records a filter action metric.
func (m *Metrics) RecordFilterAction(filter, action string) {
	m.FilterActionTotal.WithLabelValues(filter, action).Inc()
}

func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) RecordTranscriptError() {
	m.TranscriptErrors.Inc()
}

// RequestLabels holds the label values for recording a relay call. Code is
// empty on success.
type RequestLabels struct {
	Task             string
	Model            string
	Status           string
	Code             string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
}
