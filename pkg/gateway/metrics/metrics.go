// Package metrics exposes the Prometheus instrumentation for interviewd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the interview gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	TurnsTotal       prometheus.Counter
	RepromptsTotal   prometheus.Counter
	NoSpeechTimeouts prometheus.Counter

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	// Transport metrics
	AudioBytesTotal *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with everything registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interviewd"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of interview sessions currently running",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total interview sessions by outcome",
		},
		[]string{"outcome"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Interview session duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800},
		},
	)

	turnsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total completed interview turns",
		},
	)

	repromptsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprompts_total",
			Help:      "Total spoken re-prompts after failed turns",
		},
	)

	noSpeechTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_speech_timeouts_total",
			Help:      "Total utterance windows that closed without speech",
		},
	)

	providerLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Upstream provider call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	providerErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total upstream provider errors",
		},
		[]string{"provider", "error_type"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes moved over the live transport",
		},
		[]string{"direction"},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		repromptsTotal,
		noSpeechTimeouts,
		providerLatency,
		providerErrors,
		audioBytesTotal,
		requestsTotal,
		requestDuration,
	)

	return &Metrics{
		registry:         registry,
		SessionsActive:   sessionsActive,
		SessionsTotal:    sessionsTotal,
		SessionDuration:  sessionDuration,
		TurnsTotal:       turnsTotal,
		RepromptsTotal:   repromptsTotal,
		NoSpeechTimeouts: noSpeechTimeouts,
		ProviderLatency:  providerLatency,
		ProviderErrors:   providerErrors,
		AudioBytesTotal:  audioBytesTotal,
		RequestsTotal:    requestsTotal,
		RequestDuration:  requestDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching a terminal state.
func (m *Metrics) RecordSessionEnd(outcome string, duration time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordTurn records one completed question/answer exchange.
func (m *Metrics) RecordTurn() {
	m.TurnsTotal.Inc()
}

// RecordReprompt records a spoken re-prompt.
func (m *Metrics) RecordReprompt() {
	m.RepromptsTotal.Inc()
}

// RecordNoSpeech records an utterance window closing with no speech.
func (m *Metrics) RecordNoSpeech() {
	m.NoSpeechTimeouts.Inc()
}

// RecordProviderCall records one upstream call.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	m.ProviderLatency.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderError records an upstream provider error.
func (m *Metrics) RecordProviderError(provider, errorType string) {
	m.ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordAudio records audio bytes on the live transport.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
