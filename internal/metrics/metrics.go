// Package metrics exposes Prometheus collectors for the voice agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	TokensTotal     *prometheus.CounterVec
	AudioBytesTotal *prometheus.CounterVec

	CredentialsTotal *prometheus.CounterVec
	KnowledgeStatus  *prometheus.GaugeVec
	WebhookEvents    *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mindcure"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_sessions_total",
				Help:      "Total number of live sessions by persona and identity",
			},
			[]string{"persona", "identity"},
		),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		TokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total tokens reported by the realtime model",
			},
			[]string{"direction"},
		),
		AudioBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_bytes_total",
				Help:      "Total PCM audio bytes relayed",
			},
			[]string{"direction"},
		),
		CredentialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credentials_resolved_total",
				Help:      "Credential resolutions by source",
			},
			[]string{"source"},
		),
		KnowledgeStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "knowledge_source_ready",
				Help:      "1 when the knowledge source initialized, 0 otherwise",
			},
			[]string{"source"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billing_webhook_events_total",
				Help:      "Billing webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.TokensTotal,
		m.AudioBytesTotal,
		m.CredentialsTotal,
		m.KnowledgeStatus,
		m.WebhookEvents,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTool records a tool call.
func (m *Metrics) ObserveTool(name string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "fallback"
	}
	m.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// SessionStarted records a new live session.
func (m *Metrics) SessionStarted(persona string, identified bool) {
	if m == nil {
		return
	}
	id := "anonymous"
	if identified {
		id = "identified"
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(persona, id).Inc()
}

// SessionEnded records the end of a live session.
func (m *Metrics) SessionEnded(duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(duration.Seconds())
	if inputTokens > 0 {
		m.TokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// Audio records relayed audio bytes; direction is "in" or "out".
func (m *Metrics) Audio(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// CredentialResolved records which credential source served a session.
func (m *Metrics) CredentialResolved(source string) {
	if m == nil {
		return
	}
	m.CredentialsTotal.WithLabelValues(source).Inc()
}

// KnowledgeReady records a knowledge source initialization outcome.
func (m *Metrics) KnowledgeReady(source string, ready bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ready {
		v = 1
	}
	m.KnowledgeStatus.WithLabelValues(source).Set(v)
}

// WebhookEvent records a processed billing event.
func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
