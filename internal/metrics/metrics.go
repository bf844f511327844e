// Package metrics exposes bot counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	proposals   *prometheus.CounterVec
	executions  *prometheus.CounterVec
	searches    *prometheus.CounterVec
	redactions  prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbot_events_total",
			Help: "Transport events handled, by kind and phase.",
		}, []string{"kind", "phase"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbot_llm_requests_total",
			Help: "LLM requests, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolbot_llm_request_duration_seconds",
			Help:    "LLM request latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"purpose"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbot_proposals_total",
			Help: "Proposal messages posted, by kind.",
		}, []string{"kind"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbot_executions_total",
			Help: "Approved proposals executed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbot_search_queries_total",
			Help: "Web search queries, by result status.",
		}, []string{"status"}),
		redactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolbot_redactions_total",
			Help: "Bot messages redacted after user edits.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.llmRequests, m.llmLatency, m.proposals,
		m.executions, m.searches, m.redactions,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Event(kind, phase string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, phase).Inc()
}

// LLMRequest records one engine call
func (m *Metrics) LLMRequest(purpose string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(purpose, outcome(err == nil)).Inc()
	m.llmLatency.WithLabelValues(purpose).Observe(d.Seconds())
}

func (m *Metrics) Proposal(kind string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(kind).Inc()
}

func (m *Metrics) Execution(kind string, ok bool) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *Metrics) SearchQuery(status string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status).Inc()
}

func (m *Metrics) Redactions(n int) {
	if m == nil {
		return
	}
	m.redactions.Add(float64(n))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
