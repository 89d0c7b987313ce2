package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the assistant.
//
// Collectors are registered on a dedicated registry so several instances can
// coexist in one process (tests build one per case).
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.ToolInvocations.WithLabelValues("web_search", "success").Inc()
type Metrics struct {
	registry *prometheus.Registry

	// OracleRequests counts language model calls.
	// Labels: provider, status (success|error)
	OracleRequests *prometheus.CounterVec

	// OracleDuration measures language model latency in seconds.
	// Labels: provider
	OracleDuration *prometheus.HistogramVec

	// Classifications counts classifier outcomes.
	// Labels: intent (chat|tool|refine|cancel|ambiguous)
	Classifications *prometheus.CounterVec

	// ToolInvocations counts tool calls.
	// Labels: tool, outcome (success|error|auth_required|timeout)
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures tool latency in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ActionTransitions counts action status changes.
	// Labels: status
	ActionTransitions *prometheus.CounterVec

	// OracleMalformed counts oracle replies that could not be parsed.
	// Labels: component (classifier|evaluator|normalizer)
	OracleMalformed *prometheus.CounterVec

	// Messages counts chat messages by channel and direction.
	// Labels: channel, direction (inbound|outbound)
	Messages *prometheus.CounterVec

	// DuplicatesSuppressed counts inbound messages dropped as duplicates.
	DuplicatesSuppressed prometheus.Counter
}

// NewMetrics creates and registers all collectors on reg. A nil reg gets a
// fresh registry that also carries the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OracleRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_oracle_requests_total",
				Help: "Total number of language model requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		OracleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mira_oracle_request_duration_seconds",
				Help:    "Duration of language model requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_classifications_total",
				Help: "Total number of classified messages by intent",
			},
			[]string{"intent"},
		),

		ToolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_tool_invocations_total",
				Help: "Total number of tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),

		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mira_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		ActionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_action_transitions_total",
				Help: "Total number of action status transitions by target status",
			},
			[]string{"status"},
		),

		OracleMalformed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_oracle_malformed_total",
				Help: "Total number of unparseable oracle replies by component",
			},
			[]string{"component"},
		),

		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_messages_total",
				Help: "Total number of messages by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		DuplicatesSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mira_duplicates_suppressed_total",
				Help: "Total number of inbound messages dropped as duplicates",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Nop returns metrics registered on a throwaway registry. Components use it
// when no metrics were configured.
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
