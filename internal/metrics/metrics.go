// Package metrics exposes Prometheus collectors for turn processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed turns by terminal status.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archon_turns_total",
		Help: "Turns processed, labeled by terminal status.",
	}, []string{"status"})

	// TurnDuration observes end-to-end turn latency.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archon_turn_duration_seconds",
		Help:    "End-to-end turn latency.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// DecisionIterations observes how many decision iterations a turn used.
	DecisionIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archon_decision_iterations",
		Help:    "Decision loop iterations per turn.",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	// CapabilityInvocations counts capability calls by name and outcome.
	CapabilityInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archon_capability_invocations_total",
		Help: "Capability invocations, labeled by capability and outcome.",
	}, []string{"capability", "status"})

	// CapabilityDuration observes per-capability call latency.
	CapabilityDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archon_capability_duration_seconds",
		Help:    "Capability call latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"capability"})

	// ProviderTokens counts tokens spent per model and direction.
	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archon_provider_tokens_total",
		Help: "Tokens consumed, labeled by model and direction (input/output).",
	}, []string{"model", "direction"})

	// SchemaRepairs counts repair rule firings per rule name.
	SchemaRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archon_schema_repairs_total",
		Help: "Schema repair rule applications, labeled by rule.",
	}, []string{"rule"})
)
