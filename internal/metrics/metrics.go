// Package metrics exposes Prometheus counters for the verification
// worker's core pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the worker's Prometheus collectors on a dedicated
// registry, kept free of the default Go runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsSubmitted prometheus.Counter
	ReadingsFlagged   prometheus.Counter
	VotesCast         prometheus.Counter
	VotesRejected     *prometheus.CounterVec
	ConsensusDecided  *prometheus.CounterVec
	ReputationUpdates prometheus.Counter
}

// New creates the worker's metrics set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ReadingsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "readings_submitted_total",
			Help:      "Meter readings accepted into the verification pipeline.",
		}),
		ReadingsFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "readings_flagged_total",
			Help:      "Readings flagged for review by the plausibility filter.",
		}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "votes_cast_total",
			Help:      "Verification votes successfully recorded.",
		}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "votes_rejected_total",
			Help:      "Vote submissions rejected before any mutation.",
		}, []string{"reason"}),
		ConsensusDecided: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "consensus_decisions_total",
			Help:      "Readings finalized by the consensus engine.",
		}, []string{"status"}),
		ReputationUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "verify",
			Name:      "reputation_adjustments_total",
			Help:      "Per-voter reputation adjustments applied.",
		}),
	}
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
