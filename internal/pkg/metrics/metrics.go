// Package metrics holds the Prometheus collectors shared across the
// projection engine and the provisioning orchestrator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "controlplane"

var (
	// ProjectionLag is the number of events a subscriber's latest poll
	// returned (at most one batch), a lower bound on its backlog.
	ProjectionLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "lag",
			Help:      "Events not yet applied by a projection subscriber.",
		},
		[]string{"subscriber"},
	)

	// ProjectionPoisonTotal counts events written to the poison table:
	// events that failed to decode, and events a subscriber could not
	// apply after exhausting its retry budget.
	ProjectionPoisonTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "poison_total",
			Help:      "Events written to the poison table instead of being applied.",
		},
		[]string{"subscriber"},
	)

	// OrchestratorStageDuration tracks how long each provisioning stage
	// takes to complete, labelled by stage.
	OrchestratorStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each provisioning stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// CircuitBreakerState reports the gobreaker state per tenant-vCenter
	// pair: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per tenant-vCenter pair (0=closed, 1=half-open, 2=open).",
		},
		[]string{"tenant_id"},
	)
)

func init() {
	prometheus.MustRegister(
		ProjectionLag,
		ProjectionPoisonTotal,
		OrchestratorStageDuration,
		CircuitBreakerState,
	)
}
