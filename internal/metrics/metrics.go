// Package metrics holds the Prometheus collectors of the relauncher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relaunch"

// Launch outcomes recorded by Launches.
const (
	OutcomeAlreadyIsolated = "already_isolated"
	OutcomeRelaunched      = "relaunched"
	OutcomeFailed          = "failed"
	OutcomeEmbedded        = "embedded"
)

// Metrics groups the relauncher collectors.
type Metrics struct {
	Launches        *prometheus.CounterVec
	DrainScans      prometheus.Counter
	DrainJoins      prometheus.Counter
	DrainInterrupts prometheus.Counter
	AgentPaths      prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and most embedders want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Launches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Relaunch attempts by outcome.",
		}, []string{"outcome"}),
		DrainScans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_scans_total",
			Help:      "Thread group scans performed while draining.",
		}),
		DrainJoins: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_joins_total",
			Help:      "Non-daemon threads joined while draining.",
		}),
		DrainInterrupts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_interrupts_total",
			Help:      "Joins interrupted and retried while draining.",
		}),
		AgentPaths: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_paths",
			Help:      "Agent paths found on the last path resolution.",
		}),
	}
}
