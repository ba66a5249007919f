package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "fetchplan"

// Lookup outcomes.
const (
	outcomeHit         = "hit"
	outcomeSynthesized = "synthesized"
	outcomeNotFound    = "not_found"
	outcomeError       = "error"
)

// Metrics holds the repository collectors.
type Metrics struct {
	// LookupsTotal counts Get/Find calls. Labels: outcome.
	LookupsTotal *prometheus.CounterVec
	// DeploysTotal counts plans stored from definitions.
	DeploysTotal prometheus.Counter
	// OverwritesTotal counts plans replaced in place.
	OverwritesTotal prometheus.Counter
	// StoredPlans is the number of plans currently stored, defaults included.
	StoredPlans prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "lookups_total",
			Help:      "Fetch plan lookups by outcome.",
		}, []string{"outcome"}),
		DeploysTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "deploys_total",
			Help:      "Fetch plans stored from definition files.",
		}),
		OverwritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "overwrites_total",
			Help:      "Fetch plans replaced by an overwriting definition.",
		}),
		StoredPlans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "stored_plans",
			Help:      "Fetch plans currently stored.",
		}),
	}
}

func (m *Metrics) lookup(outcome string) {
	m.LookupsTotal.WithLabelValues(outcome).Inc()
}
