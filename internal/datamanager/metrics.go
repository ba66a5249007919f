package datamanager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the data manager collectors.
type Metrics struct {
	// OperationsTotal counts store calls. Labels: store, op, status.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration measures store calls. Labels: store, op.
	OperationDuration *prometheus.HistogramVec
	// RepeatPassesTotal counts saves that needed the reference repeat pass.
	RepeatPassesTotal prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fetchplan",
			Subsystem: "datamanager",
			Name:      "operations_total",
			Help:      "Store operations by store, operation and status.",
		}, []string{"store", "op", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fetchplan",
			Subsystem: "datamanager",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"store", "op"}),
		RepeatPassesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fetchplan",
			Subsystem: "datamanager",
			Name:      "repeat_passes_total",
			Help:      "Saves that wrote cross-store references in a repeat pass.",
		}),
	}
}

func (m *Metrics) observe(store, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.OperationsTotal.WithLabelValues(store, op, status).Inc()
	m.OperationDuration.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}
