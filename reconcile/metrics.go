package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the reconciler's Prometheus metrics
type Metrics struct {
	// Outcomes counts reconciled transactions by type and outcome
	Outcomes *prometheus.CounterVec

	// FollowUps counts submitted follow-up transactions by type
	FollowUps *prometheus.CounterVec

	// Errors counts transactions deferred to the next pass
	Errors prometheus.Counter

	PassDuration prometheus.Histogram
}

// NewMetrics creates the reconciler metrics. A nil registerer leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "reconcile",
			Name:      "transactions_total",
			Help:      "Pending transactions reconciled, by type and outcome",
		}, []string{"type", "outcome"}),
		FollowUps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "reconcile",
			Name:      "follow_ups_total",
			Help:      "Follow-up transactions submitted, by type",
		}, []string{"type"}),
		Errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "reconcile",
			Name:      "errors_total",
			Help:      "Transactions whose reconciliation was deferred",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "indexer",
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one reconciliation pass",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
