package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the sync loop's Prometheus metrics
type Metrics struct {
	// Iterations counts sync iterations by result (synced, idle, failed)
	Iterations *prometheus.CounterVec

	IterationDuration prometheus.Histogram

	// SyncedBlock is the latest checkpointed block
	SyncedBlock prometheus.Gauge

	ChainHead prometheus.Gauge

	// Logs counts ingested logs by kind and result (inserted, duplicate)
	Logs *prometheus.CounterVec

	// FailedBets counts pending bets marked FAIL by the failed-bet check
	FailedBets prometheus.Counter
}

// NewMetrics creates the sync metrics on reg. A nil registerer leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "iterations_total",
			Help:      "Sync iterations by result",
		}, []string{"result"}),
		IterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "iteration_duration_seconds",
			Help:      "Duration of one sync iteration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SyncedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "synced_block",
			Help:      "Latest checkpointed block",
		}),
		ChainHead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "chain_head",
			Help:      "Latest block reported by the node",
		}),
		Logs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "logs_total",
			Help:      "Ingested logs by kind and result",
		}, []string{"kind", "result"}),
		FailedBets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "indexer",
			Subsystem: "sync",
			Name:      "failed_bets_total",
			Help:      "Pending bets marked failed from their receipts",
		}),
	}
}
