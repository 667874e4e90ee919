package events

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the EventBus and publishers
type Metrics struct {
	SubscribersTotal   prometheus.Gauge
	PublishChannelSize prometheus.Gauge

	EventsPublishedTotal *prometheus.CounterVec
	EventsDeliveredTotal *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	SubscriptionsTotal   prometheus.Counter
	UnsubscriptionsTotal prometheus.Counter

	// PublishFailuresTotal counts failed sync info publications per sink
	PublishFailuresTotal *prometheus.CounterVec

	BroadcastDuration prometheus.Histogram
}

// NewMetrics creates the event metrics on reg. A nil registerer leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const (
		namespace = "indexer"
		subsystem = "eventbus"
	)
	factory := promauto.With(reg)

	return &Metrics{
		SubscribersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_total",
			Help:      "Current number of active subscribers",
		}),
		PublishChannelSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publish_channel_size",
			Help:      "Current size of the publish channel buffer",
		}),
		EventsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Total number of events published",
		}, []string{"event_type"}),
		EventsDeliveredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_delivered_total",
			Help:      "Total number of events delivered to subscribers",
		}, []string{"event_type"}),
		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to full channels",
		}, []string{"event_type"}),
		SubscriptionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_total",
			Help:      "Total number of subscription requests",
		}),
		UnsubscriptionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unsubscriptions_total",
			Help:      "Total number of unsubscription requests",
		}),
		PublishFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publish_failures_total",
			Help:      "Failed sync info publications by sink",
		}, []string{"sink"}),
		BroadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broadcast_duration_seconds",
			Help:      "Event broadcast duration in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
}

// ObserveBroadcast records the time taken to broadcast an event to all subscribers
func (m *Metrics) ObserveBroadcast(duration time.Duration) {
	m.BroadcastDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordEventPublished(eventType EventType) {
	m.EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
}

func (m *Metrics) RecordEventDelivered(eventType EventType) {
	m.EventsDeliveredTotal.WithLabelValues(string(eventType)).Inc()
}

func (m *Metrics) RecordEventDropped(eventType EventType) {
	m.EventsDroppedTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordPublishFailure counts a failed publication to the named sink
func (m *Metrics) RecordPublishFailure(sink string) {
	m.PublishFailuresTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) UpdateSubscriberCount(count int) {
	m.SubscribersTotal.Set(float64(count))
}

func (m *Metrics) UpdatePublishChannelSize(size int) {
	m.PublishChannelSize.Set(float64(size))
}

func (m *Metrics) RecordSubscription() {
	m.SubscriptionsTotal.Inc()
}

func (m *Metrics) RecordUnsubscription() {
	m.UnsubscriptionsTotal.Inc()
}
