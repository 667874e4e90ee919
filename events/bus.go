package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// ErrBusUnavailable is returned when the bus is stopped or its publish buffer is full
var ErrBusUnavailable = errors.New("event bus unavailable")

// SubscriptionID is a unique identifier for a subscription
type SubscriptionID string

// NewSubscriptionID returns a random subscription id
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.NewString())
}

// SubscriptionStats tracks statistics for a subscription
type SubscriptionStats struct {
	EventsReceived atomic.Uint64
	EventsDropped  atomic.Uint64

	// LastEventTime is a Unix timestamp in nanoseconds
	LastEventTime atomic.Int64

	CreatedAt time.Time
}

// Subscription represents a client subscription to events
type Subscription struct {
	ID SubscriptionID

	// EventTypes is the set of event types this subscription is interested in
	EventTypes map[EventType]bool

	// Channel is where events are delivered to the subscriber
	Channel chan Event

	CancelFunc context.CancelFunc
	Stats      SubscriptionStats
}

// EventBus is the in-process broker for indexer events
type EventBus struct {
	subscribers map[SubscriptionID]*Subscription
	mu          sync.RWMutex

	publishCh     chan Event
	subscribeCh   chan *Subscription
	unsubscribeCh chan SubscriptionID
	done          chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	stats struct {
		totalEvents     atomic.Uint64
		totalDeliveries atomic.Uint64
		droppedEvents   atomic.Uint64
	}

	// latest keeps the most recent sync info for late subscribers
	latest atomic.Pointer[model.SyncInfo]

	metrics *Metrics
}

// NewEventBus creates a new EventBus with the given buffer sizes
func NewEventBus(publishBufferSize, subscribeBufferSize int) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventBus{
		subscribers:   make(map[SubscriptionID]*Subscription),
		publishCh:     make(chan Event, publishBufferSize),
		subscribeCh:   make(chan *Subscription, subscribeBufferSize),
		unsubscribeCh: make(chan SubscriptionID, subscribeBufferSize),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetMetrics enables Prometheus metrics for the EventBus
func (eb *EventBus) SetMetrics(metrics *Metrics) {
	eb.metrics = metrics
}

// Run starts the event bus main loop. It should be called in a goroutine.
func (eb *EventBus) Run() {
	defer close(eb.done)

	for {
		select {
		case <-eb.ctx.Done():
			eb.closeAllSubscriptions()
			return

		case sub := <-eb.subscribeCh:
			eb.mu.Lock()
			eb.subscribers[sub.ID] = sub
			eb.mu.Unlock()

			if eb.metrics != nil {
				eb.metrics.RecordSubscription()
				eb.updateSubscriberMetrics()
			}

		case subID := <-eb.unsubscribeCh:
			eb.mu.Lock()
			if sub, exists := eb.subscribers[subID]; exists {
				close(sub.Channel)
				delete(eb.subscribers, subID)
			}
			eb.mu.Unlock()

			if eb.metrics != nil {
				eb.metrics.RecordUnsubscription()
				eb.updateSubscriberMetrics()
			}

		case event := <-eb.publishCh:
			eb.stats.totalEvents.Add(1)
			if eb.metrics != nil {
				eb.metrics.RecordEventPublished(event.Type())
			}
			eb.broadcastEvent(event)
		}
	}
}

// broadcastEvent sends an event to all interested subscribers. A full
// subscriber channel drops the event for that subscriber only.
func (eb *EventBus) broadcastEvent(event Event) {
	startTime := time.Now()
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	eventType := event.Type()

	for _, sub := range eb.subscribers {
		if !sub.EventTypes[eventType] {
			continue
		}

		select {
		case sub.Channel <- event:
			eb.stats.totalDeliveries.Add(1)
			sub.Stats.EventsReceived.Add(1)
			sub.Stats.LastEventTime.Store(time.Now().UnixNano())
			if eb.metrics != nil {
				eb.metrics.RecordEventDelivered(eventType)
			}
		default:
			eb.stats.droppedEvents.Add(1)
			sub.Stats.EventsDropped.Add(1)
			if eb.metrics != nil {
				eb.metrics.RecordEventDropped(eventType)
			}
		}
	}

	if eb.metrics != nil {
		eb.metrics.ObserveBroadcast(time.Since(startTime))
	}
}

func (eb *EventBus) closeAllSubscriptions() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, sub := range eb.subscribers {
		close(sub.Channel)
		if sub.CancelFunc != nil {
			sub.CancelFunc()
		}
	}

	eb.subscribers = make(map[SubscriptionID]*Subscription)
}

// Stop gracefully stops the event bus
func (eb *EventBus) Stop() {
	eb.cancel()
	<-eb.done
}

// SubscriberCount returns the current number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Stats returns the current statistics
func (eb *EventBus) Stats() (totalEvents, totalDeliveries, droppedEvents uint64) {
	return eb.stats.totalEvents.Load(),
		eb.stats.totalDeliveries.Load(),
		eb.stats.droppedEvents.Load()
}

// Publish publishes an event to all interested subscribers.
// It never blocks: false means the bus is stopped or its buffer is full.
func (eb *EventBus) Publish(event Event) bool {
	select {
	case <-eb.ctx.Done():
		return false
	default:
	}

	select {
	case eb.publishCh <- event:
		return true
	default:
		return false
	}
}

// PublishSyncInfo implements Publisher
func (eb *EventBus) PublishSyncInfo(_ context.Context, info model.SyncInfo) error {
	eb.latest.Store(&info)
	if !eb.Publish(NewSyncInfoEvent(info)) {
		return ErrBusUnavailable
	}
	return nil
}

// LatestSyncInfo returns the last published sync info, if any
func (eb *EventBus) LatestSyncInfo() (model.SyncInfo, bool) {
	info := eb.latest.Load()
	if info == nil {
		return model.SyncInfo{}, false
	}
	return *info, true
}

// Subscribe creates a new subscription for the given event types.
// It may return nil once the bus is stopped.
func (eb *EventBus) Subscribe(id SubscriptionID, eventTypes []EventType, channelSize int) *Subscription {
	eventTypeMap := make(map[EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		eventTypeMap[et] = true
	}

	ctx, cancel := context.WithCancel(eb.ctx)

	sub := &Subscription{
		ID:         id,
		EventTypes: eventTypeMap,
		Channel:    make(chan Event, channelSize),
		CancelFunc: cancel,
		Stats: SubscriptionStats{
			CreatedAt: time.Now(),
		},
	}

	select {
	case eb.subscribeCh <- sub:
		return sub
	case <-ctx.Done():
		close(sub.Channel)
		return nil
	}
}

// Unsubscribe removes a subscription
func (eb *EventBus) Unsubscribe(id SubscriptionID) {
	select {
	case eb.unsubscribeCh <- id:
	case <-eb.ctx.Done():
	}
}

// updateSubscriberMetrics must be called from within Run()
func (eb *EventBus) updateSubscriberMetrics() {
	if eb.metrics == nil {
		return
	}

	eb.mu.RLock()
	totalCount := len(eb.subscribers)
	eb.mu.RUnlock()

	eb.metrics.UpdateSubscriberCount(totalCount)
	eb.metrics.UpdatePublishChannelSize(len(eb.publishCh))
}

// SubscriberInfo contains information about a subscriber
type SubscriberInfo struct {
	ID             SubscriptionID
	EventTypes     []EventType
	EventsReceived uint64
	EventsDropped  uint64
	LastEventTime  time.Time
	CreatedAt      time.Time
}

// GetSubscriberInfo returns information about a specific subscriber
func (eb *EventBus) GetSubscriberInfo(id SubscriptionID) *SubscriberInfo {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	sub, exists := eb.subscribers[id]
	if !exists {
		return nil
	}
	return subscriberInfo(sub)
}

// GetAllSubscriberInfo returns information about every subscriber
func (eb *EventBus) GetAllSubscriberInfo() []SubscriberInfo {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	infos := make([]SubscriberInfo, 0, len(eb.subscribers))
	for _, sub := range eb.subscribers {
		infos = append(infos, *subscriberInfo(sub))
	}
	return infos
}

func subscriberInfo(sub *Subscription) *SubscriberInfo {
	eventTypes := make([]EventType, 0, len(sub.EventTypes))
	for et := range sub.EventTypes {
		eventTypes = append(eventTypes, et)
	}

	var lastEventTime time.Time
	if nano := sub.Stats.LastEventTime.Load(); nano > 0 {
		lastEventTime = time.Unix(0, nano)
	}

	return &SubscriberInfo{
		ID:             sub.ID,
		EventTypes:     eventTypes,
		EventsReceived: sub.Stats.EventsReceived.Load(),
		EventsDropped:  sub.Stats.EventsDropped.Load(),
		LastEventTime:  lastEventTime,
		CreatedAt:      sub.Stats.CreatedAt,
	}
}
