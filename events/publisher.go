package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// Publisher announces sync progress after every completed iteration
type Publisher interface {
	PublishSyncInfo(ctx context.Context, info model.SyncInfo) error
}

// Sink is a named publisher inside a MultiPublisher
type Sink struct {
	Name      string
	Publisher Publisher
}

// MultiPublisher fans sync info out to every sink. A failing sink does not
// stop delivery to the others.
type MultiPublisher struct {
	sinks   []Sink
	metrics *Metrics
	logger  *zap.Logger
}

// NewMultiPublisher creates a fan-out publisher; metrics may be nil
func NewMultiPublisher(metrics *Metrics, logger *zap.Logger, sinks ...Sink) *MultiPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiPublisher{sinks: sinks, metrics: metrics, logger: logger}
}

// Add appends a sink
func (m *MultiPublisher) Add(name string, p Publisher) {
	m.sinks = append(m.sinks, Sink{Name: name, Publisher: p})
}

// Len returns the number of sinks
func (m *MultiPublisher) Len() int {
	return len(m.sinks)
}

// PublishSyncInfo implements Publisher. The returned error joins every
// sink failure.
func (m *MultiPublisher) PublishSyncInfo(ctx context.Context, info model.SyncInfo) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publisher.PublishSyncInfo(ctx, info); err != nil {
			m.logger.Warn("failed to publish sync info",
				zap.String("sink", sink.Name),
				zap.Uint64("block", info.SyncBlockNum),
				zap.Error(err))
			if m.metrics != nil {
				m.metrics.RecordPublishFailure(sink.Name)
			}
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
