package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// KafkaConfig configures the Kafka publisher
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	NodeID       string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool

	// RequiredAcks is one of "none", "one" or "all"; empty means "one"
	RequiredAcks string
}

// Validate checks the configuration
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if _, err := parseRequiredAcks(c.RequiredAcks); err != nil {
		return err
	}
	return nil
}

func parseRequiredAcks(s string) (kafka.RequiredAcks, error) {
	switch s {
	case "", "one":
		return kafka.RequireOne, nil
	case "all":
		return kafka.RequireAll, nil
	case "none":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("invalid kafka required acks %q", s)
}

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes sync info messages to a Kafka topic
type KafkaPublisher struct {
	writer messageWriter
	nodeID string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka-go writer
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acks, _ := parseRequiredAcks(cfg.RequiredAcks)

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		RequiredAcks: acks,
		Async:        cfg.Async,
	}
	return newKafkaPublisher(w, cfg.NodeID, logger), nil
}

func newKafkaPublisher(w messageWriter, nodeID string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, nodeID: nodeID, logger: logger}
}

// PublishSyncInfo implements Publisher. Messages are keyed by node id so one
// node's progress stays ordered within a partition.
func (p *KafkaPublisher) PublishSyncInfo(ctx context.Context, info model.SyncInfo) error {
	msg := newMessage(p.nodeID, info)
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sync info: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.nodeID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Type)},
			{Key: "node_id", Value: []byte(p.nodeID)},
			{Key: "timestamp", Value: []byte(strconv.FormatInt(msg.Timestamp, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
