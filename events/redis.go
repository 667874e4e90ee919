package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// DefaultRedisChannelPrefix prefixes the sync info channel name
const DefaultRedisChannelPrefix = "indexer"

// RedisConfig configures the Redis pub/sub publisher
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	ChannelPrefix string
	NodeID        string
}

// RedisPublisher publishes sync info as JSON on a Redis channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	nodeID  string
	logger  *zap.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection with PING
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultRedisChannelPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	p := &RedisPublisher{
		client:  client,
		channel: prefix + ":" + string(EventTypeSyncInfo),
		nodeID:  cfg.NodeID,
		logger:  logger,
	}
	logger.Info("redis publisher connected",
		zap.String("addr", cfg.Addr),
		zap.String("channel", p.channel))
	return p, nil
}

// Channel returns the channel sync info is published on
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// PublishSyncInfo implements Publisher
func (p *RedisPublisher) PublishSyncInfo(ctx context.Context, info model.SyncInfo) error {
	payload, err := json.Marshal(newMessage(p.nodeID, info))
	if err != nil {
		return fmt.Errorf("failed to encode sync info: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
