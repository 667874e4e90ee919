package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/internal/model"
)

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(ctx, RedisConfig{Addr: mr.Addr(), ChannelPrefix: "predict", NodeID: "node-1"}, nil)
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, "predict:syncInfo", pub.Channel())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, pub.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	info := model.NewSyncInfo(120, 1700000000, 240)
	require.NoError(t, pub.PublishSyncInfo(ctx, info))

	select {
	case msg := <-sub.Channel():
		var got message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventTypeSyncInfo, got.Type)
		assert.Equal(t, "node-1", got.NodeID)
		assert.Equal(t, info, got.Data)
		assert.Equal(t, 50, got.Data.SyncPercent)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for redis message")
	}
}

func TestRedisPublisherDefaultsChannelPrefix(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher(context.Background(), RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, "indexer:syncInfo", pub.Channel())
}

func TestRedisPublisherConnectionErrors(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), RedisConfig{}, nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = NewRedisPublisher(ctx, RedisConfig{Addr: addr, DialTimeout: 100 * time.Millisecond}, nil)
	assert.Error(t, err)
}
