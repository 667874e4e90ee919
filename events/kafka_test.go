package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := newKafkaPublisher(w, "node-1", nil)

	info := model.NewSyncInfo(300, 1700000300, 300)
	require.NoError(t, pub.PublishSyncInfo(context.Background(), info))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("node-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "syncInfo", headers["event_type"])
	assert.Equal(t, "node-1", headers["node_id"])
	assert.NotEmpty(t, headers["timestamp"])

	var got message
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, info, got.Data)
	assert.Equal(t, 100, got.Data.SyncPercent)

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWriteError(t *testing.T) {
	pub := newKafkaPublisher(&fakeWriter{err: errors.New("leader not available")}, "", nil)
	err := pub.PublishSyncInfo(context.Background(), model.SyncInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestKafkaConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{"valid", KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "sync"}, false},
		{"acks all", KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "sync", RequiredAcks: "all"}, false},
		{"no brokers", KafkaConfig{Topic: "sync"}, true},
		{"no topic", KafkaConfig{Brokers: []string{"localhost:9092"}}, true},
		{"bad acks", KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "sync", RequiredAcks: "two"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	pub, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "sync", NodeID: "n"}, nil)
	require.NoError(t, err)

	w, ok := pub.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "sync", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, 1, w.BatchSize)

	_, err = NewKafkaPublisher(KafkaConfig{}, nil)
	assert.Error(t, err)
}
