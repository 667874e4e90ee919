package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/internal/model"
)

type recordingPublisher struct {
	got []model.SyncInfo
}

func (r *recordingPublisher) PublishSyncInfo(_ context.Context, info model.SyncInfo) error {
	r.got = append(r.got, info)
	return nil
}

type failingPublisher struct {
	err error
}

func (f failingPublisher) PublishSyncInfo(context.Context, model.SyncInfo) error {
	return f.err
}

func TestMultiPublisher(t *testing.T) {
	first, second := &recordingPublisher{}, &recordingPublisher{}
	down := errors.New("broker down")

	m := NewMultiPublisher(nil, nil, Sink{Name: "first", Publisher: first})
	m.Add("broken", failingPublisher{down})
	m.Add("second", second)
	assert.Equal(t, 3, m.Len())

	info := model.NewSyncInfo(10, 100, 20)
	err := m.PublishSyncInfo(context.Background(), info)

	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []model.SyncInfo{info}, first.got)
	assert.Equal(t, []model.SyncInfo{info}, second.got)
}

func TestMultiPublisherEmpty(t *testing.T) {
	assert.NoError(t, NewMultiPublisher(nil, nil).PublishSyncInfo(context.Background(), model.SyncInfo{}))
}
