package events

import (
	"time"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// EventType represents the type of indexer event
type EventType string

const (
	// EventTypeSyncInfo is published after every completed sync iteration
	EventTypeSyncInfo EventType = "syncInfo"
)

// Event is the base interface for all bus events
type Event interface {
	// Type returns the event type
	Type() EventType

	// Timestamp returns when the event was created
	Timestamp() time.Time
}

// SyncInfoEvent carries the sync watermark of one iteration
type SyncInfoEvent struct {
	Info      model.SyncInfo
	CreatedAt time.Time
}

// Type implements Event interface
func (e *SyncInfoEvent) Type() EventType {
	return EventTypeSyncInfo
}

// Timestamp implements Event interface
func (e *SyncInfoEvent) Timestamp() time.Time {
	return e.CreatedAt
}

// NewSyncInfoEvent creates a sync info event stamped with the current time
func NewSyncInfoEvent(info model.SyncInfo) *SyncInfoEvent {
	return &SyncInfoEvent{
		Info:      info,
		CreatedAt: time.Now(),
	}
}

// message is the wire envelope shared by the external publishers
type message struct {
	Type      EventType      `json:"type"`
	NodeID    string         `json:"nodeId,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      model.SyncInfo `json:"data"`
}

func newMessage(nodeID string, info model.SyncInfo) message {
	return message{
		Type:      EventTypeSyncInfo,
		NodeID:    nodeID,
		Timestamp: time.Now().UnixMilli(),
		Data:      info,
	}
}
