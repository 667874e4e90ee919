package websocket

import (
	"encoding/json"
)

// MessageType names a stream message
type MessageType string

const (
	// MessageSyncInfo carries the sync progress of one iteration
	MessageSyncInfo MessageType = "syncInfo"

	MessagePing  MessageType = "ping"
	MessagePong  MessageType = "pong"
	MessageError MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error string `json:"error"`
}
