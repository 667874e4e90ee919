package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/events"
	"github.com/0xmhha/predict-indexer/internal/model"
)

const (
	maxMessageSize = 4096
	sendBufferSize = 16
)

// Client is one stream connection. It owns a bus subscription for the
// lifetime of the connection.
type Client struct {
	id     events.SubscriptionID
	hub    *Hub
	bus    *events.EventBus
	sub    *events.Subscription
	conn   *websocket.Conn
	config Config
	logger *zap.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, bus *events.EventBus, conn *websocket.Conn, config Config, logger *zap.Logger) *Client {
	id := events.NewSubscriptionID()
	return &Client{
		id:     id,
		hub:    hub,
		bus:    bus,
		conn:   conn,
		config: config,
		logger: logger.With(zap.String("client", string(id))),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// close tears the connection down once
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.sub != nil {
			c.bus.Unsubscribe(c.id)
		}
		c.hub.unregister(c)
		_ = c.conn.Close()
	})
}

// enqueue queues a frame. A client that cannot keep up is disconnected.
func (c *Client) enqueue(msgType MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to marshal payload", zap.Error(err))
		return
	}
	frame, err := json.Marshal(Message{Type: msgType, Payload: data})
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn("client buffer full, closing connection")
		go c.close()
	}
}

func (c *Client) sendSyncInfo(info model.SyncInfo) {
	c.enqueue(MessageSyncInfo, info)
}

// readPump handles client frames until the connection fails
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(MessageError, ErrorMessage{Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case MessagePing:
			c.enqueue(MessagePong, struct{}{})
		default:
			c.enqueue(MessageError, ErrorMessage{Error: "unknown message type " + string(msg.Type)})
		}
	}
}

// writePump writes queued frames and keep-alive pings
func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.config.KeepAlive {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.close()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventLoop forwards bus events until the client or the bus goes away
func (c *Client) eventLoop() {
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.sub.Channel:
			if !ok {
				return
			}
			if e, ok := event.(*events.SyncInfoEvent); ok {
				c.sendSyncInfo(e.Info)
			}
		}
	}
}
