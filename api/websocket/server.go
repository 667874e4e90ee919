// Package websocket streams sync progress to browser clients.
package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/events"
	"github.com/0xmhha/predict-indexer/internal/constants"
)

// Config holds stream settings
type Config struct {
	// KeepAlive sends a ping every PingInterval
	KeepAlive    bool
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins restricts the Origin header; empty or "*" allows any
	AllowedOrigins []string
}

// DefaultConfig returns the default stream configuration
func DefaultConfig() Config {
	return Config{
		PingInterval: constants.DefaultWSPingInterval,
		PongTimeout:  constants.DefaultWSPongTimeout,
		WriteTimeout: constants.DefaultWSWriteTimeout,
	}
}

// Server handles WebSocket connections
type Server struct {
	bus      *events.EventBus
	hub      *Hub
	config   Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new WebSocket server fed by bus
func NewServer(bus *events.EventBus, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	s := &Server{
		bus:    bus,
		hub:    NewHub(logger),
		config: config,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  constants.DefaultWSReadBufferSize,
		WriteBufferSize: constants.DefaultWSWriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and starts streaming. New clients get the
// latest sync info right away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "stream not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(s.hub, s.bus, conn, s.config, s.logger)
	client.sub = s.bus.Subscribe(client.id, []events.EventType{events.EventTypeSyncInfo}, constants.DefaultEventBufferSize)
	if client.sub == nil || !s.hub.register(client) {
		client.close()
		return
	}

	if info, ok := s.bus.LatestSyncInfo(); ok {
		client.sendSyncInfo(info)
	}

	go client.writePump()
	go client.readPump()
	go client.eventLoop()

	s.logger.Info("new websocket connection",
		zap.String("client", string(client.id)),
		zap.String("remote_addr", r.RemoteAddr))
}

// Hub returns the client registry
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop disconnects every client
func (s *Server) Stop() {
	s.hub.Stop()
}
