// Package api serves the indexed markets over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/api/graphql"
	apimiddleware "github.com/0xmhha/predict-indexer/api/middleware"
	"github.com/0xmhha/predict-indexer/api/websocket"
	"github.com/0xmhha/predict-indexer/events"
	"github.com/0xmhha/predict-indexer/internal/constants"
)

// Version is reported by the /version endpoint
const Version = "1.0.0"

// Deps holds what the server reads from. Store is required, the rest
// are optional.
type Deps struct {
	Store   graphql.Store
	Bus     *events.EventBus
	Head    graphql.HeadReader
	Names   graphql.NameResolver
	Pending graphql.PendingService

	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	deps     Deps
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server
	limiter  *apimiddleware.RateLimiter

	cleanupCtx context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		logger: logger,
		deps:   deps,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.limiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)
		s.cleanupCtx, s.cancel = context.WithCancel(context.Background())
		s.router.Use(apimiddleware.RateLimit(s.limiter, s.logger))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.cors)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		for _, allowed := range s.config.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Upgrade, Connection")
				w.Header().Set("Access-Control-Max-Age", "300")
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() error {
	if s.config.EnableWebSocket {
		wsConfig := websocket.DefaultConfig()
		wsConfig.KeepAlive = s.config.EnableWebSocketKeepAlive
		if s.config.EnableCORS {
			wsConfig.AllowedOrigins = s.config.AllowedOrigins
		}
		s.wsServer = websocket.NewServer(s.deps.Bus, wsConfig, s.logger.Named("websocket"))
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
		s.logger.Info("sync stream enabled", zap.String("path", s.config.WebSocketPath))
	}

	s.router.Get(constants.DefaultHealthPath, s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/subscribers", s.handleSubscribers)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle(s.config.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if s.config.EnableGraphQL {
		deps := graphql.Deps{
			Store:   s.deps.Store,
			Head:    s.deps.Head,
			Names:   s.deps.Names,
			Pending: s.deps.Pending,
			Logger:  s.logger.Named("graphql"),
		}
		// a nil bus must stay a nil interface
		if s.deps.Bus != nil {
			deps.Sync = s.deps.Bus
		}
		handler, err := graphql.NewHandler(deps)
		if err != nil {
			return fmt.Errorf("failed to create GraphQL handler: %w", err)
		}
		s.router.Handle(s.config.GraphQLPath, handler)
		s.router.Handle(s.config.PlaygroundPath, handler)
		s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))
	}

	return nil
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	EventBus  *EventBusHealthInfo `json:"eventbus,omitempty"`
}

// EventBusHealthInfo contains EventBus health information
type EventBusHealthInfo struct {
	Subscribers     int    `json:"subscribers"`
	TotalEvents     uint64 `json:"total_events"`
	TotalDeliveries uint64 `json:"total_deliveries"`
	DroppedEvents   uint64 `json:"dropped_events"`
	StreamClients   int    `json:"stream_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if bus := s.deps.Bus; bus != nil {
		totalEvents, totalDeliveries, droppedEvents := bus.Stats()
		response.EventBus = &EventBusHealthInfo{
			Subscribers:     bus.SubscriberCount(),
			TotalEvents:     totalEvents,
			TotalDeliveries: totalDeliveries,
			DroppedEvents:   droppedEvents,
		}
		if s.wsServer != nil {
			response.EventBus.StreamClients = s.wsServer.Hub().ClientCount()
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version, "name": "predict-indexer"})
}

// SubscribersResponse represents the subscribers list response
type SubscribersResponse struct {
	TotalCount  int                     `json:"total_count"`
	Subscribers []events.SubscriberInfo `json:"subscribers"`
}

func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event bus not configured"})
		return
	}

	subscribers := s.deps.Bus.GetAllSubscriberInfo()
	writeJSON(w, http.StatusOK, SubscribersResponse{
		TotalCount:  len(subscribers),
		Subscribers: subscribers,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("graphql", s.config.EnableGraphQL),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if s.limiter != nil {
		go s.limiter.RunCleanup(s.cleanupCtx)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.wsServer != nil {
		s.wsServer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Router returns the underlying chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}
