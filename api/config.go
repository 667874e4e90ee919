package api

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/0xmhha/predict-indexer/internal/constants"
)

// Config holds API server configuration
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// EnableCORS adds CORS headers for AllowedOrigins
	EnableCORS     bool
	AllowedOrigins []string

	MaxHeaderBytes int

	EnableGraphQL bool

	// EnableWebSocket serves the sync progress stream
	EnableWebSocket bool

	// EnableWebSocketKeepAlive pings stream clients every ping interval
	EnableWebSocketKeepAlive bool

	GraphQLPath    string
	PlaygroundPath string
	WebSocketPath  string
	MetricsPath    string

	ShutdownTimeout time.Duration

	// EnableRateLimit limits requests per client IP
	EnableRateLimit    bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:               constants.DefaultAPIHost,
		Port:               constants.DefaultAPIPort,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		IdleTimeout:        constants.DefaultIdleTimeout,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		MaxHeaderBytes:     constants.DefaultMaxHeaderBytes,
		EnableGraphQL:      true,
		EnableWebSocket:    true,
		GraphQLPath:        constants.DefaultGraphQLPath,
		PlaygroundPath:     constants.DefaultPlaygroundPath,
		WebSocketPath:      constants.DefaultWebSocketPath,
		MetricsPath:        constants.DefaultMetricsPath,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
		RateLimitPerSecond: constants.DefaultRateLimitPerSecond,
		RateLimitBurst:     constants.DefaultRateLimitBurst,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("max header bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if !c.EnableGraphQL && !c.EnableWebSocket {
		return errors.New("at least one of GraphQL or WebSocket must be enabled")
	}
	if c.EnableRateLimit && (c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("rate limit and burst must be positive")
	}
	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
