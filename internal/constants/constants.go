package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8989

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 100

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 200

	// DefaultPageLimit is the page size of list queries without a limit
	DefaultPageLimit = 100

	// MaxPageLimit caps the page size of list queries
	MaxPageLimit = 1000
)

// API Paths
const (
	DefaultGraphQLPath    = "/graphql"
	DefaultWebSocketPath  = "/ws"
	DefaultMetricsPath    = "/metrics"
	DefaultHealthPath     = "/health"
	DefaultPlaygroundPath = "/playground"
)

// Sync Constants
const (
	// DefaultWorkers bounds in-flight ingestion and winnings calls
	DefaultWorkers = 15

	// MinWorkers is the minimum number of workers
	MinWorkers = 1

	// MaxWorkers is the maximum number of workers
	MaxWorkers = 256

	// DefaultBatchSize is the number of blocks synced per iteration
	DefaultBatchSize = 500

	// DefaultSyncDelay is the pause between iterations once caught up
	DefaultSyncDelay = 5 * time.Second

	// FailedBetCheckInterval is the block interval of the failed bet check
	FailedBetCheckInterval = 1200
)

// Gas Constants
const (
	// DefaultGasLimit is used for every submitted transaction without a
	// specific limit
	DefaultGasLimit = 250000

	// CreateEventGasLimit covers deploying a new event contract
	CreateEventGasLimit = 3500000

	// VoteOverThresholdGasLimit covers a vote that reaches the consensus
	// threshold and starts the next round
	VoteOverThresholdGasLimit = 1500000
)

// Storage Constants
const (
	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 64 // MB
)

// Names Constants
const (
	// DefaultNamesTimeout bounds one name service request
	DefaultNamesTimeout = 5 * time.Second

	// DefaultNamesRatePerSecond limits requests to the name service
	DefaultNamesRatePerSecond = 10

	// DefaultNamesCacheTTL keeps resolved names before asking again
	DefaultNamesCacheTTL = 10 * time.Minute
)

// WebSocket Constants
const (
	// DefaultWSReadBufferSize is the default WebSocket read buffer size
	DefaultWSReadBufferSize = 1024

	// DefaultWSWriteBufferSize is the default WebSocket write buffer size
	DefaultWSWriteBufferSize = 1024

	// DefaultWSPingInterval is the default WebSocket ping interval
	DefaultWSPingInterval = 30 * time.Second

	// DefaultWSPongTimeout is the default WebSocket pong timeout
	DefaultWSPongTimeout = 60 * time.Second

	// DefaultWSWriteTimeout is the default WebSocket write timeout
	DefaultWSWriteTimeout = 10 * time.Second
)

// Publisher Constants
const (
	// DefaultEventBufferSize is the default event buffer size
	DefaultEventBufferSize = 100

	// DefaultRedisPoolSize is the connection pool size of the Redis publisher
	DefaultRedisPoolSize = 10

	// DefaultKafkaBatchSize is the producer batch size
	DefaultKafkaBatchSize = 100

	// DefaultKafkaBatchTimeout flushes partial producer batches
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
)

// RPC Constants
const (
	// DefaultRPCTimeout bounds the initial node dial
	DefaultRPCTimeout = 30 * time.Second
)
