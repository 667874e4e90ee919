// Package config loads indexer configuration from YAML, the environment and
// flags.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/constants"
)

// Config holds all configuration for the indexer
type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Sync      SyncConfig      `yaml:"sync"`
	Contracts ContractsConfig `yaml:"contracts"`
	Sender    SenderConfig    `yaml:"sender"`
	Names     NamesConfig     `yaml:"names"`
	API       APIConfig       `yaml:"api"`
	Publisher PublisherConfig `yaml:"publisher"`
}

// RPCConfig holds RPC client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
	CacheMB  int    `yaml:"cache_mb"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SyncConfig holds sync loop settings
type SyncConfig struct {
	DeployBlock uint64        `yaml:"deploy_block"`
	BatchSize   int           `yaml:"batch_size"`
	Workers     int           `yaml:"workers"`
	Delay       time.Duration `yaml:"delay"`

	// FailedBetCheckInterval is the failed-bet check period in blocks
	FailedBetCheckInterval uint64 `yaml:"failed_bet_check_interval"`
}

// ContractsConfig names the deployed contracts and their version table
type ContractsConfig struct {
	Factory        string                   `yaml:"factory"`
	Token          string                   `yaml:"token"`
	AddressManager string                   `yaml:"address_manager"`
	Versions       []contracts.VersionRange `yaml:"versions"`
}

// SenderConfig holds the key used for follow-up transactions. Without a key
// follow-ups stay pending.
type SenderConfig struct {
	PrivateKey string `yaml:"private_key,omitempty"`

	// GasPrice in wei overrides the node suggestion; empty uses the node
	GasPrice string `yaml:"gas_price"`
}

// NamesConfig configures the display name service
type NamesConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableGraphQL      bool     `yaml:"graphql"`
	EnableWebSocket    bool     `yaml:"websocket"`
	WebSocketKeepAlive bool     `yaml:"websocket_keepalive"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableRateLimit    bool     `yaml:"rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// PublisherConfig selects where sync progress is published. The in-process
// bus is always on.
type PublisherConfig struct {
	NodeID     string               `yaml:"node_id"`
	BufferSize int                  `yaml:"buffer_size"`
	Redis      RedisPublisherConfig `yaml:"redis"`
	Kafka      KafkaPublisherConfig `yaml:"kafka"`
}

// RedisPublisherConfig configures Redis pub/sub publishing
type RedisPublisherConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password,omitempty"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"pool_size"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ChannelPrefix string        `yaml:"channel_prefix"`
}

// KafkaPublisherConfig configures Kafka publishing
type KafkaPublisherConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	RequiredAcks string        `yaml:"required_acks"`
	Async        bool          `yaml:"async"`
}

// NewConfig creates a configuration with defaults applied. Both API surfaces
// start enabled so a file can switch either off.
func NewConfig() *Config {
	cfg := &Config{API: APIConfig{EnableGraphQL: true, EnableWebSocket: true}}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero values with defaults
func (c *Config) SetDefaults() {
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.Database.CacheMB == 0 {
		c.Database.CacheMB = constants.DefaultCacheSize
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = constants.DefaultBatchSize
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = constants.DefaultWorkers
	}
	if c.Sync.Delay == 0 {
		c.Sync.Delay = constants.DefaultSyncDelay
	}
	if c.Sync.FailedBetCheckInterval == 0 {
		c.Sync.FailedBetCheckInterval = constants.FailedBetCheckInterval
	}

	if c.Names.Timeout == 0 {
		c.Names.Timeout = constants.DefaultNamesTimeout
	}
	if c.Names.RatePerSecond == 0 {
		c.Names.RatePerSecond = constants.DefaultNamesRatePerSecond
	}
	if c.Names.CacheTTL == 0 {
		c.Names.CacheTTL = constants.DefaultNamesCacheTTL
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	if c.Publisher.BufferSize == 0 {
		c.Publisher.BufferSize = constants.DefaultEventBufferSize
	}
	if c.Publisher.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Publisher.NodeID = host
		}
	}
	if c.Publisher.Redis.PoolSize == 0 {
		c.Publisher.Redis.PoolSize = constants.DefaultRedisPoolSize
	}
	if c.Publisher.Kafka.BatchSize == 0 {
		c.Publisher.Kafka.BatchSize = constants.DefaultKafkaBatchSize
	}
	if c.Publisher.Kafka.BatchTimeout == 0 {
		c.Publisher.Kafka.BatchTimeout = constants.DefaultKafkaBatchTimeout
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overrides configuration with INDEXER_* environment variables
func (c *Config) LoadFromEnv() error {
	envString("INDEXER_RPC_ENDPOINT", &c.RPC.Endpoint)
	envString("INDEXER_DB_PATH", &c.Database.Path)
	envString("INDEXER_LOG_LEVEL", &c.Log.Level)
	envString("INDEXER_LOG_FORMAT", &c.Log.Format)
	envString("INDEXER_FACTORY_ADDRESS", &c.Contracts.Factory)
	envString("INDEXER_TOKEN_ADDRESS", &c.Contracts.Token)
	envString("INDEXER_ADDRESS_MANAGER", &c.Contracts.AddressManager)
	envString("INDEXER_SENDER_KEY", &c.Sender.PrivateKey)
	envString("INDEXER_SENDER_GAS_PRICE", &c.Sender.GasPrice)
	envString("INDEXER_NAMES_URL", &c.Names.BaseURL)
	envString("INDEXER_NAMES_API_KEY", &c.Names.APIKey)
	envString("INDEXER_API_HOST", &c.API.Host)
	envString("INDEXER_NODE_ID", &c.Publisher.NodeID)
	envString("INDEXER_REDIS_ADDR", &c.Publisher.Redis.Addr)
	envString("INDEXER_REDIS_PASSWORD", &c.Publisher.Redis.Password)
	envString("INDEXER_KAFKA_TOPIC", &c.Publisher.Kafka.Topic)

	if v := os.Getenv("INDEXER_KAFKA_BROKERS"); v != "" {
		c.Publisher.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("INDEXER_API_ALLOWED_ORIGINS"); v != "" {
		c.API.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("INDEXER_CONTRACT_VERSIONS"); v != "" {
		versions, err := ParseVersions(v)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_CONTRACT_VERSIONS: %w", err)
		}
		c.Contracts.Versions = versions
	}

	steps := []func() error{
		func() error { return envDuration("INDEXER_RPC_TIMEOUT", &c.RPC.Timeout) },
		func() error { return envBool("INDEXER_DB_READONLY", &c.Database.ReadOnly) },
		func() error { return envUint("INDEXER_DEPLOY_BLOCK", &c.Sync.DeployBlock) },
		func() error { return envInt("INDEXER_BATCH_SIZE", &c.Sync.BatchSize) },
		func() error { return envInt("INDEXER_WORKERS", &c.Sync.Workers) },
		func() error { return envDuration("INDEXER_SYNC_DELAY", &c.Sync.Delay) },
		func() error { return envBool("INDEXER_API_ENABLED", &c.API.Enabled) },
		func() error { return envInt("INDEXER_API_PORT", &c.API.Port) },
		func() error { return envBool("INDEXER_API_GRAPHQL", &c.API.EnableGraphQL) },
		func() error { return envBool("INDEXER_API_WEBSOCKET", &c.API.EnableWebSocket) },
		func() error { return envBool("INDEXER_API_RATE_LIMIT", &c.API.EnableRateLimit) },
		func() error { return envBool("INDEXER_REDIS_ENABLED", &c.Publisher.Redis.Enabled) },
		func() error { return envInt("INDEXER_REDIS_DB", &c.Publisher.Redis.DB) },
		func() error { return envBool("INDEXER_KAFKA_ENABLED", &c.Publisher.Kafka.Enabled) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Sync.Workers < constants.MinWorkers || c.Sync.Workers > constants.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d", constants.MinWorkers, constants.MaxWorkers)
	}

	for name, addr := range map[string]string{
		"factory":         c.Contracts.Factory,
		"token":           c.Contracts.Token,
		"address_manager": c.Contracts.AddressManager,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	if len(c.Contracts.Versions) == 0 {
		return fmt.Errorf("at least one contract version is required")
	}
	if _, err := contracts.NewResolver(c.Contracts.Versions); err != nil {
		return err
	}

	if c.Sender.PrivateKey != "" {
		if c.Contracts.Factory == "" || c.Contracts.Token == "" {
			return fmt.Errorf("sender requires factory and token addresses")
		}
	}
	if _, err := c.Sender.GasPriceWei(); err != nil {
		return err
	}

	if c.API.Enabled && !c.API.EnableGraphQL && !c.API.EnableWebSocket {
		return fmt.Errorf("API enabled but neither graphql nor websocket is on")
	}

	if c.Publisher.BufferSize <= 0 {
		return fmt.Errorf("publisher buffer size must be positive")
	}
	if c.Publisher.Redis.Enabled && c.Publisher.Redis.Addr == "" {
		return fmt.Errorf("redis publisher enabled but no address configured")
	}
	if c.Publisher.Kafka.Enabled {
		if len(c.Publisher.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka publisher enabled but no brokers configured")
		}
		if c.Publisher.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	return nil
}

// GasPriceWei parses the configured gas price; nil means ask the node
func (s SenderConfig) GasPriceWei() (*big.Int, error) {
	if s.GasPrice == "" {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(s.GasPrice, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid sender gas price %q", s.GasPrice)
	}
	return price, nil
}

// ParseVersions parses a version table such as "0:1-999,3:1000-". An empty
// end block leaves the range open.
func ParseVersions(s string) ([]contracts.VersionRange, error) {
	var out []contracts.VersionRange
	for _, part := range splitList(s) {
		number, span, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("version %q: expected number:start-end", part)
		}
		start, end, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("version %q: expected number:start-end", part)
		}

		n, err := strconv.ParseUint(number, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("version %q: %w", part, err)
		}
		r := contracts.VersionRange{Number: uint16(n)}
		if r.StartBlock, err = strconv.ParseUint(start, 10, 64); err != nil {
			return nil, fmt.Errorf("version %q: %w", part, err)
		}
		if end != "" {
			if r.EndBlock, err = strconv.ParseUint(end, 10, 64); err != nil {
				return nil, fmt.Errorf("version %q: %w", part, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Load reads configuration in order: defaults, file (if given), environment,
// then validates.
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint(key string, dst *uint64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
