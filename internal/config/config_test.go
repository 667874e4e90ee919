package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/constants"
)

const factory = "0x00000000000000000000000000000000000000f1"

func validConfig() *Config {
	cfg := NewConfig()
	cfg.RPC.Endpoint = "http://localhost:8545"
	cfg.Database.Path = "/tmp/predict-indexer"
	cfg.Contracts.Versions = []contracts.VersionRange{{Number: 3, StartBlock: 1}}
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, constants.DefaultBatchSize, cfg.Sync.BatchSize)
	assert.Equal(t, constants.DefaultWorkers, cfg.Sync.Workers)
	assert.Equal(t, uint64(constants.FailedBetCheckInterval), cfg.Sync.FailedBetCheckInterval)
	assert.Equal(t, constants.DefaultAPIPort, cfg.API.Port)
	assert.True(t, cfg.API.EnableGraphQL)
	assert.True(t, cfg.API.EnableWebSocket)
	assert.Equal(t, []string{"*"}, cfg.API.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "missing endpoint", mutate: func(c *Config) { c.RPC.Endpoint = "" }, wantErr: "RPC endpoint"},
		{name: "missing db", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database path"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log level"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log format"},
		{name: "zero batch", mutate: func(c *Config) { c.Sync.BatchSize = 0 }, wantErr: "batch size"},
		{name: "too many workers", mutate: func(c *Config) { c.Sync.Workers = constants.MaxWorkers + 1 }, wantErr: "workers"},
		{name: "bad factory", mutate: func(c *Config) { c.Contracts.Factory = "factory" }, wantErr: "factory"},
		{name: "no versions", mutate: func(c *Config) { c.Contracts.Versions = nil }, wantErr: "contract version"},
		{name: "overlapping versions", mutate: func(c *Config) {
			c.Contracts.Versions = []contracts.VersionRange{{Number: 0, StartBlock: 1, EndBlock: 100}, {Number: 3, StartBlock: 50}}
		}, wantErr: "overlaps"},
		{name: "sender without contracts", mutate: func(c *Config) { c.Sender.PrivateKey = "0x01" }, wantErr: "sender requires"},
		{name: "bad gas price", mutate: func(c *Config) { c.Sender.GasPrice = "cheap" }, wantErr: "gas price"},
		{name: "api without surfaces", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.EnableGraphQL = false
			c.API.EnableWebSocket = false
		}, wantErr: "neither"},
		{name: "redis without addr", mutate: func(c *Config) { c.Publisher.Redis.Enabled = true }, wantErr: "redis"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Publisher.Kafka.Enabled = true }, wantErr: "brokers"},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Publisher.Kafka.Enabled = true
			c.Publisher.Kafka.Brokers = []string{"localhost:9092"}
		}, wantErr: "topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGasPriceWei(t *testing.T) {
	price, err := SenderConfig{}.GasPriceWei()
	require.NoError(t, err)
	assert.Nil(t, price)

	price, err = SenderConfig{GasPrice: "1000000000"}.GasPriceWei()
	require.NoError(t, err)
	assert.Equal(t, "1000000000", price.String())

	_, err = SenderConfig{GasPrice: "-1"}.GasPriceWei()
	assert.Error(t, err)
}

func TestParseVersions(t *testing.T) {
	versions, err := ParseVersions("0:1-999, 3:1000-")
	require.NoError(t, err)
	assert.Equal(t, []contracts.VersionRange{
		{Number: 0, StartBlock: 1, EndBlock: 999},
		{Number: 3, StartBlock: 1000},
	}, versions)

	for _, bad := range []string{"3", "3:100", "x:1-2", "3:a-", "3:1-b"} {
		_, err := ParseVersions(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
rpc:
  endpoint: http://node:8545
  timeout: 10s
database:
  path: /data/indexer
sync:
  deploy_block: 1000
  batch_size: 250
contracts:
  factory: `+factory+`
  versions:
    - number: 0
      start_block: 1000
      end_block: 1999
    - number: 3
      start_block: 2000
api:
  enabled: true
  websocket: false
publisher:
  kafka:
    enabled: true
    brokers: [kafka:9092]
    topic: sync-info
`)

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "http://node:8545", cfg.RPC.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, uint64(1000), cfg.Sync.DeployBlock)
	assert.Equal(t, 250, cfg.Sync.BatchSize)
	assert.Equal(t, constants.DefaultWorkers, cfg.Sync.Workers)
	assert.Equal(t, factory, cfg.Contracts.Factory)
	require.Len(t, cfg.Contracts.Versions, 2)
	assert.Equal(t, uint64(2000), cfg.Contracts.Versions[1].StartBlock)
	assert.True(t, cfg.API.Enabled)
	assert.True(t, cfg.API.EnableGraphQL)
	assert.False(t, cfg.API.EnableWebSocket)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Publisher.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, cfg.LoadFromFile(writeFile(t, "rpc: [unclosed")))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INDEXER_RPC_ENDPOINT", "ws://env:8546")
	t.Setenv("INDEXER_DB_PATH", "/env/db")
	t.Setenv("INDEXER_WORKERS", "8")
	t.Setenv("INDEXER_DEPLOY_BLOCK", "4242")
	t.Setenv("INDEXER_SYNC_DELAY", "2s")
	t.Setenv("INDEXER_API_ENABLED", "true")
	t.Setenv("INDEXER_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("INDEXER_CONTRACT_VERSIONS", "3:1-")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "ws://env:8546", cfg.RPC.Endpoint)
	assert.Equal(t, "/env/db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, uint64(4242), cfg.Sync.DeployBlock)
	assert.Equal(t, 2*time.Second, cfg.Sync.Delay)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Publisher.Kafka.Brokers)
	assert.Equal(t, []contracts.VersionRange{{Number: 3, StartBlock: 1}}, cfg.Contracts.Versions)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"INDEXER_RPC_TIMEOUT":       "soon",
		"INDEXER_DB_READONLY":       "maybe",
		"INDEXER_WORKERS":           "many",
		"INDEXER_DEPLOY_BLOCK":      "-1",
		"INDEXER_API_PORT":          "http",
		"INDEXER_CONTRACT_VERSIONS": "3",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			err := NewConfig().LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	path := writeFile(t, `
rpc:
  endpoint: http://file:8545
database:
  path: /file/db
log:
  level: debug
contracts:
  versions:
    - number: 3
      start_block: 1
`)
	t.Setenv("INDEXER_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file:8545", cfg.RPC.Endpoint)
	assert.Equal(t, "warn", cfg.Log.Level, "env overrides file")
	assert.Equal(t, constants.DefaultBatchSize, cfg.Sync.BatchSize, "defaults fill the rest")
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeFile(t, "log:\n  level: debug\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
