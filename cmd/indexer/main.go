package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/api"
	"github.com/0xmhha/predict-indexer/api/graphql"
	"github.com/0xmhha/predict-indexer/client"
	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/events"
	"github.com/0xmhha/predict-indexer/fetch"
	"github.com/0xmhha/predict-indexer/internal/config"
	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/logger"
	"github.com/0xmhha/predict-indexer/leaderboard"
	"github.com/0xmhha/predict-indexer/names"
	"github.com/0xmhha/predict-indexer/pending"
	"github.com/0xmhha/predict-indexer/reconcile"
	"github.com/0xmhha/predict-indexer/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flags override file and environment configuration when set
type flags struct {
	configFile  string
	showVersion bool
	rpcEndpoint string
	dbPath      string
	deployBlock uint64
	workers     int
	batchSize   int
	logLevel    string
	logFormat   string
	enableAPI   bool
	apiHost     string
	apiPort     int
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&f.showVersion, "version", false, "Show version information and exit")
	flag.StringVar(&f.rpcEndpoint, "rpc", "", "Ethereum RPC endpoint URL")
	flag.StringVar(&f.dbPath, "db", "", "Database path")
	flag.Uint64Var(&f.deployBlock, "deploy-block", 0, "First block to sync without a checkpoint")
	flag.IntVar(&f.workers, "workers", 0, "Number of concurrent workers")
	flag.IntVar(&f.batchSize, "batch-size", 0, "Number of blocks per iteration")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	flag.BoolVar(&f.enableAPI, "api", false, "Enable API server")
	flag.StringVar(&f.apiHost, "api-host", "", "API server host")
	flag.IntVar(&f.apiPort, "api-port", 0, "API server port")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	if f.showVersion {
		fmt.Printf("predict-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithConfig(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Format == "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(logger.WithLogger(ctx, log), cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("indexer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("indexer stopped")
}

// loadConfig reads .env, the config file and the environment, then applies
// flags and validates
func loadConfig(f *flags) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if f.configFile != "" {
		if err := cfg.LoadFromFile(f.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	applyFlags(cfg, f)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func applyFlags(cfg *config.Config, f *flags) {
	if f.rpcEndpoint != "" {
		cfg.RPC.Endpoint = f.rpcEndpoint
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.deployBlock > 0 {
		cfg.Sync.DeployBlock = f.deployBlock
	}
	if f.workers > 0 {
		cfg.Sync.Workers = f.workers
	}
	if f.batchSize > 0 {
		cfg.Sync.BatchSize = f.batchSize
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.enableAPI {
		cfg.API.Enabled = true
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort > 0 {
		cfg.API.Port = f.apiPort
	}
}

// run wires every component and blocks until ctx is cancelled or the sync
// loop fails
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.FromContext(ctx)
	log.Info("starting indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("db_path", cfg.Database.Path),
		zap.Uint64("deploy_block", cfg.Sync.DeployBlock),
		zap.Int("workers", cfg.Sync.Workers),
		zap.Int("batch_size", cfg.Sync.BatchSize),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ethClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer ethClient.Close()

	chainID, err := ethClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	log.Info("connected to chain", zap.String("chain_id", chainID.String()))

	storageConfig := storage.DefaultConfig(cfg.Database.Path)
	storageConfig.Cache = cfg.Database.CacheMB
	storageConfig.ReadOnly = cfg.Database.ReadOnly
	store, err := storage.NewPebbleStorage(storageConfig)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	store.SetLogger(logger.WithComponent(log, "storage"))
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", zap.Error(err))
		}
	}()

	versions, err := contracts.NewResolver(cfg.Contracts.Versions)
	if err != nil {
		return err
	}
	contract := client.NewEventContract(ethClient, logger.WithComponent(log, "contract"))

	// progress goes to the in-process bus and any configured brokers
	bus := events.NewEventBus(cfg.Publisher.BufferSize, constants.DefaultEventBufferSize)
	busMetrics := events.NewMetrics(registry)
	bus.SetMetrics(busMetrics)
	go bus.Run()
	defer bus.Stop()

	publisher := events.NewMultiPublisher(busMetrics, logger.WithComponent(log, "publisher"), events.Sink{Name: "bus", Publisher: bus})
	if cfg.Publisher.Redis.Enabled {
		redisPub, err := events.NewRedisPublisher(ctx, events.RedisConfig{
			Addr:          cfg.Publisher.Redis.Addr,
			Password:      cfg.Publisher.Redis.Password,
			DB:            cfg.Publisher.Redis.DB,
			PoolSize:      cfg.Publisher.Redis.PoolSize,
			DialTimeout:   cfg.Publisher.Redis.DialTimeout,
			ChannelPrefix: cfg.Publisher.Redis.ChannelPrefix,
			NodeID:        cfg.Publisher.NodeID,
		}, logger.WithComponent(log, "redis"))
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		defer func() { _ = redisPub.Close() }()
		publisher.Add("redis", redisPub)
	}
	if cfg.Publisher.Kafka.Enabled {
		kafkaPub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Publisher.Kafka.Brokers,
			Topic:        cfg.Publisher.Kafka.Topic,
			NodeID:       cfg.Publisher.NodeID,
			BatchSize:    cfg.Publisher.Kafka.BatchSize,
			BatchTimeout: cfg.Publisher.Kafka.BatchTimeout,
			Async:        cfg.Publisher.Kafka.Async,
			RequiredAcks: cfg.Publisher.Kafka.RequiredAcks,
		}, logger.WithComponent(log, "kafka"))
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer func() { _ = kafkaPub.Close() }()
		publisher.Add("kafka", kafkaPub)
	}

	pendingSvc := pending.NewService(store, logger.WithComponent(log, "pending"))

	var sender reconcile.Sender
	if cfg.Sender.PrivateKey != "" {
		gasPrice, err := cfg.Sender.GasPriceWei()
		if err != nil {
			return err
		}
		transactor, err := client.NewTransactor(ethClient, client.TransactorConfig{
			PrivateKey:     cfg.Sender.PrivateKey,
			ChainID:        chainID,
			TokenAddress:   common.HexToAddress(cfg.Contracts.Token),
			FactoryAddress: common.HexToAddress(cfg.Contracts.Factory),
			GasPrice:       gasPrice,
		}, logger.WithComponent(log, "transactor"))
		if err != nil {
			return fmt.Errorf("failed to create transactor: %w", err)
		}
		sender = transactor
		log.Info("follow-up transactions enabled", zap.String("from", transactor.From().Hex()))
	} else {
		log.Warn("no sender key configured, follow-up transactions stay pending")
	}

	reconciler := reconcile.NewReconciler(store, ethClient, sender, versions, pendingSvc, reconcile.Config{
		AddressManager: common.HexToAddress(cfg.Contracts.AddressManager),
		Workers:        cfg.Sync.Workers,
	}, reconcile.NewMetrics(registry), logger.WithComponent(log, "reconcile"))

	aggregator := leaderboard.NewAggregator(store, contract, versions, leaderboard.Config{
		Workers: cfg.Sync.Workers,
	}, logger.WithComponent(log, "leaderboard"))

	fetcherConfig := &fetch.Config{
		DeployBlock:            cfg.Sync.DeployBlock,
		BatchSize:              cfg.Sync.BatchSize,
		Workers:                cfg.Sync.Workers,
		SyncDelay:              cfg.Sync.Delay,
		FailedBetCheckInterval: cfg.Sync.FailedBetCheckInterval,
	}
	if cfg.Contracts.Factory != "" {
		fetcherConfig.FactoryAddress = common.HexToAddress(cfg.Contracts.Factory)
	}
	if err := fetcherConfig.Validate(); err != nil {
		return fmt.Errorf("invalid sync config: %w", err)
	}

	fetcher := fetch.NewFetcher(ethClient, store, versions, contract, fetcherConfig, fetch.NewMetrics(registry), logger.WithComponent(log, "fetch"))
	fetcher.SetReconciler(reconciler)
	fetcher.SetLeaderboard(aggregator)
	fetcher.SetPublisher(publisher)

	if cfg.API.Enabled {
		apiServer, err := newAPIServer(cfg, log, api.Deps{
			Store:    store,
			Bus:      bus,
			Head:     ethClient,
			Names:    newNames(cfg, log),
			Pending:  pendingSvc,
			Gatherer: registry,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
			}
		}()
		defer func() {
			if err := apiServer.Stop(context.Background()); err != nil {
				log.Error("failed to stop API server", zap.Error(err))
			}
		}()
	}

	return fetcher.Run(ctx)
}

func newAPIServer(cfg *config.Config, log *zap.Logger, deps api.Deps) (*api.Server, error) {
	apiConfig := api.DefaultConfig()
	apiConfig.Host = cfg.API.Host
	apiConfig.Port = cfg.API.Port
	apiConfig.AllowedOrigins = cfg.API.AllowedOrigins
	apiConfig.EnableGraphQL = cfg.API.EnableGraphQL
	apiConfig.EnableWebSocket = cfg.API.EnableWebSocket
	apiConfig.EnableWebSocketKeepAlive = cfg.API.WebSocketKeepAlive
	apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
	apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	apiConfig.RateLimitBurst = cfg.API.RateLimitBurst

	server, err := api.NewServer(apiConfig, logger.WithComponent(log, "api"), deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	return server, nil
}

// newNames returns nil when no name service is configured
func newNames(cfg *config.Config, log *zap.Logger) graphql.NameResolver {
	resolver := names.NewResolver(names.Config{
		BaseURL:       cfg.Names.BaseURL,
		APIKey:        cfg.Names.APIKey,
		Timeout:       cfg.Names.Timeout,
		RatePerSecond: cfg.Names.RatePerSecond,
		CacheTTL:      cfg.Names.CacheTTL,
	}, logger.WithComponent(log, "names"))
	if resolver == nil {
		return nil
	}
	return resolver
}
