package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/abi"
	"github.com/0xmhha/predict-indexer/consensus"
	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/events"
	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/reconcile"
	"github.com/0xmhha/predict-indexer/storage"
)

// Client defines the ledger RPC calls the sync loop makes
type Client interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockTime(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Storage defines the storage operations of the sync loop
type Storage interface {
	IngestStore
	consensus.StatusStore

	InsertBlocks(ctx context.Context, blocks []model.Block) error
	LatestBlock(ctx context.Context) (*model.Block, error)
	FindEvents(ctx context.Context, filter storage.EventFilter) ([]*model.Event, error)
	FindBets(ctx context.Context, filter storage.BetFilter) ([]*model.Bet, error)
	FindResultSets(ctx context.Context, filter storage.ResultSetFilter) ([]*model.ResultSet, error)
	UpdateBetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
}

// VersionResolver maps blocks to contract versions
type VersionResolver interface {
	Resolve(block uint64) (*contracts.Version, error)
	ClampRange(start, end uint64) (uint64, error)
}

// Reconciler settles locally submitted transactions
type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Result, error)
}

// LeaderboardAggregator rolls up the events that entered WITHDRAWING
type LeaderboardAggregator interface {
	Aggregate(ctx context.Context, events []*model.Event) error
}

// Config holds fetcher configuration
type Config struct {
	// DeployBlock is the first block to sync when no checkpoint exists
	DeployBlock uint64

	// BatchSize is the maximum number of blocks per iteration
	BatchSize int

	// Workers bounds the concurrent per-log work of an iteration
	Workers int

	// SyncDelay is the pause between iterations once caught up, and after a
	// failed iteration
	SyncDelay time.Duration

	// FactoryAddress narrows creation logs to one factory when set
	FactoryAddress common.Address

	// FailedBetCheckInterval runs the failed-bet check whenever the range
	// contains a multiple of it; 0 disables the check
	FailedBetCheckInterval uint64
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		BatchSize:              constants.DefaultBatchSize,
		Workers:                constants.DefaultWorkers,
		SyncDelay:              constants.DefaultSyncDelay,
		FailedBetCheckInterval: constants.FailedBetCheckInterval,
	}
}

// Validate validates the fetcher configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Workers < constants.MinWorkers || c.Workers > constants.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d", constants.MinWorkers, constants.MaxWorkers)
	}
	if c.SyncDelay < 0 {
		return fmt.Errorf("sync delay cannot be negative")
	}
	return nil
}

// IterationResult describes one sync iteration
type IterationResult struct {
	StartBlock uint64
	EndBlock   uint64
	ChainHead  uint64

	// Synced is false when there was nothing to sync
	Synced bool

	// Withdrawing is the number of events that entered WITHDRAWING
	Withdrawing int
}

// Behind reports whether the chain head is still ahead of the synced range
func (r *IterationResult) Behind() bool {
	return r.Synced && r.EndBlock < r.ChainHead
}

// Fetcher runs the sync loop: it indexes contract logs range by range,
// checkpoints every block, derives statuses and publishes progress.
type Fetcher struct {
	client   Client
	storage  Storage
	versions VersionResolver
	ingestor *Ingestor
	status   *consensus.StatusDeriver
	config   *Config
	metrics  *Metrics
	logger   *zap.Logger

	reconciler  Reconciler
	leaderboard LeaderboardAggregator
	publisher   events.Publisher
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client Client, storage Storage, versions VersionResolver, contract EventReader, config *Config, metrics *Metrics, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if config.Workers <= 0 {
		config.Workers = constants.DefaultWorkers
	}
	return &Fetcher{
		client:   client,
		storage:  storage,
		versions: versions,
		ingestor: NewIngestor(storage, client, contract, metrics, logger),
		status:   consensus.NewStatusDeriver(storage, logger),
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetReconciler enables pending transaction reconciliation
func (f *Fetcher) SetReconciler(r Reconciler) {
	f.reconciler = r
}

// SetLeaderboard enables leaderboard aggregation
func (f *Fetcher) SetLeaderboard(l LeaderboardAggregator) {
	f.leaderboard = l
}

// SetPublisher enables sync progress publication
func (f *Fetcher) SetPublisher(p events.Publisher) {
	f.publisher = p
}

// NextBlock returns the first block the next iteration syncs
func (f *Fetcher) NextBlock(ctx context.Context) (uint64, error) {
	latest, err := f.storage.LatestBlock(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return f.config.DeployBlock, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	if latest.BlockNum+1 > f.config.DeployBlock {
		return latest.BlockNum + 1, nil
	}
	return f.config.DeployBlock, nil
}

// RunIteration runs one sync iteration. Nothing is checkpointed when the
// log stage fails; the next iteration retries the same range.
func (f *Fetcher) RunIteration(ctx context.Context) (*IterationResult, error) {
	head, err := f.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	f.metrics.ChainHead.Set(float64(head))

	start, err := f.NextBlock(ctx)
	if err != nil {
		return nil, err
	}
	res := &IterationResult{StartBlock: start, ChainHead: head}
	if start > head {
		return res, nil
	}

	end := start + uint64(f.config.BatchSize) - 1
	if end > head {
		end = head
	}
	if end, err = f.versions.ClampRange(start, end); err != nil {
		return nil, err
	}
	res.EndBlock = end

	version, err := f.versions.Resolve(start)
	if err != nil {
		return nil, err
	}
	dec := abi.NewDecoder(version)

	f.logger.Info("syncing range",
		zap.Uint64("start", start),
		zap.Uint64("end", end),
		zap.Uint64("head", head),
		zap.Uint16("version", version.Number))

	if f.reconciler != nil {
		if _, err := f.reconciler.Run(ctx); err != nil {
			return nil, err
		}
	}

	blocks, err := f.syncLogs(ctx, dec, start, end)
	if err != nil {
		return nil, err
	}

	if err := f.storage.InsertBlocks(ctx, blocks); err != nil {
		return nil, fmt.Errorf("failed to write checkpoints: %w", err)
	}
	res.Synced = true
	f.metrics.SyncedBlock.Set(float64(end))

	blockTime := blocks[len(blocks)-1].BlockTime
	withdrawing, err := f.status.Apply(ctx, blockTime)
	if err != nil {
		return nil, err
	}
	res.Withdrawing = len(withdrawing)

	if f.leaderboard != nil {
		f.aggregatePending(ctx)
	}

	if f.publisher != nil {
		info := model.NewSyncInfo(end, blockTime, head)
		if err := f.publisher.PublishSyncInfo(ctx, info); err != nil {
			f.logger.Warn("failed to publish sync info",
				zap.Uint64("block", end),
				zap.Error(err))
		}
	}

	return res, nil
}

// aggregatePending hands every WITHDRAWING event whose leaderboard is not yet
// settled to the aggregator, including events left over by a failed pass.
func (f *Fetcher) aggregatePending(ctx context.Context) {
	pending, err := f.storage.FindEvents(ctx, storage.EventFilter{
		TxStatus: model.TxStatusSuccess,
		Statuses: []model.EventStatus{model.StatusWithdrawing},
		Match:    func(ev *model.Event) bool { return !ev.LeaderboardDone },
	})
	if err != nil {
		f.logger.Error("failed to load events awaiting leaderboard", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	if err := f.leaderboard.Aggregate(ctx, pending); err != nil {
		f.logger.Error("failed to update leaderboard",
			zap.Int("events", len(pending)),
			zap.Error(err))
	}
}

// syncLogs runs the log tasks, the pending re-scans and the failed-bet check
// over one pool and collects the block times of the range. Every fan-out
// joins at the pool barrier.
func (f *Fetcher) syncLogs(ctx context.Context, dec *abi.Decoder, start, end uint64) ([]model.Block, error) {
	pool := NewPool(ctx, f.config.Workers)

	for _, kind := range abi.AllKinds {
		kind := kind
		pool.Task(func(ctx context.Context) error {
			return f.syncKind(ctx, pool, dec, kind, start, end)
		})
	}

	pool.Task(func(ctx context.Context) error {
		return f.rescanPending(ctx, pool, start)
	})

	if f.shouldCheckFailedBets(start, end) {
		pool.Task(func(ctx context.Context) error {
			return f.checkFailedBets(ctx, pool, start)
		})
	}

	blocks := make([]model.Block, end-start+1)
	pool.Task(func(ctx context.Context) error {
		for i := range blocks {
			i := i
			num := start + uint64(i)
			pool.Go(func(ctx context.Context) error {
				t, err := f.client.GetBlockTime(ctx, num)
				if err != nil {
					return err
				}
				blocks[i] = model.Block{BlockNum: num, BlockTime: t}
				return nil
			})
		}
		return nil
	})

	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// syncKind queries one log signature over [from,to] and ingests each log
// on the pool
func (f *Fetcher) syncKind(ctx context.Context, pool *Pool, dec *abi.Decoder, kind abi.Kind, from, to uint64) error {
	topic, err := dec.Topic(kind)
	if err != nil {
		return err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{{topic}},
	}
	if kind == abi.KindEventCreated && f.config.FactoryAddress != (common.Address{}) {
		query.Addresses = []common.Address{f.config.FactoryAddress}
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		f.logger.Debug("logs found",
			zap.String("kind", string(kind)),
			zap.Int("count", len(logs)),
			zap.Uint64("from", from),
			zap.Uint64("to", to))
	}

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}
		pool.Go(func(ctx context.Context) error {
			return f.ingestor.Log(ctx, dec, kind, log)
		})
	}
	return nil
}

// Run runs iterations until ctx is cancelled. Iterations follow each other
// without delay while the chain head is ahead. An unknown contract version
// stops the loop.
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.Info("starting fetcher",
		zap.Uint64("deploy_block", f.config.DeployBlock),
		zap.Int("batch_size", f.config.BatchSize),
		zap.Int("workers", f.config.Workers))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("fetcher stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		default:
		}

		start := time.Now()
		res, err := f.RunIteration(ctx)
		f.metrics.IterationDuration.Observe(time.Since(start).Seconds())

		delay := f.config.SyncDelay
		switch {
		case err != nil && errors.Is(err, contracts.ErrUnknownVersion):
			f.metrics.Iterations.WithLabelValues("failed").Inc()
			f.logger.Error("contract version table does not cover the chain", zap.Error(err))
			return err
		case err != nil:
			f.metrics.Iterations.WithLabelValues("failed").Inc()
			if ctx.Err() == nil {
				f.logger.Error("sync iteration failed", zap.Error(err))
			}
		case !res.Synced:
			f.metrics.Iterations.WithLabelValues("idle").Inc()
			f.logger.Debug("caught up with chain", zap.Uint64("head", res.ChainHead))
		default:
			f.metrics.Iterations.WithLabelValues("synced").Inc()
			f.logger.Info("range synced",
				zap.Uint64("start", res.StartBlock),
				zap.Uint64("end", res.EndBlock),
				zap.Uint64("head", res.ChainHead),
				zap.Int("withdrawing", res.Withdrawing))
			if res.Behind() {
				delay = 0
			}
		}

		if delay == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			f.logger.Info("fetcher stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
