package storage

import (
	"context"
	"errors"

	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a row with the same txid already exists
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidKey is returned when a key format is invalid
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// BlockStore holds sync checkpoints
type BlockStore interface {
	// InsertBlocks writes one checkpoint per block atomically
	InsertBlocks(ctx context.Context, blocks []model.Block) error

	// LatestBlock returns the highest checkpoint, or ErrNotFound
	LatestBlock(ctx context.Context) (*model.Block, error)

	GetBlock(ctx context.Context, blockNum uint64) (*model.Block, error)
	CountBlocks(ctx context.Context) (int, error)
}

// EventStore holds MultipleResultsEvent rows
type EventStore interface {
	// InsertEvent stores an event keyed by txid. A PENDING row with the same
	// txid is replaced; any other existing row yields ErrDuplicateKey.
	InsertEvent(ctx context.Context, ev *model.Event) error

	GetEvent(ctx context.Context, txid string) (*model.Event, error)
	GetEventByAddress(ctx context.Context, address string) (*model.Event, error)
	FindEvents(ctx context.Context, filter EventFilter) ([]*model.Event, error)

	// UpdateEvent replaces an existing row
	UpdateEvent(ctx context.Context, ev *model.Event) error

	// UpdateEventStatus moves every event matching filter to status and
	// returns the rows it changed.
	UpdateEventStatus(ctx context.Context, filter EventFilter, status model.EventStatus) ([]*model.Event, error)

	DeleteEvent(ctx context.Context, txid string) (int, error)

	// MarkEventAggregated records that an event's leaderboard is settled
	MarkEventAggregated(ctx context.Context, txid string) (int, error)
}

// ParticipationStore holds bets, result sets and withdraws
type ParticipationStore interface {
	InsertBet(ctx context.Context, bet *model.Bet) error
	FindBets(ctx context.Context, filter BetFilter) ([]*model.Bet, error)
	CountBets(ctx context.Context, filter BetFilter) (int, error)
	UpdateBetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
	DeleteBet(ctx context.Context, txid string) (int, error)

	InsertResultSet(ctx context.Context, rs *model.ResultSet) error
	FindResultSets(ctx context.Context, filter ResultSetFilter) ([]*model.ResultSet, error)
	UpdateResultSetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
	DeleteResultSet(ctx context.Context, txid string) (int, error)

	InsertWithdraw(ctx context.Context, w *model.Withdraw) error
	FindWithdraws(ctx context.Context, filter WithdrawFilter) ([]*model.Withdraw, error)
	UpdateWithdrawStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)

	// RelinkTxID moves the event, bet and result set rows filed under
	// oldTxID to newTxID.
	RelinkTxID(ctx context.Context, oldTxID, newTxID string) error
}

// ReceiptStore holds transaction receipts
type ReceiptStore interface {
	InsertReceipt(ctx context.Context, receipt *model.TransactionReceipt) error
	GetReceipt(ctx context.Context, txid string) (*model.TransactionReceipt, error)
}

// LeaderboardStore holds the per-event and global rollups
type LeaderboardStore interface {
	// AddEventLeaderboard adds row's figures to the stored row for the same
	// event and user, creating it if missing. A txid is credited once; a
	// repeat returns ErrDuplicateKey.
	AddEventLeaderboard(ctx context.Context, txid string, row *model.EventLeaderboard) error

	// SetEventLeaderboard replaces the row for the same event and user
	SetEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error

	// SettleEventLeaderboard writes a final per-event row and folds it into
	// the global row atomically, once per event and user.
	SettleEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error

	GetEventLeaderboard(ctx context.Context, eventAddress, userAddress string) (*model.EventLeaderboard, error)
	FindEventLeaderboard(ctx context.Context, eventAddress string) ([]*model.EventLeaderboard, error)

	SetGlobalLeaderboard(ctx context.Context, row *model.GlobalLeaderboard) error
	GetGlobalLeaderboard(ctx context.Context, userAddress string) (*model.GlobalLeaderboard, error)
	ListGlobalLeaderboard(ctx context.Context) ([]*model.GlobalLeaderboard, error)
}

// PendingStore holds locally submitted transactions
type PendingStore interface {
	InsertPendingTransaction(ctx context.Context, tx *model.PendingTransaction) error
	GetPendingTransaction(ctx context.Context, txid string) (*model.PendingTransaction, error)
	FindPendingTransactions(ctx context.Context, filter PendingTxFilter) ([]*model.PendingTransaction, error)
	UpdatePendingTransaction(ctx context.Context, tx *model.PendingTransaction) error
}

// Storage combines all collections
type Storage interface {
	BlockStore
	EventStore
	ParticipationStore
	ReceiptStore
	LeaderboardStore
	PendingStore

	Close() error
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 64)
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// ReadOnly opens the database in read-only mode
	ReadOnly bool

	// CompactionConcurrency for background compaction (default: 1)
	CompactionConcurrency int
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                  path,
		Cache:                 constants.DefaultCacheSize,
		MaxOpenFiles:          constants.DefaultMaxOpenFiles,
		WriteBuffer:           constants.DefaultWriteBuffer,
		CompactionConcurrency: 1,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}
