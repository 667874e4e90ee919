package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// PebbleStorage implements Storage as a JSON document store on PebbleDB.
// Each collection lives under its own key prefix with the txid as primary key.
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool

	// writeMu serializes check-then-write sections so that the txid primary
	// key stays unique under concurrent ingestion.
	writeMu sync.Mutex
}

var _ Storage = (*PebbleStorage)(nil)

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20),
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ReadOnly:                 cfg.ReadOnly,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *PebbleStorage) ensureWritable() error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func getDoc[T any](db *pebble.DB, key []byte) (*T, error) {
	value, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	var doc T
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidData, key, err)
	}
	return &doc, nil
}

func scanDocs[T any](db *pebble.DB, prefix []byte, keep func(*T) bool) ([]*T, error) {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var docs []*T
	for iter.First(); iter.Valid(); iter.Next() {
		var doc T
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidData, iter.Key(), err)
		}
		if keep == nil || keep(&doc) {
			docs = append(docs, &doc)
		}
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return docs, nil
}

func setDoc(w pebble.Writer, key []byte, doc interface{}) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return w.Set(key, value, nil)
}

func (s *PebbleStorage) putDoc(key []byte, doc interface{}) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.db.Set(key, value, pebble.Sync)
}

// insertOrPromote writes doc unless a row already exists under key. An
// existing PENDING row is replaced by a non-PENDING doc.
func insertOrPromote[T any](s *PebbleStorage, key []byte, doc *T, statusOf func(*T) model.TxStatus) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := getDoc[T](s.db, key)
	switch {
	case err == nil:
		if statusOf == nil || statusOf(existing) != model.TxStatusPending || statusOf(doc) == model.TxStatusPending {
			return ErrDuplicateKey
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	return s.putDoc(key, doc)
}

// updateDoc applies fn to the row under key. It returns 0 when the row does
// not exist.
func updateDoc[T any](s *PebbleStorage, key []byte, fn func(*T)) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, err := getDoc[T](s.db, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	fn(doc)
	if err := s.putDoc(key, doc); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *PebbleStorage) deleteKey(key []byte) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	closer.Close()

	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return 1, nil
}

// InsertBlocks writes one checkpoint per block in a single batch
func (s *PebbleStorage) InsertBlocks(ctx context.Context, blocks []model.Block) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for i := range blocks {
		if err := setDoc(batch, BlockKey(blocks[i].BlockNum), &blocks[i]); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit checkpoints: %w", err)
	}
	return nil
}

// LatestBlock returns the highest checkpoint
func (s *PebbleStorage) LatestBlock(ctx context.Context) (*model.Block, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := []byte(prefixBlocks)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("iterator error: %w", err)
		}
		return nil, ErrNotFound
	}

	var block model.Block
	if err := json.Unmarshal(iter.Value(), &block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &block, nil
}

// GetBlock returns the checkpoint of a block
func (s *PebbleStorage) GetBlock(ctx context.Context, blockNum uint64) (*model.Block, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.Block](s.db, BlockKey(blockNum))
}

// CountBlocks returns the number of checkpoints
func (s *PebbleStorage) CountBlocks(ctx context.Context) (int, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}
	blocks, err := scanDocs[model.Block](s.db, []byte(prefixBlocks), nil)
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}

// InsertReceipt stores a receipt. Receipts are never replaced.
func (s *PebbleStorage) InsertReceipt(ctx context.Context, receipt *model.TransactionReceipt) error {
	if receipt == nil {
		return fmt.Errorf("receipt cannot be nil")
	}
	return insertOrPromote[model.TransactionReceipt](s, ReceiptKey(receipt.TxID), receipt, nil)
}

// GetReceipt returns the receipt of a transaction
func (s *PebbleStorage) GetReceipt(ctx context.Context, txid string) (*model.TransactionReceipt, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.TransactionReceipt](s.db, ReceiptKey(txid))
}
