package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// InsertPendingTransaction records a submitted transaction
func (s *PebbleStorage) InsertPendingTransaction(ctx context.Context, tx *model.PendingTransaction) error {
	if tx == nil {
		return fmt.Errorf("pending transaction cannot be nil")
	}
	return insertOrPromote[model.PendingTransaction](s, PendingTxKey(tx.TxID), tx, nil)
}

// GetPendingTransaction returns a submitted transaction
func (s *PebbleStorage) GetPendingTransaction(ctx context.Context, txid string) (*model.PendingTransaction, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.PendingTransaction](s.db, PendingTxKey(txid))
}

// FindPendingTransactions returns the transactions matching filter, oldest first
func (s *PebbleStorage) FindPendingTransactions(ctx context.Context, filter PendingTxFilter) ([]*model.PendingTransaction, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	txs, err := scanDocs(s.db, []byte(prefixPendingTxs), func(tx *model.PendingTransaction) bool {
		return filter.matches(tx)
	})
	if err != nil {
		return nil, err
	}
	sortPendingByCreation(txs)
	return txs, nil
}

// UpdatePendingTransaction replaces a stored transaction
func (s *PebbleStorage) UpdatePendingTransaction(ctx context.Context, tx *model.PendingTransaction) error {
	if tx == nil {
		return fmt.Errorf("pending transaction cannot be nil")
	}
	n, err := updateDoc(s, PendingTxKey(tx.TxID), func(stored *model.PendingTransaction) {
		*stored = *tx
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sortPendingByCreation(txs []*model.PendingTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedTime < txs[j].CreatedTime
	})
}
