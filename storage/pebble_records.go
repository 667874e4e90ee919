package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/0xmhha/predict-indexer/internal/model"
)

func betStatus(b *model.Bet) model.TxStatus { return b.TxStatus }

func resultSetStatus(rs *model.ResultSet) model.TxStatus { return rs.TxStatus }

func withdrawStatus(w *model.Withdraw) model.TxStatus { return w.TxStatus }

// InsertEvent stores an event and indexes its contract address
func (s *PebbleStorage) InsertEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if err := s.ensureWritable(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := getDoc[model.Event](s.db, EntityKey(ev.TxID))
	switch {
	case err == nil:
		if existing.TxStatus != model.TxStatusPending || ev.TxStatus == model.TxStatusPending {
			return ErrDuplicateKey
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if existing != nil && existing.Address != "" && existing.Address != ev.Address {
		if err := batch.Delete(EntityAddressIndexKey(existing.Address), nil); err != nil {
			return err
		}
	}
	if err := setDoc(batch, EntityKey(ev.TxID), ev); err != nil {
		return err
	}
	if ev.Address != "" {
		if err := batch.Set(EntityAddressIndexKey(ev.Address), []byte(ev.TxID), nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit event %s: %w", ev.TxID, err)
	}
	return nil
}

// GetEvent returns an event by creation txid
func (s *PebbleStorage) GetEvent(ctx context.Context, txid string) (*model.Event, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.Event](s.db, EntityKey(txid))
}

// GetEventByAddress returns an event by contract address
func (s *PebbleStorage) GetEventByAddress(ctx context.Context, address string) (*model.Event, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return s.eventByAddress(address)
}

func (s *PebbleStorage) eventByAddress(address string) (*model.Event, error) {
	value, closer, err := s.db.Get(EntityAddressIndexKey(address))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event index: %w", err)
	}
	txid := string(value)
	closer.Close()

	return getDoc[model.Event](s.db, EntityKey(txid))
}

// FindEvents returns the events matching filter
func (s *PebbleStorage) FindEvents(ctx context.Context, filter EventFilter) ([]*model.Event, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	if filter.Address != "" {
		ev, err := s.eventByAddress(filter.Address)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !filter.matches(ev) {
			return nil, nil
		}
		return []*model.Event{ev}, nil
	}

	return scanDocs(s.db, []byte(prefixEntities), func(ev *model.Event) bool {
		return filter.matches(ev)
	})
}

// UpdateEvent replaces a stored event
func (s *PebbleStorage) UpdateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}
	n, err := updateDoc(s, EntityKey(ev.TxID), func(stored *model.Event) {
		*stored = *ev
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEventAggregated sets LeaderboardDone on the event with txid
func (s *PebbleStorage) MarkEventAggregated(ctx context.Context, txid string) (int, error) {
	return updateDoc(s, EntityKey(txid), func(stored *model.Event) {
		stored.LeaderboardDone = true
	})
}

// UpdateEventStatus moves matching events forward to status. Rows already at
// or past status are left alone.
func (s *PebbleStorage) UpdateEventStatus(ctx context.Context, filter EventFilter, status model.EventStatus) ([]*model.Event, error) {
	if err := s.ensureWritable(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	matched, err := scanDocs(s.db, []byte(prefixEntities), func(ev *model.Event) bool {
		return filter.matches(ev) && ev.Status.Before(status)
	})
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, ev := range matched {
		ev.Status = status
		if err := setDoc(batch, EntityKey(ev.TxID), ev); err != nil {
			return nil, err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return matched, nil
}

// DeleteEvent removes an event and its address index
func (s *PebbleStorage) DeleteEvent(ctx context.Context, txid string) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ev, err := getDoc[model.Event](s.db, EntityKey(txid))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete(EntityKey(txid), nil); err != nil {
		return 0, err
	}
	if ev.Address != "" {
		if err := batch.Delete(EntityAddressIndexKey(ev.Address), nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete event %s: %w", txid, err)
	}
	return 1, nil
}

// InsertBet stores a bet or vote
func (s *PebbleStorage) InsertBet(ctx context.Context, bet *model.Bet) error {
	if bet == nil {
		return fmt.Errorf("bet cannot be nil")
	}
	return insertOrPromote(s, BetKey(bet.TxID), bet, betStatus)
}

// FindBets returns the bets matching filter
func (s *PebbleStorage) FindBets(ctx context.Context, filter BetFilter) ([]*model.Bet, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return scanDocs(s.db, []byte(prefixBets), func(b *model.Bet) bool {
		return filter.matches(b)
	})
}

// CountBets returns the number of bets matching filter
func (s *PebbleStorage) CountBets(ctx context.Context, filter BetFilter) (int, error) {
	bets, err := s.FindBets(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(bets), nil
}

// UpdateBetStatus sets the confirmation status of a bet
func (s *PebbleStorage) UpdateBetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error) {
	return updateDoc(s, BetKey(txid), func(b *model.Bet) { b.TxStatus = status })
}

// DeleteBet removes a bet
func (s *PebbleStorage) DeleteBet(ctx context.Context, txid string) (int, error) {
	return s.deleteKey(BetKey(txid))
}

// InsertResultSet stores a result set or vote result set
func (s *PebbleStorage) InsertResultSet(ctx context.Context, rs *model.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("result set cannot be nil")
	}
	return insertOrPromote(s, ResultSetKey(rs.TxID), rs, resultSetStatus)
}

// FindResultSets returns the result sets matching filter
func (s *PebbleStorage) FindResultSets(ctx context.Context, filter ResultSetFilter) ([]*model.ResultSet, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return scanDocs(s.db, []byte(prefixResultSets), func(rs *model.ResultSet) bool {
		return filter.matches(rs)
	})
}

// UpdateResultSetStatus sets the confirmation status of a result set
func (s *PebbleStorage) UpdateResultSetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error) {
	return updateDoc(s, ResultSetKey(txid), func(rs *model.ResultSet) { rs.TxStatus = status })
}

// DeleteResultSet removes a result set
func (s *PebbleStorage) DeleteResultSet(ctx context.Context, txid string) (int, error) {
	return s.deleteKey(ResultSetKey(txid))
}

// InsertWithdraw stores a withdraw
func (s *PebbleStorage) InsertWithdraw(ctx context.Context, w *model.Withdraw) error {
	if w == nil {
		return fmt.Errorf("withdraw cannot be nil")
	}
	return insertOrPromote(s, WithdrawKey(w.TxID), w, withdrawStatus)
}

// FindWithdraws returns the withdraws matching filter
func (s *PebbleStorage) FindWithdraws(ctx context.Context, filter WithdrawFilter) ([]*model.Withdraw, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return scanDocs(s.db, []byte(prefixWithdraws), func(w *model.Withdraw) bool {
		return filter.matches(w)
	})
}

// UpdateWithdrawStatus sets the confirmation status of a withdraw
func (s *PebbleStorage) UpdateWithdrawStatus(ctx context.Context, txid string, status model.TxStatus) (int, error) {
	return updateDoc(s, WithdrawKey(txid), func(w *model.Withdraw) { w.TxStatus = status })
}

// RelinkTxID refiles the speculative rows of an approval under the txid of
// the action that followed it.
func (s *PebbleStorage) RelinkTxID(ctx context.Context, oldTxID, newTxID string) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	if oldTxID == newTxID {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	ev, err := getDoc[model.Event](s.db, EntityKey(oldTxID))
	switch {
	case err == nil:
		ev.TxID = newTxID
		if err := moveDoc(batch, EntityKey(oldTxID), EntityKey(newTxID), ev); err != nil {
			return err
		}
		if ev.Address != "" {
			if err := batch.Set(EntityAddressIndexKey(ev.Address), []byte(newTxID), nil); err != nil {
				return err
			}
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	bet, err := getDoc[model.Bet](s.db, BetKey(oldTxID))
	switch {
	case err == nil:
		bet.TxID = newTxID
		if err := moveDoc(batch, BetKey(oldTxID), BetKey(newTxID), bet); err != nil {
			return err
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	rs, err := getDoc[model.ResultSet](s.db, ResultSetKey(oldTxID))
	switch {
	case err == nil:
		rs.TxID = newTxID
		if err := moveDoc(batch, ResultSetKey(oldTxID), ResultSetKey(newTxID), rs); err != nil {
			return err
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to relink %s to %s: %w", oldTxID, newTxID, err)
	}
	return nil
}

func moveDoc(batch *pebble.Batch, from, to []byte, doc interface{}) error {
	if err := batch.Delete(from, nil); err != nil {
		return err
	}
	return setDoc(batch, to, doc)
}
