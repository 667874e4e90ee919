package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// AddEventLeaderboard adds the investments and winnings of row to the stored
// row and recomputes its return ratio. The credit is applied once per txid:
// the marker and the row are committed in one batch, and a second credit for
// the same txid returns ErrDuplicateKey.
func (s *PebbleStorage) AddEventLeaderboard(ctx context.Context, txid string, row *model.EventLeaderboard) error {
	if row == nil {
		return fmt.Errorf("leaderboard row cannot be nil")
	}
	if txid == "" {
		return fmt.Errorf("%w: empty txid", ErrInvalidKey)
	}
	if err := s.ensureWritable(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	marker := LeaderboardCreditKey(txid)
	_, closer, err := s.db.Get(marker)
	switch {
	case err == nil:
		closer.Close()
		return ErrDuplicateKey
	case !errors.Is(err, pebble.ErrNotFound):
		return fmt.Errorf("failed to get %s: %w", marker, err)
	}

	key := EventLeaderboardKey(row.EventAddress, row.UserAddress)
	stored, err := getDoc[model.EventLeaderboard](s.db, key)
	switch {
	case errors.Is(err, ErrNotFound):
		stored = &model.EventLeaderboard{
			EventAddress: row.EventAddress,
			UserAddress:  row.UserAddress,
		}
	case err != nil:
		return err
	}

	if stored.Investments, err = model.AddAmounts(stored.Investments, row.Investments); err != nil {
		return err
	}
	if stored.Winnings, err = model.AddAmounts(stored.Winnings, row.Winnings); err != nil {
		return err
	}
	if stored.ReturnRatio, err = model.ReturnRatio(stored.Winnings, stored.Investments); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := setDoc(batch, key, stored); err != nil {
		return err
	}
	if err := batch.Set(marker, []byte(key), nil); err != nil {
		return fmt.Errorf("failed to set %s: %w", marker, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit credit %s: %w", txid, err)
	}
	return nil
}

// SetEventLeaderboard replaces a per-event row
func (s *PebbleStorage) SetEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error {
	if row == nil {
		return fmt.Errorf("leaderboard row cannot be nil")
	}
	if err := s.ensureWritable(); err != nil {
		return err
	}

	ratio, err := model.ReturnRatio(row.Winnings, row.Investments)
	if err != nil {
		return err
	}
	stored := *row
	stored.ReturnRatio = ratio

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.putDoc(EventLeaderboardKey(row.EventAddress, row.UserAddress), &stored)
}

// SettleEventLeaderboard writes the final figures of a participant's per-event
// row and adds them to the participant's global row, both in one batch. A row
// that is already settled is left alone and ErrDuplicateKey is returned.
func (s *PebbleStorage) SettleEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error {
	if row == nil {
		return fmt.Errorf("leaderboard row cannot be nil")
	}
	if err := s.ensureWritable(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := EventLeaderboardKey(row.EventAddress, row.UserAddress)
	stored, err := getDoc[model.EventLeaderboard](s.db, key)
	switch {
	case err == nil && stored.Settled:
		return ErrDuplicateKey
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	settled := *row
	settled.Settled = true
	if settled.ReturnRatio, err = model.ReturnRatio(settled.Winnings, settled.Investments); err != nil {
		return err
	}

	globalKey := GlobalLeaderboardKey(row.UserAddress)
	global, err := getDoc[model.GlobalLeaderboard](s.db, globalKey)
	switch {
	case errors.Is(err, ErrNotFound):
		global = &model.GlobalLeaderboard{UserAddress: row.UserAddress}
	case err != nil:
		return err
	}
	if global.Investments, err = model.AddAmounts(global.Investments, row.Investments); err != nil {
		return err
	}
	if global.Winnings, err = model.AddAmounts(global.Winnings, row.Winnings); err != nil {
		return err
	}
	if global.ReturnRatio, err = model.ReturnRatio(global.Winnings, global.Investments); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := setDoc(batch, key, &settled); err != nil {
		return err
	}
	if err := setDoc(batch, globalKey, global); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to settle %s in %s: %w", row.UserAddress, row.EventAddress, err)
	}
	return nil
}

// GetEventLeaderboard returns a participant's row for an event
func (s *PebbleStorage) GetEventLeaderboard(ctx context.Context, eventAddress, userAddress string) (*model.EventLeaderboard, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.EventLeaderboard](s.db, EventLeaderboardKey(eventAddress, userAddress))
}

// FindEventLeaderboard returns every row of an event
func (s *PebbleStorage) FindEventLeaderboard(ctx context.Context, eventAddress string) ([]*model.EventLeaderboard, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return scanDocs[model.EventLeaderboard](s.db, EventLeaderboardPrefix(eventAddress), nil)
}

// SetGlobalLeaderboard replaces a participant's global row
func (s *PebbleStorage) SetGlobalLeaderboard(ctx context.Context, row *model.GlobalLeaderboard) error {
	if row == nil {
		return fmt.Errorf("leaderboard row cannot be nil")
	}
	if err := s.ensureWritable(); err != nil {
		return err
	}

	ratio, err := model.ReturnRatio(row.Winnings, row.Investments)
	if err != nil {
		return err
	}
	stored := *row
	stored.ReturnRatio = ratio

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.putDoc(GlobalLeaderboardKey(row.UserAddress), &stored)
}

// GetGlobalLeaderboard returns a participant's global row
func (s *PebbleStorage) GetGlobalLeaderboard(ctx context.Context, userAddress string) (*model.GlobalLeaderboard, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return getDoc[model.GlobalLeaderboard](s.db, GlobalLeaderboardKey(userAddress))
}

// ListGlobalLeaderboard returns every global row
func (s *PebbleStorage) ListGlobalLeaderboard(ctx context.Context) ([]*model.GlobalLeaderboard, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	return scanDocs[model.GlobalLeaderboard](s.db, []byte(prefixGlobalLeaderboard), nil)
}
