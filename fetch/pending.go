package fetch

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/abi"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// blockSpan is the block range covered by a set of rows
type blockSpan struct {
	from, to uint64
	rows     int
}

func (s *blockSpan) add(block uint64) {
	if s.rows == 0 || block < s.from {
		s.from = block
	}
	if s.rows == 0 || block > s.to {
		s.to = block
	}
	s.rows++
}

// rescanPending re-queries the logs of speculative rows still PENDING below
// start, so rows confirmed while the process was behind get promoted.
func (f *Fetcher) rescanPending(ctx context.Context, pool *Pool, start uint64) error {
	if start == 0 {
		return nil
	}

	var eventSpan, betSpan, resultSpan blockSpan

	evs, err := f.storage.FindEvents(ctx, storage.EventFilter{TxStatus: model.TxStatusPending, BlockNumBelow: start})
	if err != nil {
		return fmt.Errorf("failed to find pending events: %w", err)
	}
	for _, ev := range evs {
		eventSpan.add(ev.BlockNum)
	}

	bets, err := f.storage.FindBets(ctx, storage.BetFilter{
		TxStatus:      model.TxStatusPending,
		EventRound:    storage.Uint8(0),
		BlockNumBelow: start,
	})
	if err != nil {
		return fmt.Errorf("failed to find pending bets: %w", err)
	}
	for _, b := range bets {
		betSpan.add(b.BlockNum)
	}

	sets, err := f.storage.FindResultSets(ctx, storage.ResultSetFilter{TxStatus: model.TxStatusPending, BlockNumBelow: start})
	if err != nil {
		return fmt.Errorf("failed to find pending result sets: %w", err)
	}
	for _, rs := range sets {
		resultSpan.add(rs.BlockNum)
	}

	if err := f.rescan(ctx, pool, eventSpan, abi.KindEventCreated); err != nil {
		return err
	}
	if err := f.rescan(ctx, pool, betSpan, abi.KindBetPlaced); err != nil {
		return err
	}
	return f.rescan(ctx, pool, resultSpan, abi.KindResultSet, abi.KindVoteResultSet)
}

func (f *Fetcher) rescan(ctx context.Context, pool *Pool, span blockSpan, kinds ...abi.Kind) error {
	if span.rows == 0 {
		return nil
	}
	from := span.from
	if from < f.config.DeployBlock {
		from = f.config.DeployBlock
	}
	if from > span.to {
		return nil
	}

	to, err := f.versions.ClampRange(from, span.to)
	if err != nil {
		return err
	}
	version, err := f.versions.Resolve(from)
	if err != nil {
		return err
	}
	dec := abi.NewDecoder(version)

	f.logger.Info("rescanning pending rows",
		zap.Int("rows", span.rows),
		zap.Uint64("from", from),
		zap.Uint64("to", to))

	for _, kind := range kinds {
		if err := f.syncKind(ctx, pool, dec, kind, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) shouldCheckFailedBets(start, end uint64) bool {
	interval := f.config.FailedBetCheckInterval
	if interval == 0 {
		return false
	}
	return end/interval*interval >= start
}

// checkFailedBets marks PENDING bets below start FAIL when their receipt shows
// the transaction reverted. Bets without a receipt stay PENDING.
func (f *Fetcher) checkFailedBets(ctx context.Context, pool *Pool, start uint64) error {
	if start == 0 {
		return nil
	}
	bets, err := f.storage.FindBets(ctx, storage.BetFilter{TxStatus: model.TxStatusPending, BlockNumBelow: start})
	if err != nil {
		return fmt.Errorf("failed to find pending bets: %w", err)
	}

	for _, bet := range bets {
		bet := bet
		pool.Go(func(ctx context.Context) error {
			receipt, err := f.client.GetTransactionReceipt(ctx, common.HexToHash(bet.TxID))
			if err != nil {
				return err
			}
			if receipt == nil || (receipt.Status == types.ReceiptStatusSuccessful && len(receipt.Logs) > 0) {
				return nil
			}
			if _, err := f.storage.UpdateBetStatus(ctx, bet.TxID, model.TxStatusFail); err != nil {
				return fmt.Errorf("failed to mark bet %s failed: %w", bet.TxID, err)
			}
			f.metrics.FailedBets.Inc()
			f.logger.Info("bet failed",
				zap.String("txid", bet.TxID),
				zap.String("event", bet.EventAddress))
			return nil
		})
	}
	return nil
}
