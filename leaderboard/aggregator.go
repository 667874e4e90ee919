// Package leaderboard rolls participant investments and winnings up into the
// per-event and global leaderboards once an event starts paying out.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// DefaultWorkers caps concurrent winnings calls
const DefaultWorkers = 15

// ExternalComputationError wraps a failed winnings call for one participant.
// The participant is skipped and the rest of the event proceeds.
type ExternalComputationError struct {
	Participant string
	Err         error
}

func (e *ExternalComputationError) Error() string {
	return fmt.Sprintf("failed to compute winnings for %s: %v", e.Participant, e.Err)
}

func (e *ExternalComputationError) Unwrap() error {
	return e.Err
}

// Store is the storage surface the aggregator needs
type Store interface {
	FindBets(ctx context.Context, filter storage.BetFilter) ([]*model.Bet, error)
	FindResultSets(ctx context.Context, filter storage.ResultSetFilter) ([]*model.ResultSet, error)
	GetEventLeaderboard(ctx context.Context, eventAddress, userAddress string) (*model.EventLeaderboard, error)
	SettleEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error
	MarkEventAggregated(ctx context.Context, txid string) (int, error)
}

// WinningsCalculator reads a participant's payout from the event contract
type WinningsCalculator interface {
	CalculateWinnings(ctx context.Context, v *contracts.Version, eventAddr, participant common.Address) (string, error)
}

// VersionResolver maps a block to the contract version deployed there
type VersionResolver interface {
	Resolve(block uint64) (*contracts.Version, error)
}

// Config holds aggregator settings
type Config struct {
	Workers int
}

// Aggregator computes leaderboard rows for events entering WITHDRAWING
type Aggregator struct {
	store    Store
	winnings WinningsCalculator
	versions VersionResolver
	workers  int
	logger   *zap.Logger
}

// NewAggregator creates a leaderboard aggregator
func NewAggregator(store Store, winnings WinningsCalculator, versions VersionResolver, cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Aggregator{
		store:    store,
		winnings: winnings,
		versions: versions,
		workers:  workers,
		logger:   logger,
	}
}

// participant is one address's contribution to an event
type participant struct {
	address     string
	investments decimal.Decimal
	onWinner    bool
}

// Result summarizes one event's aggregation
type Result struct {
	Participants int
	Failed       []*ExternalComputationError
}

// Aggregate processes each event in turn and marks the finished ones so they
// are not picked up again. A failing event does not stop the others; the
// failures are joined into the returned error and the event stays unmarked.
func (a *Aggregator) Aggregate(ctx context.Context, events []*model.Event) error {
	var errs []error
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := a.AggregateEvent(ctx, ev)
		if err != nil {
			a.logger.Error("leaderboard aggregation failed",
				zap.String("event", ev.Address),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("event %s: %w", ev.Address, err))
			continue
		}
		if _, err := a.store.MarkEventAggregated(ctx, ev.TxID); err != nil {
			errs = append(errs, fmt.Errorf("failed to mark event %s: %w", ev.Address, err))
			continue
		}
		a.logger.Info("leaderboard updated",
			zap.String("event", ev.Address),
			zap.Int("participants", res.Participants),
			zap.Int("failed", len(res.Failed)))
	}
	return errors.Join(errs...)
}

// AggregateEvent writes the leaderboard rows of one event. A winnings failure
// only drops that participant; store failures abort. Participants settled by
// an earlier run are skipped, so the event can be aggregated again after a
// partial failure without counting anyone twice.
func (a *Aggregator) AggregateEvent(ctx context.Context, ev *model.Event) (*Result, error) {
	participants, err := a.collect(ctx, ev)
	if err != nil {
		return nil, err
	}

	version, err := a.versions.Resolve(ev.BlockNum)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.Address, err)
	}

	var (
		mu     sync.Mutex
		failed []*ExternalComputationError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, p := range participants {
		p := p
		g.Go(func() error {
			settled, err := a.settled(gctx, ev.Address, p.address)
			if err != nil || settled {
				return err
			}

			winnings := "0"
			if p.onWinner {
				w, err := a.winnings.CalculateWinnings(gctx, version,
					common.HexToAddress(ev.Address), common.HexToAddress(p.address))
				if err != nil {
					if errors.Is(gctx.Err(), context.Canceled) {
						return gctx.Err()
					}
					compErr := &ExternalComputationError{Participant: p.address, Err: err}
					a.logger.Warn("skipping leaderboard participant",
						zap.String("event", ev.Address),
						zap.Error(compErr))
					mu.Lock()
					failed = append(failed, compErr)
					mu.Unlock()
					return nil
				}
				winnings = w
			}
			return a.write(gctx, ev.Address, p.address, p.investments.String(), winnings)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Result{Participants: len(participants), Failed: failed}, nil
}

// collect gathers the confirmed bets and the round-0 oracle result of an event
// and sums them per participant.
func (a *Aggregator) collect(ctx context.Context, ev *model.Event) ([]*participant, error) {
	bets, err := a.store.FindBets(ctx, storage.BetFilter{
		EventAddress: ev.Address,
		TxStatus:     model.TxStatusSuccess,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load bets of %s: %w", ev.Address, err)
	}
	resultSets, err := a.store.FindResultSets(ctx, storage.ResultSetFilter{
		EventAddress: ev.Address,
		TxStatus:     model.TxStatusSuccess,
		EventRound:   storage.Uint8(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load result sets of %s: %w", ev.Address, err)
	}

	byAddress := make(map[string]*participant)
	add := func(address, amount string, resultIndex uint8) error {
		if address == "" {
			return nil
		}
		d, err := model.ParseAmount(amount)
		if err != nil {
			return err
		}
		p, ok := byAddress[address]
		if !ok {
			p = &participant{address: address}
			byAddress[address] = p
		}
		p.investments = p.investments.Add(d)
		if resultIndex == ev.CurrentResultIndex {
			p.onWinner = true
		}
		return nil
	}

	for _, rs := range resultSets {
		if err := add(rs.Participant(), rs.Amount, rs.ResultIndex); err != nil {
			return nil, fmt.Errorf("result set %s: %w", rs.TxID, err)
		}
	}
	for _, b := range bets {
		if err := add(b.BetterAddress, b.Amount, b.ResultIndex); err != nil {
			return nil, fmt.Errorf("bet %s: %w", b.TxID, err)
		}
	}

	participants := make([]*participant, 0, len(byAddress))
	for _, p := range byAddress {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].address < participants[j].address
	})
	return participants, nil
}

func (a *Aggregator) settled(ctx context.Context, eventAddress, user string) (bool, error) {
	row, err := a.store.GetEventLeaderboard(ctx, eventAddress, user)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read event leaderboard for %s: %w", user, err)
	}
	return row.Settled, nil
}

func (a *Aggregator) write(ctx context.Context, eventAddress, user, investments, winnings string) error {
	err := a.store.SettleEventLeaderboard(ctx, &model.EventLeaderboard{
		EventAddress: eventAddress,
		UserAddress:  user,
		Investments:  investments,
		Winnings:     winnings,
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("failed to settle leaderboard for %s: %w", user, err)
	}
	return nil
}
