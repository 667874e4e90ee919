package pending

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// VotingGasLimit returns the gas for a vote of amount on resultIndex. A vote
// that fills the rest of the consensus threshold ends the round on chain and
// needs the larger limit.
func (s *Service) VotingGasLimit(ctx context.Context, eventAddress string, resultIndex uint8, amount string) (uint64, error) {
	ev, err := s.store.GetEventByAddress(ctx, eventAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to load event %s: %w", eventAddress, err)
	}

	threshold, err := model.ParseAmount(ev.ConsensusThreshold)
	if err != nil {
		return 0, err
	}
	vote, err := model.ParseAmount(amount)
	if err != nil {
		return 0, err
	}

	votes, err := s.store.FindBets(ctx, storage.BetFilter{
		EventAddress: eventAddress,
		TxStatus:     model.TxStatusSuccess,
		EventRound:   storage.Uint8(ev.CurrentRound),
		ResultIndex:  storage.Uint8(resultIndex),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load votes of %s: %w", eventAddress, err)
	}

	total := decimal.Zero
	for _, v := range votes {
		d, err := model.ParseAmount(v.Amount)
		if err != nil {
			return 0, err
		}
		total = total.Add(d)
	}

	if vote.GreaterThanOrEqual(threshold.Sub(total)) {
		return constants.VoteOverThresholdGasLimit, nil
	}
	return constants.DefaultGasLimit, nil
}
