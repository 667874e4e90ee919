package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/abi"
	"github.com/0xmhha/predict-indexer/client"
	"github.com/0xmhha/predict-indexer/consensus"
	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// ReceiptClient fetches transaction receipts
type ReceiptClient interface {
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// EventReader reads the metadata of a newly created event contract
type EventReader interface {
	FetchEvent(ctx context.Context, v *contracts.Version, addr common.Address) (*model.Event, error)
}

// IngestStore is the storage the ingestion path writes to
type IngestStore interface {
	GetEvent(ctx context.Context, txid string) (*model.Event, error)
	GetEventByAddress(ctx context.Context, address string) (*model.Event, error)
	UpdateEvent(ctx context.Context, ev *model.Event) error

	InsertEvent(ctx context.Context, ev *model.Event) error
	InsertBet(ctx context.Context, bet *model.Bet) error
	InsertResultSet(ctx context.Context, rs *model.ResultSet) error
	InsertWithdraw(ctx context.Context, w *model.Withdraw) error
	InsertReceipt(ctx context.Context, receipt *model.TransactionReceipt) error
	GetReceipt(ctx context.Context, txid string) (*model.TransactionReceipt, error)
	AddEventLeaderboard(ctx context.Context, txid string, row *model.EventLeaderboard) error
}

// Ingestor stores decoded records exactly once. Each record is written in
// steps that are safe to repeat: the receipt is stored first, then the row,
// then the investment credit (keyed by txid) and the round advance (which
// never regresses). Replaying a log after a failure part way through finishes
// the remaining steps; replaying a completed log changes nothing.
type Ingestor struct {
	store    IngestStore
	receipts ReceiptClient
	contract EventReader
	advancer *consensus.RoundAdvancer
	metrics  *Metrics
	logger   *zap.Logger
}

// NewIngestor creates an ingestor
func NewIngestor(store IngestStore, receipts ReceiptClient, contract EventReader, metrics *Metrics, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Ingestor{
		store:    store,
		receipts: receipts,
		contract: contract,
		advancer: consensus.NewRoundAdvancer(store, logger),
		metrics:  metrics,
		logger:   logger,
	}
}

// Log decodes one log of the given kind and ingests it
func (in *Ingestor) Log(ctx context.Context, dec *abi.Decoder, kind abi.Kind, log *types.Log) error {
	switch kind {
	case abi.KindEventCreated:
		created, err := dec.DecodeCreated(log)
		if err != nil {
			return err
		}
		return in.Created(ctx, dec.Version(), created)
	case abi.KindBetPlaced, abi.KindVotePlaced:
		bet, err := dec.DecodeBet(kind, log)
		if err != nil {
			return err
		}
		return in.Bet(ctx, kind, bet)
	case abi.KindResultSet, abi.KindVoteResultSet:
		rs, err := dec.DecodeResultSet(kind, log)
		if err != nil {
			return err
		}
		return in.ResultSet(ctx, kind, rs)
	case abi.KindWinningsWithdrawn:
		w, err := dec.DecodeWithdraw(log)
		if err != nil {
			return err
		}
		return in.Withdraw(ctx, w)
	}
	return fmt.Errorf("unknown log kind %s", kind)
}

// Created stores a new event read from its contract
func (in *Ingestor) Created(ctx context.Context, v *contracts.Version, c *abi.CreatedLog) error {
	txid := c.TxID
	if err := in.storeReceipt(ctx, txid); err != nil {
		return err
	}

	existing, err := in.store.GetEvent(ctx, txid)
	switch {
	case err == nil && existing.TxStatus.IsTerminal():
		in.count(abi.KindEventCreated, false)
		return nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to load event %s: %w", txid, err)
	}

	ev, err := in.contract.FetchEvent(ctx, v, c.EventAddress)
	if err != nil {
		return err
	}
	ev.TxID = txid
	ev.TxStatus = model.TxStatusSuccess
	ev.BlockNum = c.BlockNum
	ev.OwnerAddress = model.CanonicalAddress(c.OwnerAddress)
	ev.Version = v.Number
	if existing != nil && existing.Language != "" {
		ev.Language = existing.Language
	}

	first, err := in.insert(abi.KindEventCreated, txid, in.store.InsertEvent(ctx, ev))
	if err != nil || !first {
		return err
	}

	in.logger.Debug("event indexed",
		zap.String("event", ev.Address),
		zap.String("txid", txid),
		zap.Uint64("block", ev.BlockNum))
	return nil
}

// Bet stores a bet or vote and credits its investment
func (in *Ingestor) Bet(ctx context.Context, kind abi.Kind, bet *model.Bet) error {
	if err := in.storeReceipt(ctx, bet.TxID); err != nil {
		return err
	}
	if _, err := in.insert(kind, bet.TxID, in.store.InsertBet(ctx, bet)); err != nil {
		return err
	}
	return in.addInvestment(ctx, bet.TxID, bet.EventAddress, bet.BetterAddress, bet.Amount)
}

// ResultSet stores a result set, credits the oracle's stake and advances the
// event's round
func (in *Ingestor) ResultSet(ctx context.Context, kind abi.Kind, rs *model.ResultSet) error {
	if err := in.storeReceipt(ctx, rs.TxID); err != nil {
		return err
	}
	if _, err := in.insert(kind, rs.TxID, in.store.InsertResultSet(ctx, rs)); err != nil {
		return err
	}
	if participant := rs.Participant(); participant != "" {
		if err := in.addInvestment(ctx, rs.TxID, rs.EventAddress, participant, rs.Amount); err != nil {
			return err
		}
	}
	_, err := in.advancer.Apply(ctx, rs)
	return err
}

// Withdraw stores a winnings withdrawal
func (in *Ingestor) Withdraw(ctx context.Context, w *model.Withdraw) error {
	if err := in.storeReceipt(ctx, w.TxID); err != nil {
		return err
	}
	_, err := in.insert(abi.KindWinningsWithdrawn, w.TxID, in.store.InsertWithdraw(ctx, w))
	return err
}

// insert reports whether the write was a first-time insert. Duplicates are
// not errors.
func (in *Ingestor) insert(kind abi.Kind, txid string, err error) (bool, error) {
	if errors.Is(err, storage.ErrDuplicateKey) {
		in.count(kind, false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert %s %s: %w", kind, txid, err)
	}
	in.count(kind, true)
	return true, nil
}

func (in *Ingestor) count(kind abi.Kind, inserted bool) {
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	in.metrics.Logs.WithLabelValues(string(kind), result).Inc()
}

// storeReceipt makes sure the receipt of txid is stored. It asks the node
// only when the store does not have it yet.
func (in *Ingestor) storeReceipt(ctx context.Context, txid string) error {
	_, err := in.store.GetReceipt(ctx, txid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load receipt %s: %w", txid, err)
	}

	receipt, err := in.receipts.GetTransactionReceipt(ctx, common.HexToHash(txid))
	if err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("no receipt for logged transaction %s", txid)
	}
	err = in.store.InsertReceipt(ctx, client.ReceiptModel(receipt))
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("failed to store receipt %s: %w", txid, err)
	}
	return nil
}

func (in *Ingestor) addInvestment(ctx context.Context, txid, eventAddress, user, amount string) error {
	err := in.store.AddEventLeaderboard(ctx, txid, &model.EventLeaderboard{
		EventAddress: eventAddress,
		UserAddress:  user,
		Investments:  amount,
		Winnings:     "0",
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("failed to add investment of %s in %s: %w", user, eventAddress, err)
	}
	return nil
}
