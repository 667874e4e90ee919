// Package reconcile settles the transactions this node submitted against
// their receipts and sends the follow-up transactions they call for.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/predict-indexer/client"
	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// ReconciliationError defers one transaction to the next pass
type ReconciliationError struct {
	TxID string
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("failed to reconcile %s: %v", e.TxID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Store is the storage surface the reconciler needs
type Store interface {
	FindPendingTransactions(ctx context.Context, filter storage.PendingTxFilter) ([]*model.PendingTransaction, error)
	InsertPendingTransaction(ctx context.Context, tx *model.PendingTransaction) error
	UpdatePendingTransaction(ctx context.Context, tx *model.PendingTransaction) error

	RelinkTxID(ctx context.Context, oldTxID, newTxID string) error
	DeleteEvent(ctx context.Context, txid string) (int, error)
	DeleteBet(ctx context.Context, txid string) (int, error)
	DeleteResultSet(ctx context.Context, txid string) (int, error)
	UpdateBetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
	UpdateResultSetStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
	UpdateWithdrawStatus(ctx context.Context, txid string, status model.TxStatus) (int, error)
}

// ReceiptSource looks up receipts and block times
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	GetBlockTime(ctx context.Context, number uint64) (uint64, error)
}

// Sender broadcasts the follow-up transactions
type Sender interface {
	From() common.Address
	Approve(ctx context.Context, spender common.Address, amount *big.Int, gasLimit uint64) (*client.SentTx, error)
	CreateEvent(ctx context.Context, p client.CreateEventParams, gasLimit uint64) (*client.SentTx, error)
	SetResult(ctx context.Context, v *contracts.Version, eventAddr common.Address, resultIndex uint8, amount *big.Int, gasLimit uint64) (*client.SentTx, error)
	Vote(ctx context.Context, v *contracts.Version, eventAddr common.Address, resultIndex uint8, amount *big.Int, gasLimit uint64) (*client.SentTx, error)
}

// VersionResolver looks up a contract version by number
type VersionResolver interface {
	ByNumber(number uint16) (*contracts.Version, error)
}

// GasEstimator sizes votes against the consensus threshold
type GasEstimator interface {
	VotingGasLimit(ctx context.Context, eventAddress string, resultIndex uint8, amount string) (uint64, error)
}

// Config holds reconciler settings
type Config struct {
	// AddressManager is the spender approved for event creation
	AddressManager common.Address
	Workers        int
}

// Result summarizes one pass
type Result struct {
	Checked   int
	Succeeded int
	Failed    int
	Pending   int
	Deferred  []*ReconciliationError
}

// Reconciler drives pending transactions to SUCCESS or FAIL
type Reconciler struct {
	store    Store
	receipts ReceiptSource
	sender   Sender
	versions VersionResolver
	gas      GasEstimator
	cfg      Config
	metrics  *Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewReconciler creates a reconciler. A nil sender disables follow-up
// transactions; those types then stay PENDING until a sender is configured.
func NewReconciler(store Store, receipts ReceiptSource, sender Sender, versions VersionResolver, gas GasEstimator, cfg Config, metrics *Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultWorkers
	}
	return &Reconciler{
		store:    store,
		receipts: receipts,
		sender:   sender,
		versions: versions,
		gas:      gas,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger,
	}
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeSuccess
	outcomeFail
)

// Run reconciles every PENDING transaction. Only a failure to list them is
// returned; per transaction errors are reported in the result.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() { r.metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	txs, err := r.store.FindPendingTransactions(ctx, storage.PendingTxFilter{Status: model.TxStatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transactions: %w", err)
	}

	res := &Result{Checked: len(txs)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			out, err := r.reconcile(ctx, tx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var recErr *ReconciliationError
				if !errors.As(err, &recErr) {
					recErr = &ReconciliationError{TxID: tx.TxID, Err: err}
				}
				res.Deferred = append(res.Deferred, recErr)
				r.metrics.Errors.Inc()
				r.logger.Warn("pending transaction deferred",
					zap.String("txid", tx.TxID),
					zap.String("type", string(tx.Type)),
					zap.Error(recErr))
				return nil
			}
			switch out {
			case outcomeSuccess:
				res.Succeeded++
				r.metrics.Outcomes.WithLabelValues(string(tx.Type), "success").Inc()
			case outcomeFail:
				res.Failed++
				r.metrics.Outcomes.WithLabelValues(string(tx.Type), "fail").Inc()
			default:
				res.Pending++
			}
			return nil
		})
	}
	_ = g.Wait()

	if res.Checked > 0 {
		r.logger.Info("pending transactions reconciled",
			zap.Int("checked", res.Checked),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
			zap.Int("deferred", len(res.Deferred)))
	}
	return res, nil
}

// reconcile settles one transaction. The follow-up runs before the terminal
// status is stored, so a failed follow-up is retried on the next pass. A
// follow-up that was already sent is picked up from its stored row.
func (r *Reconciler) reconcile(ctx context.Context, tx *model.PendingTransaction) (outcome, error) {
	receipt, err := r.receipts.GetTransactionReceipt(ctx, common.HexToHash(tx.TxID))
	if err != nil {
		return outcomePending, &ReconciliationError{TxID: tx.TxID, Err: err}
	}
	if receipt == nil {
		return outcomePending, nil
	}

	blockNum := receipt.BlockNumber.Uint64()
	blockTime, err := r.receipts.GetBlockTime(ctx, blockNum)
	if err != nil {
		return outcomePending, &ReconciliationError{TxID: tx.TxID, Err: err}
	}

	confirmed := *tx
	confirmed.BlockNum = blockNum
	confirmed.BlockTime = blockTime
	confirmed.GasUsed = receipt.GasUsed

	out := outcomeFail
	confirmed.Status = model.TxStatusFail
	if len(receipt.Logs) > 0 {
		out = outcomeSuccess
		confirmed.Status = model.TxStatusSuccess
	}

	if out == outcomeSuccess {
		err = r.onSuccess(ctx, &confirmed)
	} else {
		err = r.onFail(ctx, &confirmed)
	}
	if err != nil {
		return outcomePending, &ReconciliationError{TxID: tx.TxID, Err: err}
	}

	if err := r.store.UpdatePendingTransaction(ctx, &confirmed); err != nil {
		return outcomePending, &ReconciliationError{TxID: tx.TxID, Err: err}
	}

	r.logger.Debug("pending transaction confirmed",
		zap.String("txid", tx.TxID),
		zap.String("type", string(tx.Type)),
		zap.String("status", string(confirmed.Status)),
		zap.Uint64("block", blockNum))
	return out, nil
}

// onSuccess sends the action an approval was waiting for and moves the
// speculative rows under its txid. A follow-up recorded by an earlier pass is
// reused instead of being sent again.
func (r *Reconciler) onSuccess(ctx context.Context, tx *model.PendingTransaction) error {
	paired, ok := tx.Type.PairedAction()
	if !ok {
		return nil
	}

	next, err := r.recordedFollowUp(ctx, tx, paired)
	if err != nil {
		return err
	}
	if next == nil {
		if next, err = r.sendPaired(ctx, tx, paired); err != nil {
			return err
		}
	}
	return r.store.RelinkTxID(ctx, tx.TxID, next.TxID)
}

func (r *Reconciler) sendPaired(ctx context.Context, tx *model.PendingTransaction, paired model.PendingTxType) (*model.PendingTransaction, error) {
	if r.sender == nil {
		return nil, fmt.Errorf("no sender configured for %s", paired)
	}

	amount, err := toBig(tx.Amount)
	if err != nil {
		return nil, err
	}

	var sent *client.SentTx
	switch paired {
	case model.PendingCreateEvent:
		sent, err = r.sender.CreateEvent(ctx, client.CreateEventParams{
			Name:               tx.Name,
			Results:            tx.Options,
			BetStartTime:       tx.BetStartTime,
			BetEndTime:         tx.BetEndTime,
			ResultSetStartTime: tx.ResultSetStartTime,
			ResultSetEndTime:   tx.ResultSetEndTime,
			CentralizedOracle:  common.HexToAddress(tx.ResultSetterAddress),
			EscrowAmount:       amount,
		}, constants.CreateEventGasLimit)

	case model.PendingSetResult:
		var v *contracts.Version
		if v, err = r.versions.ByNumber(tx.Version); err != nil {
			return nil, err
		}
		sent, err = r.sender.SetResult(ctx, v, common.HexToAddress(tx.EventAddress), tx.ResultIndex, amount, constants.DefaultGasLimit)

	case model.PendingVote:
		var v *contracts.Version
		if v, err = r.versions.ByNumber(tx.Version); err != nil {
			return nil, err
		}
		gasLimit := uint64(constants.DefaultGasLimit)
		if r.gas != nil {
			if gasLimit, err = r.gas.VotingGasLimit(ctx, tx.EventAddress, tx.ResultIndex, tx.Amount); err != nil {
				return nil, err
			}
		}
		sent, err = r.sender.Vote(ctx, v, common.HexToAddress(tx.EventAddress), tx.ResultIndex, amount, gasLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", paired, err)
	}

	next := r.followUp(tx, paired, sent)
	next.Name = tx.Name
	next.Options = tx.Options
	next.ResultSetterAddress = tx.ResultSetterAddress
	next.BetStartTime = tx.BetStartTime
	next.BetEndTime = tx.BetEndTime
	next.ResultSetStartTime = tx.ResultSetStartTime
	next.ResultSetEndTime = tx.ResultSetEndTime
	next.ResultIndex = tx.ResultIndex
	next.Amount = tx.Amount

	if err := r.store.InsertPendingTransaction(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to record %s %s: %w", paired, next.TxID, err)
	}
	return next, nil
}

// recordedFollowUp returns the follow-up of type t already stored for parent,
// or nil when none was sent yet.
func (r *Reconciler) recordedFollowUp(ctx context.Context, parent *model.PendingTransaction, t model.PendingTxType) (*model.PendingTransaction, error) {
	children, err := r.store.FindPendingTransactions(ctx, storage.PendingTxFilter{
		ParentTxID: parent.TxID,
		Types:      []model.PendingTxType{t},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s of %s: %w", t, parent.TxID, err)
	}
	if len(children) == 0 {
		return nil, nil
	}
	r.logger.Debug("reusing recorded follow-up",
		zap.String("parent", parent.TxID),
		zap.String("txid", children[0].TxID),
		zap.String("type", string(t)))
	return children[0], nil
}

// onFail compensates a failed transaction
func (r *Reconciler) onFail(ctx context.Context, tx *model.PendingTransaction) error {
	switch tx.Type {
	case model.PendingApproveCreateEvent, model.PendingApproveSetResult, model.PendingApproveVote:
		spender := common.HexToAddress(tx.EventAddress)
		if tx.Type == model.PendingApproveCreateEvent {
			spender = r.cfg.AddressManager
		}
		if err := r.resetApprove(ctx, tx, spender); err != nil {
			return err
		}
		return r.removeSpeculative(ctx, tx.TxID)

	case model.PendingCreateEvent:
		return r.removeSpeculative(ctx, tx.TxID)

	case model.PendingBet, model.PendingVote:
		_, err := r.store.UpdateBetStatus(ctx, tx.TxID, model.TxStatusFail)
		return err

	case model.PendingSetResult:
		_, err := r.store.UpdateResultSetStatus(ctx, tx.TxID, model.TxStatusFail)
		return err

	case model.PendingWithdraw, model.PendingWithdrawEscrow:
		_, err := r.store.UpdateWithdrawStatus(ctx, tx.TxID, model.TxStatusFail)
		return err
	}
	return nil
}

// resetApprove zeroes the allowance a failed approval may have left behind.
// It is sent at most once per approval.
func (r *Reconciler) resetApprove(ctx context.Context, tx *model.PendingTransaction, spender common.Address) error {
	prev, err := r.recordedFollowUp(ctx, tx, model.PendingResetApprove)
	if err != nil || prev != nil {
		return err
	}
	if r.sender == nil {
		return fmt.Errorf("no sender configured for %s", model.PendingResetApprove)
	}

	sent, err := r.sender.Approve(ctx, spender, big.NewInt(0), constants.DefaultGasLimit)
	if err != nil {
		return fmt.Errorf("failed to reset approval: %w", err)
	}

	next := r.followUp(tx, model.PendingResetApprove, sent)
	next.Name = tx.Name
	if err := r.store.InsertPendingTransaction(ctx, next); err != nil {
		return fmt.Errorf("failed to record %s %s: %w", model.PendingResetApprove, next.TxID, err)
	}
	return nil
}

func (r *Reconciler) removeSpeculative(ctx context.Context, txid string) error {
	if _, err := r.store.DeleteEvent(ctx, txid); err != nil {
		return err
	}
	if _, err := r.store.DeleteBet(ctx, txid); err != nil {
		return err
	}
	if _, err := r.store.DeleteResultSet(ctx, txid); err != nil {
		return err
	}
	return nil
}

func (r *Reconciler) followUp(parent *model.PendingTransaction, t model.PendingTxType, sent *client.SentTx) *model.PendingTransaction {
	r.metrics.FollowUps.WithLabelValues(string(t)).Inc()
	r.logger.Info("follow-up transaction sent",
		zap.String("parent", parent.TxID),
		zap.String("txid", sent.TxID),
		zap.String("type", string(t)))

	gasPrice := "0"
	if sent.GasPrice != nil {
		gasPrice = sent.GasPrice.String()
	}
	return &model.PendingTransaction{
		TxID:          sent.TxID,
		Type:          t,
		Status:        model.TxStatusPending,
		Version:       parent.Version,
		GasLimit:      strconv.FormatUint(sent.GasLimit, 10),
		GasPrice:      gasPrice,
		CreatedBlock:  parent.BlockNum,
		CreatedTime:   r.now().Unix(),
		SenderAddress: model.CanonicalAddress(r.sender.From()),
		ParentTxID:    parent.TxID,
		EventAddress:  parent.EventAddress,
	}
}

func toBig(amount string) (*big.Int, error) {
	d, err := model.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return d.BigInt(), nil
}
