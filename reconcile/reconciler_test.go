package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/client"
	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

var (
	sender         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addressManager = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	eventAddr      = "0x00000000000000000000000000000000000000e1"
)

func txHash(n int) string {
	return common.BigToHash(big.NewInt(int64(n))).Hex()
}

type fakeReceipts struct {
	receipts map[common.Hash]*types.Receipt
	errs     map[common.Hash]error
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{
		receipts: make(map[common.Hash]*types.Receipt),
		errs:     make(map[common.Hash]error),
	}
}

func (f *fakeReceipts) confirm(txid string, block int64, withLogs bool) {
	r := &types.Receipt{BlockNumber: big.NewInt(block), GasUsed: 21000}
	if withLogs {
		r.Logs = []*types.Log{{}}
	}
	f.receipts[common.HexToHash(txid)] = r
}

func (f *fakeReceipts) GetTransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := f.errs[hash]; err != nil {
		return nil, err
	}
	return f.receipts[hash], nil
}

func (f *fakeReceipts) GetBlockTime(_ context.Context, number uint64) (uint64, error) {
	return 1000 + number, nil
}

type sentCall struct {
	method  string
	spender common.Address
	amount  *big.Int
	gas     uint64
}

type fakeSender struct {
	mu    sync.Mutex
	next  int
	calls []sentCall
	fail  error
}

func (f *fakeSender) From() common.Address { return sender }

func (f *fakeSender) record(c sentCall) (*client.SentTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.calls = append(f.calls, c)
	f.next++
	return &client.SentTx{TxID: txHash(1000 + f.next), GasLimit: c.gas, GasPrice: big.NewInt(5)}, nil
}

func (f *fakeSender) Approve(_ context.Context, spender common.Address, amount *big.Int, gas uint64) (*client.SentTx, error) {
	return f.record(sentCall{method: "approve", spender: spender, amount: amount, gas: gas})
}

func (f *fakeSender) CreateEvent(_ context.Context, p client.CreateEventParams, gas uint64) (*client.SentTx, error) {
	return f.record(sentCall{method: "createEvent", amount: p.EscrowAmount, gas: gas})
}

func (f *fakeSender) SetResult(_ context.Context, _ *contracts.Version, _ common.Address, _ uint8, amount *big.Int, gas uint64) (*client.SentTx, error) {
	return f.record(sentCall{method: "setResult", amount: amount, gas: gas})
}

func (f *fakeSender) Vote(_ context.Context, _ *contracts.Version, _ common.Address, _ uint8, amount *big.Int, gas uint64) (*client.SentTx, error) {
	return f.record(sentCall{method: "vote", amount: amount, gas: gas})
}

// flakyStore fails the first status updates of pending transactions
type flakyStore struct {
	*storage.PebbleStorage

	mu             sync.Mutex
	updateFailures int
}

func (s *flakyStore) UpdatePendingTransaction(ctx context.Context, tx *model.PendingTransaction) error {
	s.mu.Lock()
	if s.updateFailures > 0 {
		s.updateFailures--
		s.mu.Unlock()
		return errors.New("write stalled")
	}
	s.mu.Unlock()
	return s.PebbleStorage.UpdatePendingTransaction(ctx, tx)
}

type fixedGas uint64

func (g fixedGas) VotingGasLimit(context.Context, string, uint8, string) (uint64, error) {
	return uint64(g), nil
}

type harness struct {
	store    *storage.PebbleStorage
	receipts *fakeReceipts
	sender   *fakeSender
	rec      *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	versions, err := contracts.NewResolver([]contracts.VersionRange{{Number: 3}})
	require.NoError(t, err)

	h := &harness{store: s, receipts: newFakeReceipts(), sender: &fakeSender{}}
	h.rec = NewReconciler(s, h.receipts, h.sender, versions, fixedGas(1500000),
		Config{AddressManager: addressManager, Workers: 4}, nil, nil)
	h.rec.now = func() time.Time { return time.Unix(1700000000, 0) }
	return h
}

func (h *harness) submit(t *testing.T, txid string, typ model.PendingTxType, created int64) {
	t.Helper()
	require.NoError(t, h.store.InsertPendingTransaction(context.Background(), &model.PendingTransaction{
		TxID:          txid,
		Type:          typ,
		Status:        model.TxStatusPending,
		Version:       3,
		GasLimit:      "250000",
		CreatedTime:   created,
		SenderAddress: strings.ToLower(sender.Hex()),
		EventAddress:  eventAddr,
		Name:          "who wins",
		Options:       []string{"A", "B"},
		ResultIndex:   1,
		Amount:        "100",
	}))
}

func (h *harness) pendingOf(t *testing.T, typ model.PendingTxType) []*model.PendingTransaction {
	t.Helper()
	txs, err := h.store.FindPendingTransactions(context.Background(), storage.PendingTxFilter{
		Status: model.TxStatusPending,
		Types:  []model.PendingTxType{typ},
	})
	require.NoError(t, err)
	return txs
}

func TestFailedApprovalIsCompensated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	approve := txHash(1)

	h.submit(t, approve, model.PendingApproveCreateEvent, 1)
	require.NoError(t, h.store.InsertEvent(ctx, &model.Event{
		TxID: approve, TxStatus: model.TxStatusPending, Status: model.StatusCreated,
	}))
	require.NoError(t, h.store.InsertResultSet(ctx, &model.ResultSet{
		TxID: approve, TxStatus: model.TxStatusPending, EventAddress: eventAddr, Amount: "100",
	}))
	h.receipts.confirm(approve, 50, false)

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Deferred)

	_, err = h.store.GetEvent(ctx, approve)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	rows, err := h.store.FindResultSets(ctx, storage.ResultSetFilter{TxID: approve})
	require.NoError(t, err)
	assert.Empty(t, rows)

	resets := h.pendingOf(t, model.PendingResetApprove)
	require.Len(t, resets, 1)
	assert.Equal(t, "250000", resets[0].GasLimit)
	assert.Equal(t, int64(1700000000), resets[0].CreatedTime)

	require.Len(t, h.sender.calls, 1)
	assert.Equal(t, "approve", h.sender.calls[0].method)
	assert.Equal(t, addressManager, h.sender.calls[0].spender)
	assert.Zero(t, h.sender.calls[0].amount.Sign())

	settled, err := h.store.GetPendingTransaction(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusFail, settled.Status)
	assert.Equal(t, uint64(50), settled.BlockNum)
	assert.Equal(t, uint64(1050), settled.BlockTime)
	assert.Equal(t, uint64(21000), settled.GasUsed)
}

func TestFailedVoteApprovalResetsEventAllowance(t *testing.T) {
	h := newHarness(t)
	approve := txHash(2)
	h.submit(t, approve, model.PendingApproveVote, 1)
	h.receipts.confirm(approve, 60, false)

	_, err := h.rec.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.sender.calls, 1)
	assert.Equal(t, common.HexToAddress(eventAddr), h.sender.calls[0].spender)
}

func TestApprovalSuccessSendsPairedAction(t *testing.T) {
	tests := []struct {
		approval model.PendingTxType
		paired   model.PendingTxType
		method   string
		gas      uint64
	}{
		{model.PendingApproveCreateEvent, model.PendingCreateEvent, "createEvent", 3500000},
		{model.PendingApproveSetResult, model.PendingSetResult, "setResult", 250000},
		{model.PendingApproveVote, model.PendingVote, "vote", 1500000},
	}
	for _, tt := range tests {
		t.Run(string(tt.approval), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			approve := txHash(3)

			h.submit(t, approve, tt.approval, 1)
			require.NoError(t, h.store.InsertBet(ctx, &model.Bet{
				TxID: approve, TxStatus: model.TxStatusPending, EventAddress: eventAddr, Amount: "100",
			}))
			h.receipts.confirm(approve, 70, true)

			res, err := h.rec.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Succeeded)

			require.Len(t, h.sender.calls, 1)
			assert.Equal(t, tt.method, h.sender.calls[0].method)
			assert.Equal(t, tt.gas, h.sender.calls[0].gas)
			assert.Equal(t, int64(100), h.sender.calls[0].amount.Int64())

			next := h.pendingOf(t, tt.paired)
			require.Len(t, next, 1, "exactly one paired transaction")
			assert.Equal(t, uint64(70), next[0].CreatedBlock)
			assert.Equal(t, "100", next[0].Amount)
			assert.Equal(t, []string{"A", "B"}, next[0].Options)
			assert.Equal(t, "5", next[0].GasPrice)
			assert.Equal(t, approve, next[0].ParentTxID)

			// the speculative bet now lives under the new txid
			bets, err := h.store.FindBets(ctx, storage.BetFilter{TxID: next[0].TxID})
			require.NoError(t, err)
			assert.Len(t, bets, 1)
			bets, err = h.store.FindBets(ctx, storage.BetFilter{TxID: approve})
			require.NoError(t, err)
			assert.Empty(t, bets)

			// a second pass has nothing left to do
			res, err = h.rec.Run(ctx)
			require.NoError(t, err)
			assert.Zero(t, res.Succeeded)
			assert.Len(t, h.pendingOf(t, tt.paired), 1)
		})
	}
}

func TestFailedDirectActionsMarkRowsFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	bet, setResult, withdraw, create := txHash(10), txHash(11), txHash(12), txHash(13)
	h.submit(t, bet, model.PendingBet, 1)
	h.submit(t, setResult, model.PendingSetResult, 2)
	h.submit(t, withdraw, model.PendingWithdraw, 3)
	h.submit(t, create, model.PendingCreateEvent, 4)

	require.NoError(t, h.store.InsertBet(ctx, &model.Bet{TxID: bet, TxStatus: model.TxStatusPending, Amount: "1"}))
	require.NoError(t, h.store.InsertResultSet(ctx, &model.ResultSet{TxID: setResult, TxStatus: model.TxStatusPending, Amount: "1"}))
	require.NoError(t, h.store.InsertWithdraw(ctx, &model.Withdraw{TxID: withdraw, TxStatus: model.TxStatusPending}))
	require.NoError(t, h.store.InsertEvent(ctx, &model.Event{TxID: create, TxStatus: model.TxStatusPending}))

	for _, txid := range []string{bet, setResult, withdraw, create} {
		h.receipts.confirm(txid, 80, false)
	}

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Failed)
	assert.Empty(t, h.sender.calls, "direct actions are not compensated on chain")

	bets, err := h.store.FindBets(ctx, storage.BetFilter{TxID: bet})
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, model.TxStatusFail, bets[0].TxStatus)

	rs, err := h.store.FindResultSets(ctx, storage.ResultSetFilter{TxID: setResult})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, model.TxStatusFail, rs[0].TxStatus)

	ws, err := h.store.FindWithdraws(ctx, storage.WithdrawFilter{TxID: withdraw})
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, model.TxStatusFail, ws[0].TxStatus)

	_, err = h.store.GetEvent(ctx, create)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReceiptErrorsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	broken, ok, unmined := txHash(20), txHash(21), txHash(22)
	h.submit(t, broken, model.PendingBet, 1)
	h.submit(t, ok, model.PendingBet, 2)
	h.submit(t, unmined, model.PendingBet, 3)

	h.receipts.errs[common.HexToHash(broken)] = errors.New("connection refused")
	h.receipts.confirm(ok, 90, true)

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Pending)
	require.Len(t, res.Deferred, 1)
	assert.Equal(t, broken, res.Deferred[0].TxID)

	still := h.pendingOf(t, model.PendingBet)
	require.Len(t, still, 2)

	// once the node recovers the deferred transaction settles
	delete(h.receipts.errs, common.HexToHash(broken))
	h.receipts.confirm(broken, 91, true)
	res, err = h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, h.pendingOf(t, model.PendingBet), 1)
}

func TestFailedFollowUpLeavesTransactionPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	approve := txHash(30)

	h.submit(t, approve, model.PendingApproveSetResult, 1)
	h.receipts.confirm(approve, 100, true)
	h.sender.fail = fmt.Errorf("nonce too low")

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Deferred, 1)
	assert.ErrorContains(t, res.Deferred[0], "nonce too low")
	assert.Len(t, h.pendingOf(t, model.PendingApproveSetResult), 1)

	h.sender.fail = nil
	res, err = h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, h.pendingOf(t, model.PendingSetResult), 1)
}

func TestApprovalRetryReusesRecordedFollowUp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rec.store = &flakyStore{PebbleStorage: h.store, updateFailures: 1}
	approve := txHash(40)

	h.submit(t, approve, model.PendingApproveCreateEvent, 1)
	require.NoError(t, h.store.InsertEvent(ctx, &model.Event{
		TxID: approve, TxStatus: model.TxStatusPending, Status: model.StatusCreated,
	}))
	h.receipts.confirm(approve, 110, true)

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Deferred, 1)
	assert.ErrorContains(t, res.Deferred[0], "write stalled")
	assert.Len(t, h.pendingOf(t, model.PendingApproveCreateEvent), 1)

	res, err = h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, res.Deferred)

	require.Len(t, h.sender.calls, 1, "createEvent is sent once")
	assert.Equal(t, "createEvent", h.sender.calls[0].method)

	creates, err := h.store.FindPendingTransactions(ctx, storage.PendingTxFilter{
		Types: []model.PendingTxType{model.PendingCreateEvent},
	})
	require.NoError(t, err)
	require.Len(t, creates, 1)
	assert.Equal(t, approve, creates[0].ParentTxID)

	settled, err := h.store.GetPendingTransaction(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusSuccess, settled.Status)

	ev, err := h.store.GetEvent(ctx, creates[0].TxID)
	require.NoError(t, err)
	assert.Equal(t, creates[0].TxID, ev.TxID)
}

func TestFailedApprovalRetryResetsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rec.store = &flakyStore{PebbleStorage: h.store, updateFailures: 1}
	approve := txHash(41)

	h.submit(t, approve, model.PendingApproveSetResult, 1)
	require.NoError(t, h.store.InsertResultSet(ctx, &model.ResultSet{
		TxID: approve, TxStatus: model.TxStatusPending, EventAddress: eventAddr, Amount: "100",
	}))
	h.receipts.confirm(approve, 120, false)

	res, err := h.rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Deferred, 1)

	res, err = h.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	require.Len(t, h.sender.calls, 1, "the allowance is reset once")
	assert.Equal(t, "approve", h.sender.calls[0].method)
	assert.Len(t, h.pendingOf(t, model.PendingResetApprove), 1)

	rows, err := h.store.FindResultSets(ctx, storage.ResultSetFilter{TxID: approve})
	require.NoError(t, err)
	assert.Empty(t, rows)

	settled, err := h.store.GetPendingTransaction(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusFail, settled.Status)
}
