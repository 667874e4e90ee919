package leaderboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

const (
	eventAddr = "0x00000000000000000000000000000000000000e1"
	oracle    = "0x00000000000000000000000000000000000000a0"
	alice     = "0x00000000000000000000000000000000000000a1"
	bob       = "0x00000000000000000000000000000000000000b0"
	carol     = "0x00000000000000000000000000000000000000c0"

	otherEventAddr = "0x00000000000000000000000000000000000000e2"
)

type fakeWinnings struct {
	mu      sync.Mutex
	payouts map[string]string
	fail    map[string]error
	calls   []string
}

func (f *fakeWinnings) CalculateWinnings(_ context.Context, _ *contracts.Version, _, participant common.Address) (string, error) {
	addr := strings.ToLower(participant.Hex())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, addr)
	if err := f.fail[addr]; err != nil {
		return "", err
	}
	return f.payouts[addr], nil
}

// failingStore rejects the first settles of one event's rows
type failingStore struct {
	*storage.PebbleStorage

	mu        sync.Mutex
	failEvent string
	failures  int
}

func (s *failingStore) SettleEventLeaderboard(ctx context.Context, row *model.EventLeaderboard) error {
	s.mu.Lock()
	if row.EventAddress == s.failEvent && s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("write stalled")
	}
	s.mu.Unlock()
	return s.PebbleStorage.SettleEventLeaderboard(ctx, row)
}

func newResolver(t *testing.T) *contracts.Resolver {
	t.Helper()
	r, err := contracts.NewResolver([]contracts.VersionRange{{Number: 3}})
	require.NoError(t, err)
	return r
}

func setup(t *testing.T) (*storage.PebbleStorage, *model.Event) {
	t.Helper()
	ctx := context.Background()

	s, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ev := &model.Event{
		TxID:               "0xcreate",
		TxStatus:           model.TxStatusSuccess,
		BlockNum:           10,
		Address:            eventAddr,
		CurrentRound:       2,
		CurrentResultIndex: 1,
		Status:             model.StatusWithdrawing,
	}
	require.NoError(t, s.InsertEvent(ctx, ev))

	require.NoError(t, s.InsertResultSet(ctx, &model.ResultSet{
		TxID: "0xrs0", TxStatus: model.TxStatusSuccess, EventAddress: eventAddr,
		CentralizedOracleAddress: oracle, ResultIndex: 1, Amount: "100", EventRound: 0,
	}))
	// later rounds carry no participant and are not counted
	require.NoError(t, s.InsertResultSet(ctx, &model.ResultSet{
		TxID: "0xrs1", TxStatus: model.TxStatusSuccess, EventAddress: eventAddr,
		ResultIndex: 2, Amount: "300", EventRound: 1,
	}))

	bets := []*model.Bet{
		{TxID: "0xb1", TxStatus: model.TxStatusSuccess, TxType: model.TxTypeBet, EventAddress: eventAddr, BetterAddress: alice, ResultIndex: 1, Amount: "50"},
		{TxID: "0xb2", TxStatus: model.TxStatusSuccess, TxType: model.TxTypeVote, EventAddress: eventAddr, BetterAddress: alice, ResultIndex: 1, Amount: "25.5", EventRound: 1},
		{TxID: "0xb3", TxStatus: model.TxStatusSuccess, TxType: model.TxTypeBet, EventAddress: eventAddr, BetterAddress: bob, ResultIndex: 2, Amount: "40"},
		{TxID: "0xb4", TxStatus: model.TxStatusFail, TxType: model.TxTypeBet, EventAddress: eventAddr, BetterAddress: carol, ResultIndex: 1, Amount: "999"},
		{TxID: "0xb5", TxStatus: model.TxStatusPending, TxType: model.TxTypeBet, EventAddress: eventAddr, BetterAddress: carol, ResultIndex: 1, Amount: "999"},
	}
	for _, b := range bets {
		require.NoError(t, s.InsertBet(ctx, b))
	}
	return s, ev
}

func TestAggregateEvent(t *testing.T) {
	ctx := context.Background()
	s, ev := setup(t)

	winnings := &fakeWinnings{payouts: map[string]string{alice: "150", oracle: "120"}}
	a := NewAggregator(s, winnings, newResolver(t), Config{Workers: 2}, nil)

	res, err := a.AggregateEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Participants)
	assert.Empty(t, res.Failed)

	// only participants on the final result are asked for winnings
	assert.ElementsMatch(t, []string{alice, oracle}, winnings.calls)

	rows, err := s.FindEventLeaderboard(ctx, eventAddr)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	got := make(map[string]*model.EventLeaderboard)
	for _, r := range rows {
		got[r.UserAddress] = r
	}
	assert.Equal(t, "75.5", got[alice].Investments)
	assert.Equal(t, "150", got[alice].Winnings)
	assert.Equal(t, "40", got[bob].Investments)
	assert.Equal(t, "0", got[bob].Winnings)
	assert.Equal(t, "0", got[bob].ReturnRatio)
	assert.Equal(t, "100", got[oracle].Investments)
	assert.Equal(t, "1.2", got[oracle].ReturnRatio)

	global, err := s.GetGlobalLeaderboard(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "75.5", global.Investments)
	assert.Equal(t, "150", global.Winnings)
}

func TestAggregateFoldsIntoGlobalRow(t *testing.T) {
	ctx := context.Background()
	s, ev := setup(t)

	require.NoError(t, s.SetGlobalLeaderboard(ctx, &model.GlobalLeaderboard{
		UserAddress: alice, Investments: "24.5", Winnings: "50",
	}))

	a := NewAggregator(s, &fakeWinnings{payouts: map[string]string{alice: "150", oracle: "0"}}, newResolver(t), Config{}, nil)
	require.NoError(t, a.Aggregate(ctx, []*model.Event{ev}))

	global, err := s.GetGlobalLeaderboard(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "100", global.Investments)
	assert.Equal(t, "200", global.Winnings)
	assert.Equal(t, "2", global.ReturnRatio)
}

func TestParticipantFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	s, ev := setup(t)

	boom := errors.New("call reverted")
	winnings := &fakeWinnings{
		payouts: map[string]string{oracle: "120"},
		fail:    map[string]error{alice: boom},
	}
	a := NewAggregator(s, winnings, newResolver(t), Config{}, nil)

	res, err := a.AggregateEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, alice, res.Failed[0].Participant)
	assert.ErrorIs(t, res.Failed[0], boom)

	_, err = s.GetEventLeaderboard(ctx, eventAddr, alice)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	row, err := s.GetEventLeaderboard(ctx, eventAddr, oracle)
	require.NoError(t, err)
	assert.Equal(t, "120", row.Winnings)
	_, err = s.GetEventLeaderboard(ctx, eventAddr, bob)
	assert.NoError(t, err)
}

func TestAggregateEventWithoutParticipants(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	defer s.Close()

	a := NewAggregator(s, &fakeWinnings{}, newResolver(t), Config{}, nil)
	res, err := a.AggregateEvent(ctx, &model.Event{Address: eventAddr, CurrentResultIndex: 0})
	require.NoError(t, err)
	assert.Zero(t, res.Participants)

	rows, err := s.ListGlobalLeaderboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExternalComputationError(t *testing.T) {
	inner := errors.New("timeout")
	err := &ExternalComputationError{Participant: bob, Err: inner}
	assert.Contains(t, err.Error(), bob)
	assert.ErrorIs(t, err, inner)
}

func TestAggregateContinuesPastFailingEvent(t *testing.T) {
	ctx := context.Background()
	s, ev := setup(t)

	other := &model.Event{
		TxID:               "0xcreate2",
		TxStatus:           model.TxStatusSuccess,
		BlockNum:           20,
		Address:            otherEventAddr,
		CurrentResultIndex: 0,
		Status:             model.StatusWithdrawing,
	}
	require.NoError(t, s.InsertEvent(ctx, other))
	require.NoError(t, s.InsertBet(ctx, &model.Bet{
		TxID: "0xb6", TxStatus: model.TxStatusSuccess, TxType: model.TxTypeBet,
		EventAddress: otherEventAddr, BetterAddress: carol, ResultIndex: 0, Amount: "10",
	}))

	store := &failingStore{PebbleStorage: s, failEvent: eventAddr, failures: 1}
	winnings := &fakeWinnings{payouts: map[string]string{alice: "150", oracle: "120", carol: "30"}}
	a := NewAggregator(store, winnings, newResolver(t), Config{Workers: 1}, nil)

	err := a.Aggregate(ctx, []*model.Event{ev, other})
	require.Error(t, err)
	assert.Contains(t, err.Error(), eventAddr)

	row, err := s.GetEventLeaderboard(ctx, otherEventAddr, carol)
	require.NoError(t, err)
	assert.Equal(t, "30", row.Winnings)
	assert.True(t, row.Settled)

	stored, err := s.GetEvent(ctx, other.TxID)
	require.NoError(t, err)
	assert.True(t, stored.LeaderboardDone)
	stored, err = s.GetEvent(ctx, ev.TxID)
	require.NoError(t, err)
	assert.False(t, stored.LeaderboardDone)

	// the retry settles the rest of the first event without counting anyone twice
	require.NoError(t, a.Aggregate(ctx, []*model.Event{ev}))

	stored, err = s.GetEvent(ctx, ev.TxID)
	require.NoError(t, err)
	assert.True(t, stored.LeaderboardDone)

	rows, err := s.FindEventLeaderboard(ctx, eventAddr)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	global, err := s.GetGlobalLeaderboard(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "75.5", global.Investments)
	assert.Equal(t, "150", global.Winnings)

	global, err = s.GetGlobalLeaderboard(ctx, oracle)
	require.NoError(t, err)
	assert.Equal(t, "100", global.Investments)
	assert.Equal(t, "120", global.Winnings)

	global, err = s.GetGlobalLeaderboard(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, "10", global.Investments)
}

func TestAggregateEventSkipsSettledParticipants(t *testing.T) {
	ctx := context.Background()
	s, ev := setup(t)

	winnings := &fakeWinnings{payouts: map[string]string{alice: "150", oracle: "120"}}
	a := NewAggregator(s, winnings, newResolver(t), Config{}, nil)

	_, err := a.AggregateEvent(ctx, ev)
	require.NoError(t, err)

	winnings.calls = nil
	_, err = a.AggregateEvent(ctx, ev)
	require.NoError(t, err)
	assert.Empty(t, winnings.calls)

	global, err := s.GetGlobalLeaderboard(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "75.5", global.Investments)
	assert.Equal(t, "150", global.Winnings)
}
