package consensus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

type memStore struct {
	mu     sync.Mutex
	events map[string]*model.Event
	getErr error
}

func newMemStore(events ...*model.Event) *memStore {
	s := &memStore{events: make(map[string]*model.Event)}
	for _, ev := range events {
		s.events[ev.Address] = ev
	}
	return s
}

func (s *memStore) GetEventByAddress(_ context.Context, address string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	ev, ok := s.events[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *memStore) UpdateEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.Address] = &cp
	return nil
}

func newEvent() *model.Event {
	return &model.Event{
		TxID:               "0xc",
		TxStatus:           model.TxStatusSuccess,
		Address:            "0xe",
		CurrentResultIndex: model.InvalidResultIndex,
		Status:             model.StatusCreated,
		BetStartTime:       1000,
		BetEndTime:         2000,
		ResultSetStartTime: 2000,
		ResultSetEndTime:   3000,
	}
}

func TestAdvanceRound(t *testing.T) {
	ev := newEvent()
	rs := &model.ResultSet{EventRound: 0, ResultIndex: 2, NextConsensusThreshold: "200", NextArbitrationEndTime: 5000}

	require.True(t, AdvanceRound(ev, rs))
	assert.Equal(t, uint8(1), ev.CurrentRound)
	assert.Equal(t, uint8(2), ev.CurrentResultIndex)
	assert.Equal(t, "200", ev.ConsensusThreshold)
	assert.Equal(t, uint64(5000), ev.ArbitrationEndTime)

	// a replay of the same round changes nothing
	assert.False(t, AdvanceRound(ev, rs))

	// an older round never regresses the counter
	ev.CurrentRound = 3
	assert.False(t, AdvanceRound(ev, &model.ResultSet{EventRound: 1, ResultIndex: 0}))
	assert.Equal(t, uint8(3), ev.CurrentRound)

	// the counter cannot overflow
	ev.CurrentRound = 255
	assert.False(t, AdvanceRound(ev, &model.ResultSet{EventRound: 255}))
}

func TestRoundAdvancerApply(t *testing.T) {
	ctx := context.Background()

	t.Run("advances", func(t *testing.T) {
		store := newMemStore(newEvent())
		a := NewRoundAdvancer(store, nil)

		outcome, err := a.Apply(ctx, &model.ResultSet{EventAddress: "0xe", EventRound: 0, ResultIndex: 2})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAdvanced, outcome)

		ev, _ := store.GetEventByAddress(ctx, "0xe")
		assert.Equal(t, uint8(1), ev.CurrentRound)
		assert.Equal(t, uint8(2), ev.CurrentResultIndex)
	})

	t.Run("missing event is skipped", func(t *testing.T) {
		a := NewRoundAdvancer(newMemStore(), nil)
		outcome, err := a.Apply(ctx, &model.ResultSet{EventAddress: "0xmissing"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.getErr = errors.New("db down")
		_, err := NewRoundAdvancer(store, nil).Apply(ctx, &model.ResultSet{EventAddress: "0xe"})
		assert.Error(t, err)
	})
}

func TestRacingResultSetsSettleOnHighestRound(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newEvent())
	a := NewRoundAdvancer(store, nil)

	var wg sync.WaitGroup
	for round := 0; round < 8; round++ {
		wg.Add(1)
		go func(r uint8) {
			defer wg.Done()
			_, err := a.Apply(ctx, &model.ResultSet{EventAddress: "0xe", EventRound: r, ResultIndex: r})
			assert.NoError(t, err)
		}(uint8(round))
	}
	wg.Wait()

	ev, _ := store.GetEventByAddress(ctx, "0xe")
	assert.Equal(t, uint8(8), ev.CurrentRound)
	assert.Equal(t, uint8(7), ev.CurrentResultIndex)
	assert.Empty(t, a.locks.locks)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name   string
		from   model.EventStatus
		round  uint8
		arbEnd uint64
		t      uint64
		want   model.EventStatus
	}{
		{"before betting", model.StatusCreated, 0, 0, 900, model.StatusCreated},
		{"betting window", model.StatusCreated, 0, 0, 1500, model.StatusBetting},
		{"oracle window", model.StatusBetting, 0, 0, 2500, model.StatusOracleResultSetting},
		{"open result setting", model.StatusBetting, 0, 0, 3500, model.StatusOpenResultSetting},
		{"created skips to open", model.StatusCreated, 0, 0, 3500, model.StatusOpenResultSetting},
		{"result set moves to arbitration", model.StatusOracleResultSetting, 1, 9000, 2500, model.StatusArbitration},
		{"open moves to arbitration", model.StatusOpenResultSetting, 1, 9000, 4000, model.StatusArbitration},
		{"arbitration ends", model.StatusArbitration, 1, 5000, 5000, model.StatusWithdrawing},
		{"arbitration running", model.StatusArbitration, 1, 5000, 4999, model.StatusArbitration},
		{"oracle chain to withdrawing", model.StatusOracleResultSetting, 1, 4000, 4500, model.StatusWithdrawing},
		{"withdrawing is final", model.StatusWithdrawing, 1, 0, 9999, model.StatusWithdrawing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvent()
			ev.Status = tt.from
			ev.CurrentRound = tt.round
			ev.ArbitrationEndTime = tt.arbEnd
			assert.Equal(t, tt.want, DeriveStatus(ev, tt.t))
		})
	}
}

func TestDeriveStatusOnlyMovesForward(t *testing.T) {
	ev := newEvent()
	var seen []model.EventStatus
	for _, ts := range []uint64{500, 1500, 1200, 2500, 3500, 2500, 4000} {
		next := DeriveStatus(ev, ts)
		assert.False(t, next.Before(ev.Status), "status regressed at %d", ts)
		ev.Status = next
		seen = append(seen, next)
	}
	assert.Equal(t, model.StatusOpenResultSetting, ev.Status)
	assert.Contains(t, seen, model.StatusBetting)
}

func TestStatusDeriverWithPebble(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	defer s.Close()

	ev := newEvent()
	require.NoError(t, s.InsertEvent(ctx, ev))

	arb := newEvent()
	arb.TxID, arb.Address = "0xc2", "0xe2"
	arb.Status = model.StatusArbitration
	arb.CurrentRound = 1
	arb.ArbitrationEndTime = 1400
	require.NoError(t, s.InsertEvent(ctx, arb))

	pending := newEvent()
	pending.TxID, pending.Address = "0xc3", ""
	pending.TxStatus = model.TxStatusPending
	require.NoError(t, s.InsertEvent(ctx, pending))

	d := NewStatusDeriver(s, nil)

	withdrawing, err := d.Apply(ctx, 1500)
	require.NoError(t, err)
	require.Len(t, withdrawing, 1)
	assert.Equal(t, "0xe2", withdrawing[0].Address)

	got, err := s.GetEvent(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, model.StatusBetting, got.Status)

	got, err = s.GetEvent(ctx, "0xc3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, got.Status, "speculative rows are not advanced")

	_, err = d.Apply(ctx, 3500)
	require.NoError(t, err)
	got, err = s.GetEvent(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpenResultSetting, got.Status)

	// already withdrawing events are not reported twice
	withdrawing, err = d.Apply(ctx, 3600)
	require.NoError(t, err)
	assert.Empty(t, withdrawing)
}
