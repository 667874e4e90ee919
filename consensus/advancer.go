// Package consensus tracks the multi-round result consensus of events: the
// round counter advanced by result sets and the lifecycle status derived from
// block time.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// ErrEntityNotFound is reported when a result set names an event that is not
// indexed.
var ErrEntityNotFound = errors.New("event not found")

// Outcome is the effect of applying one result set
type Outcome int

const (
	// OutcomeAdvanced means the event moved to a later round
	OutcomeAdvanced Outcome = iota
	// OutcomeStale means the event was already at or past the round
	OutcomeStale
	// OutcomeSkipped means the event was not found
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeStale:
		return "stale"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// Store is the event access the advancer needs
type Store interface {
	GetEventByAddress(ctx context.Context, address string) (*model.Event, error)
	UpdateEvent(ctx context.Context, ev *model.Event) error
}

// AdvanceRound applies the round rule to ev. It reports whether ev changed.
// A result set for round r moves the event to round r+1 and never back.
func AdvanceRound(ev *model.Event, rs *model.ResultSet) bool {
	next := uint16(rs.EventRound) + 1
	if next <= uint16(ev.CurrentRound) || next > 255 {
		return false
	}
	ev.CurrentRound = uint8(next)
	ev.CurrentResultIndex = rs.ResultIndex
	ev.ConsensusThreshold = rs.NextConsensusThreshold
	ev.ArbitrationEndTime = rs.NextArbitrationEndTime
	return true
}

// RoundAdvancer persists round changes. Updates to the same event are
// serialized so racing result sets settle on the highest round.
type RoundAdvancer struct {
	store  Store
	locks  *keyedMutex
	logger *zap.Logger
}

// NewRoundAdvancer creates a round advancer
func NewRoundAdvancer(store Store, logger *zap.Logger) *RoundAdvancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundAdvancer{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Apply advances the event named by rs if rs is for a newer round
func (a *RoundAdvancer) Apply(ctx context.Context, rs *model.ResultSet) (Outcome, error) {
	unlock := a.locks.Lock(rs.EventAddress)
	defer unlock()

	ev, err := a.store.GetEventByAddress(ctx, rs.EventAddress)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Warn("result set for unknown event",
			zap.String("event", rs.EventAddress),
			zap.String("txid", rs.TxID),
			zap.Error(ErrEntityNotFound))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load event %s: %w", rs.EventAddress, err)
	}

	if !AdvanceRound(ev, rs) {
		return OutcomeStale, nil
	}

	if err := a.store.UpdateEvent(ctx, ev); err != nil {
		return 0, fmt.Errorf("failed to update event %s: %w", rs.EventAddress, err)
	}

	a.logger.Debug("event round advanced",
		zap.String("event", ev.Address),
		zap.Uint8("round", ev.CurrentRound),
		zap.Uint8("result_index", ev.CurrentResultIndex))
	return OutcomeAdvanced, nil
}

// keyedMutex hands out one mutex per key and drops it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
