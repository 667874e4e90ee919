package consensus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// statusRule moves events in one of the from states to the to state when
// ready holds at block time t.
type statusRule struct {
	from  []model.EventStatus
	to    model.EventStatus
	ready func(ev *model.Event, t uint64) bool
}

// statusRules are applied in order, each as an independent update, so one
// pass can carry an event across several phases. A rule fires once its phase
// has started even if block time is already past the phase's end; the rules
// after it then move the event on.
var statusRules = []statusRule{
	{
		from: []model.EventStatus{model.StatusCreated},
		to:   model.StatusBetting,
		ready: func(ev *model.Event, t uint64) bool {
			return ev.BetStartTime <= t
		},
	},
	{
		from: []model.EventStatus{model.StatusBetting},
		to:   model.StatusOracleResultSetting,
		ready: func(ev *model.Event, t uint64) bool {
			return ev.BetEndTime <= t
		},
	},
	{
		from: []model.EventStatus{model.StatusOracleResultSetting},
		to:   model.StatusOpenResultSetting,
		ready: func(ev *model.Event, t uint64) bool {
			return ev.ResultSetEndTime <= t && ev.CurrentRound == 0
		},
	},
	{
		from: []model.EventStatus{model.StatusOracleResultSetting, model.StatusOpenResultSetting},
		to:   model.StatusArbitration,
		ready: func(ev *model.Event, _ uint64) bool {
			return ev.CurrentRound > 0
		},
	},
	{
		from: []model.EventStatus{model.StatusArbitration},
		to:   model.StatusWithdrawing,
		ready: func(ev *model.Event, t uint64) bool {
			return ev.ArbitrationEndTime <= t
		},
	},
}

// DeriveStatus returns the status ev reaches at block time t when the rules
// run once in order.
func DeriveStatus(ev *model.Event, t uint64) model.EventStatus {
	status := ev.Status
	for _, rule := range statusRules {
		if containsStatus(rule.from, status) && rule.ready(ev, t) {
			status = rule.to
		}
	}
	return status
}

func containsStatus(list []model.EventStatus, s model.EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// StatusStore is the bulk update the deriver issues
type StatusStore interface {
	UpdateEventStatus(ctx context.Context, filter storage.EventFilter, status model.EventStatus) ([]*model.Event, error)
}

// StatusDeriver applies the status rules to every confirmed event
type StatusDeriver struct {
	store  StatusStore
	logger *zap.Logger
}

// NewStatusDeriver creates a status deriver
func NewStatusDeriver(store StatusStore, logger *zap.Logger) *StatusDeriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusDeriver{store: store, logger: logger}
}

// Apply runs every rule at block time t and returns the events that entered
// WITHDRAWING.
func (d *StatusDeriver) Apply(ctx context.Context, t uint64) ([]*model.Event, error) {
	var withdrawing []*model.Event

	for _, rule := range statusRules {
		rule := rule
		changed, err := d.store.UpdateEventStatus(ctx, storage.EventFilter{
			TxStatus: model.TxStatusSuccess,
			Statuses: rule.from,
			Match: func(ev *model.Event) bool {
				return rule.ready(ev, t)
			},
		}, rule.to)
		if err != nil {
			return nil, fmt.Errorf("failed to move events to %s: %w", rule.to, err)
		}

		if len(changed) > 0 {
			d.logger.Info("event status updated",
				zap.String("status", string(rule.to)),
				zap.Int("count", len(changed)),
				zap.Uint64("block_time", t))
		}
		if rule.to == model.StatusWithdrawing {
			withdrawing = append(withdrawing, changed...)
		}
	}

	return withdrawing, nil
}
