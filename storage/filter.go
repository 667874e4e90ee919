package storage

import "github.com/0xmhha/predict-indexer/internal/model"

// Uint8 returns a pointer for the optional uint8 filter fields
func Uint8(v uint8) *uint8 {
	return &v
}

// EventFilter selects event rows. Zero values match everything.
type EventFilter struct {
	TxID     string
	Address  string
	TxStatus model.TxStatus
	Statuses []model.EventStatus

	// BlockNumBelow matches rows with blockNum < BlockNumBelow when non-zero
	BlockNumBelow uint64

	// Match is applied last for conditions on time boundaries or rounds
	Match func(*model.Event) bool
}

func (f EventFilter) matches(ev *model.Event) bool {
	if f.TxID != "" && ev.TxID != f.TxID {
		return false
	}
	if f.Address != "" && ev.Address != f.Address {
		return false
	}
	if f.TxStatus != "" && ev.TxStatus != f.TxStatus {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, ev.Status) {
		return false
	}
	if f.BlockNumBelow != 0 && ev.BlockNum >= f.BlockNumBelow {
		return false
	}
	if f.Match != nil && !f.Match(ev) {
		return false
	}
	return true
}

func containsStatus(list []model.EventStatus, s model.EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BetFilter selects bet rows
type BetFilter struct {
	TxID          string
	EventAddress  string
	BetterAddress string
	TxStatus      model.TxStatus
	TxType        model.TxType
	EventRound    *uint8
	ResultIndex   *uint8
	BlockNumBelow uint64
}

func (f BetFilter) matches(b *model.Bet) bool {
	if f.TxID != "" && b.TxID != f.TxID {
		return false
	}
	if f.EventAddress != "" && b.EventAddress != f.EventAddress {
		return false
	}
	if f.BetterAddress != "" && b.BetterAddress != f.BetterAddress {
		return false
	}
	if f.TxStatus != "" && b.TxStatus != f.TxStatus {
		return false
	}
	if f.TxType != "" && b.TxType != f.TxType {
		return false
	}
	if f.EventRound != nil && b.EventRound != *f.EventRound {
		return false
	}
	if f.ResultIndex != nil && b.ResultIndex != *f.ResultIndex {
		return false
	}
	if f.BlockNumBelow != 0 && b.BlockNum >= f.BlockNumBelow {
		return false
	}
	return true
}

// ResultSetFilter selects result set rows
type ResultSetFilter struct {
	TxID          string
	EventAddress  string
	TxStatus      model.TxStatus
	EventRound    *uint8
	BlockNumBelow uint64
}

func (f ResultSetFilter) matches(rs *model.ResultSet) bool {
	if f.TxID != "" && rs.TxID != f.TxID {
		return false
	}
	if f.EventAddress != "" && rs.EventAddress != f.EventAddress {
		return false
	}
	if f.TxStatus != "" && rs.TxStatus != f.TxStatus {
		return false
	}
	if f.EventRound != nil && rs.EventRound != *f.EventRound {
		return false
	}
	if f.BlockNumBelow != 0 && rs.BlockNum >= f.BlockNumBelow {
		return false
	}
	return true
}

// WithdrawFilter selects withdraw rows
type WithdrawFilter struct {
	TxID          string
	EventAddress  string
	WinnerAddress string
	TxStatus      model.TxStatus
}

func (f WithdrawFilter) matches(w *model.Withdraw) bool {
	if f.TxID != "" && w.TxID != f.TxID {
		return false
	}
	if f.EventAddress != "" && w.EventAddress != f.EventAddress {
		return false
	}
	if f.WinnerAddress != "" && w.WinnerAddress != f.WinnerAddress {
		return false
	}
	if f.TxStatus != "" && w.TxStatus != f.TxStatus {
		return false
	}
	return true
}

// PendingTxFilter selects pending transactions
type PendingTxFilter struct {
	Status       model.TxStatus
	Types        []model.PendingTxType
	EventAddress string
	ParentTxID   string
}

func (f PendingTxFilter) matches(tx *model.PendingTransaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.ParentTxID != "" && tx.ParentTxID != f.ParentTxID {
		return false
	}
	if f.EventAddress != "" && tx.EventAddress != f.EventAddress {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if t == tx.Type {
				return true
			}
		}
		return false
	}
	return true
}
