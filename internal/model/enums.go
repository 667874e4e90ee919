package model

// InvalidResultIndex marks an event whose winning result has not been set yet.
const InvalidResultIndex = 255

// DefaultLanguage is the language assigned to events created without one.
const DefaultLanguage = "zh-Hans-CN"

// TxStatus is the confirmation state of a record or pending transaction
type TxStatus string

const (
	TxStatusPending TxStatus = "PENDING"
	TxStatusSuccess TxStatus = "SUCCESS"
	TxStatusFail    TxStatus = "FAIL"
)

// IsTerminal reports whether the status can no longer change
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusSuccess || s == TxStatusFail
}

// TxType tags a participation record as a first-round bet or an arbitration vote
type TxType string

const (
	TxTypeBet  TxType = "BET"
	TxTypeVote TxType = "VOTE"
)

// ClassifyRound returns BET for round 0 and VOTE for every later round.
func ClassifyRound(eventRound uint8) TxType {
	if eventRound == 0 {
		return TxTypeBet
	}
	return TxTypeVote
}

// EventStatus is the lifecycle phase of an event
type EventStatus string

const (
	StatusCreated             EventStatus = "CREATED"
	StatusBetting             EventStatus = "BETTING"
	StatusOracleResultSetting EventStatus = "ORACLE_RESULT_SETTING"
	StatusOpenResultSetting   EventStatus = "OPEN_RESULT_SETTING"
	StatusArbitration         EventStatus = "ARBITRATION"
	StatusWithdrawing         EventStatus = "WITHDRAWING"
)

// statusOrder is the only direction an event may move in.
var statusOrder = map[EventStatus]int{
	StatusCreated:             0,
	StatusBetting:             1,
	StatusOracleResultSetting: 2,
	StatusOpenResultSetting:   3,
	StatusArbitration:         4,
	StatusWithdrawing:         5,
}

// Rank returns the position of the status in the lifecycle, or -1 if unknown
func (s EventStatus) Rank() int {
	r, ok := statusOrder[s]
	if !ok {
		return -1
	}
	return r
}

// Before reports whether s comes strictly earlier in the lifecycle than other
func (s EventStatus) Before(other EventStatus) bool {
	return s.Rank() >= 0 && other.Rank() >= 0 && s.Rank() < other.Rank()
}

// PendingTxType enumerates the transactions this node can submit
type PendingTxType string

const (
	PendingApproveCreateEvent PendingTxType = "APPROVECREATEEVENT"
	PendingCreateEvent        PendingTxType = "CREATEEVENT"
	PendingBet                PendingTxType = "BET"
	PendingApproveSetResult   PendingTxType = "APPROVESETRESULT"
	PendingSetResult          PendingTxType = "SETRESULT"
	PendingApproveVote        PendingTxType = "APPROVEVOTE"
	PendingVote               PendingTxType = "VOTE"
	PendingFinalizeResult     PendingTxType = "FINALIZERESULT"
	PendingWithdraw           PendingTxType = "WITHDRAW"
	PendingWithdrawEscrow     PendingTxType = "WITHDRAWESCROW"
	PendingTransfer           PendingTxType = "TRANSFER"
	PendingResetApprove       PendingTxType = "RESETAPPROVE"
)

var validPendingTypes = map[PendingTxType]bool{
	PendingApproveCreateEvent: true,
	PendingCreateEvent:        true,
	PendingBet:                true,
	PendingApproveSetResult:   true,
	PendingSetResult:          true,
	PendingApproveVote:        true,
	PendingVote:               true,
	PendingFinalizeResult:     true,
	PendingWithdraw:           true,
	PendingWithdrawEscrow:     true,
	PendingTransfer:           true,
	PendingResetApprove:       true,
}

// Valid reports whether t is a known transaction type
func (t PendingTxType) Valid() bool {
	return validPendingTypes[t]
}

// IsApproval reports whether t is the first half of a two-phase action
func (t PendingTxType) IsApproval() bool {
	switch t {
	case PendingApproveCreateEvent, PendingApproveSetResult, PendingApproveVote:
		return true
	}
	return false
}

// PairedAction returns the execution type that follows a successful approval.
func (t PendingTxType) PairedAction() (PendingTxType, bool) {
	switch t {
	case PendingApproveCreateEvent:
		return PendingCreateEvent, true
	case PendingApproveSetResult:
		return PendingSetResult, true
	case PendingApproveVote:
		return PendingVote, true
	}
	return "", false
}
