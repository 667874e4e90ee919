package model

// Block is a synchronization checkpoint. One row exists per synced block.
type Block struct {
	BlockNum  uint64 `json:"blockNum"`
	BlockTime uint64 `json:"blockTime"`
}

// Event is an indexed MultipleResultsEvent contract instance
type Event struct {
	TxID         string   `json:"txid"`
	TxStatus     TxStatus `json:"txStatus"`
	BlockNum     uint64   `json:"blockNum"`
	Address      string   `json:"address"`
	OwnerAddress string   `json:"ownerAddress"`
	Version      uint16   `json:"version"`
	Name         string   `json:"name"`
	Results      []string `json:"results"`
	NumOfResults uint8    `json:"numOfResults"`

	CentralizedOracle  string `json:"centralizedOracle"`
	BetStartTime       uint64 `json:"betStartTime"`
	BetEndTime         uint64 `json:"betEndTime"`
	ResultSetStartTime uint64 `json:"resultSetStartTime"`
	ResultSetEndTime   uint64 `json:"resultSetEndTime"`

	EscrowAmount                string `json:"escrowAmount"`
	ArbitrationLength           string `json:"arbitrationLength"`
	ThresholdPercentIncrease    string `json:"thresholdPercentIncrease"`
	ArbitrationRewardPercentage string `json:"arbitrationRewardPercentage"`

	CurrentRound       uint8  `json:"currentRound"`
	CurrentResultIndex uint8  `json:"currentResultIndex"`
	ConsensusThreshold string `json:"consensusThreshold"`
	ArbitrationEndTime uint64 `json:"arbitrationEndTime"`

	Status   EventStatus `json:"status"`
	Language string      `json:"language"`

	// LeaderboardDone is set once the rows of a WITHDRAWING event are settled
	LeaderboardDone bool `json:"leaderboardDone,omitempty"`
}

// Bet is a BetPlaced or VotePlaced record. TxType separates the two.
type Bet struct {
	TxID          string   `json:"txid"`
	TxStatus      TxStatus `json:"txStatus"`
	TxType        TxType   `json:"txType"`
	BlockNum      uint64   `json:"blockNum"`
	EventAddress  string   `json:"eventAddress"`
	BetterAddress string   `json:"betterAddress"`
	ResultIndex   uint8    `json:"resultIndex"`
	Amount        string   `json:"amount"`
	EventRound    uint8    `json:"eventRound"`
}

// ResultSet is a ResultSet or VoteResultSet record
type ResultSet struct {
	TxID                     string   `json:"txid"`
	TxStatus                 TxStatus `json:"txStatus"`
	TxType                   TxType   `json:"txType"`
	BlockNum                 uint64   `json:"blockNum"`
	EventAddress             string   `json:"eventAddress"`
	CentralizedOracleAddress string   `json:"centralizedOracleAddress,omitempty"`
	ResultIndex              uint8    `json:"resultIndex"`
	Amount                   string   `json:"amount"`
	EventRound               uint8    `json:"eventRound"`
	NextConsensusThreshold   string   `json:"nextConsensusThreshold"`
	NextArbitrationEndTime   uint64   `json:"nextArbitrationEndTime"`
}

// Participant returns the address credited for the result set. Only the
// round-0 oracle result carries a participant.
func (r *ResultSet) Participant() string {
	return r.CentralizedOracleAddress
}

// Withdraw is a WinningsWithdrawn record
type Withdraw struct {
	TxID                 string   `json:"txid"`
	TxStatus             TxStatus `json:"txStatus"`
	BlockNum             uint64   `json:"blockNum"`
	EventAddress         string   `json:"eventAddress"`
	WinnerAddress        string   `json:"winnerAddress"`
	WinningAmount        string   `json:"winningAmount"`
	EscrowWithdrawAmount string   `json:"escrowWithdrawAmount"`
}

// TransactionReceipt is the stored subset of a ledger receipt
type TransactionReceipt struct {
	TxID              string `json:"txid"`
	Status            bool   `json:"status"`
	BlockHash         string `json:"blockHash"`
	BlockNum          uint64 `json:"blockNum"`
	From              string `json:"from"`
	To                string `json:"to,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
	CumulativeGasUsed uint64 `json:"cumulativeGasUsed"`
	GasUsed           uint64 `json:"gasUsed"`
}

// EventLeaderboard is a participant's rollup within one event
type EventLeaderboard struct {
	EventAddress string `json:"eventAddress"`
	UserAddress  string `json:"userAddress"`
	Investments  string `json:"investments"`
	Winnings     string `json:"winnings"`
	ReturnRatio  string `json:"returnRatio"`

	// Settled marks a row whose final figures were folded into the global row
	Settled bool `json:"settled,omitempty"`
}

// GlobalLeaderboard is a participant's rollup across all events
type GlobalLeaderboard struct {
	UserAddress string `json:"userAddress"`
	Investments string `json:"investments"`
	Winnings    string `json:"winnings"`
	ReturnRatio string `json:"returnRatio"`
}

// PendingTransaction is a transaction this node submitted and is waiting on
type PendingTransaction struct {
	TxID          string        `json:"txid"`
	Type          PendingTxType `json:"type"`
	Status        TxStatus      `json:"status"`
	Version       uint16        `json:"version"`
	GasLimit      string        `json:"gasLimit"`
	GasPrice      string        `json:"gasPrice"`
	GasUsed       uint64        `json:"gasUsed,omitempty"`
	CreatedBlock  uint64        `json:"createdBlock"`
	CreatedTime   int64         `json:"createdTime"`
	BlockNum      uint64        `json:"blockNum,omitempty"`
	BlockTime     uint64        `json:"blockTime,omitempty"`
	SenderAddress string        `json:"senderAddress"`

	// ParentTxID links a follow-up to the transaction whose receipt caused it
	ParentTxID string `json:"parentTxid,omitempty"`

	EventAddress        string   `json:"eventAddress,omitempty"`
	Name                string   `json:"name,omitempty"`
	Options             []string `json:"options,omitempty"`
	ResultSetterAddress string   `json:"resultSetterAddress,omitempty"`
	BetStartTime        uint64   `json:"betStartTime,omitempty"`
	BetEndTime          uint64   `json:"betEndTime,omitempty"`
	ResultSetStartTime  uint64   `json:"resultSetStartTime,omitempty"`
	ResultSetEndTime    uint64   `json:"resultSetEndTime,omitempty"`
	ResultIndex         uint8    `json:"resultIndex"`
	Amount              string   `json:"amount,omitempty"`
}

// SyncInfo describes how far the local read model has caught up
type SyncInfo struct {
	SyncBlockNum  uint64 `json:"syncBlockNum"`
	SyncBlockTime uint64 `json:"syncBlockTime"`
	SyncPercent   int    `json:"syncPercent"`
}

// NewSyncInfo builds a SyncInfo, computing the percentage against the chain head.
func NewSyncInfo(blockNum, blockTime, chainHead uint64) SyncInfo {
	percent := 100
	if chainHead > 0 && blockNum < chainHead {
		percent = int(blockNum * 100 / chainHead)
	}
	return SyncInfo{
		SyncBlockNum:  blockNum,
		SyncBlockTime: blockTime,
		SyncPercent:   percent,
	}
}
