package abi

import "github.com/0xmhha/predict-indexer/contracts"

// Kind identifies one of the indexed log signatures
type Kind string

const (
	KindEventCreated      Kind = "event_created"
	KindBetPlaced         Kind = "bet_placed"
	KindResultSet         Kind = "result_set"
	KindVotePlaced        Kind = "vote_placed"
	KindVoteResultSet     Kind = "vote_result_set"
	KindWinningsWithdrawn Kind = "winnings_withdrawn"
)

// AllKinds lists the kinds in the order the sync loop starts them
var AllKinds = []Kind{
	KindEventCreated,
	KindBetPlaced,
	KindResultSet,
	KindVotePlaced,
	KindVoteResultSet,
	KindWinningsWithdrawn,
}

var eventNames = map[Kind]string{
	KindEventCreated:      contracts.EventCreated,
	KindBetPlaced:         contracts.EventBetPlaced,
	KindResultSet:         contracts.EventResultSet,
	KindVotePlaced:        contracts.EventVotePlaced,
	KindVoteResultSet:     contracts.EventVoteResultSet,
	KindWinningsWithdrawn: contracts.EventWinningsWithdrawn,
}

// EventName returns the Solidity event name for the kind
func (k Kind) EventName() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return string(k)
}
