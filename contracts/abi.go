package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event names emitted by the factory and event contracts
const (
	EventCreated           = "MultipleResultsEventCreated"
	EventBetPlaced         = "BetPlaced"
	EventResultSet         = "ResultSet"
	EventVotePlaced        = "VotePlaced"
	EventVoteResultSet     = "VoteResultSet"
	EventWinningsWithdrawn = "WinningsWithdrawn"
)

// Method names used by the view and transaction calls
const (
	MethodEventMetadata             = "eventMetadata"
	MethodCentralizedMetadata       = "centralizedMetadata"
	MethodConfigMetadata            = "configMetadata"
	MethodCurrentConsensusThreshold = "currentConsensusThreshold"
	MethodCurrentArbitrationEndTime = "currentArbitrationEndTime"
	MethodCurrentRound              = "currentRound"
	MethodCurrentResultIndex        = "currentResultIndex"
	MethodCalculateWinnings         = "calculateWinnings"
	MethodSetResult                 = "setResult"
	MethodVote                      = "vote"
	MethodCreateEvent               = "createMultipleResultsEvent"
	MethodApprove                   = "approve"
)

const participationEvents = `
{"anonymous":false,"type":"event","name":"BetPlaced","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"better","type":"address"},{"indexed":false,"name":"resultIndex","type":"uint8"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"eventRound","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"ResultSet","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"centralizedOracle","type":"address"},{"indexed":false,"name":"resultIndex","type":"uint8"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"eventRound","type":"uint8"},{"indexed":false,"name":"nextConsensusThreshold","type":"uint256"},{"indexed":false,"name":"nextArbitrationEndTime","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"VotePlaced","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"voter","type":"address"},{"indexed":false,"name":"resultIndex","type":"uint8"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"eventRound","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"VoteResultSet","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"voter","type":"address"},{"indexed":false,"name":"resultIndex","type":"uint8"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"eventRound","type":"uint8"},{"indexed":false,"name":"nextConsensusThreshold","type":"uint256"},{"indexed":false,"name":"nextArbitrationEndTime","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"WinningsWithdrawn","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"winner","type":"address"},{"indexed":false,"name":"winningAmount","type":"uint256"},{"indexed":false,"name":"escrowAmount","type":"uint256"}]}`

const viewMethods = `
{"constant":true,"type":"function","name":"version","inputs":[],"outputs":[{"name":"","type":"uint16"}],"stateMutability":"pure"},
{"constant":true,"type":"function","name":"currentRound","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"currentResultIndex","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"currentConsensusThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"currentArbitrationEndTime","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"centralizedMetadata","inputs":[],"outputs":[{"name":"","type":"address"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"configMetadata","inputs":[],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"totalBets","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"didWithdraw","inputs":[{"name":"withdrawer","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
{"constant":true,"type":"function","name":"didWithdrawEscrow","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
{"constant":false,"type":"function","name":"setResult","inputs":[{"name":"resultIndex","type":"uint8"},{"name":"value","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
{"constant":false,"type":"function","name":"vote","inputs":[{"name":"resultIndex","type":"uint8"},{"name":"value","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
{"constant":false,"type":"function","name":"withdraw","inputs":[],"outputs":[],"stateMutability":"nonpayable"}`

const eventMetadataTemplate = `{"constant":true,"type":"function","name":"eventMetadata","inputs":[],"outputs":[{"name":"","type":"uint16"},{"name":"","type":"string"},{"name":"","type":"bytes32[%d]"},{"name":"","type":"uint8"}],"stateMutability":"view"}`

const winningsByAddress = `{"constant":true,"type":"function","name":"calculateWinnings","inputs":[{"name":"better","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}`

const winningsByCaller = `{"constant":true,"type":"function","name":"calculateWinnings","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}`

// FactoryABI covers the creation log and the create call.
const FactoryABI = `[
{"anonymous":false,"type":"event","name":"MultipleResultsEventCreated","inputs":[{"indexed":true,"name":"eventAddress","type":"address"},{"indexed":true,"name":"ownerAddress","type":"address"}]},
{"constant":false,"type":"function","name":"createMultipleResultsEvent","inputs":[{"name":"eventName","type":"string"},{"name":"eventResults","type":"bytes32[]"},{"name":"betStartTime","type":"uint256"},{"name":"betEndTime","type":"uint256"},{"name":"resultSetStartTime","type":"uint256"},{"name":"resultSetEndTime","type":"uint256"},{"name":"centralizedOracle","type":"address"},{"name":"escrowAmount","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"nonpayable"}
]`

// TokenABI is the ERC20 subset used for allowances.
const TokenABI = `[
{"constant":false,"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
{"constant":true,"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

// EventABIJSON renders the event contract ABI for a given result slot count.
// byCaller selects the argument-less calculateWinnings of the first release.
func EventABIJSON(resultSlots int, byCaller bool) string {
	winnings := winningsByAddress
	if byCaller {
		winnings = winningsByCaller
	}
	parts := []string{
		participationEvents,
		viewMethods,
		fmt.Sprintf(eventMetadataTemplate, resultSlots),
		winnings,
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Parse parses an ABI JSON document
func Parse(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &parsed, nil
}

// MustParse is Parse for the built-in documents
func MustParse(abiJSON string) *abi.ABI {
	parsed, err := Parse(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}
