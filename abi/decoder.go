package abi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
)

// DecodeError is returned for a log that does not have the shape its
// signature promises. It is fatal for the range being synced.
type DecodeError struct {
	Event  string
	TxHash common.Hash
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("failed to decode %s log in tx %s: %s", e.Event, e.TxHash.Hex(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CreatedLog is a decoded MultipleResultsEventCreated log. The remaining event
// fields are read from the new contract.
type CreatedLog struct {
	TxID         string
	BlockNum     uint64
	EventAddress common.Address
	OwnerAddress common.Address
}

// Decoder decodes the six indexed log kinds using a single version's ABI
type Decoder struct {
	version *contracts.Version
}

// NewDecoder creates a decoder bound to a contract version
func NewDecoder(version *contracts.Version) *Decoder {
	return &Decoder{version: version}
}

// Version returns the contract version the decoder was built for
func (d *Decoder) Version() *contracts.Version {
	return d.version
}

// Topic returns the topic0 filter for a log kind
func (d *Decoder) Topic(kind Kind) (common.Hash, error) {
	ev, err := d.event(kind)
	if err != nil {
		return common.Hash{}, err
	}
	return ev.ID, nil
}

func (d *Decoder) event(kind Kind) (abi.Event, error) {
	if kind == KindEventCreated {
		ev, ok := d.version.FactoryABI.Events[contracts.EventCreated]
		if !ok {
			return abi.Event{}, fmt.Errorf("event %s not found in ABI", contracts.EventCreated)
		}
		return ev, nil
	}
	ev, ok := d.version.EventABI.Events[kind.EventName()]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s not found in ABI", kind.EventName())
	}
	return ev, nil
}

// unpack validates topic0 and the indexed topic count, then decodes the
// non-indexed data payload.
func (d *Decoder) unpack(kind Kind, log *types.Log) ([]interface{}, error) {
	ev, err := d.event(kind)
	if err != nil {
		return nil, &DecodeError{Event: kind.EventName(), TxHash: log.TxHash, Reason: "unknown event", Err: err}
	}

	var indexed int
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed++
		}
	}
	if len(log.Topics) != indexed+1 {
		return nil, &DecodeError{
			Event:  ev.RawName,
			TxHash: log.TxHash,
			Reason: fmt.Sprintf("expected %d topics, got %d", indexed+1, len(log.Topics)),
		}
	}
	if log.Topics[0] != ev.ID {
		return nil, &DecodeError{Event: ev.RawName, TxHash: log.TxHash, Reason: "topic signature mismatch"}
	}

	nonIndexed := ev.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		if len(log.Data) != 0 {
			return nil, &DecodeError{Event: ev.RawName, TxHash: log.TxHash, Reason: "unexpected data payload"}
		}
		return nil, nil
	}

	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{Event: ev.RawName, TxHash: log.TxHash, Reason: "malformed data payload", Err: err}
	}
	if len(values) != len(nonIndexed) {
		return nil, &DecodeError{
			Event:  ev.RawName,
			TxHash: log.TxHash,
			Reason: fmt.Sprintf("expected %d fields, got %d", len(nonIndexed), len(values)),
		}
	}
	return values, nil
}

// DecodeCreated decodes a MultipleResultsEventCreated log
func (d *Decoder) DecodeCreated(log *types.Log) (*CreatedLog, error) {
	if _, err := d.unpack(KindEventCreated, log); err != nil {
		return nil, err
	}
	return &CreatedLog{
		TxID:         log.TxHash.Hex(),
		BlockNum:     log.BlockNumber,
		EventAddress: topicAddress(log.Topics[1]),
		OwnerAddress: topicAddress(log.Topics[2]),
	}, nil
}

// DecodeBet decodes BetPlaced and VotePlaced logs. The round decides the tag.
func (d *Decoder) DecodeBet(kind Kind, log *types.Log) (*model.Bet, error) {
	if kind != KindBetPlaced && kind != KindVotePlaced {
		return nil, fmt.Errorf("kind %s is not a bet log", kind)
	}
	values, err := d.unpack(kind, log)
	if err != nil {
		return nil, err
	}

	resultIndex, ok1 := values[0].(uint8)
	amount, ok2 := values[1].(*big.Int)
	eventRound, ok3 := values[2].(uint8)
	if !ok1 || !ok2 || !ok3 {
		return nil, &DecodeError{Event: kind.EventName(), TxHash: log.TxHash, Reason: "unexpected field types"}
	}

	return &model.Bet{
		TxID:          log.TxHash.Hex(),
		TxStatus:      model.TxStatusSuccess,
		TxType:        model.ClassifyRound(eventRound),
		BlockNum:      log.BlockNumber,
		EventAddress:  model.CanonicalAddress(topicAddress(log.Topics[1])),
		BetterAddress: model.CanonicalAddress(topicAddress(log.Topics[2])),
		ResultIndex:   resultIndex,
		Amount:        model.AmountFromBig(amount),
		EventRound:    eventRound,
	}, nil
}

// DecodeResultSet decodes ResultSet and VoteResultSet logs
func (d *Decoder) DecodeResultSet(kind Kind, log *types.Log) (*model.ResultSet, error) {
	if kind != KindResultSet && kind != KindVoteResultSet {
		return nil, fmt.Errorf("kind %s is not a result set log", kind)
	}
	values, err := d.unpack(kind, log)
	if err != nil {
		return nil, err
	}

	resultIndex, ok1 := values[0].(uint8)
	amount, ok2 := values[1].(*big.Int)
	eventRound, ok3 := values[2].(uint8)
	nextThreshold, ok4 := values[3].(*big.Int)
	nextArbitrationEnd, ok5 := values[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, &DecodeError{Event: kind.EventName(), TxHash: log.TxHash, Reason: "unexpected field types"}
	}
	if !nextArbitrationEnd.IsUint64() {
		return nil, &DecodeError{Event: kind.EventName(), TxHash: log.TxHash, Reason: "arbitration end time overflows uint64"}
	}

	rs := &model.ResultSet{
		TxID:                   log.TxHash.Hex(),
		TxStatus:               model.TxStatusSuccess,
		TxType:                 model.ClassifyRound(eventRound),
		BlockNum:               log.BlockNumber,
		EventAddress:           model.CanonicalAddress(topicAddress(log.Topics[1])),
		ResultIndex:            resultIndex,
		Amount:                 model.AmountFromBig(amount),
		EventRound:             eventRound,
		NextConsensusThreshold: model.AmountFromBig(nextThreshold),
		NextArbitrationEndTime: nextArbitrationEnd.Uint64(),
	}
	if eventRound == 0 {
		rs.CentralizedOracleAddress = model.CanonicalAddress(topicAddress(log.Topics[2]))
	}
	return rs, nil
}

// DecodeWithdraw decodes a WinningsWithdrawn log
func (d *Decoder) DecodeWithdraw(log *types.Log) (*model.Withdraw, error) {
	values, err := d.unpack(KindWinningsWithdrawn, log)
	if err != nil {
		return nil, err
	}

	winning, ok1 := values[0].(*big.Int)
	escrow, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, &DecodeError{Event: contracts.EventWinningsWithdrawn, TxHash: log.TxHash, Reason: "unexpected field types"}
	}

	return &model.Withdraw{
		TxID:                 log.TxHash.Hex(),
		TxStatus:             model.TxStatusSuccess,
		BlockNum:             log.BlockNumber,
		EventAddress:         model.CanonicalAddress(topicAddress(log.Topics[1])),
		WinnerAddress:        model.CanonicalAddress(topicAddress(log.Topics[2])),
		WinningAmount:        model.AmountFromBig(winning),
		EscrowWithdrawAmount: model.AmountFromBig(escrow),
	}, nil
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}
