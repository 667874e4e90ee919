package client

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
)

// ContractCaller executes read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EventContract reads state from MultipleResultsEvent contracts using the ABI
// of the version the caller passes in.
type EventContract struct {
	caller ContractCaller
	logger *zap.Logger
}

// NewEventContract creates a view-call wrapper over caller
func NewEventContract(caller ContractCaller, logger *zap.Logger) *EventContract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventContract{caller: caller, logger: logger}
}

func (c *EventContract) call(ctx context.Context, v *contracts.Version, addr, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := v.EventABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{From: from, To: &addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, addr.Hex(), err)
	}

	values, err := v.EventABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, addr.Hex(), err)
	}
	return values, nil
}

func (c *EventContract) callBig(ctx context.Context, v *contracts.Version, addr common.Address, method string) (*big.Int, error) {
	values, err := c.call(ctx, v, addr, common.Address{}, method)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, values[0])
	}
	return n, nil
}

// FetchEvent reads the metadata of a freshly created event contract. The
// creation fields (txid, block, owner) are left for the caller.
func (c *EventContract) FetchEvent(ctx context.Context, v *contracts.Version, addr common.Address) (*model.Event, error) {
	ev := &model.Event{
		Address:            model.CanonicalAddress(addr),
		CurrentRound:       0,
		CurrentResultIndex: model.InvalidResultIndex,
		Status:             model.StatusCreated,
		Language:           model.DefaultLanguage,
		TxStatus:           model.TxStatusSuccess,
	}

	meta, err := c.call(ctx, v, addr, common.Address{}, contracts.MethodEventMetadata)
	if err != nil {
		return nil, err
	}
	if err := applyEventMetadata(ev, meta); err != nil {
		return nil, fmt.Errorf("event %s: %w", addr.Hex(), err)
	}

	central, err := c.call(ctx, v, addr, common.Address{}, contracts.MethodCentralizedMetadata)
	if err != nil {
		return nil, err
	}
	if err := applyCentralizedMetadata(ev, central); err != nil {
		return nil, fmt.Errorf("event %s: %w", addr.Hex(), err)
	}

	config, err := c.call(ctx, v, addr, common.Address{}, contracts.MethodConfigMetadata)
	if err != nil {
		return nil, err
	}
	if err := applyConfigMetadata(ev, config); err != nil {
		return nil, fmt.Errorf("event %s: %w", addr.Hex(), err)
	}

	threshold, err := c.callBig(ctx, v, addr, contracts.MethodCurrentConsensusThreshold)
	if err != nil {
		return nil, err
	}
	ev.ConsensusThreshold = model.AmountFromBig(threshold)

	arbitrationEnd, err := c.callBig(ctx, v, addr, contracts.MethodCurrentArbitrationEndTime)
	if err != nil {
		return nil, err
	}
	ev.ArbitrationEndTime = arbitrationEnd.Uint64()

	return ev, nil
}

func applyEventMetadata(ev *model.Event, values []interface{}) error {
	if len(values) != 4 {
		return fmt.Errorf("eventMetadata returned %d values", len(values))
	}
	version, ok1 := values[0].(uint16)
	name, ok2 := values[1].(string)
	numOfResults, ok3 := values[3].(uint8)
	if !ok1 || !ok2 || !ok3 {
		return fmt.Errorf("eventMetadata returned unexpected types")
	}

	slots := reflect.ValueOf(values[2])
	if slots.Kind() != reflect.Array {
		return fmt.Errorf("eventMetadata results is %T", values[2])
	}
	if int(numOfResults) > slots.Len() {
		return fmt.Errorf("eventMetadata reports %d results for %d slots", numOfResults, slots.Len())
	}

	results := make([]string, 0, numOfResults)
	for i := 0; i < int(numOfResults); i++ {
		slot, ok := slots.Index(i).Interface().([32]byte)
		if !ok {
			return fmt.Errorf("eventMetadata result %d is not bytes32", i)
		}
		results = append(results, bytes32ToString(slot))
	}

	ev.Version = version
	ev.Name = name
	ev.Results = results
	ev.NumOfResults = numOfResults
	return nil
}

func applyCentralizedMetadata(ev *model.Event, values []interface{}) error {
	if len(values) != 5 {
		return fmt.Errorf("centralizedMetadata returned %d values", len(values))
	}
	oracle, ok := values[0].(common.Address)
	if !ok {
		return fmt.Errorf("centralizedMetadata oracle is %T", values[0])
	}
	times := make([]uint64, 4)
	for i := range times {
		n, ok := values[i+1].(*big.Int)
		if !ok {
			return fmt.Errorf("centralizedMetadata field %d is %T", i+1, values[i+1])
		}
		times[i] = n.Uint64()
	}

	ev.CentralizedOracle = model.CanonicalAddress(oracle)
	ev.BetStartTime = times[0]
	ev.BetEndTime = times[1]
	ev.ResultSetStartTime = times[2]
	ev.ResultSetEndTime = times[3]
	return nil
}

func applyConfigMetadata(ev *model.Event, values []interface{}) error {
	if len(values) != 4 {
		return fmt.Errorf("configMetadata returned %d values", len(values))
	}
	fields := make([]string, 4)
	for i := range fields {
		n, ok := values[i].(*big.Int)
		if !ok {
			return fmt.Errorf("configMetadata field %d is %T", i, values[i])
		}
		fields[i] = model.AmountFromBig(n)
	}

	ev.EscrowAmount = fields[0]
	ev.ArbitrationLength = fields[1]
	ev.ThresholdPercentIncrease = fields[2]
	ev.ArbitrationRewardPercentage = fields[3]
	return nil
}

func bytes32ToString(b [32]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}

// CalculateWinnings returns what participant can withdraw from the event. The
// first contract release reads the participant from the call's sender.
func (c *EventContract) CalculateWinnings(ctx context.Context, v *contracts.Version, eventAddr, participant common.Address) (string, error) {
	var (
		values []interface{}
		err    error
	)
	if v.WinningsByCaller {
		values, err = c.call(ctx, v, eventAddr, participant, contracts.MethodCalculateWinnings)
	} else {
		values, err = c.call(ctx, v, eventAddr, common.Address{}, contracts.MethodCalculateWinnings, participant)
	}
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("calculateWinnings returned %d values", len(values))
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return "", fmt.Errorf("calculateWinnings returned %T", values[0])
	}
	return model.AmountFromBig(n), nil
}
