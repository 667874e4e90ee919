// Package testutil holds fixtures shared by the sync, reconcile and API tests.
package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/storage"
)

// TestVersion is the contract version NewTestResolver serves from block 1
const TestVersion uint16 = 3

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// NewTestStore opens a pebble store in a temporary directory and closes it
// when the test ends
func NewTestStore(t *testing.T) *storage.PebbleStorage {
	t.Helper()
	s, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewTestResolver returns a resolver with a single open-ended version
func NewTestResolver(t *testing.T) *contracts.Resolver {
	t.Helper()
	r, err := contracts.NewResolver([]contracts.VersionRange{{Number: TestVersion, StartBlock: 1}})
	require.NoError(t, err)
	return r
}

// Address returns a deterministic address for n
func Address(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// TxHash returns a deterministic transaction hash for n
func TxHash(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(0x1000_0000 + n))
}

// BuildLog packs a contract log. name is a factory or event contract event
// name; args are the non-indexed values in ABI order.
func BuildLog(t *testing.T, v *contracts.Version, name string, contract, actor common.Address, block uint64, tx common.Hash, args ...interface{}) types.Log {
	t.Helper()

	ev, ok := v.EventABI.Events[name]
	if name == contracts.EventCreated {
		ev, ok = v.FactoryABI.Events[name]
	}
	require.True(t, ok, "unknown event %s", name)

	var data []byte
	if len(args) > 0 {
		var err error
		data, err = ev.Inputs.NonIndexed().Pack(args...)
		require.NoError(t, err)
	}
	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(contract.Bytes()),
			common.BytesToHash(actor.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

// NewTestReceipt creates a receipt for txHash. Successful receipts carry one
// log, failed ones none.
func NewTestReceipt(txHash common.Hash, blockNumber uint64, status uint64) *types.Receipt {
	r := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		CumulativeGasUsed: 21000,
		BlockNumber:       new(big.Int).SetUint64(blockNumber),
		TxHash:            txHash,
		GasUsed:           21000,
		Logs:              []*types.Log{},
	}
	if status == types.ReceiptStatusSuccessful {
		r.Logs = append(r.Logs, &types.Log{Address: Address(1), TxHash: txHash, BlockNumber: blockNumber})
	}
	return r
}
