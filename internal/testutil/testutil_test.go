package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/contracts"
)

func TestBuildLog(t *testing.T) {
	v, err := NewTestResolver(t).Resolve(1)
	require.NoError(t, err)

	log := BuildLog(t, v, contracts.EventBetPlaced, Address(7), Address(8), 12, TxHash(1),
		uint8(1), big.NewInt(5), uint8(0))
	assert.Equal(t, v.EventABI.Events[contracts.EventBetPlaced].ID, log.Topics[0])
	assert.Len(t, log.Topics, 3)
	assert.Equal(t, uint64(12), log.BlockNumber)
	assert.NotEmpty(t, log.Data)

	created := BuildLog(t, v, contracts.EventCreated, Address(9), Address(8), 12, TxHash(2))
	assert.Equal(t, v.FactoryABI.Events[contracts.EventCreated].ID, created.Topics[0])
	assert.Empty(t, created.Data)
}

func TestNewTestReceipt(t *testing.T) {
	ok := NewTestReceipt(TxHash(1), 5, types.ReceiptStatusSuccessful)
	assert.Len(t, ok.Logs, 1)

	failed := NewTestReceipt(TxHash(1), 5, types.ReceiptStatusFailed)
	assert.Empty(t, failed.Logs)
}

func TestNewTestStore(t *testing.T) {
	s := NewTestStore(t)
	require.NotNil(t, s)
	assert.NotNil(t, NewTestLogger(t))
	assert.NotEqual(t, TxHash(1), TxHash(2))
}
