package abi

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
)

var (
	eventAddr  = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	actorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000Be")
	testTxHash = common.HexToHash("0x1234")
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	r, err := contracts.NewResolver([]contracts.VersionRange{{Number: 3, StartBlock: 1}})
	require.NoError(t, err)
	v, err := r.Resolve(10)
	require.NoError(t, err)
	return NewDecoder(v)
}

func buildLog(t *testing.T, d *Decoder, kind Kind, args ...interface{}) *types.Log {
	t.Helper()
	ev, err := d.event(kind)
	require.NoError(t, err)

	var data []byte
	if len(args) > 0 {
		data, err = ev.Inputs.NonIndexed().Pack(args...)
		require.NoError(t, err)
	}
	return &types.Log{
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(eventAddr.Bytes()),
			common.BytesToHash(actorAddr.Bytes()),
		},
		Data:        data,
		BlockNumber: 150,
		TxHash:      testTxHash,
	}
}

func TestDecodeBetClassifiesRound(t *testing.T) {
	d := newTestDecoder(t)

	tests := []struct {
		name  string
		kind  Kind
		round uint8
		want  model.TxType
	}{
		{"bet in round zero", KindBetPlaced, 0, model.TxTypeBet},
		{"bet in round one", KindBetPlaced, 1, model.TxTypeVote},
		{"vote in round two", KindVotePlaced, 2, model.TxTypeVote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := buildLog(t, d, tt.kind, uint8(2), big.NewInt(1_000_000), tt.round)

			bet, err := d.DecodeBet(tt.kind, log)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bet.TxType)
			assert.Equal(t, tt.round, bet.EventRound)
			assert.Equal(t, uint8(2), bet.ResultIndex)
			assert.Equal(t, "1000000", bet.Amount)
			assert.Equal(t, model.TxStatusSuccess, bet.TxStatus)
			assert.Equal(t, uint64(150), bet.BlockNum)
			assert.Equal(t, testTxHash.Hex(), bet.TxID)
			assert.Equal(t, "0xabcdef0000000000000000000000000000000001", bet.EventAddress)
			assert.Equal(t, "0x00000000000000000000000000000000000000be", bet.BetterAddress)
		})
	}
}

func TestDecodeResultSet(t *testing.T) {
	d := newTestDecoder(t)

	t.Run("oracle round sets oracle address", func(t *testing.T) {
		log := buildLog(t, d, KindResultSet, uint8(2), big.NewInt(500), uint8(0), big.NewInt(1000), big.NewInt(4000))
		rs, err := d.DecodeResultSet(KindResultSet, log)
		require.NoError(t, err)
		assert.Equal(t, model.TxTypeBet, rs.TxType)
		assert.Equal(t, "0x00000000000000000000000000000000000000be", rs.CentralizedOracleAddress)
		assert.Equal(t, "1000", rs.NextConsensusThreshold)
		assert.Equal(t, uint64(4000), rs.NextArbitrationEndTime)
	})

	t.Run("vote round leaves oracle empty", func(t *testing.T) {
		log := buildLog(t, d, KindVoteResultSet, uint8(1), big.NewInt(500), uint8(1), big.NewInt(2000), big.NewInt(8000))
		rs, err := d.DecodeResultSet(KindVoteResultSet, log)
		require.NoError(t, err)
		assert.Equal(t, model.TxTypeVote, rs.TxType)
		assert.Empty(t, rs.CentralizedOracleAddress)
		assert.Equal(t, uint8(1), rs.EventRound)
	})
}

func TestDecodeCreatedAndWithdraw(t *testing.T) {
	d := newTestDecoder(t)

	created, err := d.DecodeCreated(buildLog(t, d, KindEventCreated))
	require.NoError(t, err)
	assert.Equal(t, eventAddr, created.EventAddress)
	assert.Equal(t, actorAddr, created.OwnerAddress)
	assert.Equal(t, uint64(150), created.BlockNum)

	w, err := d.DecodeWithdraw(buildLog(t, d, KindWinningsWithdrawn, big.NewInt(42), big.NewInt(7)))
	require.NoError(t, err)
	assert.Equal(t, "42", w.WinningAmount)
	assert.Equal(t, "7", w.EscrowWithdrawAmount)
	assert.Equal(t, "0x00000000000000000000000000000000000000be", w.WinnerAddress)
}

func TestDecodeErrors(t *testing.T) {
	d := newTestDecoder(t)

	t.Run("wrong topic count", func(t *testing.T) {
		log := buildLog(t, d, KindBetPlaced, uint8(0), big.NewInt(1), uint8(0))
		log.Topics = log.Topics[:2]
		_, err := d.DecodeBet(KindBetPlaced, log)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, contracts.EventBetPlaced, decErr.Event)
		assert.Equal(t, testTxHash, decErr.TxHash)
	})

	t.Run("truncated payload", func(t *testing.T) {
		log := buildLog(t, d, KindBetPlaced, uint8(0), big.NewInt(1), uint8(0))
		log.Data = log.Data[:40]
		_, err := d.DecodeBet(KindBetPlaced, log)
		var decErr *DecodeError
		assert.True(t, errors.As(err, &decErr))
	})

	t.Run("signature mismatch", func(t *testing.T) {
		log := buildLog(t, d, KindBetPlaced, uint8(0), big.NewInt(1), uint8(0))
		_, err := d.DecodeWithdraw(log)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, "topic signature mismatch", decErr.Reason)
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := d.DecodeBet(KindResultSet, &types.Log{})
		assert.Error(t, err)
	})
}

func TestTopicsAreDistinct(t *testing.T) {
	d := newTestDecoder(t)

	seen := make(map[common.Hash]Kind)
	for _, kind := range AllKinds {
		topic, err := d.Topic(kind)
		require.NoError(t, err)
		_, dup := seen[topic]
		assert.False(t, dup, "duplicate topic for %s", kind)
		seen[topic] = kind
	}
	assert.Len(t, seen, 6)
}
