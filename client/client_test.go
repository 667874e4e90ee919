package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/predict-indexer/contracts"
	"github.com/0xmhha/predict-indexer/internal/model"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "empty endpoint",
			config: &Config{
				Endpoint: "",
			},
			wantErr: true,
		},
		{
			name: "invalid endpoint",
			config: &Config{
				Endpoint: "invalid://endpoint",
				Timeout:  5 * time.Second,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if client != nil {
				client.Close()
			}
		})
	}
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer answers JSON-RPC calls from a method→result table. Methods not
// in the table get a JSON-RPC error.
func newRPCServer(t *testing.T, results map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCalls(t *testing.T) {
	srv := newRPCServer(t, map[string]interface{}{
		"eth_chainId":               "0x1",
		"eth_blockNumber":           "0xc8",
		"eth_getTransactionReceipt": nil,
	})

	c, err := NewClient(&Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	head, err := c.GetLatestBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), head)

	chainID, err := c.GetChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chainID.Int64())

	receipt, err := c.GetTransactionReceipt(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Nil(t, receipt, "unmined transaction has no receipt")

	_, err = c.FilterLogs(ctx, ethereum.FilterQuery{})
	var rpcError *RPCError
	require.True(t, errors.As(err, &rpcError))
	assert.Equal(t, "eth_getLogs", rpcError.Op)
}

type fakeCaller struct {
	v       *contracts.Version
	outputs map[string][]interface{}
	calls   []ethereum.CallMsg
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	method, err := f.v.EventABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.outputs[method.Name]...)
}

func testVersion(t *testing.T, number uint16) *contracts.Version {
	t.Helper()
	r, err := contracts.NewResolver([]contracts.VersionRange{{Number: number, StartBlock: 1}})
	require.NoError(t, err)
	return r.Latest()
}

func TestFetchEvent(t *testing.T) {
	v := testVersion(t, 3)

	var results [4][32]byte
	copy(results[0][:], "Yes")
	copy(results[1][:], "No")
	copy(results[2][:], "Invalid")

	oracle := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	caller := &fakeCaller{v: v, outputs: map[string][]interface{}{
		contracts.MethodEventMetadata:             {uint16(3), "Who wins?", results, uint8(3)},
		contracts.MethodCentralizedMetadata:       {oracle, big.NewInt(1000), big.NewInt(2000), big.NewInt(2000), big.NewInt(3000)},
		contracts.MethodConfigMetadata:            {big.NewInt(100), big.NewInt(86400), big.NewInt(10), big.NewInt(5)},
		contracts.MethodCurrentConsensusThreshold: {big.NewInt(1000000)},
		contracts.MethodCurrentArbitrationEndTime: {big.NewInt(0)},
	}}

	ec := NewEventContract(caller, nil)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000EE")
	ev, err := ec.FetchEvent(context.Background(), v, addr)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000ee", ev.Address)
	assert.Equal(t, uint16(3), ev.Version)
	assert.Equal(t, "Who wins?", ev.Name)
	assert.Equal(t, []string{"Yes", "No", "Invalid"}, ev.Results)
	assert.Equal(t, uint8(3), ev.NumOfResults)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.CentralizedOracle)
	assert.Equal(t, uint64(1000), ev.BetStartTime)
	assert.Equal(t, uint64(3000), ev.ResultSetEndTime)
	assert.Equal(t, "86400", ev.ArbitrationLength)
	assert.Equal(t, "1000000", ev.ConsensusThreshold)
	assert.Equal(t, uint8(model.InvalidResultIndex), ev.CurrentResultIndex)
	assert.Equal(t, model.StatusCreated, ev.Status)
	assert.Equal(t, model.DefaultLanguage, ev.Language)
}

func TestCalculateWinningsVariants(t *testing.T) {
	participant := common.HexToAddress("0x0000000000000000000000000000000000000001")
	eventAddr := common.HexToAddress("0x0000000000000000000000000000000000000002")

	t.Run("by address", func(t *testing.T) {
		v := testVersion(t, 2)
		caller := &fakeCaller{v: v, outputs: map[string][]interface{}{
			contracts.MethodCalculateWinnings: {big.NewInt(77)},
		}}
		got, err := NewEventContract(caller, nil).CalculateWinnings(context.Background(), v, eventAddr, participant)
		require.NoError(t, err)
		assert.Equal(t, "77", got)
		require.Len(t, caller.calls, 1)
		assert.Len(t, caller.calls[0].Data, 4+32)
		assert.Equal(t, common.Address{}, caller.calls[0].From)
	})

	t.Run("by caller", func(t *testing.T) {
		v := testVersion(t, 0)
		caller := &fakeCaller{v: v, outputs: map[string][]interface{}{
			contracts.MethodCalculateWinnings: {big.NewInt(5)},
		}}
		got, err := NewEventContract(caller, nil).CalculateWinnings(context.Background(), v, eventAddr, participant)
		require.NoError(t, err)
		assert.Equal(t, "5", got)
		require.Len(t, caller.calls, 1)
		assert.Len(t, caller.calls[0].Data, 4)
		assert.Equal(t, participant, caller.calls[0].From)
	})

	t.Run("call failure", func(t *testing.T) {
		v := testVersion(t, 2)
		caller := &fakeCaller{v: v, err: errors.New("boom")}
		_, err := NewEventContract(caller, nil).CalculateWinnings(context.Background(), v, eventAddr, participant)
		assert.Error(t, err)
	})
}

type fakeBackend struct {
	nonce uint64
	sent  []*types.Transaction
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func TestTransactorSignsAndSends(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := &fakeBackend{nonce: 7}
	token := common.HexToAddress("0x00000000000000000000000000000000000000C0")
	chainID := big.NewInt(8001)
	tr, err := NewTransactor(backend, TransactorConfig{
		PrivateKey:   "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
		ChainID:      chainID,
		TokenAddress: token,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), tr.From())

	spender := common.HexToAddress("0x00000000000000000000000000000000000000D0")
	sent, err := tr.Approve(context.Background(), spender, big.NewInt(0), 250000)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sent.Nonce)
	assert.Equal(t, uint64(250000), sent.GasLimit)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, sent.TxID, tx.Hash().Hex())
	assert.Equal(t, token, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, tr.From(), from)

	tokenABI := contracts.MustParse(contracts.TokenABI)
	args, err := tokenABI.Methods[contracts.MethodApprove].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, 0, args[1].(*big.Int).Sign())

	v := testVersion(t, 3)
	eventAddr := common.HexToAddress("0x00000000000000000000000000000000000000E0")
	sent, err = tr.Vote(context.Background(), v, eventAddr, 1, big.NewInt(10), 1500000)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), sent.Nonce)
	assert.Equal(t, eventAddr, *backend.sent[1].To())
}

func TestNewTransactorRejectsBadKey(t *testing.T) {
	_, err := NewTransactor(&fakeBackend{}, TransactorConfig{PrivateKey: "zz", ChainID: big.NewInt(1)}, nil)
	assert.Error(t, err)
}

func TestReceiptModel(t *testing.T) {
	event := common.HexToAddress("0x00000000000000000000000000000000000000E1")
	r := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            common.HexToHash("0xabc"),
		BlockHash:         common.HexToHash("0xdef"),
		BlockNumber:       big.NewInt(42),
		CumulativeGasUsed: 90000,
		GasUsed:           21000,
		Logs:              []*types.Log{{Address: event}},
	}

	got := ReceiptModel(r)
	assert.True(t, got.Status)
	assert.Equal(t, r.TxHash.Hex(), got.TxID)
	assert.Equal(t, uint64(42), got.BlockNum)
	assert.Equal(t, uint64(21000), got.GasUsed)
	assert.Equal(t, "0x00000000000000000000000000000000000000e1", got.To)
	assert.Empty(t, got.ContractAddress)

	r.Status = types.ReceiptStatusFailed
	r.Logs = nil
	assert.False(t, ReceiptModel(r).Status)
}
