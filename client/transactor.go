package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/contracts"
)

// TxBackend is the node surface needed to sign and broadcast transactions
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TransactorConfig holds the signing key and target contracts
type TransactorConfig struct {
	PrivateKey     string
	ChainID        *big.Int
	TokenAddress   common.Address
	FactoryAddress common.Address

	// GasPrice overrides the node suggestion when set
	GasPrice *big.Int
}

// SentTx describes a broadcast transaction
type SentTx struct {
	TxID     string
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
}

// CreateEventParams are the arguments of createMultipleResultsEvent
type CreateEventParams struct {
	Name               string
	Results            []string
	BetStartTime       uint64
	BetEndTime         uint64
	ResultSetStartTime uint64
	ResultSetEndTime   uint64
	CentralizedOracle  common.Address
	EscrowAmount       *big.Int
}

// Transactor signs and sends the follow-up transactions of the reconciler
type Transactor struct {
	backend    TxBackend
	key        *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	token      common.Address
	factory    common.Address
	gasPrice   *big.Int
	tokenABI   *abi.ABI
	factoryABI *abi.ABI
	logger     *zap.Logger

	// serializes nonce allocation
	mu sync.Mutex
}

// NewTransactor creates a transactor from a hex private key
func NewTransactor(backend TxBackend, cfg TransactorConfig, logger *zap.Logger) (*Transactor, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain ID cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	tokenABI, err := contracts.Parse(contracts.TokenABI)
	if err != nil {
		return nil, err
	}
	factoryABI, err := contracts.Parse(contracts.FactoryABI)
	if err != nil {
		return nil, err
	}

	return &Transactor{
		backend:    backend,
		key:        key,
		from:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:    cfg.ChainID,
		token:      cfg.TokenAddress,
		factory:    cfg.FactoryAddress,
		gasPrice:   cfg.GasPrice,
		tokenABI:   tokenABI,
		factoryABI: factoryABI,
		logger:     logger,
	}, nil
}

// From returns the sender address
func (t *Transactor) From() common.Address {
	return t.from
}

// Approve sets the token allowance of spender. An amount of zero resets it.
func (t *Transactor) Approve(ctx context.Context, spender common.Address, amount *big.Int, gasLimit uint64) (*SentTx, error) {
	data, err := t.tokenABI.Pack(contracts.MethodApprove, spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return t.send(ctx, t.token, data, gasLimit)
}

// CreateEvent calls the factory to deploy a new event
func (t *Transactor) CreateEvent(ctx context.Context, p CreateEventParams, gasLimit uint64) (*SentTx, error) {
	results := make([][32]byte, len(p.Results))
	for i, r := range p.Results {
		if len(r) > 32 {
			return nil, fmt.Errorf("result %d exceeds 32 bytes", i)
		}
		copy(results[i][:], r)
	}
	escrow := p.EscrowAmount
	if escrow == nil {
		escrow = new(big.Int)
	}

	data, err := t.factoryABI.Pack(contracts.MethodCreateEvent,
		p.Name,
		results,
		new(big.Int).SetUint64(p.BetStartTime),
		new(big.Int).SetUint64(p.BetEndTime),
		new(big.Int).SetUint64(p.ResultSetStartTime),
		new(big.Int).SetUint64(p.ResultSetEndTime),
		p.CentralizedOracle,
		escrow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createMultipleResultsEvent: %w", err)
	}
	return t.send(ctx, t.factory, data, gasLimit)
}

// SetResult submits the oracle result of an event
func (t *Transactor) SetResult(ctx context.Context, v *contracts.Version, eventAddr common.Address, resultIndex uint8, amount *big.Int, gasLimit uint64) (*SentTx, error) {
	data, err := v.EventABI.Pack(contracts.MethodSetResult, resultIndex, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack setResult: %w", err)
	}
	return t.send(ctx, eventAddr, data, gasLimit)
}

// Vote submits an arbitration vote
func (t *Transactor) Vote(ctx context.Context, v *contracts.Version, eventAddr common.Address, resultIndex uint8, amount *big.Int, gasLimit uint64) (*SentTx, error) {
	data, err := v.EventABI.Pack(contracts.MethodVote, resultIndex, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack vote: %w", err)
	}
	return t.send(ctx, eventAddr, data, gasLimit)
}

func (t *Transactor) send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*SentTx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := t.gasPrice
	if gasPrice == nil {
		gasPrice, err = t.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	t.logger.Info("transaction sent",
		zap.String("txid", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit))

	return &SentTx{
		TxID:     signed.Hash().Hex(),
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
	}, nil
}
