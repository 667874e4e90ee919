package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RPCError wraps a failed node call. It is transient: the sync iteration
// aborts and the next one retries.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s failed: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

func rpcErr(op string, err error) error {
	return &RPCError{Op: op, Err: err}
}

// Client wraps the Ethereum JSON-RPC client with the calls the indexer needs
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewClient creates a new Ethereum client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		logger:    logger,
	}

	if err := client.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// GetLatestBlockNumber returns the chain head
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, rpcErr("eth_blockNumber", err)
	}
	return blockNumber, nil
}

// GetBlockTime returns the timestamp of a block
func (c *Client) GetBlockTime(ctx context.Context, number uint64) (uint64, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, rpcErr(fmt.Sprintf("eth_getBlockByNumber(%d)", number), err)
	}
	return header.Time, nil
}

// FilterLogs returns the logs matching the query
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, rpcErr("eth_getLogs", err)
	}
	return logs, nil
}

// GetTransactionReceipt fetches a receipt. A transaction that is not mined
// yet returns nil and no error.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, rpcErr(fmt.Sprintf("eth_getTransactionReceipt(%s)", hash.Hex()), err)
	}
	return receipt, nil
}

// GetChainID returns the chain ID
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, rpcErr("eth_chainId", err)
	}
	return chainID, nil
}

// CallContract executes a read-only call at the given block, or latest when nil
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, rpcErr("eth_call", err)
	}
	return out, nil
}

// PendingNonceAt returns the next nonce for an account
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.ethClient.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, rpcErr("eth_getTransactionCount", err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's gas price suggestion
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, rpcErr("eth_gasPrice", err)
	}
	return price, nil
}

// SendTransaction broadcasts a signed transaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.ethClient.SendTransaction(ctx, tx); err != nil {
		return rpcErr("eth_sendRawTransaction", err)
	}
	return nil
}
