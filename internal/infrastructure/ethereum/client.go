package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
)

// Backend is the subset of the node RPC the indexer calls. *ethclient.Client
// implements it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps the Ethereum RPC backend with retry logic and per-call timeouts
type Client struct {
	backend Backend
	closer  func()
	config  config.EthereumConfig
	retry   retryPolicy
	logger  *zap.Logger
	chainID *big.Int
}

// NewClient dials the node and verifies it serves the configured chain
func NewClient(cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	c, err := NewClientWithBackend(client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close

	logger.Info("Connected to Ethereum node",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int64("chain_id", c.chainID.Int64()),
	)

	return c, nil
}

// NewClientWithBackend wraps an existing backend
func NewClientWithBackend(backend Backend, cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		backend: backend,
		config:  cfg,
		logger:  logger,
		retry: retryPolicy{
			MaxAttempts:    cfg.MaxRetries + 1,
			InitialBackoff: cfg.RetryDelay,
			MaxBackoff:     cfg.MaxRetryDelay,
			Multiplier:     2,
		},
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}

	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	var chainID *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		chainID, err = backend.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}
	c.chainID = chainID

	return c, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// do runs one RPC call under the retry policy, each attempt bounded by the request timeout
func (c *Client) do(ctx context.Context, method string, call func(ctx context.Context) error) error {
	attempt := 0
	return retryWithBackoff(ctx, c.retry, method, func() error {
		attempt++
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		err := call(callCtx)
		if err != nil && retryableError(err) && attempt < c.retry.MaxAttempts {
			c.logger.Warn("RPC call failed, retrying",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

// GetLatestBlockNumber returns the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		blockNumber, err = c.backend.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// GetBlockTimestamp returns the timestamp of a block
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	var header *types.Header
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		header, err = c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block %d: %w", blockNumber, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// GetLogs retrieves logs matching the filter query
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.backend.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return logs, nil
}

// CallContract executes a read-only call against the latest block
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var result []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		result, err = c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call contract %s: %w", to.Hex(), err)
	}
	return result, nil
}

// BuildFilterQuery builds a filter for one event topic emitted by one contract
func BuildFilterQuery(fromBlock, toBlock int64, address common.Address, topic common.Hash) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	}
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}
