package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/metrics"
)

// Backend is the chain access the wallet needs: reads, fee data, nonce/gas, broadcast and receipts.
type Backend interface {
	ChainID(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	FeeData(ctx context.Context) (entity.FeeData, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Definition() entity.NetworkDefinition
	Close()
}

// Options tunes connection and per-call behaviour of an EVMClient.
type Options struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	RateLimit      float64 // requests per second, 0 disables limiting
	Burst          int
}

// EVMClient talks JSON-RPC to one EVM network. Reads go through a rate limiter and a circuit breaker.
type EVMClient struct {
	ethClient      *ethclient.Client
	netDef         entity.NetworkDefinition
	rpcCallTimeout time.Duration
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
}

// NewEVMClient creates a new EVM client for the given network definition, trying fallback RPCs in order.
func NewEVMClient(netDef entity.NetworkDefinition, opts Options) (*EVMClient, error) {
	var lastErr error
	for _, rpcURL := range netDef.RPCURLs() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			return newEVMClient(client, netDef, opts), nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}
	if lastErr == nil {
		lastErr = errors.New("no RPC endpoints configured")
	}
	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w", netDef.Name, lastErr)
}

func newEVMClient(client *ethclient.Client, netDef entity.NetworkDefinition, opts Options) *EVMClient {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &EVMClient{
		ethClient:      client,
		netDef:         netDef,
		rpcCallTimeout: callTimeout,
		limiter:        rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "rpc-" + netDef.Identifier,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// read runs a read-only call under the limiter, the per-call timeout and the breaker.
// Contract reverts are answers, not outages, so they do not count against the breaker.
func (c *EVMClient) read(ctx context.Context, method string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	var callErr error
	out, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
		defer cancel()
		v, err := fn(callCtx)
		callErr = err
		var dataErr rpc.DataError
		if err != nil && errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
			return v, nil
		}
		return v, err
	})
	if err == nil {
		err = callErr
	}
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.RPCRequests.WithLabelValues(method, metrics.Result(err)).Inc()
	return out, err
}

// write runs a state-changing call under the limiter and timeout only.
func (c *EVMClient) write(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	err := fn(callCtx)
	metrics.RPCRequests.WithLabelValues(method, metrics.Result(err)).Inc()
	return err
}

func (c *EVMClient) ChainID(ctx context.Context) (uint64, error) {
	out, err := c.read(ctx, "eth_chainId", func(ctx context.Context) (interface{}, error) {
		return c.ethClient.ChainID(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read chain id on %s: %w", c.netDef.Name, err)
	}
	return out.(*big.Int).Uint64(), nil
}

func (c *EVMClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.read(ctx, "eth_getBalance", func(ctx context.Context) (interface{}, error) {
		return c.ethClient.BalanceAt(ctx, account, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", account.Hex(), err)
	}
	return out.(*big.Int), nil
}

func (c *EVMClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.read(ctx, "eth_call", func(ctx context.Context) (interface{}, error) {
		return c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to.Hex(), err)
	}
	res, _ := out.([]byte)
	return res, nil
}

// latestHead is the subset of eth_getBlockByNumber the fee estimate needs.
type latestHead struct {
	BaseFee *hexutil.Big `json:"baseFeePerGas"`
}

// FeeData reads the priority fee suggestion and the latest base fee in one batch.
// maxFeePerGas is 2*baseFee + tip, leaving room for base fee growth over the next blocks.
func (c *EVMClient) FeeData(ctx context.Context) (entity.FeeData, error) {
	var tip hexutil.Big
	var head *latestHead
	batch := []rpc.BatchElem{
		{Method: "eth_maxPriorityFeePerGas", Result: &tip},
		{Method: "eth_getBlockByNumber", Args: []interface{}{"latest", false}, Result: &head},
	}
	_, err := c.read(ctx, "fee_data", func(ctx context.Context) (interface{}, error) {
		return nil, c.ethClient.Client().BatchCallContext(ctx, batch)
	})
	if err != nil {
		return entity.FeeData{}, fmt.Errorf("RPC batch call failed: %w", err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return entity.FeeData{}, fmt.Errorf("failed to fetch %s: %w", elem.Method, elem.Error)
		}
	}
	if head == nil || head.BaseFee == nil {
		return entity.FeeData{}, fmt.Errorf("network %s reports no base fee", c.netDef.Name)
	}
	priority := (*big.Int)(&tip)
	maxFee := new(big.Int).Mul(head.BaseFee.ToInt(), big.NewInt(2))
	maxFee.Add(maxFee, priority)
	return entity.FeeData{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: new(big.Int).Set(priority)}, nil
}

func (c *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	out, err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context) (interface{}, error) {
		return c.ethClient.PendingNonceAt(ctx, account)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce of %s: %w", account.Hex(), err)
	}
	return out.(uint64), nil
}

func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	out, err := c.read(ctx, "eth_estimateGas", func(ctx context.Context) (interface{}, error) {
		return c.ethClient.EstimateGas(ctx, msg)
	})
	if err != nil {
		return 0, err
	}
	return out.(uint64), nil
}

func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.write(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		return c.ethClient.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	out, err := c.read(ctx, "eth_getTransactionReceipt", func(ctx context.Context) (interface{}, error) {
		r, err := c.ethClient.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}
	r, _ := out.(*types.Receipt)
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.NetworkDefinition {
	return c.netDef
}

func (c *EVMClient) Close() {
	c.ethClient.Close()
}
