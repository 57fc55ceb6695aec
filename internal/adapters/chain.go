package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ybbus/jsonrpc/v3"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// RPCChainClient reads chain state over the node's JSON-RPC endpoint and
// pool snapshots from the pool indexing service
type RPCChainClient struct {
	chain       types.Chain
	rpc         jsonrpc.RPCClient
	poolService string
	http        *http.Client
}

// NewRPCChainClient creates a chain state reader for one network
func NewRPCChainClient(chain types.Chain, rpcURL, poolServiceURL string) *RPCChainClient {
	return &RPCChainClient{
		chain:       chain,
		rpc:         jsonrpc.NewClient(rpcURL),
		poolService: poolServiceURL,
		http:        &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *RPCChainClient) Chain() types.Chain { return c.chain }

// PoolReserves fetches the deepest pool for the pair from the pool service
func (c *RPCChainClient) PoolReserves(ctx context.Context, tokenIn, tokenOut string) (*types.PoolSnapshot, error) {
	endpoint := fmt.Sprintf("%s/pool?chain=%s&tokenIn=%s&tokenOut=%s",
		c.poolService,
		url.QueryEscape(string(c.chain)),
		url.QueryEscape(tokenIn),
		url.QueryEscape(tokenOut))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pool request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pool service returned %d for %s/%s", resp.StatusCode, tokenIn, tokenOut)
	}

	var wire struct {
		Address      string  `json:"address"`
		ReserveIn    string  `json:"reserveIn"`
		ReserveOut   string  `json:"reserveOut"`
		FeeBps       int64   `json:"feeBps"`
		LiquidityUSD float64 `json:"liquidityUsd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed pool response: %w", err)
	}

	pool := &types.PoolSnapshot{
		Address:      wire.Address,
		Chain:        c.chain,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		FeeBps:       wire.FeeBps,
		LiquidityUSD: wire.LiquidityUSD,
	}
	if v, ok := new(big.Int).SetString(wire.ReserveIn, 10); ok {
		pool.ReserveIn = v
	}
	if v, ok := new(big.Int).SetString(wire.ReserveOut, 10); ok {
		pool.ReserveOut = v
	}
	return pool, nil
}

// SuggestGasPrice asks the node for its fee estimate
func (c *RPCChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	resp, err := c.rpc.Call(ctx, "eth_gasPrice")
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("eth_gasPrice: %s", resp.Error.Message)
	}
	var hex string
	if err := resp.GetObject(&hex); err != nil {
		return nil, err
	}
	return hexutil.DecodeBig(hex)
}

// BlockHeight returns the node's latest block number or slot
func (c *RPCChainClient) BlockHeight(ctx context.Context) (uint64, error) {
	method := "eth_blockNumber"
	if c.chain == types.ChainSolana {
		method = "getSlot"
	}
	resp, err := c.rpc.Call(ctx, method)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", method, err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("%s: %s", method, resp.Error.Message)
	}

	if c.chain == types.ChainSolana {
		slot, err := resp.GetInt()
		if err != nil {
			return 0, err
		}
		return uint64(slot), nil
	}

	var hex string
	if err := resp.GetObject(&hex); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(hex)
}
