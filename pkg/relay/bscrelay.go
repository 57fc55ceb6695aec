package relay

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ybbus/jsonrpc/v3"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// BSCClient submits sandwich bundles to a BSC builder relay. The protocol is
// eth_sendBundle with a validity window (maxBlockNumber) and a disclosure
// hint controlling what the relay may share with builders before inclusion.
type BSCClient struct {
	config *Config
	rpc    jsonrpc.RPCClient
	http   *http.Client
	signer interfaces.Signer
	logger *zap.Logger

	mu       sync.Mutex
	relayIDs map[string]string
}

// bscBundleParams follows the BlockRazor-style submission schema
type bscBundleParams struct {
	Txs            []string `json:"txs"`
	MaxBlockNumber uint64   `json:"maxBlockNumber"`
	Hint           []string `json:"hint,omitempty"`
}

type bscQueryResponse struct {
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	Reason      string `json:"reason,omitempty"`
}

// blocksValid is how many blocks past the target a BSC bundle stays eligible
const blocksValid = 3

// NewBSCClient creates a BSC builder relay client
func NewBSCClient(config *Config, signer interfaces.Signer, logger *zap.Logger) *BSCClient {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	headers := map[string]string{}
	if config.AuthHeader != "" {
		headers["Authorization"] = config.AuthHeader
	}

	return &BSCClient{
		config: config,
		rpc: jsonrpc.NewClientWithOpts(config.URL, &jsonrpc.RPCClientOpts{
			HTTPClient:    httpClient,
			CustomHeaders: headers,
		}),
		http:     httpClient,
		signer:   signer,
		logger:   logger,
		relayIDs: make(map[string]string),
	}
}

func (c *BSCClient) Chain() types.Chain { return types.ChainBSC }
func (c *BSCClient) Name() string       { return c.config.Name }

// CreateBundle signs the front-run and back-run legs around the victim
func (c *BSCClient) CreateBundle(ctx context.Context, params *types.ExecutionParams, tip *big.Int, targetBlock uint64) (*types.Bundle, error) {
	legs, err := buildLegs(ctx, c.signer, params, tip)
	if err != nil {
		return nil, err
	}

	bundle := &types.Bundle{
		ID:           fmt.Sprintf("bsc-%s-%d", params.Opportunity.VictimTx.Hash, targetBlock),
		Chain:        types.ChainBSC,
		Transactions: legs,
		TargetBlock:  targetBlock,
		Tip:          tip,
		EstProfitUSD: params.Opportunity.EstProfitUSD,
	}
	if err := bundle.SetStatus(types.BundleCreated); err != nil {
		return nil, err
	}
	return bundle, nil
}

// SubmitBundle sends the bundle with a bounded validity window. Only the
// transaction hashes are disclosed to builders pre-inclusion.
func (c *BSCClient) SubmitBundle(ctx context.Context, bundle *types.Bundle) error {
	resp, err := c.rpc.Call(ctx, "eth_sendBundle", []interface{}{bscBundleParams{
		Txs:            rawTxsHex(bundle),
		MaxBlockNumber: bundle.TargetBlock + blocksValid,
		Hint:           []string{"hash"},
	}})
	if err != nil {
		return fmt.Errorf("eth_sendBundle call failed: %w", err)
	}
	if resp.Error != nil {
		return classifyRelayError(fmt.Errorf("eth_sendBundle: %s", resp.Error.Message))
	}

	var relayHash string
	if err := resp.GetObject(&relayHash); err != nil {
		return fmt.Errorf("malformed eth_sendBundle response: %w", err)
	}

	c.mu.Lock()
	c.relayIDs[bundle.ID] = relayHash
	c.mu.Unlock()

	c.logger.Debug("bundle submitted to relay",
		zap.String("bundle", bundle.ID),
		zap.String("relayHash", relayHash),
		zap.Uint64("maxBlockNumber", bundle.TargetBlock+blocksValid))
	return nil
}

// SimulateBundle runs the bundle through eth_callBundle
func (c *BSCClient) SimulateBundle(ctx context.Context, bundle *types.Bundle) (*interfaces.SimulationOutcome, error) {
	resp, err := c.rpc.Call(ctx, "eth_callBundle", []interface{}{bscBundleParams{
		Txs:            rawTxsHex(bundle),
		MaxBlockNumber: bundle.TargetBlock + blocksValid,
	}})
	if err != nil {
		return nil, fmt.Errorf("eth_callBundle call failed: %w", err)
	}
	if resp.Error != nil {
		return nil, classifyRelayError(fmt.Errorf("eth_callBundle: %s", resp.Error.Message))
	}

	var out fbCallResponse
	if err := resp.GetObject(&out); err != nil {
		return nil, fmt.Errorf("malformed eth_callBundle response: %w", err)
	}

	outcome := &interfaces.SimulationOutcome{
		Success: true,
		GasUsed: out.TotalGasUsed,
	}
	if out.CoinbaseDiff != "" {
		if profit, ok := new(big.Int).SetString(out.CoinbaseDiff, 10); ok {
			outcome.ProfitWei = profit
		}
	}
	for _, result := range out.Results {
		if result.Error != "" {
			outcome.Success = false
			outcome.RevertReason = result.Error
			if result.Revert != "" {
				outcome.RevertReason = result.Revert
			}
			break
		}
	}
	return outcome, nil
}

// WatchBundle polls the relay's bundle query endpoint until inclusion,
// explicit failure, or context cancellation
func (c *BSCClient) WatchBundle(ctx context.Context, bundle *types.Bundle) (<-chan interfaces.BundleEvent, error) {
	c.mu.Lock()
	relayHash, ok := c.relayIDs[bundle.ID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bundle %s was never submitted", bundle.ID)
	}

	out := make(chan interfaces.BundleEvent, 4)
	go func() {
		defer close(out)
		ticker := time.NewTicker(pollInterval(c.config))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resp, err := c.rpc.Call(ctx, "eth_queryBundle", []interface{}{map[string]string{
					"bundleHash": relayHash,
				}})
				if err != nil || resp.Error != nil {
					continue
				}
				var status bscQueryResponse
				if err := resp.GetObject(&status); err != nil {
					continue
				}
				switch status.Status {
				case "included":
					out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleIncluded}
					return
				case "failed", "dropped":
					out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleFailed, Err: status.Reason}
					return
				}
			}
		}
	}()
	return out, nil
}

// Disconnect drops idle relay connections
func (c *BSCClient) Disconnect() error {
	c.http.CloseIdleConnections()
	return nil
}
