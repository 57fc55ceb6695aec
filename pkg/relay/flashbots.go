package relay

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ybbus/jsonrpc/v3"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// FlashbotsClient submits sandwich bundles to an Ethereum private relay over
// authenticated JSON-RPC: eth_sendBundle for submission, eth_callBundle for
// simulation, bundle stats polling for inclusion tracking.
type FlashbotsClient struct {
	config *Config
	rpc    jsonrpc.RPCClient
	http   *http.Client
	signer interfaces.Signer
	logger *zap.Logger

	mu       sync.Mutex
	relayIDs map[string]string // bundle ID -> relay bundle hash
}

type fbBundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

type fbSendResponse struct {
	BundleHash string `json:"bundleHash"`
}

type fbCallResponse struct {
	BundleHash   string `json:"bundleHash"`
	CoinbaseDiff string `json:"coinbaseDiff"`
	TotalGasUsed uint64 `json:"totalGasUsed"`
	Results      []struct {
		TxHash string `json:"txHash"`
		Error  string `json:"error"`
		Revert string `json:"revert"`
	} `json:"results"`
}

type fbStatsResponse struct {
	IsSimulated        bool   `json:"isSimulated"`
	SimulatedAt        string `json:"simulatedAt"`
	SealedByBuildersAt string `json:"sealedByBuildersAt"`
}

// NewFlashbotsClient creates an Ethereum private relay client
func NewFlashbotsClient(config *Config, signer interfaces.Signer, logger *zap.Logger) *FlashbotsClient {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	headers := map[string]string{}
	if config.AuthHeader != "" {
		headers["X-Flashbots-Signature"] = config.AuthHeader
	}
	rpc := jsonrpc.NewClientWithOpts(config.URL, &jsonrpc.RPCClientOpts{
		HTTPClient:    httpClient,
		CustomHeaders: headers,
	})

	return &FlashbotsClient{
		config:   config,
		rpc:      rpc,
		http:     httpClient,
		signer:   signer,
		logger:   logger,
		relayIDs: make(map[string]string),
	}
}

func (c *FlashbotsClient) Chain() types.Chain { return types.ChainEthereum }
func (c *FlashbotsClient) Name() string       { return c.config.Name }

// CreateBundle signs the front-run and back-run legs around the victim
func (c *FlashbotsClient) CreateBundle(ctx context.Context, params *types.ExecutionParams, tip *big.Int, targetBlock uint64) (*types.Bundle, error) {
	legs, err := buildLegs(ctx, c.signer, params, tip)
	if err != nil {
		return nil, err
	}

	bundle := &types.Bundle{
		ID:           fmt.Sprintf("fb-%s-%d", params.Opportunity.VictimTx.Hash, targetBlock),
		Chain:        types.ChainEthereum,
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

// SubmitBundle sends the bundle to the relay's live endpoint
func (c *FlashbotsClient) SubmitBundle(ctx context.Context, bundle *types.Bundle) error {
	resp, err := c.rpc.Call(ctx, "eth_sendBundle", []interface{}{fbBundleParams{
		Txs:         rawTxsHex(bundle),
		BlockNumber: hexutil.EncodeUint64(bundle.TargetBlock),
	}})
	if err != nil {
		return fmt.Errorf("eth_sendBundle call failed: %w", err)
	}
	if resp.Error != nil {
		return classifyRelayError(fmt.Errorf("eth_sendBundle: %s", resp.Error.Message))
	}

	var out fbSendResponse
	if err := resp.GetObject(&out); err != nil {
		return fmt.Errorf("malformed eth_sendBundle response: %w", err)
	}

	c.mu.Lock()
	c.relayIDs[bundle.ID] = out.BundleHash
	c.mu.Unlock()

	c.logger.Debug("bundle submitted to relay",
		zap.String("bundle", bundle.ID),
		zap.String("bundleHash", out.BundleHash),
		zap.Uint64("targetBlock", bundle.TargetBlock))
	return nil
}

// SimulateBundle runs the bundle through eth_callBundle
func (c *FlashbotsClient) SimulateBundle(ctx context.Context, bundle *types.Bundle) (*interfaces.SimulationOutcome, error) {
	resp, err := c.rpc.Call(ctx, "eth_callBundle", []interface{}{fbBundleParams{
		Txs:         rawTxsHex(bundle),
		BlockNumber: hexutil.EncodeUint64(bundle.TargetBlock),
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

// WatchBundle polls bundle stats until the relay reports sealing, the target
// block is left behind, or the context ends
func (c *FlashbotsClient) WatchBundle(ctx context.Context, bundle *types.Bundle) (<-chan interfaces.BundleEvent, error) {
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
				stats, err := c.bundleStats(ctx, relayHash, bundle.TargetBlock)
				if err != nil {
					c.logger.Debug("bundle stats poll failed",
						zap.String("bundle", bundle.ID), zap.Error(err))
					continue
				}
				if stats.SealedByBuildersAt != "" {
					out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleIncluded}
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *FlashbotsClient) bundleStats(ctx context.Context, relayHash string, targetBlock uint64) (*fbStatsResponse, error) {
	resp, err := c.rpc.Call(ctx, "flashbots_getBundleStatsV2", []interface{}{map[string]string{
		"bundleHash":  relayHash,
		"blockNumber": hexutil.EncodeUint64(targetBlock),
	}})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("flashbots_getBundleStatsV2: %s", resp.Error.Message)
	}
	var out fbStatsResponse
	if err := resp.GetObject(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect drops idle relay connections
func (c *FlashbotsClient) Disconnect() error {
	c.http.CloseIdleConnections()
	return nil
}
