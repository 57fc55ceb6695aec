package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ybbus/jsonrpc/v3"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// JitoClient submits sandwich bundles to a Solana block engine. Transactions
// travel base64-encoded; landing is tracked over the block engine's websocket
// result stream when configured, falling back to getBundleStatuses polling.
type JitoClient struct {
	config *Config
	rpc    jsonrpc.RPCClient
	http   *http.Client
	signer interfaces.Signer
	logger *zap.Logger

	dialer *websocket.Dialer

	// connMu guards conn: watch goroutines set it, Disconnect tears it down
	connMu sync.Mutex
	conn   *websocket.Conn
}

type jitoStatusResponse struct {
	Value []struct {
		BundleID           string `json:"bundle_id"`
		Slot               uint64 `json:"slot"`
		ConfirmationStatus string `json:"confirmation_status"`
		Err                *struct {
			Ok *string `json:"Ok"`
		} `json:"err"`
	} `json:"value"`
}

type jitoWSResult struct {
	BundleID string `json:"bundle_id"`
	Accepted bool   `json:"accepted"`
	Rejected string `json:"rejected,omitempty"`
	Slot     uint64 `json:"slot,omitempty"`
}

// NewJitoClient creates a Solana block engine client
func NewJitoClient(config *Config, signer interfaces.Signer, logger *zap.Logger) *JitoClient {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	return &JitoClient{
		config: config,
		rpc:    jsonrpc.NewClientWithOpts(config.URL, &jsonrpc.RPCClientOpts{HTTPClient: httpClient}),
		http:   httpClient,
		signer: signer,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

func (c *JitoClient) Chain() types.Chain { return types.ChainSolana }
func (c *JitoClient) Name() string       { return c.config.Name }

// CreateBundle signs the front-run and back-run legs around the victim. The
// tip travels as a transfer to a tip account inside the back-run leg, encoded
// by the signer.
func (c *JitoClient) CreateBundle(ctx context.Context, params *types.ExecutionParams, tip *big.Int, targetSlot uint64) (*types.Bundle, error) {
	legs, err := buildLegs(ctx, c.signer, params, tip)
	if err != nil {
		return nil, err
	}

	bundle := &types.Bundle{
		ID:           fmt.Sprintf("jito-%s-%d", params.Opportunity.VictimTx.Hash, targetSlot),
		Chain:        types.ChainSolana,
		Transactions: legs,
		TargetBlock:  targetSlot,
		Tip:          tip,
		EstProfitUSD: params.Opportunity.EstProfitUSD,
	}
	if err := bundle.SetStatus(types.BundleCreated); err != nil {
		return nil, err
	}
	return bundle, nil
}

// SubmitBundle sends the bundle to the block engine
func (c *JitoClient) SubmitBundle(ctx context.Context, bundle *types.Bundle) error {
	resp, err := c.rpc.Call(ctx, "sendBundle", [][]string{base64Txs(bundle)})
	if err != nil {
		return fmt.Errorf("sendBundle call failed: %w", err)
	}
	if resp.Error != nil {
		return classifyRelayError(fmt.Errorf("sendBundle: %s", resp.Error.Message))
	}

	var relayID string
	if err := resp.GetObject(&relayID); err != nil {
		return fmt.Errorf("malformed sendBundle response: %w", err)
	}

	c.logger.Debug("bundle submitted to block engine",
		zap.String("bundle", bundle.ID),
		zap.String("relayId", relayID),
		zap.Uint64("targetSlot", bundle.TargetBlock))
	return nil
}

// SimulateBundle runs the bundle through the block engine's simulation
func (c *JitoClient) SimulateBundle(ctx context.Context, bundle *types.Bundle) (*interfaces.SimulationOutcome, error) {
	resp, err := c.rpc.Call(ctx, "simulateBundle", []interface{}{map[string]interface{}{
		"encodedTransactions": base64Txs(bundle),
	}})
	if err != nil {
		return nil, fmt.Errorf("simulateBundle call failed: %w", err)
	}
	if resp.Error != nil {
		return nil, classifyRelayError(fmt.Errorf("simulateBundle: %s", resp.Error.Message))
	}

	var out struct {
		Summary string `json:"summary"`
		Results []struct {
			UnitsConsumed uint64 `json:"unitsConsumed"`
			Err           string `json:"err"`
		} `json:"transactionResults"`
	}
	if err := resp.GetObject(&out); err != nil {
		return nil, fmt.Errorf("malformed simulateBundle response: %w", err)
	}

	outcome := &interfaces.SimulationOutcome{Success: out.Summary == "succeeded"}
	for _, result := range out.Results {
		outcome.GasUsed += result.UnitsConsumed
		if result.Err != "" && outcome.RevertReason == "" {
			outcome.RevertReason = result.Err
		}
	}
	if !outcome.Success && outcome.RevertReason == "" {
		outcome.RevertReason = out.Summary
	}
	return outcome, nil
}

// WatchBundle streams landing results over the websocket when configured,
// otherwise polls getBundleStatuses
func (c *JitoClient) WatchBundle(ctx context.Context, bundle *types.Bundle) (<-chan interfaces.BundleEvent, error) {
	if c.config.WebSocketURL != "" {
		return c.watchWebSocket(ctx, bundle)
	}
	return c.watchPolling(ctx, bundle), nil
}

func (c *JitoClient) watchWebSocket(ctx context.Context, bundle *types.Bundle) (<-chan interfaces.BundleEvent, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.config.WebSocketURL, nil)
	if err != nil {
		c.logger.Warn("websocket dial failed, falling back to polling",
			zap.String("url", c.config.WebSocketURL), zap.Error(err))
		return c.watchPolling(ctx, bundle), nil
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "subscribeBundleResults",
		"params":  []string{bundle.ID},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bundle result subscription failed: %w", err)
	}

	out := make(chan interfaces.BundleEvent, 4)
	go func() {
		defer close(out)
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()
		defer close(done)

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var result jitoWSResult
			if err := json.Unmarshal(payload, &result); err != nil {
				continue
			}
			if result.Rejected != "" {
				out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleFailed, Err: result.Rejected}
				return
			}
			if result.Accepted && result.Slot > 0 {
				out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleIncluded}
				return
			}
		}
	}()
	return out, nil
}

func (c *JitoClient) watchPolling(ctx context.Context, bundle *types.Bundle) <-chan interfaces.BundleEvent {
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
				resp, err := c.rpc.Call(ctx, "getBundleStatuses", [][]string{{bundle.ID}})
				if err != nil || resp.Error != nil {
					continue
				}
				var status jitoStatusResponse
				if err := resp.GetObject(&status); err != nil || len(status.Value) == 0 {
					continue
				}
				entry := status.Value[0]
				switch entry.ConfirmationStatus {
				case "confirmed", "finalized":
					out <- interfaces.BundleEvent{BundleID: bundle.ID, Status: types.BundleIncluded}
					return
				}
			}
		}
	}()
	return out
}

// Disconnect tears down the websocket and idle HTTP connections
func (c *JitoClient) Disconnect() error {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.http.CloseIdleConnections()
	return nil
}

func base64Txs(bundle *types.Bundle) []string {
	txs := make([]string, len(bundle.Transactions))
	for i, tx := range bundle.Transactions {
		txs[i] = base64.StdEncoding.EncodeToString(tx.Raw)
	}
	return txs
}
