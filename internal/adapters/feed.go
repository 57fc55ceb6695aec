package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// feedMessage is the wire format pushed by the pending-transaction feed
type feedMessage struct {
	Hash     string `json:"hash"`
	Chain    string `json:"chain"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
	GasLimit uint64 `json:"gasLimit"`
	Nonce    uint64 `json:"nonce"`
	Data     []byte `json:"data"`
	Raw      []byte `json:"raw"`
}

// WSFeed consumes the collaborator's pending-transaction stream over a
// websocket, reconnecting with backoff on drops
type WSFeed struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWSFeed creates a pending-transaction feed client
func NewWSFeed(url string, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Subscribe opens the stream and pushes decoded transactions until the
// context ends. Malformed messages are logged and skipped.
func (f *WSFeed) Subscribe(ctx context.Context) (<-chan *types.PendingTransaction, error) {
	out := make(chan *types.PendingTransaction, 256)

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if err := f.stream(ctx, out); err != nil && ctx.Err() == nil {
				f.logger.Warn("feed stream dropped, reconnecting", zap.Error(err))
			}
		}
	}()
	return out, nil
}

func (f *WSFeed) stream(ctx context.Context, out chan<- *types.PendingTransaction) error {
	var conn *websocket.Conn
	dial := func() error {
		var err error
		conn, _, err = f.dialer.DialContext(ctx, f.url, nil)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(dial, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("feed dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		tx, err := decodeFeedMessage(payload)
		if err != nil {
			f.logger.Debug("skipping malformed feed message", zap.Error(err))
			continue
		}
		select {
		case out <- tx:
		default:
			// Feed outruns the pipeline; shed the new arrival rather than
			// block the read loop
			f.logger.Debug("feed buffer full, dropping transaction", zap.String("tx", tx.Hash))
		}
	}
}

func decodeFeedMessage(payload []byte) (*types.PendingTransaction, error) {
	var msg feedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	chain := types.Chain(msg.Chain)
	if !chain.Valid() {
		return nil, fmt.Errorf("unknown chain %q", msg.Chain)
	}
	if msg.Hash == "" {
		return nil, fmt.Errorf("message has no transaction hash")
	}

	tx := &types.PendingTransaction{
		Hash:      msg.Hash,
		Chain:     chain,
		From:      msg.From,
		To:        msg.To,
		GasLimit:  msg.GasLimit,
		Nonce:     msg.Nonce,
		Data:      msg.Data,
		Raw:       msg.Raw,
		Timestamp: time.Now(),
	}
	if msg.Value != "" {
		if v, ok := new(big.Int).SetString(msg.Value, 10); ok {
			tx.Value = v
		}
	}
	if msg.GasPrice != "" {
		if v, ok := new(big.Int).SetString(msg.GasPrice, 10); ok {
			tx.GasPrice = v
		}
	}
	return tx, nil
}
