package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// Config holds the connection settings for one relay endpoint
type Config struct {
	Name         string
	URL          string
	WebSocketURL string
	AuthHeader   string
	PollInterval time.Duration
}

// New returns the relay client for the given chain family
func New(chain types.Chain, config *Config, signer interfaces.Signer, logger *zap.Logger) (interfaces.RelayClient, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("relay for chain %q has no URL", chain)
	}
	switch chain {
	case types.ChainEthereum:
		return NewFlashbotsClient(config, signer, logger), nil
	case types.ChainSolana:
		return NewJitoClient(config, signer, logger), nil
	case types.ChainBSC:
		return NewBSCClient(config, signer, logger), nil
	}
	return nil, fmt.Errorf("no relay client for chain %q", chain)
}

// rejectionPhrases are relay responses that mark a bundle as deliberately
// refused rather than transiently failed
var rejectionPhrases = []string{
	"revert",
	"invalid bundle",
	"bundle rejected",
	"nonce too low",
	"already known",
	"insufficient funds",
	"blocked",
}

// classifyRelayError wraps deliberate relay refusals in ErrRelayRejected so
// the retry decorator treats them as terminal
func classifyRelayError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rejectionPhrases {
		if strings.Contains(msg, phrase) {
			return fmt.Errorf("%w: %v", interfaces.ErrRelayRejected, err)
		}
	}
	return err
}

// pollInterval applies the default when the config leaves it unset
func pollInterval(config *Config) time.Duration {
	if config.PollInterval > 0 {
		return config.PollInterval
	}
	return 500 * time.Millisecond
}

// unsignedSwap is the chain-neutral payload handed to the signer for the
// front-run and back-run legs. The signer owns nonce assignment and fee
// encoding for its chain.
type unsignedSwap struct {
	Router   string `json:"router"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	AmountIn string `json:"amountIn"`
	Tip      string `json:"tip"`
	BackRun  bool   `json:"backRun"`
}

// buildLegs signs the front-run and back-run around the victim transaction
// and returns the ordered three-transaction set
func buildLegs(ctx context.Context, signer interfaces.Signer, params *types.ExecutionParams, tip *big.Int) ([]types.BundleTransaction, error) {
	opp := params.Opportunity
	if opp.VictimTx == nil || len(opp.VictimTx.Raw) == 0 {
		return nil, fmt.Errorf("opportunity %s has no raw victim transaction", opp.ID)
	}

	front, err := json.Marshal(unsignedSwap{
		Router:   opp.VictimTx.To,
		TokenIn:  opp.TokenIn,
		TokenOut: opp.TokenOut,
		AmountIn: params.FrontRunAmount.String(),
		Tip:      tip.String(),
	})
	if err != nil {
		return nil, err
	}
	frontRaw, frontHash, err := signer.SignTransaction(ctx, opp.Chain, front)
	if err != nil {
		return nil, fmt.Errorf("failed to sign front-run: %w", err)
	}

	back, err := json.Marshal(unsignedSwap{
		Router:   opp.VictimTx.To,
		TokenIn:  opp.TokenOut,
		TokenOut: opp.TokenIn,
		AmountIn: params.FrontRunAmount.String(),
		Tip:      tip.String(),
		BackRun:  true,
	})
	if err != nil {
		return nil, err
	}
	backRaw, backHash, err := signer.SignTransaction(ctx, opp.Chain, back)
	if err != nil {
		return nil, fmt.Errorf("failed to sign back-run: %w", err)
	}

	return []types.BundleTransaction{
		{Hash: frontHash, Raw: frontRaw},
		{Hash: opp.VictimTx.Hash, Raw: opp.VictimTx.Raw, Victim: true},
		{Hash: backHash, Raw: backRaw},
	}, nil
}

// rawTxsHex encodes the bundle's transactions for JSON-RPC submission
func rawTxsHex(bundle *types.Bundle) []string {
	txs := make([]string, len(bundle.Transactions))
	for i, tx := range bundle.Transactions {
		txs[i] = hexutil.Encode(tx.Raw)
	}
	return txs
}
