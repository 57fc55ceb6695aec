package interfaces

import (
	"context"
	"math/big"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// PendingTxFeed surfaces not-yet-confirmed transactions. Provided by the
// mempool/event-feed collaborator; the engine only consumes the stream.
type PendingTxFeed interface {
	Subscribe(ctx context.Context) (<-chan *types.PendingTransaction, error)
}

// PriceSource resolves a token to a USD price with a confidence score.
// Multi-source aggregation happens behind this interface.
type PriceSource interface {
	GetPrice(ctx context.Context, token string, chain types.Chain) (*types.PriceQuote, error)
}

// ChainClient gives read access to chain state for one network
type ChainClient interface {
	Chain() types.Chain
	PoolReserves(ctx context.Context, tokenIn, tokenOut string) (*types.PoolSnapshot, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

// Signer turns an unsigned transaction payload into a signed, broadcast-ready
// one. The engine never handles raw private keys.
type Signer interface {
	SignTransaction(ctx context.Context, chain types.Chain, unsigned []byte) (signed []byte, hash string, err error)
}
