package interfaces

import (
	"context"
	"errors"
	"math/big"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// ErrRelayRejected marks a relay's deliberate refusal of a bundle (simulation
// revert, invalid bundle, blocked searcher). Terminal; never retried.
var ErrRelayRejected = errors.New("relay rejected bundle")

// RelayClient builds and submits sandwich bundles to one chain family's
// private relay and reports lifecycle events. Three implementations exist:
// EVM private relay, Solana block engine and BSC relay; the right one is
// selected by chain at construction time.
type RelayClient interface {
	Chain() types.Chain
	Name() string

	// CreateBundle constructs the front-run/victim/back-run transaction set
	// for the given execution, signed and ready for submission.
	CreateBundle(ctx context.Context, params *types.ExecutionParams, tip *big.Int, targetBlock uint64) (*types.Bundle, error)

	// SubmitBundle sends the bundle to the relay's live endpoint
	SubmitBundle(ctx context.Context, bundle *types.Bundle) error

	// SimulateBundle runs the bundle against the relay's simulation endpoint
	SimulateBundle(ctx context.Context, bundle *types.Bundle) (*SimulationOutcome, error)

	// WatchBundle reports inclusion/landing status until a terminal event or
	// context cancellation. The returned channel is closed on either.
	WatchBundle(ctx context.Context, bundle *types.Bundle) (<-chan BundleEvent, error)

	// Disconnect tears down relay connections regardless of outstanding state
	Disconnect() error
}

// SimulationOutcome is the relay's verdict on a simulated bundle
type SimulationOutcome struct {
	Success      bool
	GasUsed      uint64
	ProfitWei    *big.Int
	RevertReason string
}

// BundleEvent is one lifecycle update reported by a relay
type BundleEvent struct {
	BundleID  string
	Status    types.BundleStatus
	LandedTip *big.Int
	Err       string
}
