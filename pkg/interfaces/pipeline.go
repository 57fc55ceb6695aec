package interfaces

import (
	"context"
	"math/big"
	"time"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// OpportunityScorer filters and scores pending transactions into sandwich
// opportunities. A (nil, nil) return means the transaction was discarded
// silently; errors are reserved for malformed input.
type OpportunityScorer interface {
	Score(ctx context.Context, tx *types.PendingTransaction) (*types.SandwichOpportunity, error)
}

// ProfitOptimizer computes the optimal front-run size and expected profit for
// one opportunity. Deterministic and side-effect free; no network calls.
type ProfitOptimizer interface {
	Optimize(opp *types.SandwichOpportunity, tokenIn, tokenOut *types.PriceQuote, gasPrice *big.Int) *types.ProfitOptimizationResult
}

// RiskGate approves or denies a candidate execution against portfolio and
// safety limits. Safe for concurrent use.
type RiskGate interface {
	Assess(opp *types.SandwichOpportunity, optimization *types.ProfitOptimizationResult) *types.RiskAssessment

	// RecordOutcome updates the rolling portfolio state after a completed
	// execution. Must be called exactly once per terminal result.
	RecordOutcome(result *types.ExecutionResult)

	// OpenPosition and ClosePosition bracket an in-flight execution's
	// capital commitment.
	OpenPosition(chain types.Chain, size *big.Int)
	ClosePosition(chain types.Chain, size *big.Int)
}

// AdmissionDecision is the admission controller's advisory verdict
type AdmissionDecision struct {
	ShouldProcess bool
	Priority      float64
	Reason        string
}

// AdmissionController pre-filters and prioritizes opportunities under load.
// Advisory only; it never overrides the risk gate.
type AdmissionController interface {
	Evaluate(opp *types.SandwichOpportunity) *AdmissionDecision
	RecordOutcome(chain types.Chain, success bool, latency time.Duration)
}

// MetadataCache serves recently observed chain metadata so hot-path stages
// can skip redundant external lookups. Entries are stale-tolerant; callers
// re-fetch on a miss.
type MetadataCache interface {
	CachedPool(chain types.Chain, tokenIn, tokenOut string) (*types.PoolSnapshot, bool)
	CachedGasPrice(chain types.Chain) (*big.Int, bool)
	RememberGasPrice(chain types.Chain, price *big.Int)
	TokenDecimals(chain types.Chain, token string) (int, bool)
}

// BundleExecutor runs one execution through bidding, submission and lifecycle
// tracking until a terminal outcome. At most one active submission per
// opportunity.
type BundleExecutor interface {
	Execute(ctx context.Context, params *types.ExecutionParams) (*types.ExecutionResult, error)
}
