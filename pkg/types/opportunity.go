package types

import (
	"math/big"
	"time"
)

// PoolSnapshot captures the state of an AMM pool at detection time
type PoolSnapshot struct {
	Address      string   `json:"address"`
	Chain        Chain    `json:"chain"`
	TokenIn      string   `json:"tokenIn"`
	TokenOut     string   `json:"tokenOut"`
	ReserveIn    *big.Int `json:"reserveIn"`
	ReserveOut   *big.Int `json:"reserveOut"`
	FeeBps       int64    `json:"feeBps"`
	LiquidityUSD float64  `json:"liquidityUsd"`
}

// PriceQuote is the output of the external price source: a USD price and a
// [0,1] confidence score reflecting agreement across independent sources.
type PriceQuote struct {
	Token      string    `json:"token"`
	Chain      Chain     `json:"chain"`
	PriceUSD   float64   `json:"priceUsd"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// SandwichOpportunity is an ephemeral record describing a victim transaction
// worth sandwiching. It is created by the scorer, owned by the orchestrator
// for one pipeline pass and never persisted.
type SandwichOpportunity struct {
	ID             string              `json:"id"`
	Chain          Chain               `json:"chain"`
	Protocol       DEXProtocol         `json:"protocol"`
	VictimTx       *PendingTransaction `json:"victimTx"`
	TokenIn        string              `json:"tokenIn"`
	TokenOut       string              `json:"tokenOut"`
	AmountIn       *big.Int            `json:"amountIn"`
	MinAmountOut   *big.Int            `json:"minAmountOut"`
	TokenDecimals  int                 `json:"tokenDecimals"`
	Pool           *PoolSnapshot       `json:"pool"`
	GasPrice       *big.Int            `json:"gasPrice"`
	TradeValueUSD  float64             `json:"tradeValueUsd"`
	MEVScore       float64             `json:"mevScore"`
	SlippageEst    float64             `json:"slippageEstimate"`
	EstProfitUSD   float64             `json:"estimatedProfitUsd"`
	DetectedAt     time.Time           `json:"detectedAt"`
	EconomicWindow time.Duration       `json:"economicWindow"`
}

// ProfitOptimizationResult holds the outcome of the front-run sizing
// calculation. It is a pure function of opportunity, pool state and prices.
type ProfitOptimizationResult struct {
	OptimalFrontRunAmount *big.Int `json:"optimalFrontRunAmount"`
	MaxExpectedProfitUSD  float64  `json:"maxExpectedProfitUsd"`
	ProfitabilityRatio    float64  `json:"profitabilityRatio"`
	GasEfficiency         float64  `json:"gasEfficiency"`
	RiskAdjustedReturn    float64  `json:"riskAdjustedReturn"`
	ClampedToReserve      bool     `json:"clampedToReserve"`
	Valid                 bool     `json:"valid"`
}

// RiskAssessment is the risk gate's verdict for one candidate execution.
// All violated rules are reported, not just the first.
type RiskAssessment struct {
	Allowed         bool     `json:"allowed"`
	Reasons         []string `json:"reasons,omitempty"`
	RiskScore       float64  `json:"riskScore"`
	PositionSizeCap *big.Int `json:"positionSizeCap,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
