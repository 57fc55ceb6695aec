package profit

import (
	"math/big"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// OptimizerConfig holds profit optimizer settings
type OptimizerConfig struct {
	MaxPositionSize    *big.Int
	MinPriceConfidence float64
	RiskDiscount       float64
}

// DefaultOptimizerConfig returns default optimizer settings
func DefaultOptimizerConfig() *OptimizerConfig {
	return &OptimizerConfig{
		MaxPositionSize:    big.NewInt(5e18),
		MinPriceConfidence: 0.8,
		RiskDiscount:       0.9,
	}
}

// Optimizer computes the front-run size that maximizes extracted value net of
// pool fees and back-run slippage. All methods are deterministic and free of
// side effects so the math can be unit-tested against known pool states.
type Optimizer struct {
	config *OptimizerConfig
}

// NewOptimizer creates a new profit optimizer with the given configuration
func NewOptimizer(config *OptimizerConfig) *Optimizer {
	if config == nil {
		config = DefaultOptimizerConfig()
	}
	return &Optimizer{config: config}
}

// invalidResult is the zero-profit outcome used for unusable inputs
func invalidResult() *types.ProfitOptimizationResult {
	return &types.ProfitOptimizationResult{
		OptimalFrontRunAmount: big.NewInt(0),
		Valid:                 false,
	}
}

// Optimize computes the optimal front-run amount and expected profit for one
// opportunity. Profit is expressed in USD weighted by the lower of the two
// price confidences; when either confidence is below the configured minimum
// the result reports zero profitability rather than extrapolate.
func (o *Optimizer) Optimize(opp *types.SandwichOpportunity, tokenIn, tokenOut *types.PriceQuote, gasPrice *big.Int) *types.ProfitOptimizationResult {
	if opp == nil || opp.Pool == nil || tokenIn == nil || tokenOut == nil {
		return invalidResult()
	}
	pool := opp.Pool
	if pool.ReserveIn == nil || pool.ReserveIn.Sign() <= 0 || pool.ReserveOut == nil || pool.ReserveOut.Sign() <= 0 {
		return invalidResult()
	}
	if opp.AmountIn == nil || opp.AmountIn.Sign() <= 0 {
		return invalidResult()
	}

	confidence := tokenIn.Confidence
	if tokenOut.Confidence < confidence {
		confidence = tokenOut.Confidence
	}
	if confidence < o.config.MinPriceConfidence {
		return &types.ProfitOptimizationResult{
			OptimalFrontRunAmount: big.NewInt(0),
			Valid:                 true,
		}
	}

	// A victim amount beyond the pool's reserve cannot execute in full; clamp
	// it and flag the result so callers see the boundary was hit.
	victimIn := opp.AmountIn
	clamped := false
	if victimIn.Cmp(pool.ReserveIn) > 0 {
		victimIn = new(big.Int).Set(pool.ReserveIn)
		clamped = true
	}

	upper := new(big.Int).Set(pool.ReserveIn)
	if o.config.MaxPositionSize != nil && upper.Cmp(o.config.MaxPositionSize) > 0 {
		upper.Set(o.config.MaxPositionSize)
	}

	best, bestProfit := o.searchFrontRun(victimIn, opp.MinAmountOut, pool, upper)
	if best.Sign() <= 0 || bestProfit.Sign() <= 0 {
		return &types.ProfitOptimizationResult{
			OptimalFrontRunAmount: big.NewInt(0),
			ClampedToReserve:      clamped,
			Valid:                 true,
		}
	}
	if best.Cmp(upper) == 0 {
		clamped = true
	}

	decimals := opp.TokenDecimals
	if decimals <= 0 {
		decimals = 18
	}
	profitUSD := tokenUSD(bestProfit, decimals, tokenIn.PriceUSD) * confidence
	positionUSD := tokenUSD(best, decimals, tokenIn.PriceUSD)

	gasCostUSD := 0.0
	if gasPrice != nil {
		// Front-run plus back-run at a generous per-swap gas allowance
		gasWei := new(big.Int).Mul(gasPrice, big.NewInt(2*200_000))
		gasCostUSD = tokenUSD(gasWei, 18, tokenIn.PriceUSD)
	}

	result := &types.ProfitOptimizationResult{
		OptimalFrontRunAmount: best,
		MaxExpectedProfitUSD:  profitUSD - gasCostUSD,
		ClampedToReserve:      clamped,
		Valid:                 true,
	}
	if result.MaxExpectedProfitUSD < 0 {
		result.MaxExpectedProfitUSD = 0
	}
	if positionUSD > 0 {
		result.ProfitabilityRatio = result.MaxExpectedProfitUSD / positionUSD
	}
	if gasCostUSD > 0 {
		result.GasEfficiency = result.MaxExpectedProfitUSD / gasCostUSD
	}
	result.RiskAdjustedReturn = result.ProfitabilityRatio * confidence * o.config.RiskDiscount

	return result
}

// searchFrontRun ternary-searches the front-run size over [1, upper].
// sandwichProfit is unimodal in the front-run amount: small amounts move the
// price too little, large ones eat the edge through fees and back-run
// slippage or push the victim past its minimum-out and void the sandwich.
func (o *Optimizer) searchFrontRun(victimIn, victimMinOut *big.Int, pool *types.PoolSnapshot, upper *big.Int) (*big.Int, *big.Int) {
	lo := big.NewInt(1)
	hi := new(big.Int).Set(upper)
	if hi.Cmp(lo) < 0 {
		return big.NewInt(0), big.NewInt(0)
	}

	three := big.NewInt(3)
	for i := 0; i < 72 && lo.Cmp(hi) < 0; i++ {
		span := new(big.Int).Sub(hi, lo)
		third := new(big.Int).Div(span, three)
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)

		p1 := sandwichProfit(m1, victimIn, victimMinOut, pool)
		p2 := sandwichProfit(m2, victimIn, victimMinOut, pool)
		if p1.Cmp(p2) < 0 {
			lo = new(big.Int).Add(m1, big.NewInt(1))
		} else {
			hi = m2
		}
	}

	best := lo
	return best, sandwichProfit(best, victimIn, victimMinOut, pool)
}

// sandwichProfit simulates front-run, victim and back-run against the pool
// snapshot and returns the net profit in the input token. A front-run that
// pushes the victim below its minimum output voids the sandwich and scores
// a deeply negative profit so the search backs off.
func sandwichProfit(frontRun, victimIn, victimMinOut *big.Int, pool *types.PoolSnapshot) *big.Int {
	rIn := new(big.Int).Set(pool.ReserveIn)
	rOut := new(big.Int).Set(pool.ReserveOut)

	// Front-run buy
	frontOut := getAmountOut(frontRun, rIn, rOut, pool.FeeBps)
	if frontOut.Sign() <= 0 {
		return new(big.Int).Neg(frontRun)
	}
	rIn.Add(rIn, frontRun)
	rOut.Sub(rOut, frontOut)

	// Victim swap at the worsened price
	victimOut := getAmountOut(victimIn, rIn, rOut, pool.FeeBps)
	if victimMinOut != nil && victimMinOut.Sign() > 0 && victimOut.Cmp(victimMinOut) < 0 {
		// Victim would revert; the sandwich cannot land
		penalty := new(big.Int).Add(frontRun, pool.ReserveIn)
		return penalty.Neg(penalty)
	}
	rIn.Add(rIn, victimIn)
	rOut.Sub(rOut, victimOut)

	// Back-run sell of the tokens acquired up front
	backOut := getAmountOut(frontOut, rOut, rIn, pool.FeeBps)

	return new(big.Int).Sub(backOut, frontRun)
}

// getAmountOut is the constant-product output formula with a basis-point fee:
// out = in*(10000-fee)*rOut / (rIn*10000 + in*(10000-fee))
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	feeFactor := big.NewInt(10_000 - feeBps)
	inWithFee := new(big.Int).Mul(amountIn, feeFactor)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(10_000))
	denominator.Add(denominator, inWithFee)
	return numerator.Div(numerator, denominator)
}

// tokenUSD converts a raw token amount to USD at the given price
func tokenUSD(amount *big.Int, decimals int, priceUSD float64) float64 {
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	v, _ := f.Float64()
	return v * priceUSD
}
