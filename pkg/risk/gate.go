package risk

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// GateConfig holds the risk gate's hard limits
type GateConfig struct {
	MaxPositionSize        map[types.Chain]*big.Int
	MaxConcurrentPositions int
	MinPoolLiquidityUSD    float64
	MaxPriceImpact         float64
	MaxGasPrice            *big.Int
	MinProfitUSD           float64
	MaxDailyVolumeUSD      float64
	FailureThreshold       int
	FailureCooldown        time.Duration
}

// DefaultGateConfig returns default risk limits
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		MaxPositionSize:        map[types.Chain]*big.Int{},
		MaxConcurrentPositions: 5,
		MinPoolLiquidityUSD:    50_000,
		MaxPriceImpact:         0.05,
		MaxGasPrice:            big.NewInt(500_000_000_000),
		MinProfitUSD:           25,
		MaxDailyVolumeUSD:      1_000_000,
		FailureThreshold:       5,
		FailureCooldown:        5 * time.Minute,
	}
}

// Gate enforces portfolio and safety limits on candidate executions. All
// rolling state lives behind a single mutex so assessments and completions
// from concurrent pipelines never race.
type Gate struct {
	config *GateConfig
	logger *zap.Logger

	mu                  sync.Mutex
	openPositions       int
	openByChain         map[types.Chain]*big.Int
	dailyVolumeUSD      float64
	volumeDay           string
	consecutiveFailures int
	cooldownUntil       time.Time

	now func() time.Time
}

// NewGate creates a new risk gate with the given configuration
func NewGate(config *GateConfig, logger *zap.Logger) *Gate {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &Gate{
		config:      config,
		logger:      logger,
		openByChain: make(map[types.Chain]*big.Int),
		now:         time.Now,
	}
}

// Assess evaluates every hard limit against the candidate and reports all
// violations, not just the first. A passing assessment books the candidate's
// notional value against the daily volume limit.
func (g *Gate) Assess(opp *types.SandwichOpportunity, optimization *types.ProfitOptimizationResult) *types.RiskAssessment {
	assessment := &types.RiskAssessment{Allowed: true}
	if opp == nil || optimization == nil {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons, "missing opportunity or optimization result")
		return assessment
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollVolumeDayLocked()

	positionUSD := notionalUSD(optimization)

	if limit, ok := g.config.MaxPositionSize[opp.Chain]; ok && limit != nil {
		assessment.PositionSizeCap = new(big.Int).Set(limit)
		if optimization.OptimalFrontRunAmount != nil && optimization.OptimalFrontRunAmount.Cmp(limit) > 0 {
			assessment.Allowed = false
			assessment.Reasons = append(assessment.Reasons,
				fmt.Sprintf("position size %s exceeds %s chain limit %s", optimization.OptimalFrontRunAmount, opp.Chain, limit))
		}
	}

	if g.openPositions >= g.config.MaxConcurrentPositions {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("open positions at limit (%d)", g.config.MaxConcurrentPositions))
	}

	if opp.Pool == nil || opp.Pool.LiquidityUSD < g.config.MinPoolLiquidityUSD {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("pool liquidity below $%.0f minimum", g.config.MinPoolLiquidityUSD))
	}

	if opp.SlippageEst > g.config.MaxPriceImpact {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("price impact %.4f exceeds maximum %.4f", opp.SlippageEst, g.config.MaxPriceImpact))
	}

	if g.config.MaxGasPrice != nil && opp.GasPrice != nil && opp.GasPrice.Cmp(g.config.MaxGasPrice) > 0 {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("gas price %s exceeds maximum %s", opp.GasPrice, g.config.MaxGasPrice))
	}

	if optimization.MaxExpectedProfitUSD < g.config.MinProfitUSD {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("expected profit $%.2f below $%.2f minimum", optimization.MaxExpectedProfitUSD, g.config.MinProfitUSD))
	}

	if g.config.MaxDailyVolumeUSD > 0 && g.dailyVolumeUSD+positionUSD > g.config.MaxDailyVolumeUSD {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("daily volume $%.0f would exceed $%.0f limit", g.dailyVolumeUSD+positionUSD, g.config.MaxDailyVolumeUSD))
	}

	if g.now().Before(g.cooldownUntil) {
		assessment.Allowed = false
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("failure cooldown active until %s", g.cooldownUntil.Format(time.RFC3339)))
	}

	assessment.RiskScore = g.riskScoreLocked(opp, positionUSD)
	if assessment.RiskScore > 0.7 {
		assessment.Recommendations = append(assessment.Recommendations, "reduce position size")
	}
	if g.consecutiveFailures > 0 && g.consecutiveFailures >= g.config.FailureThreshold/2 {
		assessment.Recommendations = append(assessment.Recommendations,
			fmt.Sprintf("failure streak at %d of %d", g.consecutiveFailures, g.config.FailureThreshold))
	}

	if assessment.Allowed {
		g.dailyVolumeUSD += positionUSD
	} else {
		g.logger.Info("risk gate denied opportunity",
			zap.String("opportunity", opp.ID),
			zap.Strings("reasons", assessment.Reasons),
			zap.Float64("riskScore", assessment.RiskScore))
	}

	return assessment
}

// RecordOutcome updates the failure streak after a terminal execution. The
// streak resets on any success; reaching the threshold arms the cooldown.
func (g *Gate) RecordOutcome(result *types.ExecutionResult) {
	if result == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if result.Success {
		g.consecutiveFailures = 0
		return
	}

	g.consecutiveFailures++
	if g.consecutiveFailures >= g.config.FailureThreshold {
		g.cooldownUntil = g.now().Add(g.config.FailureCooldown)
		g.consecutiveFailures = 0
		g.logger.Warn("consecutive failure threshold reached, cooling down",
			zap.Int("threshold", g.config.FailureThreshold),
			zap.Time("until", g.cooldownUntil))
	}
}

// OpenPosition records capital committed to an in-flight execution
func (g *Gate) OpenPosition(chain types.Chain, size *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.openPositions++
	if size != nil {
		total, ok := g.openByChain[chain]
		if !ok {
			total = big.NewInt(0)
			g.openByChain[chain] = total
		}
		total.Add(total, size)
	}
}

// ClosePosition releases capital when an execution reaches a terminal state
func (g *Gate) ClosePosition(chain types.Chain, size *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.openPositions > 0 {
		g.openPositions--
	}
	if size != nil {
		if total, ok := g.openByChain[chain]; ok {
			total.Sub(total, size)
			if total.Sign() < 0 {
				total.SetInt64(0)
			}
		}
	}
}

// riskScoreLocked computes a continuous [0,1] score from portfolio
// utilization and the candidate's own risk profile. Informational only;
// it never gates on its own.
func (g *Gate) riskScoreLocked(opp *types.SandwichOpportunity, positionUSD float64) float64 {
	positionUtil := float64(g.openPositions) / float64(g.config.MaxConcurrentPositions)

	volumeUtil := 0.0
	if g.config.MaxDailyVolumeUSD > 0 {
		volumeUtil = (g.dailyVolumeUSD + positionUSD) / g.config.MaxDailyVolumeUSD
	}

	impactUtil := 0.0
	if g.config.MaxPriceImpact > 0 {
		impactUtil = opp.SlippageEst / g.config.MaxPriceImpact
	}

	failureUtil := float64(g.consecutiveFailures) / float64(g.config.FailureThreshold)

	score := 0.3*positionUtil + 0.25*volumeUtil + 0.25*impactUtil + 0.2*failureUtil
	if score > 1 {
		score = 1
	}
	return score
}

// rollVolumeDayLocked resets the daily volume tally at the UTC day boundary
func (g *Gate) rollVolumeDayLocked() {
	day := g.now().UTC().Format("2006-01-02")
	if day != g.volumeDay {
		g.volumeDay = day
		g.dailyVolumeUSD = 0
	}
}

// notionalUSD recovers the candidate's position value from the optimizer's
// ratio fields
func notionalUSD(optimization *types.ProfitOptimizationResult) float64 {
	if optimization.ProfitabilityRatio <= 0 {
		return 0
	}
	return optimization.MaxExpectedProfitUSD / optimization.ProfitabilityRatio
}
