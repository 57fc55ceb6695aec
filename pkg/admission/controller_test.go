package admission

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

func newTestController(t *testing.T, config *ControllerConfig) *Controller {
	t.Helper()
	controller, err := NewController(config, zap.NewNop())
	require.NoError(t, err)
	return controller
}

func freshOpportunity() *types.SandwichOpportunity {
	return &types.SandwichOpportunity{
		ID:             "ethereum-0xabc",
		Chain:          types.ChainEthereum,
		TokenIn:        "0xAAA",
		TokenOut:       "0xBBB",
		TokenDecimals:  18,
		Pool:           &types.PoolSnapshot{Address: "0xpool", LiquidityUSD: 1e6},
		MEVScore:       0.6,
		DetectedAt:     time.Now(),
		EconomicWindow: 12 * time.Second,
	}
}

func TestController_AdmitsFreshOpportunity(t *testing.T) {
	controller := newTestController(t, nil)

	decision := controller.Evaluate(freshOpportunity())

	require.True(t, decision.ShouldProcess)
	assert.Greater(t, decision.Priority, 0.0)
}

func TestController_ShedsOnLowSuccessRate(t *testing.T) {
	config := DefaultControllerConfig()
	config.MinChainSuccessRate = 0.5
	controller := newTestController(t, config)

	// 10 samples, 1 success: rate 0.1, below the 0.5 floor
	controller.RecordOutcome(types.ChainEthereum, true, 100*time.Millisecond)
	for i := 0; i < 9; i++ {
		controller.RecordOutcome(types.ChainEthereum, false, 100*time.Millisecond)
	}

	decision := controller.Evaluate(freshOpportunity())
	require.False(t, decision.ShouldProcess)
	assert.Contains(t, decision.Reason, "success rate")
}

func TestController_SuccessRateCircuitIsPerChain(t *testing.T) {
	config := DefaultControllerConfig()
	config.MinChainSuccessRate = 0.5
	controller := newTestController(t, config)

	for i := 0; i < 10; i++ {
		controller.RecordOutcome(types.ChainEthereum, false, 100*time.Millisecond)
	}

	opp := freshOpportunity()
	opp.Chain = types.ChainBSC
	decision := controller.Evaluate(opp)
	assert.True(t, decision.ShouldProcess, "bsc must not inherit ethereum's failures")
}

func TestController_NeedsMinimumSamplesBeforeShedding(t *testing.T) {
	config := DefaultControllerConfig()
	config.MinChainSuccessRate = 0.5
	controller := newTestController(t, config)

	for i := 0; i < minSamples-1; i++ {
		controller.RecordOutcome(types.ChainEthereum, false, 100*time.Millisecond)
	}

	decision := controller.Evaluate(freshOpportunity())
	assert.True(t, decision.ShouldProcess)
}

func TestController_ShedsWhenLatencyExceedsWindow(t *testing.T) {
	controller := newTestController(t, nil)

	// Average latency far beyond what the window allows
	for i := 0; i < minSamples; i++ {
		controller.RecordOutcome(types.ChainEthereum, true, 20*time.Second)
	}

	decision := controller.Evaluate(freshOpportunity())
	require.False(t, decision.ShouldProcess)
	assert.Contains(t, decision.Reason, "economic window")
}

func TestController_ShedsStaleOpportunity(t *testing.T) {
	controller := newTestController(t, nil)

	opp := freshOpportunity()
	opp.DetectedAt = time.Now().Add(-time.Minute)

	decision := controller.Evaluate(opp)
	assert.False(t, decision.ShouldProcess)
}

func TestController_RateLimiterShedsBurst(t *testing.T) {
	config := DefaultControllerConfig()
	config.MaxRatePerChain = 2
	controller := newTestController(t, config)

	admitted := 0
	for i := 0; i < 10; i++ {
		if controller.Evaluate(freshOpportunity()).ShouldProcess {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted, "burst beyond the per-chain rate must be shed, not queued")
}

func TestController_RollingWindowEvictsOldOutcomes(t *testing.T) {
	config := DefaultControllerConfig()
	config.StatsWindow = 10
	config.MinChainSuccessRate = 0.5
	controller := newTestController(t, config)

	for i := 0; i < 10; i++ {
		controller.RecordOutcome(types.ChainEthereum, false, 100*time.Millisecond)
	}
	require.False(t, controller.Evaluate(freshOpportunity()).ShouldProcess)

	// A run of successes pushes the failures out of the window
	for i := 0; i < 10; i++ {
		controller.RecordOutcome(types.ChainEthereum, true, 100*time.Millisecond)
	}
	assert.True(t, controller.Evaluate(freshOpportunity()).ShouldProcess)
}

func TestController_PriorityScalesWithChainHealth(t *testing.T) {
	controller := newTestController(t, nil)

	healthy := controller.Evaluate(freshOpportunity())

	for i := 0; i < 10; i++ {
		controller.RecordOutcome(types.ChainEthereum, i%3 == 0, 100*time.Millisecond)
	}
	degraded := controller.Evaluate(freshOpportunity())

	require.True(t, healthy.ShouldProcess)
	require.True(t, degraded.ShouldProcess)
	assert.Greater(t, healthy.Priority, degraded.Priority)
}

func TestController_CachesMetadataFromOpportunities(t *testing.T) {
	controller := newTestController(t, nil)

	controller.Evaluate(freshOpportunity())

	pool, ok := controller.CachedPool(types.ChainEthereum, "0xAAA", "0xBBB")
	require.True(t, ok)
	assert.Equal(t, 1e6, pool.LiquidityUSD)

	decimals, ok := controller.TokenDecimals(types.ChainEthereum, "0xAAA")
	require.True(t, ok)
	assert.Equal(t, 18, decimals)

	_, ok = controller.CachedPool(types.ChainBSC, "0xAAA", "0xBBB")
	assert.False(t, ok, "cache keys must be chain-scoped")
}

func TestController_GasCacheExpires(t *testing.T) {
	config := DefaultControllerConfig()
	config.GasCacheTTL = 20 * time.Millisecond
	controller := newTestController(t, config)

	controller.RememberGasPrice(types.ChainEthereum, big.NewInt(30_000_000_000))

	price, ok := controller.CachedGasPrice(types.ChainEthereum)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(30_000_000_000), price)

	time.Sleep(40 * time.Millisecond)
	_, ok = controller.CachedGasPrice(types.ChainEthereum)
	assert.False(t, ok)
}

func TestController_NilOpportunityRejected(t *testing.T) {
	controller := newTestController(t, nil)
	assert.False(t, controller.Evaluate(nil).ShouldProcess)
}
