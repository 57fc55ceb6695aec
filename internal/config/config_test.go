package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrentBundles: 10,
			MaxStopWait:          30 * time.Second,
			ExecutionDeadline:    12 * time.Second,
			Chains:               map[string]bool{"ethereum": true, "solana": false},
		},
		Scoring: ScoringConfig{
			MinTradeValueUSD: 5000,
			MaxGasPrice:      "500000000000",
			EconomicWindow:   12 * time.Second,
		},
		Optimizer: OptimizerConfig{
			MaxPositionSize:    "5000000000000000000",
			MinPriceConfidence: 0.8,
			RiskDiscount:       0.9,
		},
		Risk: RiskConfig{
			MaxPositionSize:        map[string]string{"ethereum": "10000000000000000000"},
			MaxConcurrentPositions: 5,
			MaxGasPrice:            "500000000000",
			FailureThreshold:       5,
			FailureCooldown:        5 * time.Minute,
		},
		Lifecycle: LifecycleConfig{
			BaseTip:          "1000000000000000",
			MaxBidMultiplier: 3.0,
			BreakerThreshold: 5,
		},
		Relays: RelaysConfig{
			Ethereum: RelayConfig{Name: "flashbots", URL: "https://relay.flashbots.net", Enabled: true},
		},
		Admission: AdmissionConfig{
			MinChainSuccessRate: 0.2,
		},
	}
}

func TestValidate_AcceptsHealthyConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero concurrent bundles", func(c *Config) { c.Engine.MaxConcurrentBundles = 0 }},
		{"zero stop wait", func(c *Config) { c.Engine.MaxStopWait = 0 }},
		{"zero execution deadline", func(c *Config) { c.Engine.ExecutionDeadline = 0 }},
		{"unknown chain", func(c *Config) { c.Engine.Chains["dogecoin"] = true }},
		{"chain enabled without relay", func(c *Config) { c.Engine.Chains["solana"] = true }},
		{"relay without url", func(c *Config) { c.Relays.Ethereum.URL = "" }},
		{"relay disabled for enabled chain", func(c *Config) { c.Relays.Ethereum.Enabled = false }},
		{"confidence above one", func(c *Config) { c.Optimizer.MinPriceConfidence = 1.5 }},
		{"bad position size", func(c *Config) { c.Optimizer.MaxPositionSize = "five eth" }},
		{"zero failure threshold", func(c *Config) { c.Risk.FailureThreshold = 0 }},
		{"zero concurrent positions", func(c *Config) { c.Risk.MaxConcurrentPositions = 0 }},
		{"bad chain in risk limits", func(c *Config) { c.Risk.MaxPositionSize["dogecoin"] = "1" }},
		{"bad risk limit value", func(c *Config) { c.Risk.MaxPositionSize["ethereum"] = "0x10" }},
		{"bid multiplier at one", func(c *Config) { c.Lifecycle.MaxBidMultiplier = 1.0 }},
		{"bad base tip", func(c *Config) { c.Lifecycle.BaseTip = "" }},
		{"zero breaker threshold", func(c *Config) { c.Lifecycle.BreakerThreshold = 0 }},
		{"negative success rate", func(c *Config) { c.Admission.MinChainSuccessRate = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRelayFor(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, "flashbots", cfg.RelayFor(types.ChainEthereum).Name)
	assert.NotNil(t, cfg.RelayFor(types.ChainSolana))
	assert.NotNil(t, cfg.RelayFor(types.ChainBSC))
	assert.Nil(t, cfg.RelayFor(types.Chain("dogecoin")))
}

func TestChainEnabled(t *testing.T) {
	cfg := validConfig()

	assert.True(t, cfg.ChainEnabled(types.ChainEthereum))
	assert.False(t, cfg.ChainEnabled(types.ChainSolana))
	assert.False(t, cfg.ChainEnabled(types.ChainBSC))
}

func TestMaxPositionSizeFor(t *testing.T) {
	cfg := validConfig()

	// Per-chain override wins
	eth := cfg.MaxPositionSizeFor(types.ChainEthereum)
	assert.Equal(t, 0, eth.Cmp(mustBig(t, "10000000000000000000")))

	// Chains without an override fall back to the optimizer cap
	sol := cfg.MaxPositionSizeFor(types.ChainSolana)
	assert.Equal(t, 0, sol.Cmp(mustBig(t, "5000000000000000000")))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Engine.MaxConcurrentBundles)
	assert.Equal(t, 12*time.Second, cfg.Engine.ExecutionDeadline)
	assert.True(t, cfg.ChainEnabled(types.ChainEthereum))
	assert.Equal(t, "flashbots", cfg.Relays.Ethereum.Name)
	assert.Equal(t, 0.8, cfg.Optimizer.MinPriceConfidence)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.NotEmpty(t, cfg.External.FeedWebSocketURL)
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}
