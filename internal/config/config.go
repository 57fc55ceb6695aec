package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/viper"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// Config holds all configuration for the sandwich engine. It is constructed
// once at startup, validated, and passed by reference into each component.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Relays    RelaysConfig    `mapstructure:"relays"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	External  ExternalConfig  `mapstructure:"external"`
}

// ExternalConfig points at the collaborator services the engine consumes:
// the pending-transaction feed, price aggregation, pool state and signing.
type ExternalConfig struct {
	FeedWebSocketURL string            `mapstructure:"feed_websocket_url"`
	PriceServiceURL  string            `mapstructure:"price_service_url"`
	PoolServiceURL   string            `mapstructure:"pool_service_url"`
	SignerURL        string            `mapstructure:"signer_url"`
	RPC              map[string]string `mapstructure:"rpc"`
}

// EngineConfig contains orchestrator-level settings
type EngineConfig struct {
	MaxConcurrentBundles int             `mapstructure:"max_concurrent_bundles"`
	MaxStopWait          time.Duration   `mapstructure:"max_stop_wait"`
	PaperTrading         bool            `mapstructure:"paper_trading"`
	Chains               map[string]bool `mapstructure:"chains"`
	ExecutionDeadline    time.Duration   `mapstructure:"execution_deadline"`
}

// ScoringConfig contains opportunity scorer thresholds
type ScoringConfig struct {
	MinTradeValueUSD    float64            `mapstructure:"min_trade_value_usd"`
	MaxGasPrice         string             `mapstructure:"max_gas_price"`
	MinProfitFloorUSD   float64            `mapstructure:"min_profit_floor_usd"`
	BlacklistedTokens   []string           `mapstructure:"blacklisted_tokens"`
	AllowedProtocols    []string           `mapstructure:"allowed_protocols"`
	EconomicWindow      time.Duration      `mapstructure:"economic_window"`
	NativeTokenPriceUSD map[string]float64 `mapstructure:"native_token_price_usd"`
}

// OptimizerConfig contains profit optimizer settings
type OptimizerConfig struct {
	MaxPositionSize    string  `mapstructure:"max_position_size"`
	MinPriceConfidence float64 `mapstructure:"min_price_confidence"`
	RiskDiscount       float64 `mapstructure:"risk_discount"`
}

// RiskConfig contains the risk gate's hard limits
type RiskConfig struct {
	MaxPositionSize        map[string]string `mapstructure:"max_position_size"`
	MaxConcurrentPositions int               `mapstructure:"max_concurrent_positions"`
	MinPoolLiquidityUSD    float64           `mapstructure:"min_pool_liquidity_usd"`
	MaxPriceImpact         float64           `mapstructure:"max_price_impact"`
	MaxGasPrice            string            `mapstructure:"max_gas_price"`
	MinProfitUSD           float64           `mapstructure:"min_profit_usd"`
	MaxDailyVolumeUSD      float64           `mapstructure:"max_daily_volume_usd"`
	FailureThreshold       int               `mapstructure:"failure_threshold"`
	FailureCooldown        time.Duration     `mapstructure:"failure_cooldown"`
}

// LifecycleConfig contains bundle lifecycle manager settings
type LifecycleConfig struct {
	BaseTip             string        `mapstructure:"base_tip"`
	ProfitStep1USD      float64       `mapstructure:"profit_step1_usd"`
	ProfitStep2USD      float64       `mapstructure:"profit_step2_usd"`
	SizeStep1USD        float64       `mapstructure:"size_step1_usd"`
	SizeStep2USD        float64       `mapstructure:"size_step2_usd"`
	ReputationBonus     float64       `mapstructure:"reputation_bonus"`
	MaxBidMultiplier    float64       `mapstructure:"max_bid_multiplier"`
	MaxRetryAttempts    int           `mapstructure:"max_retry_attempts"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	BreakerThreshold    int           `mapstructure:"breaker_threshold"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
	StatusPollInterval  time.Duration `mapstructure:"status_poll_interval"`
}

// RelayConfig describes one relay endpoint
type RelayConfig struct {
	Name         string `mapstructure:"name"`
	URL          string `mapstructure:"url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	AuthHeader   string `mapstructure:"auth_header"`
	Enabled      bool   `mapstructure:"enabled"`
}

// RelaysConfig holds one relay per chain family
type RelaysConfig struct {
	Ethereum RelayConfig `mapstructure:"ethereum"`
	Solana   RelayConfig `mapstructure:"solana"`
	BSC      RelayConfig `mapstructure:"bsc"`
}

// AdmissionConfig contains adaptive admission controller settings
type AdmissionConfig struct {
	TokenCacheSize      int           `mapstructure:"token_cache_size"`
	PoolCacheTTL        time.Duration `mapstructure:"pool_cache_ttl"`
	GasCacheTTL         time.Duration `mapstructure:"gas_cache_ttl"`
	MinChainSuccessRate float64       `mapstructure:"min_chain_success_rate"`
	LatencyWindowFactor float64       `mapstructure:"latency_window_factor"`
	StatsWindow         int           `mapstructure:"stats_window"`
	MaxRatePerChain     float64       `mapstructure:"max_rate_per_chain"`
}

// MetricsConfig contains metrics export configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration for values the engine cannot start with.
// Configuration errors are fatal; the process must not serve with an invalid
// chain or relay setup.
func (c *Config) Validate() error {
	if c.Engine.MaxConcurrentBundles <= 0 {
		return fmt.Errorf("engine.max_concurrent_bundles must be positive, got %d", c.Engine.MaxConcurrentBundles)
	}
	if c.Engine.MaxStopWait <= 0 {
		return fmt.Errorf("engine.max_stop_wait must be positive")
	}
	if c.Engine.ExecutionDeadline <= 0 {
		return fmt.Errorf("engine.execution_deadline must be positive")
	}

	for name, enabled := range c.Engine.Chains {
		if !types.Chain(name).Valid() {
			return fmt.Errorf("engine.chains: unknown chain %q", name)
		}
		if !enabled {
			continue
		}
		relay := c.RelayFor(types.Chain(name))
		if relay == nil || !relay.Enabled {
			return fmt.Errorf("chain %q enabled without an enabled relay", name)
		}
		if relay.URL == "" {
			return fmt.Errorf("relay for chain %q has no URL", name)
		}
	}

	if c.Optimizer.MinPriceConfidence < 0 || c.Optimizer.MinPriceConfidence > 1 {
		return fmt.Errorf("optimizer.min_price_confidence must be in [0,1], got %f", c.Optimizer.MinPriceConfidence)
	}
	if _, ok := new(big.Int).SetString(c.Optimizer.MaxPositionSize, 10); !ok {
		return fmt.Errorf("optimizer.max_position_size is not a valid integer: %q", c.Optimizer.MaxPositionSize)
	}

	if c.Risk.FailureThreshold <= 0 {
		return fmt.Errorf("risk.failure_threshold must be positive")
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be positive")
	}
	for chain, size := range c.Risk.MaxPositionSize {
		if !types.Chain(chain).Valid() {
			return fmt.Errorf("risk.max_position_size: unknown chain %q", chain)
		}
		if _, ok := new(big.Int).SetString(size, 10); !ok {
			return fmt.Errorf("risk.max_position_size[%s] is not a valid integer: %q", chain, size)
		}
	}

	if c.Lifecycle.MaxBidMultiplier <= 1.0 {
		return fmt.Errorf("lifecycle.max_bid_multiplier must exceed 1.0")
	}
	if _, ok := new(big.Int).SetString(c.Lifecycle.BaseTip, 10); !ok {
		return fmt.Errorf("lifecycle.base_tip is not a valid integer: %q", c.Lifecycle.BaseTip)
	}
	if c.Lifecycle.BreakerThreshold <= 0 {
		return fmt.Errorf("lifecycle.breaker_threshold must be positive")
	}

	if c.Admission.MinChainSuccessRate < 0 || c.Admission.MinChainSuccessRate > 1 {
		return fmt.Errorf("admission.min_chain_success_rate must be in [0,1]")
	}

	return nil
}

// RelayFor returns the relay configuration for the given chain, or nil
func (c *Config) RelayFor(chain types.Chain) *RelayConfig {
	switch chain {
	case types.ChainEthereum:
		return &c.Relays.Ethereum
	case types.ChainSolana:
		return &c.Relays.Solana
	case types.ChainBSC:
		return &c.Relays.BSC
	}
	return nil
}

// ChainEnabled reports whether a chain is switched on in the engine config
func (c *Config) ChainEnabled(chain types.Chain) bool {
	return c.Engine.Chains[string(chain)]
}

// MaxPositionSizeFor returns the per-chain position cap as a big.Int.
// Validate guarantees the strings parse.
func (c *Config) MaxPositionSizeFor(chain types.Chain) *big.Int {
	if s, ok := c.Risk.MaxPositionSize[string(chain)]; ok {
		v, _ := new(big.Int).SetString(s, 10)
		return v
	}
	v, _ := new(big.Int).SetString(c.Optimizer.MaxPositionSize, 10)
	return v
}

// setDefaults sets default configuration values
func setDefaults() {
	// Engine defaults
	viper.SetDefault("engine.max_concurrent_bundles", 10)
	viper.SetDefault("engine.max_stop_wait", "30s")
	viper.SetDefault("engine.paper_trading", false)
	viper.SetDefault("engine.execution_deadline", "12s")
	viper.SetDefault("engine.chains", map[string]bool{
		"ethereum": true,
		"solana":   false,
		"bsc":      false,
	})

	// Scoring defaults
	viper.SetDefault("scoring.min_trade_value_usd", 5000.0)
	viper.SetDefault("scoring.max_gas_price", "500000000000") // 500 gwei
	viper.SetDefault("scoring.min_profit_floor_usd", 10.0)
	viper.SetDefault("scoring.allowed_protocols", []string{"uniswap_v2", "pancakeswap", "raydium"})
	viper.SetDefault("scoring.economic_window", "12s")
	viper.SetDefault("scoring.native_token_price_usd", map[string]float64{
		"ethereum": 2500,
		"bsc":      600,
		"solana":   150,
	})

	// Optimizer defaults
	viper.SetDefault("optimizer.max_position_size", "5000000000000000000") // 5 ETH
	viper.SetDefault("optimizer.min_price_confidence", 0.8)
	viper.SetDefault("optimizer.risk_discount", 0.9)

	// Risk defaults
	viper.SetDefault("risk.max_concurrent_positions", 5)
	viper.SetDefault("risk.min_pool_liquidity_usd", 50000.0)
	viper.SetDefault("risk.max_price_impact", 0.05)
	viper.SetDefault("risk.max_gas_price", "500000000000")
	viper.SetDefault("risk.min_profit_usd", 25.0)
	viper.SetDefault("risk.max_daily_volume_usd", 1000000.0)
	viper.SetDefault("risk.failure_threshold", 5)
	viper.SetDefault("risk.failure_cooldown", "5m")

	// Lifecycle defaults
	viper.SetDefault("lifecycle.base_tip", "1000000000000000") // 0.001 ETH
	viper.SetDefault("lifecycle.profit_step1_usd", 100.0)
	viper.SetDefault("lifecycle.profit_step2_usd", 500.0)
	viper.SetDefault("lifecycle.size_step1_usd", 10000.0)
	viper.SetDefault("lifecycle.size_step2_usd", 50000.0)
	viper.SetDefault("lifecycle.reputation_bonus", 1.1)
	viper.SetDefault("lifecycle.max_bid_multiplier", 3.0)
	viper.SetDefault("lifecycle.max_retry_attempts", 3)
	viper.SetDefault("lifecycle.retry_base_delay", "200ms")
	viper.SetDefault("lifecycle.breaker_threshold", 5)
	viper.SetDefault("lifecycle.breaker_reset_timeout", "30s")
	viper.SetDefault("lifecycle.status_poll_interval", "500ms")

	// Relay defaults
	viper.SetDefault("relays.ethereum.name", "flashbots")
	viper.SetDefault("relays.ethereum.url", "https://relay.flashbots.net")
	viper.SetDefault("relays.ethereum.enabled", true)
	viper.SetDefault("relays.solana.name", "jito")
	viper.SetDefault("relays.solana.url", "https://mainnet.block-engine.jito.wtf/api/v1")
	viper.SetDefault("relays.solana.websocket_url", "wss://mainnet.block-engine.jito.wtf/api/v1/ws")
	viper.SetDefault("relays.solana.enabled", false)
	viper.SetDefault("relays.bsc.name", "blockrazor")
	viper.SetDefault("relays.bsc.url", "https://blockrazor-bsc.48.club")
	viper.SetDefault("relays.bsc.enabled", false)

	// Admission defaults
	viper.SetDefault("admission.token_cache_size", 4096)
	viper.SetDefault("admission.pool_cache_ttl", "30s")
	viper.SetDefault("admission.gas_cache_ttl", "3s")
	viper.SetDefault("admission.min_chain_success_rate", 0.2)
	viper.SetDefault("admission.latency_window_factor", 0.8)
	viper.SetDefault("admission.stats_window", 100)
	viper.SetDefault("admission.max_rate_per_chain", 50.0)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// External collaborator defaults
	viper.SetDefault("external.feed_websocket_url", "ws://localhost:8546/pending")
	viper.SetDefault("external.price_service_url", "http://localhost:8081")
	viper.SetDefault("external.pool_service_url", "http://localhost:8082")
	viper.SetDefault("external.signer_url", "http://localhost:8083")
	viper.SetDefault("external.rpc", map[string]string{
		"ethereum": "http://localhost:8545",
	})
}
