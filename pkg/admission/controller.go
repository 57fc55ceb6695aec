package admission

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// ControllerConfig holds adaptive admission settings
type ControllerConfig struct {
	TokenCacheSize      int
	PoolCacheTTL        time.Duration
	GasCacheTTL         time.Duration
	MinChainSuccessRate float64
	LatencyWindowFactor float64
	StatsWindow         int
	MaxRatePerChain     float64
}

// DefaultControllerConfig returns default admission settings
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		TokenCacheSize:      4096,
		PoolCacheTTL:        30 * time.Second,
		GasCacheTTL:         3 * time.Second,
		MinChainSuccessRate: 0.2,
		LatencyWindowFactor: 0.8,
		StatsWindow:         100,
		MaxRatePerChain:     50,
	}
}

// minSamples is how many recorded outcomes a chain needs before the soft
// success-rate circuit can trip
const minSamples = 10

// chainStats is a fixed-size ring of recent execution outcomes
type chainStats struct {
	outcomes   []outcome
	next       int
	count      int
	successes  int
	latencySum time.Duration
}

type outcome struct {
	success bool
	latency time.Duration
}

func (s *chainStats) record(o outcome) {
	if s.count == len(s.outcomes) {
		old := s.outcomes[s.next]
		if old.success {
			s.successes--
		}
		s.latencySum -= old.latency
	} else {
		s.count++
	}
	s.outcomes[s.next] = o
	if o.success {
		s.successes++
	}
	s.latencySum += o.latency
	s.next = (s.next + 1) % len(s.outcomes)
}

func (s *chainStats) successRate() float64 {
	if s.count == 0 {
		return 1
	}
	return float64(s.successes) / float64(s.count)
}

func (s *chainStats) avgLatency() time.Duration {
	if s.count == 0 {
		return 0
	}
	return s.latencySum / time.Duration(s.count)
}

// Controller pre-filters and prioritizes opportunities under load using
// cached metadata and rolling per-chain statistics. Advisory only; it never
// overrides the risk gate.
type Controller struct {
	config *ControllerConfig
	logger *zap.Logger

	tokens *lru.Cache[string, int]
	pools  *gocache.Cache
	gas    *gocache.Cache

	mu       sync.Mutex
	stats    map[types.Chain]*chainStats
	limiters map[types.Chain]*rate.Limiter
}

// NewController creates a new adaptive admission controller
func NewController(config *ControllerConfig, logger *zap.Logger) (*Controller, error) {
	if config == nil {
		config = DefaultControllerConfig()
	}

	tokens, err := lru.New[string, int](config.TokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build token cache: %w", err)
	}

	c := &Controller{
		config:   config,
		logger:   logger,
		tokens:   tokens,
		pools:    gocache.New(config.PoolCacheTTL, 2*config.PoolCacheTTL),
		gas:      gocache.New(config.GasCacheTTL, 2*config.GasCacheTTL),
		stats:    make(map[types.Chain]*chainStats),
		limiters: make(map[types.Chain]*rate.Limiter),
	}
	for _, chain := range types.SupportedChains {
		c.stats[chain] = &chainStats{outcomes: make([]outcome, config.StatsWindow)}
		burst := int(config.MaxRatePerChain)
		if burst < 1 {
			burst = 1
		}
		c.limiters[chain] = rate.NewLimiter(rate.Limit(config.MaxRatePerChain), burst)
	}
	return c, nil
}

// Evaluate returns an advisory verdict for the opportunity. Verdicts shed
// load rather than wait: a rate-limited or latency-doomed opportunity is
// dropped on the spot, never queued.
func (c *Controller) Evaluate(opp *types.SandwichOpportunity) *interfaces.AdmissionDecision {
	if opp == nil {
		return &interfaces.AdmissionDecision{ShouldProcess: false, Reason: "nil opportunity"}
	}

	c.rememberMetadata(opp)

	limiter, ok := c.limiters[opp.Chain]
	if !ok {
		return &interfaces.AdmissionDecision{ShouldProcess: false, Reason: fmt.Sprintf("unsupported chain %q", opp.Chain)}
	}
	if !limiter.Allow() {
		return &interfaces.AdmissionDecision{ShouldProcess: false, Reason: "chain rate limit exceeded"}
	}

	c.mu.Lock()
	stats := c.stats[opp.Chain]
	successRate := stats.successRate()
	avgLatency := stats.avgLatency()
	samples := stats.count
	c.mu.Unlock()

	if samples >= minSamples && successRate < c.config.MinChainSuccessRate {
		c.logger.Debug("chain shedding on low success rate",
			zap.String("chain", string(opp.Chain)),
			zap.Float64("successRate", successRate))
		return &interfaces.AdmissionDecision{
			ShouldProcess: false,
			Reason:        fmt.Sprintf("chain success rate %.2f below %.2f", successRate, c.config.MinChainSuccessRate),
		}
	}

	if opp.EconomicWindow > 0 {
		remaining := opp.EconomicWindow - time.Since(opp.DetectedAt)
		budget := time.Duration(float64(remaining) * c.config.LatencyWindowFactor)
		if remaining <= 0 || avgLatency > budget {
			return &interfaces.AdmissionDecision{
				ShouldProcess: false,
				Reason:        "expected latency exceeds economic window",
			}
		}
	}

	return &interfaces.AdmissionDecision{
		ShouldProcess: true,
		Priority:      opp.MEVScore * (0.5 + 0.5*successRate),
	}
}

// RecordOutcome feeds one terminal execution result into the rolling window
func (c *Controller) RecordOutcome(chain types.Chain, success bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stats, ok := c.stats[chain]; ok {
		stats.record(outcome{success: success, latency: latency})
	}
}

// CachedGasPrice returns the short-TTL gas estimate for a chain, if fresh
func (c *Controller) CachedGasPrice(chain types.Chain) (*big.Int, bool) {
	if v, ok := c.gas.Get(string(chain)); ok {
		return v.(*big.Int), true
	}
	return nil, false
}

// RememberGasPrice stores a gas estimate under the gas TTL
func (c *Controller) RememberGasPrice(chain types.Chain, price *big.Int) {
	if price != nil {
		c.gas.SetDefault(string(chain), price)
	}
}

// CachedPool returns the pool snapshot seen most recently for this token
// pair. Entries are stale-tolerant; callers re-fetch when absent.
func (c *Controller) CachedPool(chain types.Chain, tokenIn, tokenOut string) (*types.PoolSnapshot, bool) {
	if v, ok := c.pools.Get(poolKey(chain, tokenIn, tokenOut)); ok {
		return v.(*types.PoolSnapshot), true
	}
	return nil, false
}

// TokenDecimals returns cached token metadata
func (c *Controller) TokenDecimals(chain types.Chain, token string) (int, bool) {
	return c.tokens.Get(tokenKey(chain, token))
}

// rememberMetadata keeps the opportunity's pool and token metadata warm so
// repeat victims on the same pool skip external lookups
func (c *Controller) rememberMetadata(opp *types.SandwichOpportunity) {
	if opp.Pool != nil && opp.TokenIn != "" && opp.TokenOut != "" {
		c.pools.SetDefault(poolKey(opp.Chain, opp.TokenIn, opp.TokenOut), opp.Pool)
	}
	if opp.TokenIn != "" && opp.TokenDecimals > 0 {
		c.tokens.Add(tokenKey(opp.Chain, opp.TokenIn), opp.TokenDecimals)
	}
}

func poolKey(chain types.Chain, tokenIn, tokenOut string) string {
	return string(chain) + ":" + tokenIn + ":" + tokenOut
}

func tokenKey(chain types.Chain, token string) string {
	return string(chain) + ":" + token
}
