package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// ManagerConfig holds bundle lifecycle settings
type ManagerConfig struct {
	BaseTip             *big.Int
	ProfitStep1USD      float64
	ProfitStep2USD      float64
	SizeStep1USD        float64
	SizeStep2USD        float64
	ReputationBonus     float64
	MaxBidMultiplier    float64
	MaxRetryAttempts    int
	RetryBaseDelay      time.Duration
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
}

// DefaultManagerConfig returns default lifecycle settings
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		BaseTip:             big.NewInt(1_000_000_000_000_000), // 0.001 ETH
		ProfitStep1USD:      100,
		ProfitStep2USD:      500,
		SizeStep1USD:        10_000,
		SizeStep2USD:        50_000,
		ReputationBonus:     1.1,
		MaxBidMultiplier:    3.0,
		MaxRetryAttempts:    3,
		RetryBaseDelay:      200 * time.Millisecond,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// Manager drives one bundle from creation through a terminal status: bid,
// create, simulate, submit, watch. Transient relay errors are retried with
// backoff behind a per-chain circuit breaker; relay rejections and deadline
// expiry are terminal. At most one active submission exists per opportunity.
type Manager struct {
	config   *ManagerConfig
	relays   map[types.Chain]interfaces.RelayClient
	chains   map[types.Chain]interfaces.ChainClient
	breakers map[types.Chain]*CircuitBreaker
	events   interfaces.EventPublisher
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a new bundle lifecycle manager
func NewManager(config *ManagerConfig, relays map[types.Chain]interfaces.RelayClient, chains map[types.Chain]interfaces.ChainClient, events interfaces.EventPublisher, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}

	breakers := make(map[types.Chain]*CircuitBreaker, len(relays))
	for chain := range relays {
		breakers[chain] = NewCircuitBreaker(
			fmt.Sprintf("relay-%s", chain),
			config.BreakerThreshold,
			config.BreakerResetTimeout,
		)
	}

	return &Manager{
		config:   config,
		relays:   relays,
		chains:   chains,
		breakers: breakers,
		events:   events,
		logger:   logger,
		active:   make(map[string]struct{}),
	}
}

// Execute runs one opportunity's bundle to a terminal outcome. Execution
// failures are reported in the result; the error return is reserved for
// unusable input and duplicate submissions.
func (m *Manager) Execute(ctx context.Context, params *types.ExecutionParams) (*types.ExecutionResult, error) {
	if params == nil || params.Opportunity == nil {
		return nil, fmt.Errorf("execution params missing opportunity")
	}
	opp := params.Opportunity

	relay, ok := m.relays[opp.Chain]
	if !ok {
		return nil, fmt.Errorf("no relay client for chain %q", opp.Chain)
	}

	if err := m.claim(opp.ID); err != nil {
		return nil, err
	}
	defer m.release(opp.ID)

	start := time.Now()
	result := &types.ExecutionResult{
		Chain:        opp.Chain,
		EstProfitUSD: opp.EstProfitUSD,
	}
	result.Latency.Detection = start.Sub(opp.DetectedAt)

	cctx, cancel := context.WithDeadline(ctx, params.Deadline)
	defer cancel()

	tip := m.bidTip(opp)
	targetBlock := m.targetBlock(cctx, opp.Chain)

	bundle, err := relay.CreateBundle(cctx, params, tip, targetBlock)
	if err != nil {
		return m.fail(result, nil, start, fmt.Errorf("bundle creation failed: %w", err)), nil
	}
	result.BundleID = bundle.ID
	m.publish(interfaces.EventBundleCreated, opp.Chain, bundle, "")

	breaker := m.breakers[opp.Chain]
	policy := RetryPolicy{MaxAttempts: m.config.MaxRetryAttempts, BaseDelay: m.config.RetryBaseDelay}

	simStart := time.Now()
	var outcome *interfaces.SimulationOutcome
	err = Retry(cctx, policy, func() error {
		return breaker.Execute(func() error {
			var simErr error
			outcome, simErr = relay.SimulateBundle(cctx, bundle)
			return simErr
		})
	})
	result.Latency.Simulation = time.Since(simStart)
	if err != nil {
		return m.fail(result, bundle, start, fmt.Errorf("simulation failed: %w", err)), nil
	}
	if !outcome.Success {
		// Relay rejection is terminal, never retried
		return m.fail(result, bundle, start, fmt.Errorf("%w: %s", interfaces.ErrRelayRejected, outcome.RevertReason)), nil
	}
	result.SimGasUsed = outcome.GasUsed
	_ = bundle.SetStatus(types.BundleSimulated)

	if params.SimulateOnly {
		result.Success = true
		result.BundleStatus = types.BundleSimulated
		result.Latency.Total = time.Since(start)
		m.logger.Info("paper trade simulated",
			zap.String("bundle", bundle.ID),
			zap.Uint64("gasUsed", outcome.GasUsed))
		return result, nil
	}

	execStart := time.Now()
	err = Retry(cctx, policy, func() error {
		return breaker.Execute(func() error {
			return relay.SubmitBundle(cctx, bundle)
		})
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || cctx.Err() != nil {
			return m.expire(result, bundle, start, execStart), nil
		}
		return m.fail(result, bundle, start, fmt.Errorf("submission failed: %w", err)), nil
	}
	_ = bundle.SetStatus(types.BundleSubmitted)
	m.publish(interfaces.EventBundleSubmitted, opp.Chain, bundle, "")

	return m.watch(cctx, relay, bundle, outcome, result, start, execStart), nil
}

// watch waits for the relay to report a terminal status or for the deadline
// to lapse, whichever first
func (m *Manager) watch(ctx context.Context, relay interfaces.RelayClient, bundle *types.Bundle, outcome *interfaces.SimulationOutcome, result *types.ExecutionResult, start, execStart time.Time) *types.ExecutionResult {
	events, err := relay.WatchBundle(ctx, bundle)
	if err != nil {
		return m.fail(result, bundle, start, fmt.Errorf("bundle watch failed: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			return m.expire(result, bundle, start, execStart)
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return m.expire(result, bundle, start, execStart)
				}
				return m.fail(result, bundle, start, fmt.Errorf("relay closed watch stream before terminal status"))
			}
			if !ev.Status.Terminal() {
				continue
			}
			result.Latency.Execution = time.Since(execStart)
			result.Latency.Total = time.Since(start)

			if ev.Status == types.BundleIncluded {
				_ = bundle.SetStatus(types.BundleIncluded)
				result.Success = true
				result.BundleStatus = types.BundleIncluded
				result.RealizedProfit = realizedProfit(outcome.ProfitWei, ev.LandedTip)
				bundle.RealProfit = result.RealizedProfit
				m.publish(m.inclusionEvent(bundle.Chain), bundle.Chain, bundle, "")
				return result
			}

			_ = bundle.SetStatus(types.BundleFailed)
			result.BundleStatus = types.BundleFailed
			result.Err = ev.Err
			m.publish(interfaces.EventBundleFailed, bundle.Chain, bundle, ev.Err)
			return result
		}
	}
}

// bidTip computes the competition-aware tip: base × a multiplier that steps
// up with profitability and trade size, scaled by the reputation bonus and
// capped so the bid never gives away the whole edge.
func (m *Manager) bidTip(opp *types.SandwichOpportunity) *big.Int {
	multiplier := 1.0
	if opp.EstProfitUSD >= m.config.ProfitStep1USD {
		multiplier += 0.3
	}
	if opp.EstProfitUSD >= m.config.ProfitStep2USD {
		multiplier += 0.3
	}
	if opp.TradeValueUSD >= m.config.SizeStep1USD {
		multiplier += 0.2
	}
	if opp.TradeValueUSD >= m.config.SizeStep2USD {
		multiplier += 0.2
	}
	multiplier *= m.config.ReputationBonus
	if multiplier > m.config.MaxBidMultiplier {
		multiplier = m.config.MaxBidMultiplier
	}

	tip := new(big.Float).Mul(new(big.Float).SetInt(m.config.BaseTip), big.NewFloat(multiplier))
	out, _ := tip.Int(nil)
	return out
}

func (m *Manager) targetBlock(ctx context.Context, chain types.Chain) uint64 {
	client, ok := m.chains[chain]
	if !ok {
		return 0
	}
	height, err := client.BlockHeight(ctx)
	if err != nil {
		m.logger.Warn("failed to read block height, relay will pick target",
			zap.String("chain", string(chain)), zap.Error(err))
		return 0
	}
	return height + 1
}

func (m *Manager) claim(oppID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[oppID]; exists {
		return fmt.Errorf("opportunity %s already has an active submission", oppID)
	}
	m.active[oppID] = struct{}{}
	return nil
}

func (m *Manager) release(oppID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, oppID)
}

func (m *Manager) fail(result *types.ExecutionResult, bundle *types.Bundle, start time.Time, err error) *types.ExecutionResult {
	if bundle != nil {
		_ = bundle.SetStatus(types.BundleFailed)
		m.publish(interfaces.EventBundleFailed, bundle.Chain, bundle, err.Error())
	}
	result.Success = false
	result.BundleStatus = types.BundleFailed
	result.Err = err.Error()
	result.Latency.Total = time.Since(start)
	m.logger.Warn("bundle execution failed",
		zap.String("chain", string(result.Chain)),
		zap.String("bundle", result.BundleID),
		zap.Error(err))
	return result
}

// expire marks a deadline lapse: a timeout, counted as a failure but distinct
// from a relay-reported one, and never retried
func (m *Manager) expire(result *types.ExecutionResult, bundle *types.Bundle, start, execStart time.Time) *types.ExecutionResult {
	if bundle != nil {
		_ = bundle.SetStatus(types.BundleExpired)
		m.publish(interfaces.EventBundleFailed, bundle.Chain, bundle, "deadline exceeded")
	}
	result.Success = false
	result.BundleStatus = types.BundleExpired
	result.Err = "deadline exceeded before terminal status"
	result.Latency.Execution = time.Since(execStart)
	result.Latency.Total = time.Since(start)
	return result
}

func (m *Manager) inclusionEvent(chain types.Chain) interfaces.EventType {
	if chain == types.ChainSolana {
		return interfaces.EventBundleLanded
	}
	return interfaces.EventBundleIncluded
}

func (m *Manager) publish(eventType interfaces.EventType, chain types.Chain, bundle *types.Bundle, errMsg string) {
	if m.events == nil {
		return
	}
	m.events.Publish(interfaces.Event{
		Type:      eventType,
		Chain:     chain,
		Timestamp: time.Now(),
		Bundle:    bundle,
		Err:       errMsg,
	})
}

// realizedProfit nets the landed tip out of the simulated gross profit
func realizedProfit(gross, landedTip *big.Int) *big.Int {
	if gross == nil {
		return nil
	}
	net := new(big.Int).Set(gross)
	if landedTip != nil {
		net.Sub(net, landedTip)
	}
	return net
}
