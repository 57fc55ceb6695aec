package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/metrics"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

type passScorer struct{ opp *types.SandwichOpportunity }

func (s *passScorer) Score(context.Context, *types.PendingTransaction) (*types.SandwichOpportunity, error) {
	return s.opp, nil
}

type allowAllAdmission struct{ outcomes int32 }

func (a *allowAllAdmission) Evaluate(*types.SandwichOpportunity) *interfaces.AdmissionDecision {
	return &interfaces.AdmissionDecision{ShouldProcess: true, Priority: 0.5}
}
func (a *allowAllAdmission) RecordOutcome(types.Chain, bool, time.Duration) {
	atomic.AddInt32(&a.outcomes, 1)
}

type fixedOptimizer struct {
	result *types.ProfitOptimizationResult
	calls  int32
}

func (f *fixedOptimizer) Optimize(*types.SandwichOpportunity, *types.PriceQuote, *types.PriceQuote, *big.Int) *types.ProfitOptimizationResult {
	atomic.AddInt32(&f.calls, 1)
	return f.result
}

type fakeGate struct {
	allowed  bool
	outcomes int32
	open     int32
}

func (g *fakeGate) Assess(*types.SandwichOpportunity, *types.ProfitOptimizationResult) *types.RiskAssessment {
	return &types.RiskAssessment{Allowed: g.allowed, Reasons: []string{"denied by test"}}
}
func (g *fakeGate) RecordOutcome(*types.ExecutionResult) { atomic.AddInt32(&g.outcomes, 1) }
func (g *fakeGate) OpenPosition(types.Chain, *big.Int)   { atomic.AddInt32(&g.open, 1) }
func (g *fakeGate) ClosePosition(types.Chain, *big.Int)  { atomic.AddInt32(&g.open, -1) }

type blockingExecutor struct {
	hold    chan struct{}
	success bool
	calls   int32
}

func (e *blockingExecutor) Execute(ctx context.Context, params *types.ExecutionParams) (*types.ExecutionResult, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.hold != nil {
		select {
		case <-e.hold:
		case <-ctx.Done():
		}
	}
	status := types.BundleIncluded
	if !e.success {
		status = types.BundleFailed
	}
	return &types.ExecutionResult{
		Chain:        params.Opportunity.Chain,
		Success:      e.success,
		BundleID:     "bundle-1",
		BundleStatus: status,
		EstProfitUSD: params.Opportunity.EstProfitUSD,
		Latency:      types.LatencyBreakdown{Total: 100 * time.Millisecond},
	}, nil
}

type countingPriceSource struct {
	err   error
	calls int32
}

func (p *countingPriceSource) GetPrice(_ context.Context, token string, chain types.Chain) (*types.PriceQuote, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return &types.PriceQuote{Token: token, Chain: chain, PriceUSD: 2500, Confidence: 1}, nil
}

type stubRelay struct {
	chain       types.Chain
	disconnects int32
}

func (r *stubRelay) Chain() types.Chain { return r.chain }
func (r *stubRelay) Name() string       { return "stub" }
func (r *stubRelay) CreateBundle(context.Context, *types.ExecutionParams, *big.Int, uint64) (*types.Bundle, error) {
	return nil, errors.New("not implemented")
}
func (r *stubRelay) SubmitBundle(context.Context, *types.Bundle) error { return nil }
func (r *stubRelay) SimulateBundle(context.Context, *types.Bundle) (*interfaces.SimulationOutcome, error) {
	return nil, errors.New("not implemented")
}
func (r *stubRelay) WatchBundle(context.Context, *types.Bundle) (<-chan interfaces.BundleEvent, error) {
	return nil, errors.New("not implemented")
}
func (r *stubRelay) Disconnect() error {
	atomic.AddInt32(&r.disconnects, 1)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingPublisher) Publish(event interfaces.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) has(eventType interfaces.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

type harness struct {
	orchestrator *Orchestrator
	admission    *allowAllAdmission
	optimizer    *fixedOptimizer
	gate         *fakeGate
	executor     *blockingExecutor
	prices       *countingPriceSource
	relay        *stubRelay
	publisher    *recordingPublisher
	collector    *metrics.Collector
}

func profitableResult() *types.ProfitOptimizationResult {
	return &types.ProfitOptimizationResult{
		OptimalFrontRunAmount: big.NewInt(2e18),
		MaxExpectedProfitUSD:  50, // 0.02 ETH at $2500
		ProfitabilityRatio:    0.01,
		Valid:                 true,
	}
}

func newHarness(config *OrchestratorConfig, optResult *types.ProfitOptimizationResult) *harness {
	h := &harness{
		admission: &allowAllAdmission{},
		optimizer: &fixedOptimizer{result: optResult},
		gate:      &fakeGate{allowed: true},
		executor:  &blockingExecutor{success: true},
		prices:    &countingPriceSource{},
		relay:     &stubRelay{chain: types.ChainEthereum},
		publisher: &recordingPublisher{},
		collector: metrics.NewCollector(prometheus.NewRegistry()),
	}
	h.orchestrator = NewOrchestrator(
		config,
		&passScorer{},
		h.admission,
		h.optimizer,
		h.gate,
		h.executor,
		h.prices,
		map[types.Chain]interfaces.RelayClient{types.ChainEthereum: h.relay},
		h.publisher,
		h.collector,
		zap.NewNop(),
	)
	return h
}

func testOpp(id string) *types.SandwichOpportunity {
	return &types.SandwichOpportunity{
		ID:           id,
		Chain:        types.ChainEthereum,
		TokenIn:      "0xAAA",
		TokenOut:     "0xBBB",
		GasPrice:     big.NewInt(30_000_000_000),
		EstProfitUSD: 50,
		DetectedAt:   time.Now(),
	}
}

func waitDrained(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.Eventually(t, func() bool { return o.InFlight() == 0 }, 2*time.Second, 5*time.Millisecond)
}

// Profitable opportunity clears every stage, executes, and returns the
// in-flight count to its prior value.
func TestOrchestrator_ProfitableOpportunityExecutes(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MinProfitUSD = 25 // 0.01 ETH threshold at $2500
	h := newHarness(config, profitableResult())

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))
	waitDrained(t, h.orchestrator)

	assert.EqualValues(t, 1, h.executor.calls)
	assert.EqualValues(t, 1, h.gate.outcomes)
	assert.EqualValues(t, 1, h.admission.outcomes)
	assert.EqualValues(t, 0, h.gate.open, "position must be closed after completion")
	assert.True(t, h.publisher.has(interfaces.EventExecutionStarted))
	assert.True(t, h.publisher.has(interfaces.EventExecutionCompleted))

	counters := h.collector.Counters()
	assert.EqualValues(t, 1, counters.ExecutionsStarted)
	assert.EqualValues(t, 1, counters.Successes)
}

// Profit below the configured threshold is rejected before any bundle work.
func TestOrchestrator_UnprofitableOpportunityDroppedBeforeExecution(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MinProfitUSD = 25
	result := profitableResult()
	result.MaxExpectedProfitUSD = 2.5 // 0.001 ETH
	h := newHarness(config, result)

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))

	assert.EqualValues(t, 0, h.executor.calls, "no bundle work may happen for unprofitable opportunities")
	assert.Equal(t, 0, h.orchestrator.InFlight())
	assert.False(t, h.publisher.has(interfaces.EventExecutionStarted))
}

// Zero-profit results (low price confidence) never reach the risk gate.
func TestOrchestrator_ZeroConfidenceProfitNeverReachesRiskGate(t *testing.T) {
	h := newHarness(nil, &types.ProfitOptimizationResult{
		OptimalFrontRunAmount: big.NewInt(0),
		Valid:                 true,
	})
	h.gate.allowed = false // would deny loudly if consulted

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))

	assert.EqualValues(t, 1, h.optimizer.calls)
	assert.EqualValues(t, 0, h.executor.calls)
	assert.EqualValues(t, 0, h.gate.open)
}

// Five consecutive price failures open the circuit; the sixth opportunity
// fails fast without touching the price source.
func TestOrchestrator_PriceCircuitOpensAfterFiveFailures(t *testing.T) {
	h := newHarness(nil, profitableResult())
	h.prices.err = errors.New("price source down")

	for i := 0; i < 5; i++ {
		h.orchestrator.Dispatch(context.Background(), testOpp("opp"))
	}
	require.EqualValues(t, 5, h.prices.calls)

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-6"))

	assert.EqualValues(t, 5, h.prices.calls, "open circuit must fail fast without calling the source")
	assert.EqualValues(t, 0, h.executor.calls)
	assert.Equal(t, 0, h.orchestrator.InFlight())
	assert.True(t, h.publisher.has(interfaces.EventError),
		"price failures must surface as error events")
}

// maxConcurrentBundles = 5 and six simultaneous arrivals: exactly five begin
// execution, the sixth is dropped on the spot.
func TestOrchestrator_CapacityBoundDropsNotQueues(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MaxConcurrentBundles = 5
	h := newHarness(config, profitableResult())
	h.executor.hold = make(chan struct{})

	for i := 0; i < 6; i++ {
		h.orchestrator.Dispatch(context.Background(), testOpp("opp"))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.executor.calls) == 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, h.orchestrator.InFlight())

	close(h.executor.hold)
	waitDrained(t, h.orchestrator)
	assert.EqualValues(t, 5, h.executor.calls, "the sixth arrival must not run later")
}

func TestOrchestrator_RiskDenialDropsOpportunity(t *testing.T) {
	h := newHarness(nil, profitableResult())
	h.gate.allowed = false

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))

	assert.EqualValues(t, 0, h.executor.calls)
	assert.Equal(t, 0, h.orchestrator.InFlight())
}

// After the kill switch, no new opportunity reaches the optimizer; stop
// returns once in-flight work drains and relays are force-disconnected.
func TestOrchestrator_EmergencyStop(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MaxStopWait = 2 * time.Second
	h := newHarness(config, profitableResult())
	h.executor.hold = make(chan struct{})

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.executor.calls) == 1
	}, 2*time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(h.executor.hold)
	}()
	h.orchestrator.EmergencyStop()

	assert.Equal(t, 0, h.orchestrator.InFlight(), "stop must wait for in-flight executions")
	assert.EqualValues(t, 1, h.relay.disconnects)

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-2"))
	assert.EqualValues(t, 1, h.optimizer.calls, "no new opportunity may start after stop")
}

func TestOrchestrator_EmergencyStopTimesOutOnStuckExecution(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MaxStopWait = 100 * time.Millisecond
	h := newHarness(config, profitableResult())
	h.executor.hold = make(chan struct{}) // never released

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.executor.calls) == 1
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	h.orchestrator.EmergencyStop()

	assert.Less(t, time.Since(start), time.Second, "stop must give up after maxStopWait")
	assert.EqualValues(t, 1, h.relay.disconnects, "relays disconnect even with work outstanding")
}

func TestOrchestrator_DisabledChainIgnored(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.Chains = map[types.Chain]bool{types.ChainEthereum: true, types.ChainBSC: false}
	h := newHarness(config, profitableResult())

	tx := &types.PendingTransaction{Hash: "0x1", Chain: types.ChainBSC}
	h.orchestrator.HandleTransaction(context.Background(), tx)

	assert.EqualValues(t, 0, h.optimizer.calls)
}

func TestOrchestrator_StatusSnapshot(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.PaperTrading = true
	h := newHarness(config, profitableResult())

	h.orchestrator.Dispatch(context.Background(), testOpp("opp-1"))
	waitDrained(t, h.orchestrator)

	status := h.orchestrator.Status()
	assert.True(t, status.PaperTrading)
	assert.Equal(t, 0, status.InFlight)
	assert.True(t, status.ChainsEnabled[types.ChainEthereum])
	assert.EqualValues(t, 1, status.Counters.Successes)
}
