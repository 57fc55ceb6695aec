package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/lifecycle"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// OrchestratorConfig holds scheduler-level settings
type OrchestratorConfig struct {
	MaxConcurrentBundles  int
	MaxStopWait           time.Duration
	ExecutionDeadline     time.Duration
	MinProfitUSD          float64
	PaperTrading          bool
	Chains                map[types.Chain]bool
	PriceBreakerThreshold int
	PriceBreakerReset     time.Duration
}

// DefaultOrchestratorConfig returns default scheduler settings
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxConcurrentBundles:  10,
		MaxStopWait:           30 * time.Second,
		ExecutionDeadline:     12 * time.Second,
		MinProfitUSD:          25,
		Chains:                map[types.Chain]bool{types.ChainEthereum: true},
		PriceBreakerThreshold: 5,
		PriceBreakerReset:     30 * time.Second,
	}
}

// Orchestrator is the bounded-concurrency dispatcher. Each opportunity runs
// its pipeline stages strictly in sequence: admission, optimization, risk,
// then bundle execution. Arrivals beyond capacity are dropped, never queued;
// a stale sandwich is worth nothing.
type Orchestrator struct {
	config *OrchestratorConfig

	scorer      interfaces.OpportunityScorer
	admission   interfaces.AdmissionController
	optimizer   interfaces.ProfitOptimizer
	riskGate    interfaces.RiskGate
	executor    interfaces.BundleExecutor
	priceSource interfaces.PriceSource
	relays      map[types.Chain]interfaces.RelayClient
	events      interfaces.EventPublisher
	metrics     interfaces.MetricsCollector
	logger      *zap.Logger

	priceBreaker *lifecycle.CircuitBreaker

	mu       sync.Mutex
	inFlight map[string]*types.SandwichOpportunity
	wg       sync.WaitGroup

	running atomic.Bool
	stopped atomic.Bool
	execSeq atomic.Uint64
}

// NewOrchestrator wires the pipeline stages into a scheduler
func NewOrchestrator(
	config *OrchestratorConfig,
	scorer interfaces.OpportunityScorer,
	admission interfaces.AdmissionController,
	optimizer interfaces.ProfitOptimizer,
	riskGate interfaces.RiskGate,
	executor interfaces.BundleExecutor,
	priceSource interfaces.PriceSource,
	relays map[types.Chain]interfaces.RelayClient,
	events interfaces.EventPublisher,
	metrics interfaces.MetricsCollector,
	logger *zap.Logger,
) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	return &Orchestrator{
		config:      config,
		scorer:      scorer,
		admission:   admission,
		optimizer:   optimizer,
		riskGate:    riskGate,
		executor:    executor,
		priceSource: priceSource,
		relays:      relays,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		priceBreaker: lifecycle.NewCircuitBreaker(
			"price-source",
			config.PriceBreakerThreshold,
			config.PriceBreakerReset,
		),
		inFlight: make(map[string]*types.SandwichOpportunity),
	}
}

// Run consumes the pending-transaction feed until the context ends or the
// kill switch fires
func (o *Orchestrator) Run(ctx context.Context, feed interfaces.PendingTxFeed) error {
	txs, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pending transactions: %w", err)
	}
	o.running.Store(true)
	defer o.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-txs:
			if !ok {
				return nil
			}
			o.HandleTransaction(ctx, tx)
		}
	}
}

// HandleTransaction scores one pending transaction and dispatches the
// resulting opportunity, if any
func (o *Orchestrator) HandleTransaction(ctx context.Context, tx *types.PendingTransaction) {
	if tx == nil || o.stopped.Load() {
		return
	}
	if enabled, ok := o.config.Chains[tx.Chain]; !ok || !enabled {
		return
	}

	opp, err := o.scorer.Score(ctx, tx)
	if err != nil {
		o.logger.Debug("scoring error", zap.String("tx", tx.Hash), zap.Error(err))
		o.publish(interfaces.Event{Type: interfaces.EventError, Chain: tx.Chain, Err: err.Error()})
		return
	}
	if opp == nil {
		return
	}

	o.metrics.RecordOpportunity(opp.Chain)
	o.publish(interfaces.Event{Type: interfaces.EventOpportunityFound, Chain: opp.Chain, Opportunity: opp})
	o.Dispatch(ctx, opp)
}

// Dispatch runs one opportunity through admission, optimization and risk,
// then hands it to the bundle executor. The concurrency slot is reserved
// before any stage runs so the in-flight bound holds under any arrival
// pattern; a drop at any later stage releases it.
func (o *Orchestrator) Dispatch(ctx context.Context, opp *types.SandwichOpportunity) {
	if o.stopped.Load() {
		o.drop(opp, "stopped", "engine is stopping")
		return
	}

	executionID, ok := o.reserve(opp)
	if !ok {
		o.drop(opp, "capacity", "in-flight executions at limit")
		return
	}

	decision := o.admission.Evaluate(opp)
	if !decision.ShouldProcess {
		o.releaseSlot(executionID)
		o.drop(opp, "admission", decision.Reason)
		return
	}

	tokenIn, tokenOut, err := o.fetchPrices(ctx, opp)
	if err != nil {
		o.releaseSlot(executionID)
		o.publish(interfaces.Event{Type: interfaces.EventError, Chain: opp.Chain, Err: err.Error()})
		o.drop(opp, "price", err.Error())
		return
	}

	optimization := o.optimizer.Optimize(opp, tokenIn, tokenOut, opp.GasPrice)
	if !optimization.Valid || optimization.MaxExpectedProfitUSD <= 0 || optimization.MaxExpectedProfitUSD < o.config.MinProfitUSD {
		o.releaseSlot(executionID)
		o.drop(opp, "profit", fmt.Sprintf("expected profit $%.2f below viability", optimization.MaxExpectedProfitUSD))
		return
	}

	assessment := o.riskGate.Assess(opp, optimization)
	if !assessment.Allowed {
		o.releaseSlot(executionID)
		o.drop(opp, "risk", fmt.Sprintf("%v", assessment.Reasons))
		return
	}

	params := &types.ExecutionParams{
		Opportunity:    opp,
		FrontRunAmount: optimization.OptimalFrontRunAmount,
		MaxGasPrice:    opp.GasPrice,
		MaxSlippage:    opp.SlippageEst,
		Deadline:       time.Now().Add(o.config.ExecutionDeadline),
		MinProfitUSD:   o.config.MinProfitUSD,
		SimulateOnly:   o.config.PaperTrading,
	}

	o.riskGate.OpenPosition(opp.Chain, optimization.OptimalFrontRunAmount)
	o.metrics.RecordExecutionStart(opp.Chain)
	o.publish(interfaces.Event{Type: interfaces.EventExecutionStarted, Chain: opp.Chain, Opportunity: opp})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.releaseSlot(executionID)
		defer o.riskGate.ClosePosition(opp.Chain, optimization.OptimalFrontRunAmount)

		result, err := o.executor.Execute(ctx, params)
		if err != nil {
			result = &types.ExecutionResult{
				Chain:        opp.Chain,
				Success:      false,
				BundleStatus: types.BundleFailed,
				Err:          err.Error(),
			}
		}
		result.ExecutionID = executionID
		o.complete(opp, result)
	}()
}

// EmergencyStop flips the kill switch: no new opportunity is accepted, and
// in-flight executions get up to MaxStopWait to reach a terminal state before
// every relay is force-disconnected. A submitted bundle cannot be recalled;
// stopping only stops new work.
func (o *Orchestrator) EmergencyStop() {
	if o.stopped.Swap(true) {
		return
	}
	o.logger.Warn("emergency stop triggered, draining in-flight executions",
		zap.Int("inFlight", o.InFlight()),
		zap.Duration("maxWait", o.config.MaxStopWait))

	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		o.logger.Info("all in-flight executions reached a terminal state")
	case <-time.After(o.config.MaxStopWait):
		o.logger.Warn("stop wait elapsed with executions still in flight",
			zap.Int("inFlight", o.InFlight()))
	}

	for chain, relay := range o.relays {
		if err := relay.Disconnect(); err != nil {
			o.logger.Error("relay disconnect failed",
				zap.String("chain", string(chain)), zap.Error(err))
		}
	}
	o.running.Store(false)
}

// Status reports the engine's current state
func (o *Orchestrator) Status() types.EngineStatus {
	chains := make(map[types.Chain]bool, len(o.config.Chains))
	for chain, enabled := range o.config.Chains {
		chains[chain] = enabled
	}
	return types.EngineStatus{
		Running:       o.running.Load() && !o.stopped.Load(),
		PaperTrading:  o.config.PaperTrading,
		ChainsEnabled: chains,
		InFlight:      o.InFlight(),
		Counters:      o.metrics.Counters(),
	}
}

// InFlight returns the number of reserved execution slots
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

// fetchPrices resolves both token quotes behind the price-source circuit
// breaker so a failing source degrades to fast skips instead of hammering
func (o *Orchestrator) fetchPrices(ctx context.Context, opp *types.SandwichOpportunity) (*types.PriceQuote, *types.PriceQuote, error) {
	var tokenIn, tokenOut *types.PriceQuote
	err := o.priceBreaker.Execute(func() error {
		var err error
		if tokenIn, err = o.priceSource.GetPrice(ctx, opp.TokenIn, opp.Chain); err != nil {
			return err
		}
		tokenOut, err = o.priceSource.GetPrice(ctx, opp.TokenOut, opp.Chain)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("price lookup failed: %w", err)
	}
	return tokenIn, tokenOut, nil
}

func (o *Orchestrator) reserve(opp *types.SandwichOpportunity) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.inFlight) >= o.config.MaxConcurrentBundles {
		return "", false
	}
	executionID := fmt.Sprintf("exec-%d-%s", o.execSeq.Add(1), opp.ID)
	o.inFlight[executionID] = opp
	return executionID, true
}

func (o *Orchestrator) releaseSlot(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, executionID)
}

func (o *Orchestrator) drop(opp *types.SandwichOpportunity, stage, reason string) {
	o.metrics.RecordDrop(opp.Chain, stage)
	o.logger.Debug("opportunity dropped",
		zap.String("opportunity", opp.ID),
		zap.String("stage", stage),
		zap.String("reason", reason))
}

// complete settles one terminal result: counters, rolling stats, events
func (o *Orchestrator) complete(opp *types.SandwichOpportunity, result *types.ExecutionResult) {
	o.riskGate.RecordOutcome(result)
	o.admission.RecordOutcome(opp.Chain, result.Success, result.Latency.Total)
	o.metrics.RecordResult(result)

	eventType := interfaces.EventExecutionCompleted
	if !result.Success {
		eventType = interfaces.EventExecutionFailed
	}
	o.publish(interfaces.Event{Type: eventType, Chain: opp.Chain, Result: result, Err: result.Err})

	o.logger.Info("execution finished",
		zap.String("execution", result.ExecutionID),
		zap.String("chain", string(result.Chain)),
		zap.Bool("success", result.Success),
		zap.String("bundleStatus", string(result.BundleStatus)),
		zap.Duration("latency", result.Latency.Total))
}

func (o *Orchestrator) publish(event interfaces.Event) {
	if o.events == nil {
		return
	}
	event.Timestamp = time.Now()
	o.events.Publish(event)
}
