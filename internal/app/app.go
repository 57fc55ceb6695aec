package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hulrap/TradingBot-sub016/internal/adapters"
	"github.com/hulrap/TradingBot-sub016/internal/config"
	"github.com/hulrap/TradingBot-sub016/pkg/admission"
	"github.com/hulrap/TradingBot-sub016/pkg/events"
	"github.com/hulrap/TradingBot-sub016/pkg/executor"
	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/lifecycle"
	"github.com/hulrap/TradingBot-sub016/pkg/metrics"
	"github.com/hulrap/TradingBot-sub016/pkg/profit"
	"github.com/hulrap/TradingBot-sub016/pkg/relay"
	"github.com/hulrap/TradingBot-sub016/pkg/risk"
	"github.com/hulrap/TradingBot-sub016/pkg/scoring"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// Application owns the engine's top-level lifecycle: it starts the metrics
// server and the orchestrator loop, and tears both down on stop.
type Application struct {
	config        *config.Config
	orchestrator  *executor.Orchestrator
	feed          *adapters.WSFeed
	metricsServer *metrics.Server
	logger        *zap.Logger

	cancel context.CancelFunc
}

// NewApplication creates the application facade
func NewApplication(
	cfg *config.Config,
	orchestrator *executor.Orchestrator,
	feed *adapters.WSFeed,
	metricsServer *metrics.Server,
	logger *zap.Logger,
) *Application {
	return &Application{
		config:        cfg,
		orchestrator:  orchestrator,
		feed:          feed,
		metricsServer: metricsServer,
		logger:        logger,
	}
}

// Start launches the metrics endpoint and the orchestrator's feed loop
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting sandwich engine",
		zap.Int("max_concurrent_bundles", a.config.Engine.MaxConcurrentBundles),
		zap.Bool("paper_trading", a.config.Engine.PaperTrading))

	if a.config.Metrics.Enabled {
		a.metricsServer.Start()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		if err := a.orchestrator.Run(runCtx, a.feed); err != nil && runCtx.Err() == nil {
			a.logger.Error("orchestrator stopped", zap.Error(err))
		}
	}()

	a.logger.Info("sandwich engine started")
	return nil
}

// Stop triggers the kill switch, drains in-flight bundles and shuts down
// the metrics server
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("stopping sandwich engine")

	if a.cancel != nil {
		a.cancel()
	}
	a.orchestrator.EmergencyStop()

	if a.config.Metrics.Enabled {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}

	a.logger.Info("sandwich engine stopped")
	return nil
}

// Status returns a snapshot of the running engine
func (a *Application) Status() types.EngineStatus {
	return a.orchestrator.Status()
}

// NewLogger builds the process logger. The level comes from the log_level
// flag or environment.
func NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func newEventBus(logger *zap.Logger) *events.Bus {
	return events.NewBus(logger)
}

func newCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.DefaultRegisterer)
}

func newMetricsServer(cfg *config.Config, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Metrics.Port, logger)
}

func newFeed(cfg *config.Config, logger *zap.Logger) *adapters.WSFeed {
	return adapters.NewWSFeed(cfg.External.FeedWebSocketURL, logger)
}

func newPriceSource(cfg *config.Config) *adapters.HTTPPriceSource {
	return adapters.NewHTTPPriceSource(cfg.External.PriceServiceURL)
}

func newSigner(cfg *config.Config) *adapters.HTTPSigner {
	return adapters.NewHTTPSigner(cfg.External.SignerURL)
}

// newChainClients builds one chain state reader per enabled chain. Validate
// has already confirmed the chain names; a missing RPC endpoint is fatal here.
func newChainClients(cfg *config.Config) (map[types.Chain]interfaces.ChainClient, error) {
	clients := make(map[types.Chain]interfaces.ChainClient)
	for _, chain := range types.SupportedChains {
		if !cfg.ChainEnabled(chain) {
			continue
		}
		rpcURL, ok := cfg.External.RPC[string(chain)]
		if !ok || rpcURL == "" {
			return nil, fmt.Errorf("chain %q enabled without an rpc endpoint", chain)
		}
		clients[chain] = adapters.NewRPCChainClient(chain, rpcURL, cfg.External.PoolServiceURL)
	}
	return clients, nil
}

func newRelayClients(cfg *config.Config, signer *adapters.HTTPSigner, logger *zap.Logger) (map[types.Chain]interfaces.RelayClient, error) {
	clients := make(map[types.Chain]interfaces.RelayClient)
	for _, chain := range types.SupportedChains {
		if !cfg.ChainEnabled(chain) {
			continue
		}
		rc := cfg.RelayFor(chain)
		client, err := relay.New(chain, &relay.Config{
			Name:         rc.Name,
			URL:          rc.URL,
			WebSocketURL: rc.WebSocketURL,
			AuthHeader:   rc.AuthHeader,
			PollInterval: cfg.Lifecycle.StatusPollInterval,
		}, signer, logger)
		if err != nil {
			return nil, fmt.Errorf("relay for chain %q: %w", chain, err)
		}
		clients[chain] = client
	}
	return clients, nil
}

func newScorer(cfg *config.Config, chains map[types.Chain]interfaces.ChainClient, prices *adapters.HTTPPriceSource, controller *admission.Controller, logger *zap.Logger) *scoring.Scorer {
	protocols := make([]types.DEXProtocol, 0, len(cfg.Scoring.AllowedProtocols))
	for _, p := range cfg.Scoring.AllowedProtocols {
		protocols = append(protocols, types.DEXProtocol(p))
	}
	nativePrices := make(map[types.Chain]float64, len(cfg.Scoring.NativeTokenPriceUSD))
	for chain, price := range cfg.Scoring.NativeTokenPriceUSD {
		nativePrices[types.Chain(chain)] = price
	}
	return scoring.NewScorer(&scoring.ScorerConfig{
		MinTradeValueUSD:    cfg.Scoring.MinTradeValueUSD,
		MaxGasPrice:         mustBigInt(cfg.Scoring.MaxGasPrice),
		MinProfitFloorUSD:   cfg.Scoring.MinProfitFloorUSD,
		BlacklistedTokens:   cfg.Scoring.BlacklistedTokens,
		AllowedProtocols:    protocols,
		EconomicWindow:      cfg.Scoring.EconomicWindow,
		NativeTokenPriceUSD: nativePrices,
	}, chains, prices, controller, logger)
}

func newOptimizer(cfg *config.Config) *profit.Optimizer {
	return profit.NewOptimizer(&profit.OptimizerConfig{
		MaxPositionSize:    mustBigInt(cfg.Optimizer.MaxPositionSize),
		MinPriceConfidence: cfg.Optimizer.MinPriceConfidence,
		RiskDiscount:       cfg.Optimizer.RiskDiscount,
	})
}

func newRiskGate(cfg *config.Config, logger *zap.Logger) *risk.Gate {
	limits := make(map[types.Chain]*big.Int, len(types.SupportedChains))
	for _, chain := range types.SupportedChains {
		limits[chain] = cfg.MaxPositionSizeFor(chain)
	}
	return risk.NewGate(&risk.GateConfig{
		MaxPositionSize:        limits,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		MinPoolLiquidityUSD:    cfg.Risk.MinPoolLiquidityUSD,
		MaxPriceImpact:         cfg.Risk.MaxPriceImpact,
		MaxGasPrice:            mustBigInt(cfg.Risk.MaxGasPrice),
		MinProfitUSD:           cfg.Risk.MinProfitUSD,
		MaxDailyVolumeUSD:      cfg.Risk.MaxDailyVolumeUSD,
		FailureThreshold:       cfg.Risk.FailureThreshold,
		FailureCooldown:        cfg.Risk.FailureCooldown,
	}, logger)
}

func newLifecycleManager(
	cfg *config.Config,
	relays map[types.Chain]interfaces.RelayClient,
	chains map[types.Chain]interfaces.ChainClient,
	bus *events.Bus,
	logger *zap.Logger,
) *lifecycle.Manager {
	return lifecycle.NewManager(&lifecycle.ManagerConfig{
		BaseTip:             mustBigInt(cfg.Lifecycle.BaseTip),
		ProfitStep1USD:      cfg.Lifecycle.ProfitStep1USD,
		ProfitStep2USD:      cfg.Lifecycle.ProfitStep2USD,
		SizeStep1USD:        cfg.Lifecycle.SizeStep1USD,
		SizeStep2USD:        cfg.Lifecycle.SizeStep2USD,
		ReputationBonus:     cfg.Lifecycle.ReputationBonus,
		MaxBidMultiplier:    cfg.Lifecycle.MaxBidMultiplier,
		MaxRetryAttempts:    cfg.Lifecycle.MaxRetryAttempts,
		RetryBaseDelay:      cfg.Lifecycle.RetryBaseDelay,
		BreakerThreshold:    cfg.Lifecycle.BreakerThreshold,
		BreakerResetTimeout: cfg.Lifecycle.BreakerResetTimeout,
	}, relays, chains, bus, logger)
}

func newAdmissionController(cfg *config.Config, logger *zap.Logger) (*admission.Controller, error) {
	return admission.NewController(&admission.ControllerConfig{
		TokenCacheSize:      cfg.Admission.TokenCacheSize,
		PoolCacheTTL:        cfg.Admission.PoolCacheTTL,
		GasCacheTTL:         cfg.Admission.GasCacheTTL,
		MinChainSuccessRate: cfg.Admission.MinChainSuccessRate,
		LatencyWindowFactor: cfg.Admission.LatencyWindowFactor,
		StatsWindow:         cfg.Admission.StatsWindow,
		MaxRatePerChain:     cfg.Admission.MaxRatePerChain,
	}, logger)
}

func newOrchestrator(
	cfg *config.Config,
	scorer *scoring.Scorer,
	controller *admission.Controller,
	optimizer *profit.Optimizer,
	gate *risk.Gate,
	manager *lifecycle.Manager,
	prices *adapters.HTTPPriceSource,
	relays map[types.Chain]interfaces.RelayClient,
	bus *events.Bus,
	collector *metrics.Collector,
	logger *zap.Logger,
) *executor.Orchestrator {
	enabled := make(map[types.Chain]bool, len(cfg.Engine.Chains))
	for chain, on := range cfg.Engine.Chains {
		enabled[types.Chain(chain)] = on
	}
	return executor.NewOrchestrator(&executor.OrchestratorConfig{
		MaxConcurrentBundles:  cfg.Engine.MaxConcurrentBundles,
		MaxStopWait:           cfg.Engine.MaxStopWait,
		ExecutionDeadline:     cfg.Engine.ExecutionDeadline,
		MinProfitUSD:          cfg.Risk.MinProfitUSD,
		PaperTrading:          cfg.Engine.PaperTrading,
		Chains:                enabled,
		PriceBreakerThreshold: cfg.Lifecycle.BreakerThreshold,
		PriceBreakerReset:     cfg.Lifecycle.BreakerResetTimeout,
	}, scorer, controller, optimizer, gate, manager, prices, relays, bus, collector, logger)
}

// mustBigInt parses a decimal wei amount that config.Validate has already
// checked
func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("unvalidated big.Int in config: %q", s))
	}
	return v
}

// Module provides the fx module for dependency injection
var Module = fx.Options(
	fx.Provide(
		NewLogger,
		newEventBus,
		newCollector,
		newMetricsServer,
		newFeed,
		newPriceSource,
		newSigner,
		newChainClients,
		newRelayClients,
		newScorer,
		newOptimizer,
		newRiskGate,
		newLifecycleManager,
		newAdmissionController,
		newOrchestrator,
		NewApplication,
	),
)
