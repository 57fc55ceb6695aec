package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// ScorerConfig holds opportunity scorer thresholds
type ScorerConfig struct {
	MinTradeValueUSD    float64
	MaxGasPrice         *big.Int
	MinProfitFloorUSD   float64
	BlacklistedTokens   []string
	AllowedProtocols    []types.DEXProtocol
	EconomicWindow      time.Duration
	NativeTokenPriceUSD map[types.Chain]float64
}

// DefaultScorerConfig returns default scorer thresholds
func DefaultScorerConfig() *ScorerConfig {
	return &ScorerConfig{
		MinTradeValueUSD:  5000,
		MaxGasPrice:       big.NewInt(500_000_000_000), // 500 gwei
		MinProfitFloorUSD: 10,
		AllowedProtocols:  []types.DEXProtocol{types.ProtocolUniswapV2, types.ProtocolPancakeSwap, types.ProtocolRaydium},
		EconomicWindow:    12 * time.Second,
		NativeTokenPriceUSD: map[types.Chain]float64{
			types.ChainEthereum: 2500,
			types.ChainBSC:      600,
			types.ChainSolana:   150,
		},
	}
}

// Scorer filters and scores pending transactions into sandwich opportunities.
// A metadata cache, when present, answers pool and gas lookups for recently
// seen pairs so repeat victims skip the external round trip.
type Scorer struct {
	config      *ScorerConfig
	decoders    map[types.Chain]SwapDecoder
	chains      map[types.Chain]interfaces.ChainClient
	priceSource interfaces.PriceSource
	cache       interfaces.MetadataCache
	blacklist   map[string]struct{}
	allowed     map[types.DEXProtocol]struct{}
	logger      *zap.Logger
}

// NewScorer creates a new opportunity scorer with the given configuration
func NewScorer(config *ScorerConfig, chains map[types.Chain]interfaces.ChainClient, priceSource interfaces.PriceSource, cache interfaces.MetadataCache, logger *zap.Logger) *Scorer {
	if config == nil {
		config = DefaultScorerConfig()
	}

	blacklist := make(map[string]struct{}, len(config.BlacklistedTokens))
	for _, token := range config.BlacklistedTokens {
		blacklist[token] = struct{}{}
	}
	allowed := make(map[types.DEXProtocol]struct{}, len(config.AllowedProtocols))
	for _, p := range config.AllowedProtocols {
		allowed[p] = struct{}{}
	}

	return &Scorer{
		config: config,
		decoders: map[types.Chain]SwapDecoder{
			types.ChainEthereum: NewEVMDecoder(types.ProtocolUniswapV2),
			types.ChainBSC:      NewEVMDecoder(types.ProtocolPancakeSwap),
			types.ChainSolana:   NewSolanaDecoder(),
		},
		chains:      chains,
		priceSource: priceSource,
		cache:       cache,
		blacklist:   blacklist,
		allowed:     allowed,
		logger:      logger,
	}
}

// Score analyzes a pending transaction and emits a SandwichOpportunity when
// it clears every filter and the profitability floor. Transactions that fail
// a filter are discarded silently with a (nil, nil) return.
func (s *Scorer) Score(ctx context.Context, tx *types.PendingTransaction) (*types.SandwichOpportunity, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}

	decoder, ok := s.decoders[tx.Chain]
	if !ok {
		return nil, fmt.Errorf("unsupported chain %q", tx.Chain)
	}

	details, err := decoder.Decode(tx)
	if err != nil {
		if errors.Is(err, ErrNotASwap) {
			return nil, nil
		}
		s.logger.Debug("failed to decode pending transaction",
			zap.String("tx", tx.Hash), zap.Error(err))
		return nil, nil
	}

	if _, banned := s.blacklist[details.TokenIn]; banned {
		return nil, nil
	}
	if _, banned := s.blacklist[details.TokenOut]; banned {
		return nil, nil
	}
	if _, ok := s.allowed[details.Protocol]; !ok {
		return nil, nil
	}

	client, ok := s.chains[tx.Chain]
	if !ok {
		return nil, fmt.Errorf("no chain client for %q", tx.Chain)
	}

	gasPrice, err := s.resolveGasPrice(ctx, client, tx)
	if err != nil {
		return nil, err
	}
	if gasPrice != nil && gasPrice.Cmp(s.config.MaxGasPrice) > 0 {
		return nil, nil
	}

	pool, err := s.poolSnapshot(ctx, client, tx.Chain, details.TokenIn, details.TokenOut)
	if err != nil {
		return nil, err
	}
	if pool.ReserveIn == nil || pool.ReserveIn.Sign() <= 0 || pool.ReserveOut == nil || pool.ReserveOut.Sign() <= 0 {
		return nil, nil
	}
	if s.cache != nil {
		if decimals, ok := s.cache.TokenDecimals(tx.Chain, details.TokenIn); ok {
			details.Decimals = decimals
		}
	}

	quote, err := s.priceSource.GetPrice(ctx, details.TokenIn, tx.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to price token %s: %w", details.TokenIn, err)
	}

	tradeValueUSD := amountUSD(details.AmountIn, details.Decimals, quote.PriceUSD)
	if tradeValueUSD < s.config.MinTradeValueUSD {
		return nil, nil
	}

	slippage := priceImpact(details.AmountIn, pool.ReserveIn, pool.FeeBps)
	score := s.mevScore(tradeValueUSD, slippage, pool.LiquidityUSD)
	estProfit := s.estimateProfitUSD(tradeValueUSD, slippage, tx.Chain, gasPrice, tx.GasLimit)
	if estProfit < s.config.MinProfitFloorUSD {
		return nil, nil
	}

	opp := &types.SandwichOpportunity{
		ID:             fmt.Sprintf("%s-%s", tx.Chain, tx.Hash),
		Chain:          tx.Chain,
		Protocol:       details.Protocol,
		VictimTx:       tx,
		TokenIn:        details.TokenIn,
		TokenOut:       details.TokenOut,
		AmountIn:       details.AmountIn,
		MinAmountOut:   details.MinAmountOut,
		TokenDecimals:  details.Decimals,
		Pool:           pool,
		GasPrice:       gasPrice,
		TradeValueUSD:  tradeValueUSD,
		MEVScore:       score,
		SlippageEst:    slippage,
		EstProfitUSD:   estProfit,
		DetectedAt:     time.Now(),
		EconomicWindow: s.config.EconomicWindow,
	}

	s.logger.Debug("scored sandwich opportunity",
		zap.String("id", opp.ID),
		zap.Float64("mevScore", score),
		zap.Float64("estProfitUsd", estProfit))

	return opp, nil
}

// mevScore combines trade size, estimated slippage and pool depth into a
// single heuristic used for prioritization
func (s *Scorer) mevScore(tradeValueUSD, slippage, poolLiquidityUSD float64) float64 {
	sizeScore := tradeValueUSD / (tradeValueUSD + 100_000)
	depthScore := 0.0
	if poolLiquidityUSD > 0 {
		depthScore = poolLiquidityUSD / (poolLiquidityUSD + 1_000_000)
	}
	slipScore := slippage / (slippage + 0.01)

	return 0.5*sizeScore + 0.3*slipScore + 0.2*depthScore
}

// resolveGasPrice uses the transaction's own gas price when present,
// otherwise the short-TTL cached estimate, falling back to one node query
func (s *Scorer) resolveGasPrice(ctx context.Context, client interfaces.ChainClient, tx *types.PendingTransaction) (*big.Int, error) {
	if tx.GasPrice != nil {
		return tx.GasPrice, nil
	}
	if s.cache != nil {
		if price, ok := s.cache.CachedGasPrice(tx.Chain); ok {
			return price, nil
		}
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas price: %w", err)
	}
	if s.cache != nil {
		s.cache.RememberGasPrice(tx.Chain, price)
	}
	return price, nil
}

// poolSnapshot serves the pair's pool from the metadata cache when warm,
// otherwise fetches it from the chain client
func (s *Scorer) poolSnapshot(ctx context.Context, client interfaces.ChainClient, chain types.Chain, tokenIn, tokenOut string) (*types.PoolSnapshot, error) {
	if s.cache != nil {
		if pool, ok := s.cache.CachedPool(chain, tokenIn, tokenOut); ok {
			return pool, nil
		}
	}
	pool, err := client.PoolReserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool reserves: %w", err)
	}
	return pool, nil
}

// estimateProfitUSD approximates the extractable value: a fraction of the
// victim's price impact net of the gas to land two transactions
func (s *Scorer) estimateProfitUSD(tradeValueUSD, slippage float64, chain types.Chain, gasPrice *big.Int, gasLimit uint64) float64 {
	// Roughly half of the victim's impact is capturable by the sandwich
	gross := tradeValueUSD * slippage * 0.5

	gasCostUSD := 0.0
	if gasPrice != nil {
		// Two transactions at roughly the victim's gas limit, priced in
		// native-token terms; good enough for a pre-filter.
		wei := new(big.Int).Mul(gasPrice, big.NewInt(int64(gasLimit)*2))
		gasCostUSD = amountUSD(wei, 18, s.nativePriceUSD(chain))
	}

	profit := gross - gasCostUSD
	if profit < 0 {
		return 0
	}
	return profit
}

// nativePriceUSD returns the configured native-token price for gas costing
func (s *Scorer) nativePriceUSD(chain types.Chain) float64 {
	if price, ok := s.config.NativeTokenPriceUSD[chain]; ok && price > 0 {
		return price
	}
	return 2500
}

// priceImpact computes the victim's constant-product price impact for the
// given input amount after pool fees
func priceImpact(amountIn, reserveIn *big.Int, feeBps int64) float64 {
	if reserveIn == nil || reserveIn.Sign() <= 0 || amountIn == nil || amountIn.Sign() <= 0 {
		return 0
	}
	in, _ := new(big.Float).SetInt(amountIn).Float64()
	res, _ := new(big.Float).SetInt(reserveIn).Float64()

	effIn := in * (1 - float64(feeBps)/10_000)
	return effIn / (res + effIn)
}

// amountUSD converts a raw token amount to USD at the given price
func amountUSD(amount *big.Int, decimals int, priceUSD float64) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	v, _ := f.Float64()
	return v * priceUSD
}
