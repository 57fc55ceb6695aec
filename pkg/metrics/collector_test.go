package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

func newTestCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

func TestCollector_CountsOpportunitiesAndExecutions(t *testing.T) {
	collector := newTestCollector()

	collector.RecordOpportunity(types.ChainEthereum)
	collector.RecordOpportunity(types.ChainSolana)
	collector.RecordExecutionStart(types.ChainEthereum)

	counters := collector.Counters()
	assert.EqualValues(t, 2, counters.OpportunitiesSeen)
	assert.EqualValues(t, 1, counters.ExecutionsStarted)
}

func TestCollector_RecordResultOutcomes(t *testing.T) {
	collector := newTestCollector()

	collector.RecordResult(&types.ExecutionResult{
		Chain:          types.ChainEthereum,
		Success:        true,
		EstProfitUSD:   120,
		RealizedProfit: big.NewInt(49_000_000_000_000_000),
		Latency:        types.LatencyBreakdown{Total: 2 * time.Second},
	})
	collector.RecordResult(&types.ExecutionResult{
		Chain:        types.ChainEthereum,
		BundleStatus: types.BundleFailed,
		Latency:      types.LatencyBreakdown{Total: 4 * time.Second},
	})
	collector.RecordResult(&types.ExecutionResult{
		Chain:        types.ChainEthereum,
		BundleStatus: types.BundleExpired,
		Latency:      types.LatencyBreakdown{Total: 12 * time.Second},
	})

	counters := collector.Counters()
	assert.EqualValues(t, 1, counters.Successes)
	assert.EqualValues(t, 2, counters.Failures)
	assert.EqualValues(t, 1, counters.Expirations)
	assert.Equal(t, 120.0, counters.RealizedProfitUSD)
	assert.Equal(t, 6*time.Second, counters.AvgExecutionLatency)
}

func TestCollector_NilResultIgnored(t *testing.T) {
	collector := newTestCollector()
	collector.RecordResult(nil)
	assert.EqualValues(t, 0, collector.Counters().Failures)
}
