package interfaces

import (
	"time"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// MetricsCollector owns the health/performance counters. Mutated only by the
// orchestrator at well-defined completion points.
type MetricsCollector interface {
	RecordOpportunity(chain types.Chain)
	RecordExecutionStart(chain types.Chain)
	RecordResult(result *types.ExecutionResult)
	RecordDrop(chain types.Chain, stage string)
	ObserveStageLatency(stage string, d time.Duration)
	Counters() types.HealthCounters
}
