package types

import (
	"math/big"
	"time"
)

// ExecutionParams is the frozen snapshot handed to the bundle lifecycle
// manager. Immutable once constructed.
type ExecutionParams struct {
	Opportunity    *SandwichOpportunity `json:"opportunity"`
	FrontRunAmount *big.Int             `json:"frontRunAmount"`
	MaxGasPrice    *big.Int             `json:"maxGasPrice"`
	MaxSlippage    float64              `json:"maxSlippage"`
	Deadline       time.Time            `json:"deadline"`
	MinProfitUSD   float64              `json:"minProfitUsd"`
	SimulateOnly   bool                 `json:"simulateOnly"`
}

// LatencyBreakdown records where time was spent for one execution
type LatencyBreakdown struct {
	Detection  time.Duration `json:"detection"`
	Simulation time.Duration `json:"simulation"`
	Execution  time.Duration `json:"execution"`
	Total      time.Duration `json:"total"`
}

// ExecutionResult reports the terminal outcome of one opportunity's pipeline
// pass, whether it landed, failed or expired.
type ExecutionResult struct {
	ExecutionID    string           `json:"executionId"`
	Chain          Chain            `json:"chain"`
	Success        bool             `json:"success"`
	BundleID       string           `json:"bundleId,omitempty"`
	BundleStatus   BundleStatus     `json:"bundleStatus"`
	EstProfitUSD   float64          `json:"estimatedProfitUsd"`
	SimGasUsed     uint64           `json:"simulationGasUsed,omitempty"`
	RealizedProfit *big.Int         `json:"realizedProfit,omitempty"`
	Latency        LatencyBreakdown `json:"latency"`
	Err            string           `json:"error,omitempty"`
}

// HealthCounters are the monotonically increasing health/performance counts,
// mutated only by the orchestrator at completion points.
type HealthCounters struct {
	OpportunitiesSeen   uint64        `json:"opportunitiesSeen"`
	ExecutionsStarted   uint64        `json:"executionsStarted"`
	Successes           uint64        `json:"successes"`
	Failures            uint64        `json:"failures"`
	Expirations         uint64        `json:"expirations"`
	RealizedProfitUSD   float64       `json:"realizedProfitUsd"`
	AvgExecutionLatency time.Duration `json:"avgExecutionLatency"`
}

// EngineStatus is the snapshot returned by the status query
type EngineStatus struct {
	Running       bool           `json:"running"`
	PaperTrading  bool           `json:"paperTrading"`
	ChainsEnabled map[Chain]bool `json:"chainsEnabled"`
	InFlight      int            `json:"inFlight"`
	Counters      HealthCounters `json:"counters"`
}
