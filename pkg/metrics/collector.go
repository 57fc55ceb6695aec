package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// Collector implements the MetricsCollector interface. It maintains the
// engine's health counters and mirrors them into Prometheus collectors.
type Collector struct {
	mu       sync.RWMutex
	counters types.HealthCounters

	totalLatency time.Duration
	completed    uint64

	prometheusMetrics *PrometheusMetrics
}

// PrometheusMetrics contains all Prometheus metric collectors
type PrometheusMetrics struct {
	opportunitiesSeen *prometheus.CounterVec
	executionsStarted *prometheus.CounterVec
	executionResults  *prometheus.CounterVec
	drops             *prometheus.CounterVec
	realizedProfitUSD prometheus.Gauge
	stageLatency      *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector registered against the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		prometheusMetrics: &PrometheusMetrics{
			opportunitiesSeen: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "sandwich_opportunities_seen_total",
				Help: "Scored opportunities entering the pipeline",
			}, []string{"chain"}),
			executionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "sandwich_executions_started_total",
				Help: "Executions admitted past the risk gate",
			}, []string{"chain"}),
			executionResults: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "sandwich_execution_results_total",
				Help: "Terminal execution outcomes",
			}, []string{"chain", "outcome"}),
			drops: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "sandwich_drops_total",
				Help: "Opportunities dropped before execution, by pipeline stage",
			}, []string{"chain", "stage"}),
			realizedProfitUSD: factory.NewGauge(prometheus.GaugeOpts{
				Name: "sandwich_realized_profit_usd",
				Help: "Cumulative realized profit across included bundles",
			}),
			stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "sandwich_stage_latency_seconds",
				Help:    "Pipeline stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			}, []string{"stage"}),
		},
	}
}

// RecordOpportunity counts a scored opportunity entering the pipeline
func (c *Collector) RecordOpportunity(chain types.Chain) {
	c.mu.Lock()
	c.counters.OpportunitiesSeen++
	c.mu.Unlock()
	c.prometheusMetrics.opportunitiesSeen.WithLabelValues(string(chain)).Inc()
}

// RecordExecutionStart counts an execution admitted past the risk gate
func (c *Collector) RecordExecutionStart(chain types.Chain) {
	c.mu.Lock()
	c.counters.ExecutionsStarted++
	c.mu.Unlock()
	c.prometheusMetrics.executionsStarted.WithLabelValues(string(chain)).Inc()
}

// RecordResult folds one terminal execution outcome into the counters
func (c *Collector) RecordResult(result *types.ExecutionResult) {
	if result == nil {
		return
	}

	outcome := "failed"
	c.mu.Lock()
	switch {
	case result.Success:
		c.counters.Successes++
		outcome = "success"
	case result.BundleStatus == types.BundleExpired:
		c.counters.Expirations++
		c.counters.Failures++
		outcome = "expired"
	default:
		c.counters.Failures++
	}

	if result.Success && result.RealizedProfit != nil {
		// Profit is tracked in USD using the estimate at execution time;
		// realized on-chain accounting lives outside the core.
		c.counters.RealizedProfitUSD += result.EstProfitUSD
	}

	c.completed++
	c.totalLatency += result.Latency.Total
	c.counters.AvgExecutionLatency = c.totalLatency / time.Duration(c.completed)
	realized := c.counters.RealizedProfitUSD
	c.mu.Unlock()

	c.prometheusMetrics.executionResults.WithLabelValues(string(result.Chain), outcome).Inc()
	c.prometheusMetrics.realizedProfitUSD.Set(realized)
	c.prometheusMetrics.stageLatency.WithLabelValues("total").Observe(result.Latency.Total.Seconds())
}

// RecordDrop counts an opportunity shed before execution
func (c *Collector) RecordDrop(chain types.Chain, stage string) {
	c.prometheusMetrics.drops.WithLabelValues(string(chain), stage).Inc()
}

// ObserveStageLatency records one pipeline stage duration
func (c *Collector) ObserveStageLatency(stage string, d time.Duration) {
	c.prometheusMetrics.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Counters returns a snapshot of the health counters
func (c *Collector) Counters() types.HealthCounters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters
}
