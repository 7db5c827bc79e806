// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"trade-quality-lab/internal/domain"
)

// Metrics holds all Prometheus metrics of a batch run.
// Each instance owns its registry so runs and tests never collide.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	TradesSegmented   *prometheus.CounterVec
	OpenTrades        *prometheus.CounterVec
	SummariesComputed prometheus.Counter
	EmptyPartitions   *prometheus.CounterVec
	ReportsGenerated  prometheus.Counter

	// Metric quality
	NonFiniteMetrics *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_quality_lab"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of symbol pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline phase duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"phase"}),
		TradesSegmented: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "trades_segmented_total",
			Help:      "Total number of trades segmented by definition",
		}, []string{"definition"}),
		OpenTrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "open_trades_total",
			Help:      "Total number of trades still open at the end of the series",
		}, []string{"definition"}),
		SummariesComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "summaries_computed_total",
			Help:      "Total number of quantile summaries computed",
		}),
		EmptyPartitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "empty_partitions_total",
			Help:      "Total number of winner/loser partitions with no usable values",
		}, []string{"scale", "sign"}),
		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		NonFiniteMetrics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tradestats",
			Name:      "non_finite_metrics_total",
			Help:      "Total number of trades with NaN metrics by scale",
		}, []string{"scale"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Store call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of failed store calls",
		}, []string{"store", "operation"}),

		LastSuccessfulPipeline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordPipelineRun records one pipeline phase.
func (m *Metrics) RecordPipelineRun(phase, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	m.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordTrades counts a symbol's trade table, its open trades and the
// trades carrying NaN metrics per scale.
func (m *Metrics) RecordTrades(def domain.TradeDefinition, trades []domain.TradeStats) {
	if m == nil {
		return
	}
	label := def.String()
	m.TradesSegmented.WithLabelValues(label).Add(float64(len(trades)))

	for i := range trades {
		t := &trades[i]
		if t.Open {
			m.OpenTrades.WithLabelValues(label).Inc()
		}
		if math.IsNaN(t.PctNetTradingPL) || math.IsNaN(t.PctMAE) || math.IsNaN(t.PctMFE) {
			m.NonFiniteMetrics.WithLabelValues(domain.ScalePercent.String()).Inc()
		}
		if math.IsNaN(t.TickNetTradingPL) || math.IsNaN(t.TickMAE) || math.IsNaN(t.TickMFE) {
			m.NonFiniteMetrics.WithLabelValues(domain.ScaleTick.String()).Inc()
		}
	}
}

// RecordSummary counts a computed summary and its empty partitions.
func (m *Metrics) RecordSummary(summary *domain.QuantileSummary) {
	if m == nil || summary == nil {
		return
	}
	m.SummariesComputed.Inc()
	for _, p := range summary.EmptyPartitions {
		m.EmptyPartitions.WithLabelValues(p.Scale.String(), p.Sign.String()).Inc()
	}
}

// RecordReport counts a generated report.
func (m *Metrics) RecordReport() {
	if m == nil {
		return
	}
	m.ReportsGenerated.Inc()
}

// RecordDBQuery records store call metrics.
func (m *Metrics) RecordDBQuery(store, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// MarkSuccess sets the last successful pipeline timestamp.
func (m *Metrics) MarkSuccess(unixSeconds int64) {
	if m == nil {
		return
	}
	m.LastSuccessfulPipeline.Set(float64(unixSeconds))
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
