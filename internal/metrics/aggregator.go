package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
	"trade-quality-lab/internal/tradestats"
)

// ErrNoTrades is returned when no trades are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes quantile summaries from stored trade stats.
type Aggregator struct {
	tradeStatsStore storage.TradeStatsStore
	summaryStore    storage.QuantileSummaryStore

	scales []domain.Scale
	probs  []float64

	now func() time.Time
}

// NewAggregator creates a new quantile aggregator. nil scales means all
// scales; nil probs means DefaultProbs.
func NewAggregator(tradeStore storage.TradeStatsStore, summaryStore storage.QuantileSummaryStore, scales []domain.Scale, probs []float64) *Aggregator {
	if len(probs) == 0 {
		probs = DefaultProbs
	}
	return &Aggregator{
		tradeStatsStore: tradeStore,
		summaryStore:    summaryStore,
		scales:          scales,
		probs:           probs,
		now:             time.Now,
	}
}

// WithClock sets a custom clock function for deterministic ComputedAt values.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// ComputeSummary loads the trade table of (symbol, definition) and
// summarizes it. Returns ErrNoTrades if the table is empty.
func (a *Aggregator) ComputeSummary(ctx context.Context, symbol string, def domain.TradeDefinition) (*domain.QuantileSummary, error) {
	trades, err := a.tradeStatsStore.GetBySymbol(ctx, symbol, def)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoTrades, symbol, def)
	}

	summary, err := ComputeQuantiles(trades, a.scales, a.probs)
	if err != nil {
		return nil, err
	}
	summary.Symbol = symbol
	summary.Definition = def
	summary.ComputedAt = a.now().UnixMilli()

	return summary, nil
}

// ComputeAndStore computes and persists the summary, replacing any earlier
// summary of the same (symbol, definition).
func (a *Aggregator) ComputeAndStore(ctx context.Context, symbol string, def domain.TradeDefinition) (*domain.QuantileSummary, error) {
	summary, err := a.ComputeSummary(ctx, symbol, def)
	if err != nil {
		return nil, err
	}

	if err := a.summaryStore.Upsert(ctx, summary); err != nil {
		return nil, err
	}

	return summary, nil
}

// EmptyPartitionErrors returns one ErrEmptyPartition-wrapped error per empty
// partition of the summary, in summary order.
func EmptyPartitionErrors(summary *domain.QuantileSummary) []error {
	if summary == nil || len(summary.EmptyPartitions) == 0 {
		return nil
	}

	errs := make([]error, len(summary.EmptyPartitions))
	for i, p := range summary.EmptyPartitions {
		errs[i] = fmt.Errorf("%w: %s %s %s trades", tradestats.ErrEmptyPartition, summary.Symbol, p.Scale, p.Sign)
	}
	return errs
}
