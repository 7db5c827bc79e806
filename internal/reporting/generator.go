package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	tradeStatsStore storage.TradeStatsStore
	summaryStore    storage.QuantileSummaryStore
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tradeStore storage.TradeStatsStore, summaryStore storage.QuantileSummaryStore) *Generator {
	return &Generator{
		tradeStatsStore: tradeStore,
		summaryStore:    summaryStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of the given symbols under def.
// A symbol without a stored summary is reported with its trades only.
func (g *Generator) Generate(ctx context.Context, symbols []string, def domain.TradeDefinition) (*Report, error) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	report := &Report{
		GeneratedAt: g.now(),
		Definition:  def,
		Symbols:     make([]SymbolSection, 0, len(sorted)),
	}

	for _, symbol := range sorted {
		section, err := g.generateSection(ctx, symbol, def)
		if err != nil {
			return nil, err
		}
		report.Symbols = append(report.Symbols, *section)
	}

	return report, nil
}

func (g *Generator) generateSection(ctx context.Context, symbol string, def domain.TradeDefinition) (*SymbolSection, error) {
	trades, err := g.tradeStatsStore.GetBySymbol(ctx, symbol, def)
	if err != nil {
		return nil, fmt.Errorf("load trades of %s: %w", symbol, err)
	}

	summary, err := g.summaryStore.GetBySymbol(ctx, symbol, def)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load quantiles of %s: %w", symbol, err)
	}
	if len(trades) == 0 {
		summary = nil
	}

	return &SymbolSection{
		Symbol:    symbol,
		Summary:   summarize(trades),
		Trades:    trades,
		Quantiles: summary,
		Warnings:  warnings(trades, summary),
	}, nil
}

// summarize computes the data summary of a trade table.
func summarize(trades []domain.TradeStats) DataSummary {
	var ds DataSummary
	ds.TotalTrades = len(trades)
	if len(trades) == 0 {
		return ds
	}

	ds.DateRangeStart = trades[0].Start
	ds.DateRangeEnd = trades[0].End
	for i := range trades {
		t := &trades[i]
		switch {
		case t.IsWinner():
			ds.Winners++
		case t.IsLoser():
			ds.Losers++
		default:
			ds.Flat++
		}
		if t.Open {
			ds.OpenTrades++
		}
		ds.TotalNetPL += t.NetTradingPL
		if t.Start < ds.DateRangeStart {
			ds.DateRangeStart = t.Start
		}
		if t.End > ds.DateRangeEnd {
			ds.DateRangeEnd = t.End
		}
	}
	return ds
}

// warnings lists trades with undefined percent or tick metrics and the
// empty partitions of the summary.
func warnings(trades []domain.TradeStats, summary *domain.QuantileSummary) []string {
	var out []string

	var pctNaN, tickNaN int
	for i := range trades {
		if math.IsNaN(trades[i].PctNetTradingPL) {
			pctNaN++
		}
		if math.IsNaN(trades[i].TickNetTradingPL) {
			tickNaN++
		}
	}
	if pctNaN > 0 {
		out = append(out, fmt.Sprintf("%d trade(s) with zero max notional cost: percent metrics undefined", pctNaN))
	}
	if tickNaN > 0 {
		out = append(out, fmt.Sprintf("%d trade(s) with zero tick value or max position: tick metrics undefined", tickNaN))
	}

	if summary != nil {
		for _, p := range summary.EmptyPartitions {
			out = append(out, fmt.Sprintf("no %s trades with finite %s values: quantiles are NaN", signWord(p.Sign), p.Scale))
		}
	}
	return out
}

func signWord(s domain.Sign) string {
	if s == domain.SignPos {
		return "winning"
	}
	return "losing"
}
