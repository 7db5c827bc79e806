package reporting

import (
	"time"

	"trade-quality-lab/internal/domain"
)

// Report is the trade-quality report of one run.
type Report struct {
	GeneratedAt time.Time
	Definition  domain.TradeDefinition

	// Per-symbol sections, sorted by symbol
	Symbols []SymbolSection

	// Filled by the pipeline after generation
	Reproducibility ReproducibilityMetadata
}

// ReproducibilityMetadata identifies the inputs and code behind a report.
type ReproducibilityMetadata struct {
	GeneratorVersion string
	DataVersion      string // short hash of trade ids and quantile values
	Command          string // command that regenerates the report
}

// SymbolSection holds everything reported for one symbol.
type SymbolSection struct {
	Symbol  string
	Summary DataSummary

	// Trade table in chronological order
	Trades []domain.TradeStats

	// Quantiles; nil when the symbol has no trades
	Quantiles *domain.QuantileSummary

	// Human-readable data quality notes
	Warnings []string
}

// DataSummary describes a symbol's trade table.
type DataSummary struct {
	TotalTrades    int
	OpenTrades     int
	Winners        int
	Losers         int
	Flat           int     // trades with zero net P&L
	TotalNetPL     float64 // sum of netTradingPL
	DateRangeStart int64   // Unix ms, first trade start
	DateRangeEnd   int64   // Unix ms, last trade end
}

// Summaries returns the non-nil quantile summaries in symbol order.
func (r *Report) Summaries() []*domain.QuantileSummary {
	var out []*domain.QuantileSummary
	for _, s := range r.Symbols {
		if s.Quantiles != nil {
			out = append(out, s.Quantiles)
		}
	}
	return out
}

// TotalTrades sums the trade counts of all symbols.
func (r *Report) TotalTrades() int {
	n := 0
	for _, s := range r.Symbols {
		n += s.Summary.TotalTrades
	}
	return n
}
