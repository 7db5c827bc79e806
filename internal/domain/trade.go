package domain

// TradeDefinition selects how a position series is cut into trades.
type TradeDefinition int

// Supported trade definitions.
const (
	// FlatToFlat: a trade runs from the first non-flat row after flat
	// to the next row that is flat again.
	FlatToFlat TradeDefinition = iota + 1
	// FlatToReduced: every reduction of the absolute position closes a
	// trade measured from the most recent opening.
	FlatToReduced
)

// String returns the canonical name used in storage and reports.
func (d TradeDefinition) String() string {
	switch d {
	case FlatToFlat:
		return "flat.to.flat"
	case FlatToReduced:
		return "flat.to.reduced"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the supported definitions.
func (d TradeDefinition) Valid() bool {
	return d == FlatToFlat || d == FlatToReduced
}

// TradeInterval bounds one trade inside a position series (inclusive indexes).
type TradeInterval struct {
	StartIndex int
	EndIndex   int
	Open       bool // end synthesized at the last row because the position was still open
}

// Len returns the number of rows covered by the interval.
func (iv TradeInterval) Len() int {
	return iv.EndIndex - iv.StartIndex + 1
}

// TradeStats is the per-trade metric record.
// Corresponds to trade_stats table in PostgreSQL.
type TradeStats struct {
	TradeID    string          // deterministic hash, see idhash.ComputeTradeID
	Symbol     string          // instrument symbol
	Definition TradeDefinition // segmentation used to produce the row

	// Bounds
	Start      int64 // first row timestamp (ms)
	End        int64 // last row timestamp (ms)
	StartIndex int   // row index in the source series
	EndIndex   int   // row index in the source series
	DurationMs int64 // End - Start
	Open       bool  // still open at series end, marked to market

	// Size
	InitPos         float64 // position at trade start
	MaxPos          float64 // position with the greatest absolute size
	EndPos          float64 // position at the last row
	NumTxns         int     // rows with non-zero transaction value
	MaxNotionalCost float64 // cumulative cost basis at MaxPos

	// Cash
	NetTradingPL float64
	MAE          float64 // <= 0
	MFE          float64 // >= 0

	// Percent of MaxNotionalCost
	PctNetTradingPL float64
	PctMAE          float64
	PctMFE          float64

	// Ticks of MaxPos
	TickNetTradingPL float64
	TickMAE          float64
	TickMFE          float64
}

// IsWinner reports a strictly positive cash outcome.
func (t *TradeStats) IsWinner() bool {
	return t.NetTradingPL > 0
}

// IsLoser reports a strictly negative cash outcome.
func (t *TradeStats) IsLoser() bool {
	return t.NetTradingPL < 0
}
