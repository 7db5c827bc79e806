package domain

// PositionRecord is one row of a symbol's position/valuation history.
// Corresponds to position_series table in ClickHouse.
// Rows are produced by the external ledger and are read-only here.
type PositionRecord struct {
	Symbol      string  // instrument symbol
	TimestampMs int64   // Unix timestamp in milliseconds, non-decreasing per symbol
	PosQty      float64 // signed position size after this event (0 = flat)
	TxnValue    float64 // signed notional of any transaction at this instant (0 if none)
	PosValue    float64 // signed mark-to-market value of the position
}

// IsFlat reports whether the record carries no position.
func (r PositionRecord) IsFlat() bool {
	return r.PosQty == 0
}

// Instrument holds the static metadata needed to express P&L in ticks.
// Corresponds to instruments table in PostgreSQL.
type Instrument struct {
	Symbol     string  // instrument symbol
	Multiplier float64 // contract multiplier
	TickSize   float64 // smallest price increment
}

// TickValue returns the currency value of one tick (multiplier * tick size).
func (i Instrument) TickValue() float64 {
	return i.Multiplier * i.TickSize
}
