// Package tradestats cuts a position series into trades and computes the
// per-trade cost basis, P&L and excursion metrics.
package tradestats

import (
	"fmt"
	"math"

	"trade-quality-lab/internal/domain"
)

// ParseTradeDefinition resolves a definition name such as "flat.to.flat"
// or "flat-to-reduced".
func ParseTradeDefinition(name string) (domain.TradeDefinition, error) {
	def, ok := domain.TradeDefinitionFromString(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDefinition, name)
	}
	return def, nil
}

// Segment returns the trade intervals of records under def, in chronological
// order. The position before the first row is taken to be flat.
//
// When the series ends with a position still open, includeOpenTrade decides
// whether a final interval ending at the last row is emitted (flagged Open)
// or the open trade is left out.
func Segment(records []domain.PositionRecord, def domain.TradeDefinition, includeOpenTrade bool) ([]domain.TradeInterval, error) {
	if !def.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDefinition, int(def))
	}
	if err := checkOrdered(records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var (
		intervals []domain.TradeInterval
		openStart int
	)
	switch def {
	case domain.FlatToFlat:
		intervals, openStart = segmentFlatToFlat(records)
	case domain.FlatToReduced:
		intervals, openStart = segmentFlatToReduced(records)
	}

	last := len(records) - 1
	if openStart >= 0 && includeOpenTrade {
		intervals = append(intervals, domain.TradeInterval{
			StartIndex: openStart,
			EndIndex:   last,
			Open:       true,
		})
	}
	return intervals, nil
}

// segmentFlatToFlat pairs each opening from flat with the next return to flat.
// Returns the start index of a trade still open at the last row, or -1.
func segmentFlatToFlat(records []domain.PositionRecord) ([]domain.TradeInterval, int) {
	var intervals []domain.TradeInterval
	start := -1
	prev := 0.0

	for i, r := range records {
		switch {
		case r.PosQty != 0 && prev == 0:
			start = i
		case r.PosQty == 0 && prev != 0:
			intervals = append(intervals, domain.TradeInterval{StartIndex: start, EndIndex: i})
			start = -1
		}
		prev = r.PosQty
	}
	return intervals, start
}

// segmentFlatToReduced closes a trade at every strict reduction of |position|.
// Each close pairs with the most recent opening before it; openings carry
// forward, so one opening can pair with several reductions. An opening always
// precedes a reduction at the same instant because an opening row increases
// |position| and therefore cannot itself be a reduction.
// Returns the start index of an opening no reduction has closed, or -1.
func segmentFlatToReduced(records []domain.PositionRecord) ([]domain.TradeInterval, int) {
	var intervals []domain.TradeInterval
	start := -1
	matched := false
	prev := 0.0

	for i, r := range records {
		switch {
		case r.PosQty != 0 && prev == 0:
			start = i
			matched = false
		case math.Abs(r.PosQty) < math.Abs(prev):
			// Reductions with no opening before them cannot be paired.
			if start >= 0 {
				intervals = append(intervals, domain.TradeInterval{StartIndex: start, EndIndex: i})
				matched = true
			}
		}
		prev = r.PosQty
	}

	if start < 0 || matched {
		return intervals, -1
	}
	return intervals, start
}

func checkOrdered(records []domain.PositionRecord) error {
	for i := 1; i < len(records); i++ {
		if records[i].TimestampMs < records[i-1].TimestampMs {
			return fmt.Errorf("%w: row %d at %d precedes row %d at %d",
				ErrUnorderedSeries, i, records[i].TimestampMs, i-1, records[i-1].TimestampMs)
		}
	}
	return nil
}
