package tradestats

import (
	"fmt"
	"math"

	"trade-quality-lab/internal/domain"
)

// ValidateInstrument reports ErrDivisionByZero when the instrument's tick
// value cannot be used as a denominator. Stats can still be computed; the
// tick metrics of every trade will be NaN.
func ValidateInstrument(inst domain.Instrument) error {
	tv := inst.TickValue()
	if tv == 0 || math.IsNaN(tv) || math.IsInf(tv, 0) {
		return fmt.Errorf("%w: tick value of %s is %v (multiplier %v, tick size %v)",
			ErrDivisionByZero, inst.Symbol, tv, inst.Multiplier, inst.TickSize)
	}
	return nil
}

// ComputeStats computes the metric record of one trade from its rows
// (first row = trade start, last row = trade end).
//
// Cost basis accumulates transaction values in row order; P&L at each row is
// position value minus cost basis. Percent and tick P&L use the row's own cost
// basis and position, except the last row, which is normalized by the cost
// basis and size at the trade's largest position.
//
// Zero denominators never abort the computation. A zero tick value or max
// position makes all tick metrics NaN; a zero max notional cost makes all
// percent metrics NaN. A non-final row with zero cost basis (or zero
// position) is skipped in the percent (or tick) excursion scan.
//
// An empty slice yields a zero record.
func ComputeStats(rows []domain.PositionRecord, tickValue float64) domain.TradeStats {
	n := len(rows)
	if n == 0 {
		return domain.TradeStats{}
	}

	costBasis := make([]float64, n)
	posPL := make([]float64, n)
	maxPosIdx := 0
	numTxns := 0

	cumulative := 0.0
	for k, r := range rows {
		cumulative += r.TxnValue
		costBasis[k] = cumulative
		posPL[k] = r.PosValue - cumulative
		if r.TxnValue != 0 {
			numTxns++
		}
		if math.Abs(r.PosQty) > math.Abs(rows[maxPosIdx].PosQty) {
			maxPosIdx = k
		}
	}

	last := n - 1
	maxPos := rows[maxPosIdx].PosQty
	maxNotionalCost := costBasis[maxPosIdx]

	stats := domain.TradeStats{
		Start:           rows[0].TimestampMs,
		End:             rows[last].TimestampMs,
		DurationMs:      rows[last].TimestampMs - rows[0].TimestampMs,
		InitPos:         rows[0].PosQty,
		MaxPos:          maxPos,
		EndPos:          rows[last].PosQty,
		NumTxns:         numTxns,
		MaxNotionalCost: maxNotionalCost,
		NetTradingPL:    posPL[last],
	}
	stats.MAE, stats.MFE = excursions(posPL)

	if maxNotionalCost == 0 {
		stats.PctNetTradingPL, stats.PctMAE, stats.PctMFE = math.NaN(), math.NaN(), math.NaN()
	} else {
		pct := make([]float64, 0, n)
		for k := 0; k < last; k++ {
			if costBasis[k] == 0 {
				continue
			}
			pct = append(pct, posPL[k]/math.Abs(costBasis[k]))
		}
		net := posPL[last] / math.Abs(maxNotionalCost)
		pct = append(pct, net)
		stats.PctNetTradingPL = net
		stats.PctMAE, stats.PctMFE = excursions(pct)
	}

	if tickValue == 0 || maxPos == 0 || math.IsNaN(tickValue) || math.IsInf(tickValue, 0) {
		stats.TickNetTradingPL, stats.TickMAE, stats.TickMFE = math.NaN(), math.NaN(), math.NaN()
	} else {
		ticks := make([]float64, 0, n)
		for k := 0; k < last; k++ {
			if rows[k].PosQty == 0 {
				continue
			}
			ticks = append(ticks, posPL[k]/math.Abs(rows[k].PosQty)/tickValue)
		}
		net := posPL[last] / math.Abs(maxPos) / tickValue
		ticks = append(ticks, net)
		stats.TickNetTradingPL = net
		stats.TickMAE, stats.TickMFE = excursions(ticks)
	}

	return stats
}

// excursions returns (min(0, min(values)), max(0, max(values))), ignoring NaN.
func excursions(values []float64) (float64, float64) {
	worst, best := 0.0, 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v < worst {
			worst = v
		}
		if v > best {
			best = v
		}
	}
	return worst, best
}
