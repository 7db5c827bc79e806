package tradestats

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-quality-lab/internal/domain"
)

const eps = 1e-9

// series builds a position series from parallel columns, one row per second.
func series(qty, txn, val []float64) []domain.PositionRecord {
	records := make([]domain.PositionRecord, len(qty))
	for i := range qty {
		records[i] = domain.PositionRecord{
			Symbol:      "TEST",
			TimestampMs: int64(i+1) * 1000,
			PosQty:      qty[i],
			TxnValue:    txn[i],
			PosValue:    val[i],
		}
	}
	return records
}

func TestComputeStats_RoundTripWithRunUp(t *testing.T) {
	records := series(
		[]float64{0, 1, 1, 0},
		[]float64{0, 100, 0, -100},
		[]float64{0, 100, 110, 0},
	)

	intervals, err := Segment(records, domain.FlatToFlat, false)
	require.NoError(t, err)
	require.Equal(t, []domain.TradeInterval{iv(1, 3)}, intervals)

	st := ComputeStats(records[1:4], 1)

	assert.Equal(t, int64(2000), st.Start)
	assert.Equal(t, int64(4000), st.End)
	assert.Equal(t, int64(2000), st.DurationMs)
	assert.Equal(t, 1.0, st.InitPos)
	assert.Equal(t, 1.0, st.MaxPos)
	assert.Equal(t, 0.0, st.EndPos)
	assert.Equal(t, 2, st.NumTxns)
	assert.Equal(t, 100.0, st.MaxNotionalCost)

	assert.InDelta(t, 0, st.NetTradingPL, eps)
	assert.InDelta(t, 0, st.MAE, eps)
	assert.InDelta(t, 10, st.MFE, eps)

	assert.InDelta(t, 0, st.PctNetTradingPL, eps)
	assert.InDelta(t, 0, st.PctMAE, eps)
	assert.InDelta(t, 0.1, st.PctMFE, eps)

	assert.InDelta(t, 0, st.TickNetTradingPL, eps)
	assert.InDelta(t, 0, st.TickMAE, eps)
	assert.InDelta(t, 10, st.TickMFE, eps)
}

func TestComputeStats_OpenTradeMarkedToMarket(t *testing.T) {
	records := series(
		[]float64{0, 2, 2, 2},
		[]float64{0, 200, 0, 0},
		[]float64{0, 200, 190, 230},
	)

	intervals, err := Segment(records, domain.FlatToFlat, true)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	last := intervals[0]
	assert.True(t, last.Open)
	assert.Equal(t, len(records)-1, last.EndIndex)

	st := ComputeStats(records[last.StartIndex:last.EndIndex+1], 0.5)
	assert.Equal(t, records[3].TimestampMs, st.End)
	assert.InDelta(t, 30, st.NetTradingPL, eps)
	assert.InDelta(t, -10, st.MAE, eps)
	assert.InDelta(t, 30, st.MFE, eps)
	assert.InDelta(t, 0.15, st.PctNetTradingPL, eps)
	assert.InDelta(t, -0.05, st.PctMAE, eps)
	// 30 / |2| / 0.5
	assert.InDelta(t, 30, st.TickNetTradingPL, eps)
	assert.InDelta(t, -10, st.TickMAE, eps)

	intervals, err = Segment(records, domain.FlatToFlat, false)
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestComputeStats_ZeroTickValue(t *testing.T) {
	records := series(
		[]float64{1, 1, 0},
		[]float64{100, 0, -95},
		[]float64{100, 90, 0},
	)

	st := ComputeStats(records, 0)

	assert.True(t, math.IsNaN(st.TickNetTradingPL))
	assert.True(t, math.IsNaN(st.TickMAE))
	assert.True(t, math.IsNaN(st.TickMFE))

	for _, v := range []float64{st.NetTradingPL, st.MAE, st.MFE, st.PctNetTradingPL, st.PctMAE, st.PctMFE} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "cash and percent metrics must stay finite")
	}
	assert.InDelta(t, -5, st.NetTradingPL, eps)
	assert.InDelta(t, -10, st.MAE, eps)
	assert.InDelta(t, -0.05, st.PctNetTradingPL, eps)

	err := ValidateInstrument(domain.Instrument{Symbol: "BAD", Multiplier: 50, TickSize: 0})
	assert.True(t, errors.Is(err, ErrDivisionByZero))
	assert.NoError(t, ValidateInstrument(domain.Instrument{Symbol: "ES", Multiplier: 50, TickSize: 0.25}))
}

func TestComputeStats_ShortTrade(t *testing.T) {
	// Sell 2 at 100, price falls to 95, buy back at 105.
	records := series(
		[]float64{-2, -2, 0},
		[]float64{-200, 0, 210},
		[]float64{-200, -190, 0},
	)

	st := ComputeStats(records, 1)

	assert.Equal(t, -2.0, st.MaxPos)
	assert.Equal(t, -200.0, st.MaxNotionalCost)
	assert.InDelta(t, -10, st.NetTradingPL, eps)
	assert.InDelta(t, -10, st.MAE, eps)
	assert.InDelta(t, 10, st.MFE, eps)
	assert.InDelta(t, -0.05, st.PctNetTradingPL, eps)
	assert.InDelta(t, 0.05, st.PctMFE, eps)
	assert.InDelta(t, -5, st.TickNetTradingPL, eps)
	assert.InDelta(t, 5, st.TickMFE, eps)
}

func TestComputeStats_ScaleInUsesPeakInvestment(t *testing.T) {
	records := series(
		[]float64{1, 3, 3, 1, 0},
		[]float64{100, 220, 0, -230, -120},
		[]float64{100, 330, 345, 115, 0},
	)

	st := ComputeStats(records, 2)

	assert.Equal(t, 3.0, st.MaxPos)
	assert.Equal(t, 320.0, st.MaxNotionalCost)
	assert.Equal(t, 4, st.NumTxns)
	assert.InDelta(t, 30, st.NetTradingPL, eps)
	assert.InDelta(t, 30.0/320.0, st.PctNetTradingPL, eps)
	assert.InDelta(t, 25.0/90.0, st.PctMFE, eps)
	assert.InDelta(t, 30.0/3.0/2.0, st.TickNetTradingPL, eps)
	assert.InDelta(t, 25.0/1.0/2.0, st.TickMFE, eps)
}

func TestComputeStats_MaxPosFirstOccurrence(t *testing.T) {
	records := series(
		[]float64{2, -2, 0},
		[]float64{200, -400, 190},
		[]float64{200, -200, 0},
	)

	st := ComputeStats(records, 1)
	assert.Equal(t, 2.0, st.MaxPos)
	assert.Equal(t, 200.0, st.MaxNotionalCost)
}

func TestComputeStats_ZeroCostBasisRowSkipped(t *testing.T) {
	// Buy 2 at 100, sell 1 at 200 (cost basis back to 0), sell 1 at 150.
	records := series(
		[]float64{2, 1, 0},
		[]float64{200, -200, -150},
		[]float64{200, 200, 0},
	)

	st := ComputeStats(records, 1)

	assert.InDelta(t, 150, st.NetTradingPL, eps)
	assert.InDelta(t, 200, st.MFE, eps)
	assert.InDelta(t, 0.75, st.PctNetTradingPL, eps)
	assert.InDelta(t, 0.75, st.PctMFE, eps)
	assert.False(t, math.IsInf(st.PctMFE, 0))
}

func TestComputeStats_ZeroMaxNotionalCost(t *testing.T) {
	records := series(
		[]float64{1, 0},
		[]float64{0, 0},
		[]float64{5, 0},
	)

	st := ComputeStats(records, 1)
	assert.True(t, math.IsNaN(st.PctNetTradingPL))
	assert.True(t, math.IsNaN(st.PctMAE))
	assert.True(t, math.IsNaN(st.PctMFE))
	assert.InDelta(t, 5, st.MFE, eps)
}

func TestComputeStats_EmptyAndSingleRow(t *testing.T) {
	assert.Equal(t, domain.TradeStats{}, ComputeStats(nil, 1))

	st := ComputeStats(series([]float64{3}, []float64{300}, []float64{306}), 1)
	assert.InDelta(t, 6, st.NetTradingPL, eps)
	assert.InDelta(t, 0, st.MAE, eps)
	assert.InDelta(t, 6, st.MFE, eps)
	assert.InDelta(t, 0.02, st.PctNetTradingPL, eps)
	assert.InDelta(t, 2, st.TickNetTradingPL, eps)
	assert.Equal(t, int64(0), st.DurationMs)
}

func TestComputeStats_Deterministic(t *testing.T) {
	records := series(
		[]float64{1, 3, 3, 1, 0},
		[]float64{100, 220, 0, -230, -120},
		[]float64{100, 330, 345, 115, 0},
	)

	first := ComputeStats(records, 2)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ComputeStats(records, 2))
	}
}

// randomWalk simulates a price walk and a position that opens, scales
// and flattens at random, producing consistent ledger columns.
func randomWalk(rng *rand.Rand, n int) []domain.PositionRecord {
	records := make([]domain.PositionRecord, n)
	price := 100.0
	pos := 0.0
	for i := 0; i < n; i++ {
		price += rng.Float64()*4 - 2
		if price < 1 {
			price = 1
		}
		target := pos
		switch rng.Intn(4) {
		case 0:
			target = 0
		case 1:
			target = pos + float64(rng.Intn(3)+1)
		case 2:
			target = pos - float64(rng.Intn(3)+1)
		}
		records[i] = domain.PositionRecord{
			Symbol:      "RW",
			TimestampMs: int64(i+1) * 60000,
			PosQty:      target,
			TxnValue:    (target - pos) * price,
			PosValue:    target * price,
		}
		pos = target
	}
	return records
}

func TestComputeStats_ExcursionBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		records := randomWalk(rng, 200)
		for _, def := range []domain.TradeDefinition{domain.FlatToFlat, domain.FlatToReduced} {
			intervals, err := Segment(records, def, true)
			require.NoError(t, err)

			for _, interval := range intervals {
				st := ComputeStats(records[interval.StartIndex:interval.EndIndex+1], 0.5)
				checkBounds(t, "cash", st.NetTradingPL, st.MAE, st.MFE)
				checkBounds(t, "percent", st.PctNetTradingPL, st.PctMAE, st.PctMFE)
				checkBounds(t, "tick", st.TickNetTradingPL, st.TickMAE, st.TickMFE)
			}
		}
	}
}

func checkBounds(t *testing.T, scale string, net, mae, mfe float64) {
	t.Helper()
	if math.IsNaN(net) {
		return
	}
	if mae > 0 || mfe < 0 {
		t.Errorf("%s: excursions not around zero: mae=%v mfe=%v", scale, mae, mfe)
	}
	if net < mae-eps || net > mfe+eps {
		t.Errorf("%s: net %v outside [%v, %v]", scale, net, mae, mfe)
	}
}
