package metrics

import (
	"fmt"
	"math"
	"sort"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/tradestats"
)

// DefaultProbs are the quantile levels used when none are configured.
var DefaultProbs = []float64{0.05, 0.25, 0.5, 0.75, 0.95}

// ComputeQuantiles summarizes a trade table into winner/loser quantiles of
// P&L, MAE and MFE for each requested scale, plus the MAE at the peak of
// cumulative P&L.
//
// Trades are split by cash netTradingPL (> 0 winners, < 0 losers, 0 in
// neither). MAE quantiles are taken over |MAE| and negated. Non-finite values
// are ignored; a partition with no usable values yields NaN for each of its
// levels and is listed in EmptyPartitions.
//
// nil scales means all scales. The input slice is not modified.
func ComputeQuantiles(trades []domain.TradeStats, scales []domain.Scale, probs []float64) (*domain.QuantileSummary, error) {
	if len(scales) == 0 {
		scales = domain.AllScales
	}
	for _, s := range scales {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: %d", tradestats.ErrInvalidScale, int(s))
		}
	}
	for _, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: %v", tradestats.ErrInvalidProbability, p)
		}
	}

	sorted := sortByExcursion(trades)

	var winners, losers []domain.TradeStats
	for _, t := range sorted {
		switch {
		case t.NetTradingPL > 0:
			winners = append(winners, t)
		case t.NetTradingPL < 0:
			losers = append(losers, t)
		}
	}

	summary := &domain.QuantileSummary{
		TradeCount: len(trades),
		Winners:    len(winners),
		Losers:     len(losers),
		Scales:     append([]domain.Scale(nil), scales...),
		Probs:      append([]float64(nil), probs...),
	}
	if len(trades) > 0 {
		summary.Symbol = trades[0].Symbol
		summary.Definition = trades[0].Definition
	}

	partitions := []struct {
		sign   domain.Sign
		trades []domain.TradeStats
	}{
		{domain.SignPos, winners},
		{domain.SignNeg, losers},
	}

	for _, scale := range scales {
		for _, part := range partitions {
			pl, mae, mfe := scaleColumns(part.trades, scale)
			if len(pl) == 0 && len(mae) == 0 && len(mfe) == 0 {
				summary.EmptyPartitions = append(summary.EmptyPartitions, domain.PartitionKey{Scale: scale, Sign: part.sign})
			}
			for i := range mae {
				mae[i] = math.Abs(mae[i])
			}

			summary.Quantiles = append(summary.Quantiles, quantileEntries(part.sign, domain.MetricPL, scale, pl, probs, 1)...)
			summary.Quantiles = append(summary.Quantiles, quantileEntries(part.sign, domain.MetricMAE, scale, mae, probs, -1)...)
			summary.Quantiles = append(summary.Quantiles, quantileEntries(part.sign, domain.MetricMFE, scale, mfe, probs, 1)...)
		}
		summary.MaxCum = append(summary.MaxCum, domain.MaxCumEntry{Scale: scale, Value: maeAtMaxCumulative(sorted, scale)})
	}

	return summary, nil
}

// quantileEntries computes one entry per level over the finite values,
// multiplied by sign. An empty set yields NaN for every level.
func quantileEntries(sign domain.Sign, metric domain.Metric, scale domain.Scale, values, probs []float64, mult float64) []domain.QuantileEntry {
	sort.Float64s(values)
	entries := make([]domain.QuantileEntry, len(probs))
	for i, p := range probs {
		v := math.NaN()
		if len(values) > 0 {
			v = mult * computePercentile(values, p)
		}
		entries[i] = domain.QuantileEntry{
			Key:   domain.QuantileKey{Sign: sign, Metric: metric, Scale: scale, Level: p},
			Value: v,
		}
	}
	return entries
}

// scaleColumns extracts the finite P&L, MAE and MFE values of a scale.
func scaleColumns(trades []domain.TradeStats, scale domain.Scale) (pl, mae, mfe []float64) {
	for _, t := range trades {
		net, worst, best := scaleValues(t, scale)
		if isFinite(net) {
			pl = append(pl, net)
		}
		if isFinite(worst) {
			mae = append(mae, worst)
		}
		if isFinite(best) {
			mfe = append(mfe, best)
		}
	}
	return pl, mae, mfe
}

// scaleValues returns a trade's net P&L, MAE and MFE in the given scale.
func scaleValues(t domain.TradeStats, scale domain.Scale) (net, mae, mfe float64) {
	switch scale {
	case domain.ScalePercent:
		return t.PctNetTradingPL, t.PctMAE, t.PctMFE
	case domain.ScaleTick:
		return t.TickNetTradingPL, t.TickMAE, t.TickMFE
	default:
		return t.NetTradingPL, t.MAE, t.MFE
	}
}

// maeAtMaxCumulative walks trades in order, accumulating the scale's net P&L,
// and returns the scale's MAE at the first trade where the running total
// peaks. Non-finite P&L adds nothing to the total. Returns NaN for no trades.
func maeAtMaxCumulative(trades []domain.TradeStats, scale domain.Scale) float64 {
	if len(trades) == 0 {
		return math.NaN()
	}

	cumulative := 0.0
	peak := math.Inf(-1)
	peakIdx := 0
	for i, t := range trades {
		net, _, _ := scaleValues(t, scale)
		if isFinite(net) {
			cumulative += net
		}
		if cumulative > peak {
			peak = cumulative
			peakIdx = i
		}
	}

	_, mae, _ := scaleValues(trades[peakIdx], scale)
	return mae
}

// sortByExcursion returns a copy of trades stably sorted by pctMAE
// descending, then pctNetTradingPL descending. NaN sorts last.
func sortByExcursion(trades []domain.TradeStats) []domain.TradeStats {
	sorted := make([]domain.TradeStats, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := compareDesc(sorted[i].PctMAE, sorted[j].PctMAE); c != 0 {
			return c < 0
		}
		return compareDesc(sorted[i].PctNetTradingPL, sorted[j].PctNetTradingPL) < 0
	})
	return sorted
}

// compareDesc orders a before b (-1) when a is larger; NaN is smallest.
func compareDesc(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is the quantile level (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
