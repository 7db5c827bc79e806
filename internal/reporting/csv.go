package reporting

import (
	"encoding/csv"
	"math"
	"strconv"
	"strings"

	"trade-quality-lab/internal/domain"
)

// TradeStatsHeader is the column order of the trade stats CSV.
var TradeStatsHeader = []string{
	"start", "end", "initPos", "maxPos", "numTxns", "maxNotionalCost",
	"netTradingPL", "mae", "mfe",
	"pctNetTradingPL", "pctMAE", "pctMFE",
	"tickNetTradingPL", "tickMAE", "tickMFE",
	"endPos", "open", "durationMs", "tradeId", "symbol", "definition", "startIndex", "endIndex",
}

// RenderTradeStatsCSV renders a trade table as CSV string.
func RenderTradeStatsCSV(trades []domain.TradeStats) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(TradeStatsHeader)
	for i := range trades {
		t := &trades[i]
		_ = w.Write([]string{
			strconv.FormatInt(t.Start, 10),
			strconv.FormatInt(t.End, 10),
			formatFloat(t.InitPos),
			formatFloat(t.MaxPos),
			strconv.Itoa(t.NumTxns),
			formatFloat(t.MaxNotionalCost),
			formatFloat(t.NetTradingPL),
			formatFloat(t.MAE),
			formatFloat(t.MFE),
			formatFloat(t.PctNetTradingPL),
			formatFloat(t.PctMAE),
			formatFloat(t.PctMFE),
			formatFloat(t.TickNetTradingPL),
			formatFloat(t.TickMAE),
			formatFloat(t.TickMFE),
			formatFloat(t.EndPos),
			strconv.FormatBool(t.Open),
			strconv.FormatInt(t.DurationMs, 10),
			t.TradeID,
			t.Symbol,
			t.Definition.String(),
			strconv.Itoa(t.StartIndex),
			strconv.Itoa(t.EndIndex),
		})
	}

	w.Flush()
	return sb.String()
}

// RenderQuantilesCSV renders summaries as one row per symbol and one column
// per label. Columns follow the first-seen label order across summaries;
// a label missing from a summary is left empty.
func RenderQuantilesCSV(summaries []*domain.QuantileSummary) string {
	var labels []string
	seen := make(map[string]bool)
	for _, s := range summaries {
		for _, l := range s.Labels() {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := append([]string{"symbol", "definition", "trades", "winners", "losers"}, labels...)
	_ = w.Write(header)

	for _, s := range summaries {
		values := make(map[string]float64, len(labels))
		for _, v := range s.Values() {
			values[v.Label] = v.Value
		}

		row := []string{
			s.Symbol,
			s.Definition.String(),
			strconv.Itoa(s.TradeCount),
			strconv.Itoa(s.Winners),
			strconv.Itoa(s.Losers),
		}
		for _, l := range labels {
			v, ok := values[l]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		_ = w.Write(row)
	}

	w.Flush()
	return sb.String()
}

// formatFloat renders the shortest exact representation; NaN as "NaN".
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
