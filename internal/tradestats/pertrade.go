package tradestats

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/idhash"
)

// Options controls PerTradeStats.
type Options struct {
	Definition       domain.TradeDefinition
	IncludeOpenTrade bool
	Workers          int // parallel trade computations; <= 0 means GOMAXPROCS
}

// PerTradeStats segments one symbol's position series and computes the
// metric record of every trade. The table is in chronological order of
// trade start, ties broken by trade end.
//
// records must belong to inst.Symbol and be time ordered. An empty series
// returns ErrMissingSymbol.
func PerTradeStats(ctx context.Context, records []domain.PositionRecord, inst domain.Instrument, opts Options) ([]domain.TradeStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, inst.Symbol)
	}

	intervals, err := Segment(records, opts.Definition, opts.IncludeOpenTrade)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tickValue := inst.TickValue()
	table := make([]domain.TradeStats, len(intervals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, iv := range intervals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := ComputeStats(records[iv.StartIndex:iv.EndIndex+1], tickValue)
			st.Symbol = inst.Symbol
			st.Definition = opts.Definition
			st.StartIndex = iv.StartIndex
			st.EndIndex = iv.EndIndex
			st.Open = iv.Open
			st.TradeID = idhash.ComputeTradeID(inst.Symbol, opts.Definition.String(), st.Start, st.End, st.Open)
			table[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return table, nil
}
