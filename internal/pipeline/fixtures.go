package pipeline

import (
	"context"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// Fixture series start at 2024-01-01 00:00:00 UTC, one row per minute.
const (
	fixtureStartMs = 1704067200000
	fixtureStepMs  = 60_000
)

type fixtureStep struct {
	qty   float64
	price float64
}

type fixtureSeries struct {
	instrument domain.Instrument
	steps      []fixtureStep
}

// fixtureData covers round trips, scale-ins, partial reductions, a short
// trade and a position still open at the end of the series.
var fixtureData = []fixtureSeries{
	{
		instrument: domain.Instrument{Symbol: "ES", Multiplier: 50, TickSize: 0.25},
		steps: []fixtureStep{
			{0, 5000}, {1, 5000}, {1, 4995}, {2, 5005}, {2, 5010}, {0, 5012},
			{0, 5012}, {-1, 5020}, {-1, 5030}, {0, 5025},
			{1, 5020}, {1, 5018},
		},
	},
	{
		instrument: domain.Instrument{Symbol: "NQ", Multiplier: 20, TickSize: 0.25},
		steps: []fixtureStep{
			{0, 17000}, {2, 17000}, {2, 17050}, {1, 17080}, {1, 17020}, {0, 17010},
			{0, 17010}, {-2, 17100}, {-1, 17090}, {0, 17120},
		},
	},
	{
		instrument: domain.Instrument{Symbol: "CL", Multiplier: 1000, TickSize: 0.01},
		steps: []fixtureStep{
			{0, 75}, {1, 75.2}, {1, 74.8}, {0, 74.5},
			{3, 74.6}, {3, 74.9}, {0, 75.1},
		},
	},
}

// FixtureRecords returns the demo position series of every fixture symbol.
// Transaction values are the traded quantity at the step price times the
// multiplier; position values mark the position at the step price.
func FixtureRecords() []domain.PositionRecord {
	var records []domain.PositionRecord
	for _, fs := range fixtureData {
		records = append(records, buildSeries(fs)...)
	}
	return records
}

// FixtureInstruments returns the instrument metadata of the fixture symbols.
func FixtureInstruments() []domain.Instrument {
	out := make([]domain.Instrument, len(fixtureData))
	for i, fs := range fixtureData {
		out[i] = fs.instrument
	}
	return out
}

func buildSeries(fs fixtureSeries) []domain.PositionRecord {
	mult := fs.instrument.Multiplier
	records := make([]domain.PositionRecord, len(fs.steps))
	prevQty := 0.0
	for i, st := range fs.steps {
		records[i] = domain.PositionRecord{
			Symbol:      fs.instrument.Symbol,
			TimestampMs: fixtureStartMs + int64(i)*fixtureStepMs,
			PosQty:      st.qty,
			TxnValue:    (st.qty - prevQty) * st.price * mult,
			PosValue:    st.qty * st.price * mult,
		}
		prevQty = st.qty
	}
	return records
}

// LoadFixtures populates stores with demo data.
func LoadFixtures(
	ctx context.Context,
	seriesStore storage.PositionSeriesStore,
	instrumentStore storage.InstrumentStore,
) error {
	if err := seriesStore.InsertBulk(ctx, FixtureRecords()); err != nil {
		return err
	}

	for _, inst := range FixtureInstruments() {
		if err := instrumentStore.Upsert(ctx, &inst); err != nil {
			return err
		}
	}

	return nil
}
