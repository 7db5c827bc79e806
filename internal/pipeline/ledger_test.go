package pipeline

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
	"trade-quality-lab/internal/storage/memory"
	"trade-quality-lab/internal/tradestats"
)

const sampleLedger = `symbol,timestamp,pos_qty,txn_value,pos_value
# interleaved symbols are fine
ES,2024-01-01T00:00:00Z,0,0,0
NQ,1704067200000,1,0.1,0.1
ES,2024-01-01T00:01:00Z,1,100.10,100.10
NQ,1704067260000,1,0.2,0.35
ES,2024-01-01T00:02:00.500Z,0,-105.35,0
`

func TestReadLedger(t *testing.T) {
	ledger, err := ReadLedger(strings.NewReader(sampleLedger))
	require.NoError(t, err)

	require.Len(t, ledger.Records, 5)
	assert.Equal(t, []string{"ES", "NQ"}, ledger.Symbols())

	es := ledger.Records[4]
	assert.Equal(t, "ES", es.Symbol)
	assert.Equal(t, int64(1704067320500), es.TimestampMs)
	assert.Equal(t, -105.35, es.TxnValue)

	nq := ledger.Records[1]
	assert.Equal(t, int64(1704067200000), nq.TimestampMs)
	assert.Equal(t, 1.0, nq.PosQty)

	// Money columns are summed exactly.
	assert.True(t, ledger.TxnTotals["NQ"].Equal(decimal.RequireFromString("0.3")))
	assert.True(t, ledger.NetPL("NQ").Equal(decimal.RequireFromString("0.05")))
	assert.True(t, ledger.NetPL("ES").Equal(decimal.RequireFromString("5.25")))
}

func TestReadLedger_Errors(t *testing.T) {
	header := "symbol,timestamp,pos_qty,txn_value,pos_value\n"

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", storage.ErrInvalidInput},
		{"bad header", "sym,ts,qty,txn,value\n", storage.ErrInvalidInput},
		{"empty symbol", header + ",1000,0,0,0\n", storage.ErrInvalidInput},
		{"bad timestamp", header + "ES,yesterday,0,0,0\n", storage.ErrInvalidInput},
		{"bad number", header + "ES,1000,one,0,0\n", storage.ErrInvalidInput},
		{"duplicate timestamp", header + "ES,1000,0,0,0\nES,1000,1,5,5\n", storage.ErrDuplicateKey},
		{"unordered", header + "ES,2000,0,0,0\nES,1000,1,5,5\n", tradestats.ErrUnorderedSeries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLedger(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("wrong field count", func(t *testing.T) {
		_, err := ReadLedger(strings.NewReader(header + "ES,1000,0,0\n"))
		assert.Error(t, err)
	})

	t.Run("line number reported", func(t *testing.T) {
		_, err := ReadLedger(strings.NewReader(header + "ES,1000,0,0,0\nES,2000,x,0,0\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ledger line 3")
	})
}

func TestWriteLedger_RoundTrip(t *testing.T) {
	records := FixtureRecords()

	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, records))

	ledger, err := ReadLedger(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, ledger.Records)
}

func TestImportLedgerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleLedger), 0644))

	store := memory.NewPositionSeriesStore()
	ctx := context.Background()

	ledger, err := ImportLedgerFile(ctx, path, store)
	require.NoError(t, err)
	assert.Len(t, ledger.Records, 5)

	es, err := store.GetBySymbol(ctx, "ES")
	require.NoError(t, err)
	assert.Len(t, es, 3)

	// A second import of the same rows collides on (symbol, timestamp).
	_, err = ImportLedgerFile(ctx, path, store)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = ImportLedgerFile(ctx, filepath.Join(t.TempDir(), "missing.csv"), store)
	assert.Error(t, err)
}

func TestLedger_ReconcileFlatToFlatTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, FixtureRecords()))
	ledger, err := ReadLedger(&buf)
	require.NoError(t, err)

	stores := Stores{
		Series:      memory.NewPositionSeriesStore(),
		Instruments: memory.NewInstrumentStore(),
		TradeStats:  memory.NewTradeStatsStore(),
		Summaries:   memory.NewQuantileSummaryStore(),
	}
	ctx := context.Background()
	require.NoError(t, stores.Series.InsertBulk(ctx, ledger.Records))
	for _, inst := range FixtureInstruments() {
		require.NoError(t, stores.Instruments.Upsert(ctx, &inst))
	}

	_, err = New(stores, defaultOptions(), t.TempDir()).Run(ctx, nil)
	require.NoError(t, err)

	for _, symbol := range ledger.Symbols() {
		trades, err := stores.TradeStats.GetBySymbol(ctx, symbol, domain.FlatToFlat)
		require.NoError(t, err)

		diff, err := ledger.Reconcile(symbol, trades)
		require.NoError(t, err)
		assert.True(t, diff.Abs().LessThanOrEqual(ReconcileTolerance),
			"%s: ledger %s, difference %s", symbol, ledger.NetPL(symbol), diff)
	}

	// ES: 950 - 250 closed, -100 open.
	assert.True(t, ledger.NetPL("ES").Equal(decimal.NewFromInt(600)), "ES net %s", ledger.NetPL("ES"))
}

func TestLedger_ReconcileDetectsMismatch(t *testing.T) {
	ledger, err := ReadLedger(strings.NewReader(sampleLedger))
	require.NoError(t, err)

	diff, err := ledger.Reconcile("ES", []domain.TradeStats{{TradeID: "a", NetTradingPL: 5}})
	require.NoError(t, err)
	assert.True(t, diff.Equal(decimal.RequireFromString("0.25")), "diff %s", diff)

	_, err = ledger.Reconcile("ES", []domain.TradeStats{{TradeID: "b", NetTradingPL: math.NaN()}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
