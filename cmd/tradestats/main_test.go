package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"trade-quality-lab/internal/config"
	"trade-quality-lab/internal/pipeline"
)

func TestRun_Fixtures(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	outDir := t.TempDir()
	cfg.Output.Dir = outDir
	cfg.Metrics.TextfilePath = filepath.Join(outDir, "metrics", "tql.prom")

	require.NoError(t, run(context.Background(), cfg, zap.NewNop(), "tradestats -use-fixtures"))

	for _, f := range []string{pipeline.ReportFile, pipeline.QuantilesFile, "TRADE_STATS_ES.csv", "metrics/tql.prom"} {
		_, err := os.Stat(filepath.Join(outDir, f))
		assert.NoError(t, err, "missing %s", f)
	}
}

func TestRun_CSVLedger(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "ledger.csv")
	require.NoError(t, os.WriteFile(ledger, []byte(`symbol,timestamp,pos_qty,txn_value,pos_value
ES,1704067200000,1,250000,250000
ES,1704067260000,1,0,250500
ES,1704067320000,0,-251000,0
`), 0644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Input.Source = config.SourceCSV
	cfg.Input.CSVPath = ledger
	cfg.Instruments = []config.InstrumentConfig{{Symbol: "ES", Multiplier: 50, TickSize: 0.25}}
	cfg.Output.Dir = filepath.Join(dir, "out")

	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, run(context.Background(), cfg, zap.New(core), "tradestats"))

	csv, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "TRADE_STATS_ES.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "1000")

	reconciled := logs.FilterMessage("ledger reconciled").All()
	require.Len(t, reconciled, 1)
	assert.Equal(t, "1000.00", reconciled[0].ContextMap()["net_pl"])
	assert.Zero(t, logs.FilterMessage("trade P&L does not match ledger").Len())
}

func TestRun_CSVWithoutInstrumentFails(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "ledger.csv")
	require.NoError(t, os.WriteFile(ledger, []byte("symbol,timestamp,pos_qty,txn_value,pos_value\nGC,1000,1,2000,2000\n"), 0644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Input.Source = config.SourceCSV
	cfg.Input.CSVPath = ledger
	cfg.Output.Dir = filepath.Join(dir, "out")

	err = run(context.Background(), cfg, zap.NewNop(), "tradestats")
	assert.Error(t, err)
}
