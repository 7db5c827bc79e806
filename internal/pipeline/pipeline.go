// Package pipeline runs segmentation, per-trade statistics and quantile
// aggregation over stored position series and writes the reports.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/metrics"
	"trade-quality-lab/internal/observability"
	"trade-quality-lab/internal/reporting"
	"trade-quality-lab/internal/storage"
	"trade-quality-lab/internal/tradestats"
)

// GeneratorVersion is recorded in every report.
const GeneratorVersion = "1.0.0"

// Output file names.
const (
	ReportFile           = "REPORT.md"
	QuantilesFile        = "TRADE_QUANTILES.csv"
	tradeStatsFilePrefix = "TRADE_STATS_"
)

// Stores groups the stores a pipeline reads and writes.
type Stores struct {
	Series      storage.PositionSeriesStore
	Instruments storage.InstrumentStore
	TradeStats  storage.TradeStatsStore
	Summaries   storage.QuantileSummaryStore
}

// Options controls a pipeline run.
type Options struct {
	Definition       domain.TradeDefinition
	IncludeOpenTrade bool
	Scales           []domain.Scale // nil means all scales
	Probs            []float64      // nil means metrics.DefaultProbs
	Workers          int            // per-trade workers per symbol; <= 0 means GOMAXPROCS
	SymbolWorkers    int            // symbols in flight; <= 0 means 1
}

// Result describes a finished run.
type Result struct {
	Report    *reporting.Report
	Succeeded []string         // symbols with stored trades, sorted
	Failed    map[string]error // per-symbol failures
	Files     []string         // written paths
}

// Pipeline orchestrates per-symbol statistics and report generation.
type Pipeline struct {
	stores     Stores
	opts       Options
	aggregator *metrics.Aggregator
	reportGen  *reporting.Generator
	outputDir  string
	command    string
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      func() time.Time
}

// New creates a new pipeline.
func New(stores Stores, opts Options, outputDir string) *Pipeline {
	return &Pipeline{
		stores:     stores,
		opts:       opts,
		aggregator: metrics.NewAggregator(stores.TradeStats, stores.Summaries, opts.Scales, opts.Probs),
		reportGen:  reporting.NewGenerator(stores.TradeStats, stores.Summaries),
		outputDir:  outputDir,
		logger:     zap.NewNop(),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger. nil keeps the no-op logger.
func (p *Pipeline) WithLogger(logger *zap.Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithMetrics sets the metrics sink.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	p.aggregator = p.aggregator.WithClock(clock)
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithCommand records the command that reproduces the run.
func (p *Pipeline) WithCommand(command string) *Pipeline {
	p.command = command
	return p
}

// Run processes the given symbols, or every stored symbol when symbols is
// empty, then writes:
//   - TRADE_STATS_<symbol>.csv per processed symbol
//   - TRADE_QUANTILES.csv
//   - REPORT.md
//
// A failing symbol does not stop the others; its error is in Result.Failed
// and in the returned error. Reports cover the symbols that succeeded.
func (p *Pipeline) Run(ctx context.Context, symbols []string) (*Result, error) {
	started := p.clock()

	if !p.opts.Definition.Valid() {
		return nil, fmt.Errorf("%w: %d", tradestats.ErrInvalidDefinition, int(p.opts.Definition))
	}

	if len(symbols) == 0 {
		stored, err := p.stores.Series.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		symbols = stored
	}
	symbols = dedupe(symbols)

	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, err
	}

	result := &Result{Failed: make(map[string]error)}
	var mu sync.Mutex

	limit := p.opts.SymbolWorkers
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, symbol := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := p.processSymbol(gctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				result.Failed[symbol] = err
				return nil
			}
			result.Succeeded = append(result.Succeeded, symbol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.metrics.RecordPipelineRun("run", "canceled", p.clock().Sub(started).Seconds())
		return nil, err
	}
	sort.Strings(result.Succeeded)

	report, err := p.reportGen.Generate(ctx, result.Succeeded, p.opts.Definition)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	report.Reproducibility = reporting.ReproducibilityMetadata{
		GeneratorVersion: GeneratorVersion,
		DataVersion:      computeDataVersion(report),
		Command:          p.command,
	}
	result.Report = report

	files, err := p.writeOutputs(report)
	if err != nil {
		return nil, err
	}
	result.Files = files
	p.metrics.RecordReport()

	var runErr error
	for _, symbol := range symbols {
		if e, ok := result.Failed[symbol]; ok {
			runErr = multierr.Append(runErr, e)
		}
	}

	status := "success"
	if runErr != nil {
		status = "partial"
	} else {
		p.metrics.MarkSuccess(p.clock().Unix())
	}
	p.metrics.RecordPipelineRun("run", status, p.clock().Sub(started).Seconds())

	p.logger.Info("pipeline run finished",
		zap.String("definition", p.opts.Definition.String()),
		zap.Int("symbols", len(symbols)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("trades", report.TotalTrades()),
		zap.String("data_version", report.Reproducibility.DataVersion),
	)

	return result, runErr
}

// processSymbol computes and stores one symbol's trade table and summary.
func (p *Pipeline) processSymbol(ctx context.Context, symbol string) (err error) {
	started := p.clock()
	log := p.logger.With(zap.String("symbol", symbol))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			log.Error("symbol failed", zap.Error(err))
		}
		p.metrics.RecordPipelineRun("symbol", status, p.clock().Sub(started).Seconds())
	}()

	var records []domain.PositionRecord
	err = p.timed("position_series", "get_by_symbol", func() error {
		var e error
		records, e = p.stores.Series.GetBySymbol(ctx, symbol)
		return e
	})
	if err != nil {
		return fmt.Errorf("load series of %s: %w", symbol, err)
	}

	var inst *domain.Instrument
	err = p.timed("instruments", "get_by_symbol", func() error {
		var e error
		inst, e = p.stores.Instruments.GetBySymbol(ctx, symbol)
		return e
	})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", tradestats.ErrMissingInstrument, symbol)
	}
	if err != nil {
		return fmt.Errorf("load instrument of %s: %w", symbol, err)
	}
	if verr := tradestats.ValidateInstrument(*inst); verr != nil {
		log.Warn("instrument metadata incomplete, tick metrics will be NaN", zap.Error(verr))
	}

	trades, err := tradestats.PerTradeStats(ctx, records, *inst, tradestats.Options{
		Definition:       p.opts.Definition,
		IncludeOpenTrade: p.opts.IncludeOpenTrade,
		Workers:          p.opts.Workers,
	})
	if err != nil {
		return err
	}
	p.metrics.RecordTrades(p.opts.Definition, trades)

	err = p.timed("trade_stats", "replace_for_symbol", func() error {
		return p.stores.TradeStats.ReplaceForSymbol(ctx, symbol, p.opts.Definition, trades)
	})
	if err != nil {
		return fmt.Errorf("store trades of %s: %w", symbol, err)
	}

	log.Info("trades computed",
		zap.Int("rows", len(records)),
		zap.Int("trades", len(trades)),
	)

	if len(trades) == 0 {
		return nil
	}

	summary, err := p.aggregator.ComputeAndStore(ctx, symbol, p.opts.Definition)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", symbol, err)
	}
	p.metrics.RecordSummary(summary)
	for _, e := range metrics.EmptyPartitionErrors(summary) {
		log.Warn("quantiles undefined", zap.Error(e))
	}

	return nil
}

// timed runs fn and records its duration as a store call.
func (p *Pipeline) timed(store, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.RecordDBQuery(store, operation, time.Since(start).Seconds(), err)
	return err
}

// writeOutputs writes the CSV and Markdown reports.
func (p *Pipeline) writeOutputs(report *reporting.Report) ([]string, error) {
	var files []string
	write := func(name, content string) error {
		path := filepath.Join(p.outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
		files = append(files, path)
		return nil
	}

	for _, s := range report.Symbols {
		if err := write(TradeStatsFile(s.Symbol), reporting.RenderTradeStatsCSV(s.Trades)); err != nil {
			return nil, err
		}
	}
	if err := write(QuantilesFile, reporting.RenderQuantilesCSV(report.Summaries())); err != nil {
		return nil, err
	}
	if err := write(ReportFile, reporting.RenderMarkdown(report)); err != nil {
		return nil, err
	}

	return files, nil
}

// TradeStatsFile returns the trade table file name of a symbol.
func TradeStatsFile(symbol string) string {
	return tradeStatsFilePrefix + safeFileName(symbol) + ".csv"
}

// computeDataVersion hashes trade ids, net P&L and quantile values.
func computeDataVersion(report *reporting.Report) string {
	h := sha256.New()

	var tradeParts []string
	for _, s := range report.Symbols {
		for _, t := range s.Trades {
			tradeParts = append(tradeParts, fmt.Sprintf("%s|%.6f", t.TradeID, t.NetTradingPL))
		}
	}
	sort.Strings(tradeParts)
	h.Write([]byte("TRADES\n"))
	h.Write([]byte(strings.Join(tradeParts, "\n")))

	var quantileParts []string
	for _, q := range report.Summaries() {
		for _, v := range q.Values() {
			quantileParts = append(quantileParts, fmt.Sprintf("%s|%s|%.6f", q.Symbol, v.Label, v.Value))
		}
	}
	sort.Strings(quantileParts)
	h.Write([]byte("\nQUANTILES\n"))
	h.Write([]byte(strings.Join(quantileParts, "\n")))

	return hex.EncodeToString(h.Sum(nil))[:12]
}

func safeFileName(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, symbol)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
