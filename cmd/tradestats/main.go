package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"trade-quality-lab/internal/config"
	"trade-quality-lab/internal/domain"
	tqllog "trade-quality-lab/internal/log"
	"trade-quality-lab/internal/observability"
	"trade-quality-lab/internal/pipeline"
	"trade-quality-lab/internal/reporting"
	"trade-quality-lab/internal/storage"
	chstore "trade-quality-lab/internal/storage/clickhouse"
	"trade-quality-lab/internal/storage/memory"
	"trade-quality-lab/internal/storage/migrations"
	pgstore "trade-quality-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file (defaults and TQL_* env vars when empty)")
	symbols := flag.String("symbols", "", "Comma-separated symbols to process (default: all symbols in the input)")
	outputDir := flag.String("output-dir", "", "Output directory for generated files (overrides output.dir)")
	useFixtures := flag.Bool("use-fixtures", false, "Use in-memory stores with demo data instead of the configured input")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *symbols != "" {
		cfg.Analysis.Symbols = strings.Split(*symbols, ",")
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *useFixtures {
		cfg.Input.Source = config.SourceFixtures
		cfg.Storage.Backend = config.BackendMemory
	}

	logger, err := tqllog.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger, commandLine())
	stop()
	_ = logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, command string) error {
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)
	defer func() {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("metrics textfile not written", zap.Error(err))
		}
	}()

	stores, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	ledger, err := loadInput(ctx, cfg, stores, logger)
	if err != nil {
		return err
	}

	for _, inst := range cfg.InstrumentList() {
		if err := stores.Instruments.Upsert(ctx, &inst); err != nil {
			return fmt.Errorf("store instrument %s: %w", inst.Symbol, err)
		}
	}

	def, err := cfg.Definition()
	if err != nil {
		return err
	}
	scales, err := cfg.ScaleList()
	if err != nil {
		return err
	}

	p := pipeline.New(stores, pipeline.Options{
		Definition:       def,
		IncludeOpenTrade: cfg.Analysis.IncludeOpenTrade,
		Scales:           scales,
		Probs:            cfg.Analysis.Probs,
		Workers:          cfg.Analysis.Workers,
		SymbolWorkers:    cfg.Analysis.SymbolWorkers,
	}, cfg.Output.Dir).
		WithLogger(logger).
		WithMetrics(metrics).
		WithCommand(command)

	result, runErr := p.Run(ctx, cfg.Analysis.Symbols)
	if result != nil {
		fmt.Println("Trade quality report generated:")
		for _, f := range result.Files {
			fmt.Printf("  - %s\n", f)
		}
		for symbol, e := range result.Failed {
			fmt.Fprintf(os.Stderr, "  ! %s: %v\n", symbol, e)
		}
		if ledger != nil && def == domain.FlatToFlat && cfg.Analysis.IncludeOpenTrade {
			reconcile(ledger, result.Report, logger)
		}
	}
	return runErr
}

// reconcile checks each reported symbol's trade P&L against the ledger.
func reconcile(ledger *pipeline.Ledger, report *reporting.Report, logger *zap.Logger) {
	for _, s := range report.Symbols {
		diff, err := ledger.Reconcile(s.Symbol, s.Trades)
		if err != nil {
			logger.Warn("ledger reconciliation skipped", zap.String("symbol", s.Symbol), zap.Error(err))
			continue
		}
		if diff.Abs().GreaterThan(pipeline.ReconcileTolerance) {
			logger.Warn("trade P&L does not match ledger",
				zap.String("symbol", s.Symbol),
				zap.String("ledger_net_pl", ledger.NetPL(s.Symbol).String()),
				zap.String("difference", diff.String()),
			)
			continue
		}
		logger.Info("ledger reconciled",
			zap.String("symbol", s.Symbol),
			zap.String("net_pl", ledger.NetPL(s.Symbol).StringFixed(2)),
		)
	}
}

// openStores creates the stores of the configured backend. Database
// backends keep position series and summaries in ClickHouse and instruments
// and trade stats in PostgreSQL.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pipeline.Stores, func(), error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return pipeline.Stores{
			Series:      memory.NewPositionSeriesStore(),
			Instruments: memory.NewInstrumentStore(),
			TradeStats:  memory.NewTradeStatsStore(),
			Summaries:   memory.NewQuantileSummaryStore(),
		}, func() {}, nil
	}

	connectCtx := ctx
	if cfg.Storage.QueryTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Storage.QueryTimeout)
		defer cancel()
	}

	pgPool, err := pgstore.NewPool(connectCtx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns)
	if err != nil {
		return pipeline.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	var chConn *chstore.Conn
	if cfg.Storage.RunMigrations {
		if err := migrations.RunPostgresMigrations(connectCtx, pgPool); err != nil {
			pgPool.Close()
			return pipeline.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		chConn, err = migrations.RunClickhouseMigrations(connectCtx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pgPool.Close()
			return pipeline.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Info("migrations applied")
	} else {
		chConn, err = chstore.NewConn(connectCtx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pgPool.Close()
			return pipeline.Stores{}, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
	}

	closeFn := func() {
		pgPool.Close()
		if err := chConn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
	}

	return pipeline.Stores{
		Series:      chstore.NewPositionSeriesStore(chConn),
		Instruments: pgstore.NewInstrumentStore(pgPool),
		TradeStats:  pgstore.NewTradeStatsStore(pgPool),
		Summaries:   chstore.NewQuantileSummaryStore(chConn),
	}, closeFn, nil
}

// loadInput fills the series store from the configured source. The parsed
// ledger is returned for CSV input, nil otherwise.
func loadInput(ctx context.Context, cfg *config.Config, stores pipeline.Stores, logger *zap.Logger) (*pipeline.Ledger, error) {
	switch cfg.Input.Source {
	case config.SourceFixtures:
		if err := pipeline.LoadFixtures(ctx, stores.Series, stores.Instruments); err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		logger.Info("fixtures loaded")
	case config.SourceCSV:
		ledger, err := pipeline.ImportLedgerFile(ctx, cfg.Input.CSVPath, stores.Series)
		if errors.Is(err, storage.ErrDuplicateKey) && cfg.Storage.Backend == config.BackendDatabase {
			// Rows from an earlier import are already stored; batches are all-or-nothing.
			logger.Warn("ledger already imported, using stored series", zap.String("path", cfg.Input.CSVPath))
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("import ledger: %w", err)
		}
		logger.Info("ledger imported",
			zap.String("path", cfg.Input.CSVPath),
			zap.Int("rows", len(ledger.Records)),
			zap.Strings("symbols", ledger.Symbols()),
		)
		return ledger, nil
	case config.SourceDatabase:
		// Series are already stored.
	}
	return nil, nil
}

func commandLine() string {
	return "tradestats " + strings.Join(os.Args[1:], " ")
}
