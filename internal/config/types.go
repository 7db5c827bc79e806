package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/multierr"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/tradestats"
)

// Input sources.
const (
	SourceFixtures = "fixtures"
	SourceCSV      = "csv"
	SourceDatabase = "database"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
)

// Config aggregates every setting of a batch run.
type Config struct {
	Analysis    AnalysisConfig     `mapstructure:"analysis"`
	Input       InputConfig        `mapstructure:"input"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Output      OutputConfig       `mapstructure:"output"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
}

// AnalysisConfig controls segmentation and aggregation.
type AnalysisConfig struct {
	Symbols          []string  `mapstructure:"symbols"` // empty means every symbol in the input
	TradeDefinition  string    `mapstructure:"trade_definition"`
	IncludeOpenTrade bool      `mapstructure:"include_open_trade"`
	Scales           []string  `mapstructure:"scales"`
	Probs            []float64 `mapstructure:"probs"`
	Workers          int       `mapstructure:"workers"`        // per-trade computations in flight
	SymbolWorkers    int       `mapstructure:"symbol_workers"` // symbols processed in parallel
}

// InputConfig selects where position series come from.
type InputConfig struct {
	Source  string `mapstructure:"source"`
	CSVPath string `mapstructure:"csv_path"`
}

// InstrumentConfig is the static metadata of one symbol.
type InstrumentConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	Multiplier float64 `mapstructure:"multiplier"`
	TickSize   float64 `mapstructure:"tick_size"`
}

// StorageConfig manages persistence.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	ClickhouseDSN string        `mapstructure:"clickhouse_dsn"`
	RunMigrations bool          `mapstructure:"run_migrations"`
	MaxConns      int32         `mapstructure:"max_conns"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
}

// OutputConfig controls report files.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig controls the Prometheus textfile.
type MetricsConfig struct {
	Namespace    string `mapstructure:"namespace"`
	TextfilePath string `mapstructure:"textfile_path"` // empty disables the textfile
}

// Definition parses the configured trade definition.
func (c *Config) Definition() (domain.TradeDefinition, error) {
	return tradestats.ParseTradeDefinition(c.Analysis.TradeDefinition)
}

// ScaleList parses the configured scales. Empty means all scales.
func (c *Config) ScaleList() ([]domain.Scale, error) {
	if len(c.Analysis.Scales) == 0 {
		return append([]domain.Scale(nil), domain.AllScales...), nil
	}
	scales := make([]domain.Scale, 0, len(c.Analysis.Scales))
	for _, name := range c.Analysis.Scales {
		s, ok := domain.ScaleFromString(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: %q", tradestats.ErrInvalidScale, name)
		}
		scales = append(scales, s)
	}
	return scales, nil
}

// InstrumentList converts the configured instruments.
func (c *Config) InstrumentList() []domain.Instrument {
	out := make([]domain.Instrument, len(c.Instruments))
	for i, ic := range c.Instruments {
		out[i] = domain.Instrument{Symbol: ic.Symbol, Multiplier: ic.Multiplier, TickSize: ic.TickSize}
	}
	return out
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var err error

	if _, e := c.Definition(); e != nil {
		err = multierr.Append(err, fmt.Errorf("analysis.trade_definition: %w", e))
	}
	if _, e := c.ScaleList(); e != nil {
		err = multierr.Append(err, fmt.Errorf("analysis.scales: %w", e))
	}
	if len(c.Analysis.Probs) == 0 {
		err = multierr.Append(err, errors.New("analysis.probs must not be empty"))
	}
	for _, p := range c.Analysis.Probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			err = multierr.Append(err, fmt.Errorf("analysis.probs: %w: %v", tradestats.ErrInvalidProbability, p))
		}
	}
	if c.Analysis.Workers < 0 {
		err = multierr.Append(err, errors.New("analysis.workers must not be negative"))
	}
	if c.Analysis.SymbolWorkers <= 0 {
		err = multierr.Append(err, errors.New("analysis.symbol_workers must be positive"))
	}

	switch c.Input.Source {
	case SourceFixtures, SourceDatabase:
	case SourceCSV:
		if c.Input.CSVPath == "" {
			err = multierr.Append(err, errors.New("input.csv_path is required for csv source"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("input.source must be one of fixtures, csv, database: %q", c.Input.Source))
	}

	seen := make(map[string]bool, len(c.Instruments))
	for i, ic := range c.Instruments {
		if ic.Symbol == "" {
			err = multierr.Append(err, fmt.Errorf("instruments[%d].symbol must not be empty", i))
			continue
		}
		if seen[ic.Symbol] {
			err = multierr.Append(err, fmt.Errorf("instruments[%d]: duplicate symbol %s", i, ic.Symbol))
		}
		seen[ic.Symbol] = true
		if ic.Multiplier < 0 || ic.TickSize < 0 {
			err = multierr.Append(err, fmt.Errorf("instruments[%d]: multiplier and tick_size must not be negative", i))
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
		if c.Input.Source == SourceDatabase {
			err = multierr.Append(err, errors.New("input.source database requires storage.backend database"))
		}
	case BackendDatabase:
		if c.Storage.PostgresDSN == "" {
			err = multierr.Append(err, errors.New("storage.postgres_dsn must not be empty"))
		}
		if c.Storage.ClickhouseDSN == "" {
			err = multierr.Append(err, errors.New("storage.clickhouse_dsn must not be empty"))
		}
		if c.Storage.MaxConns <= 0 {
			err = multierr.Append(err, errors.New("storage.max_conns must be positive"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("storage.backend must be memory or database: %q", c.Storage.Backend))
	}
	if c.Storage.QueryTimeout < 0 {
		err = multierr.Append(err, errors.New("storage.query_timeout must not be negative"))
	}

	if c.Output.Dir == "" {
		err = multierr.Append(err, errors.New("output.dir must not be empty"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level must not be empty"))
	}
	if c.Logging.Encoding != "console" && c.Logging.Encoding != "json" {
		err = multierr.Append(err, fmt.Errorf("logging.encoding must be console or json: %q", c.Logging.Encoding))
	}

	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}
