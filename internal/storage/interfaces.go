package storage

import (
	"context"

	"trade-quality-lab/internal/domain"
)

// PositionSeriesStore provides access to position_series storage.
type PositionSeriesStore interface {
	// InsertBulk adds multiple records. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, records []domain.PositionRecord) error

	// GetBySymbol retrieves all records for a symbol, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]domain.PositionRecord, error)

	// GetByTimeRange retrieves records for a symbol within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]domain.PositionRecord, error)

	// Symbols returns every symbol with at least one record, sorted ASC.
	Symbols(ctx context.Context) ([]string, error)
}

// InstrumentStore provides access to instruments storage.
type InstrumentStore interface {
	// Insert adds a new instrument. Returns ErrDuplicateKey if symbol exists.
	Insert(ctx context.Context, inst *domain.Instrument) error

	// Upsert inserts or replaces an instrument.
	Upsert(ctx context.Context, inst *domain.Instrument) error

	// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)
}

// TradeStatsStore provides access to trade_stats storage.
// Trade tables are recomputed as a whole, so writes replace a symbol's table.
type TradeStatsStore interface {
	// ReplaceForSymbol atomically deletes the (symbol, definition) table and
	// inserts trades. Every trade must carry the same symbol and definition.
	ReplaceForSymbol(ctx context.Context, symbol string, def domain.TradeDefinition, trades []domain.TradeStats) error

	// GetBySymbol retrieves the table of (symbol, definition), ordered by start ASC, end ASC.
	GetBySymbol(ctx context.Context, symbol string, def domain.TradeDefinition) ([]domain.TradeStats, error)

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeStats, error)
}

// QuantileSummaryStore provides access to quantile_summaries storage.
type QuantileSummaryStore interface {
	// Upsert inserts or replaces the summary of (symbol, definition).
	Upsert(ctx context.Context, s *domain.QuantileSummary) error

	// GetBySymbol retrieves the latest summary. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string, def domain.TradeDefinition) (*domain.QuantileSummary, error)
}
