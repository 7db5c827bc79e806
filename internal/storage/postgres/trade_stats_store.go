package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// tradeStatsColumns is the column order shared by COPY and SELECT.
var tradeStatsColumns = []string{
	"trade_id", "symbol", "definition",
	"start_ms", "end_ms", "start_index", "end_index", "duration_ms", "is_open",
	"init_pos", "max_pos", "end_pos", "num_txns", "max_notional_cost",
	"net_trading_pl", "mae", "mfe",
	"pct_net_trading_pl", "pct_mae", "pct_mfe",
	"tick_net_trading_pl", "tick_mae", "tick_mfe",
}

const selectTradeStats = `
	SELECT
		trade_id, symbol, definition,
		start_ms, end_ms, start_index, end_index, duration_ms, is_open,
		init_pos, max_pos, end_pos, num_txns, max_notional_cost,
		net_trading_pl, mae, mfe,
		pct_net_trading_pl, pct_mae, pct_mfe,
		tick_net_trading_pl, tick_mae, tick_mfe
	FROM trade_stats
`

// TradeStatsStore implements storage.TradeStatsStore using PostgreSQL.
type TradeStatsStore struct {
	pool *Pool
}

// NewTradeStatsStore creates a new TradeStatsStore.
func NewTradeStatsStore(pool *Pool) *TradeStatsStore {
	return &TradeStatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStatsStore = (*TradeStatsStore)(nil)

// ReplaceForSymbol deletes the (symbol, definition) table and copies the new
// trades in, in one transaction.
func (s *TradeStatsStore) ReplaceForSymbol(ctx context.Context, symbol string, def domain.TradeDefinition, trades []domain.TradeStats) error {
	if symbol == "" || !def.Valid() {
		return storage.ErrInvalidInput
	}
	for _, t := range trades {
		if t.TradeID == "" || t.Symbol != symbol || t.Definition != def {
			return storage.ErrInvalidInput
		}
	}

	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM trade_stats WHERE symbol = $1 AND definition = $2`,
			symbol, def.String(),
		); err != nil {
			return fmt.Errorf("delete trade stats: %w", err)
		}

		if len(trades) == 0 {
			return nil
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"trade_stats"},
			tradeStatsColumns,
			pgx.CopyFromSlice(len(trades), func(i int) ([]any, error) {
				t := trades[i]
				return []any{
					t.TradeID, t.Symbol, t.Definition.String(),
					t.Start, t.End, int32(t.StartIndex), int32(t.EndIndex), t.DurationMs, t.Open,
					t.InitPos, t.MaxPos, t.EndPos, int32(t.NumTxns), t.MaxNotionalCost,
					t.NetTradingPL, t.MAE, t.MFE,
					t.PctNetTradingPL, t.PctMAE, t.PctMFE,
					t.TickNetTradingPL, t.TickMAE, t.TickMFE,
				}, nil
			}),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("copy trade stats: %w", err)
		}
		return nil
	})
}

// GetBySymbol retrieves the table of (symbol, definition), ordered by start ASC, end ASC.
func (s *TradeStatsStore) GetBySymbol(ctx context.Context, symbol string, def domain.TradeDefinition) ([]domain.TradeStats, error) {
	query := selectTradeStats + `
		WHERE symbol = $1 AND definition = $2
		ORDER BY start_ms ASC, end_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, def.String())
	if err != nil {
		return nil, fmt.Errorf("get trade stats by symbol: %w", err)
	}
	defer rows.Close()

	return scanTradeStatsRows(rows)
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStatsStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeStats, error) {
	row := s.pool.QueryRow(ctx, selectTradeStats+` WHERE trade_id = $1`, tradeID)

	t, err := scanTradeStats(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade stats by id: %w", err)
	}
	return t, nil
}

// scanTradeStats scans a single row into a TradeStats.
func scanTradeStats(row pgx.Row) (*domain.TradeStats, error) {
	var (
		t                    domain.TradeStats
		definition           string
		startIndex, endIndex int32
		numTxns              int32
	)

	err := row.Scan(
		&t.TradeID, &t.Symbol, &definition,
		&t.Start, &t.End, &startIndex, &endIndex, &t.DurationMs, &t.Open,
		&t.InitPos, &t.MaxPos, &t.EndPos, &numTxns, &t.MaxNotionalCost,
		&t.NetTradingPL, &t.MAE, &t.MFE,
		&t.PctNetTradingPL, &t.PctMAE, &t.PctMFE,
		&t.TickNetTradingPL, &t.TickMAE, &t.TickMFE,
	)
	if err != nil {
		return nil, err
	}

	def, ok := domain.TradeDefinitionFromString(definition)
	if !ok {
		return nil, fmt.Errorf("unknown trade definition %q for trade %s", definition, t.TradeID)
	}
	t.Definition = def
	t.StartIndex = int(startIndex)
	t.EndIndex = int(endIndex)
	t.NumTxns = int(numTxns)

	return &t, nil
}

// scanTradeStatsRows scans multiple rows into a slice of TradeStats.
func scanTradeStatsRows(rows pgx.Rows) ([]domain.TradeStats, error) {
	var trades []domain.TradeStats

	for rows.Next() {
		t, err := scanTradeStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade stats row: %w", err)
		}
		trades = append(trades, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade stats rows: %w", err)
	}

	return trades, nil
}
