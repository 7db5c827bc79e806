package clickhouse

import (
	"context"
	"fmt"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// PositionSeriesStore implements storage.PositionSeriesStore using ClickHouse.
type PositionSeriesStore struct {
	conn *Conn
}

// NewPositionSeriesStore creates a new PositionSeriesStore.
func NewPositionSeriesStore(conn *Conn) *PositionSeriesStore {
	return &PositionSeriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PositionSeriesStore = (*PositionSeriesStore)(nil)

// InsertBulk adds multiple records. Fails entire batch on duplicate (symbol, timestamp_ms).
func (s *PositionSeriesStore) InsertBulk(ctx context.Context, records []domain.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		symbol      string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(records))
	for _, r := range records {
		if r.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := key{r.Symbol, r.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce keys; check existing rows per symbol range.
	if err := s.checkExisting(ctx, records); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_series (
			symbol, timestamp_ms, pos_qty, txn_value, pos_value
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(r.Symbol, r.TimestampMs, r.PosQty, r.TxnValue, r.PosValue); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// checkExisting returns ErrDuplicateKey if any record's key is already stored.
func (s *PositionSeriesStore) checkExisting(ctx context.Context, records []domain.PositionRecord) error {
	bySymbol := make(map[string][]int64)
	for _, r := range records {
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r.TimestampMs)
	}

	for symbol, timestamps := range bySymbol {
		var count uint64
		err := s.conn.QueryRow(ctx, `
			SELECT count(*) FROM position_series
			WHERE symbol = ? AND timestamp_ms IN (?)
		`, symbol, timestamps).Scan(&count)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
	}
	return nil
}

// GetBySymbol retrieves all records for a symbol, ordered by timestamp ASC.
func (s *PositionSeriesStore) GetBySymbol(ctx context.Context, symbol string) ([]domain.PositionRecord, error) {
	query := `
		SELECT symbol, timestamp_ms, pos_qty, txn_value, pos_value
		FROM position_series
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanPositionSeries(rows)
}

// GetByTimeRange retrieves records for a symbol within [start, end] (inclusive).
func (s *PositionSeriesStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]domain.PositionRecord, error) {
	query := `
		SELECT symbol, timestamp_ms, pos_qty, txn_value, pos_value
		FROM position_series
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPositionSeries(rows)
}

// Symbols returns every symbol with at least one record, sorted ASC.
func (s *PositionSeriesStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT symbol FROM position_series ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}

	return symbols, nil
}

// scanPositionSeries scans multiple rows.
func scanPositionSeries(rows chRows) ([]domain.PositionRecord, error) {
	var records []domain.PositionRecord

	for rows.Next() {
		var r domain.PositionRecord
		if err := rows.Scan(&r.Symbol, &r.TimestampMs, &r.PosQty, &r.TxnValue, &r.PosValue); err != nil {
			return nil, fmt.Errorf("scan position series row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position series rows: %w", err)
	}

	return records, nil
}
