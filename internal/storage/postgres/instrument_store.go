package postgres

import (
	"context"
	"fmt"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// Insert adds a new instrument. Returns ErrDuplicateKey if symbol exists.
func (s *InstrumentStore) Insert(ctx context.Context, inst *domain.Instrument) error {
	if inst == nil || inst.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO instruments (symbol, multiplier, tick_size)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query, inst.Symbol, inst.Multiplier, inst.TickSize)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

// Upsert inserts or replaces an instrument.
func (s *InstrumentStore) Upsert(ctx context.Context, inst *domain.Instrument) error {
	if inst == nil || inst.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO instruments (symbol, multiplier, tick_size)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			multiplier = EXCLUDED.multiplier,
			tick_size = EXCLUDED.tick_size,
			updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, inst.Symbol, inst.Multiplier, inst.TickSize); err != nil {
		return fmt.Errorf("upsert instrument: %w", err)
	}
	return nil
}

// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	query := `
		SELECT symbol, multiplier, tick_size
		FROM instruments
		WHERE symbol = $1
	`

	var inst domain.Instrument
	err := s.pool.QueryRow(ctx, query, symbol).Scan(&inst.Symbol, &inst.Multiplier, &inst.TickSize)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by symbol: %w", err)
	}
	return &inst, nil
}
