package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// PositionSeriesStore is an in-memory implementation of storage.PositionSeriesStore.
type PositionSeriesStore struct {
	mu   sync.RWMutex
	data map[string]domain.PositionRecord // keyed by (symbol, timestamp_ms)
}

// NewPositionSeriesStore creates a new in-memory position series store.
func NewPositionSeriesStore() *PositionSeriesStore {
	return &PositionSeriesStore{
		data: make(map[string]domain.PositionRecord),
	}
}

// positionKey generates a unique key for a position record.
func positionKey(symbol string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", symbol, timestampMs)
}

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *PositionSeriesStore) InsertBulk(_ context.Context, records []domain.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r.Symbol == "" {
			return storage.ErrInvalidInput
		}
		key := positionKey(r.Symbol, r.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		s.data[positionKey(r.Symbol, r.TimestampMs)] = r
	}

	return nil
}

// GetBySymbol retrieves all records for a symbol, ordered by timestamp ASC.
func (s *PositionSeriesStore) GetBySymbol(_ context.Context, symbol string) ([]domain.PositionRecord, error) {
	return s.collect(func(r domain.PositionRecord) bool {
		return r.Symbol == symbol
	}), nil
}

// GetByTimeRange retrieves records for a symbol within [start, end] (inclusive).
func (s *PositionSeriesStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]domain.PositionRecord, error) {
	return s.collect(func(r domain.PositionRecord) bool {
		return r.Symbol == symbol && r.TimestampMs >= start && r.TimestampMs <= end
	}), nil
}

// Symbols returns every symbol with at least one record, sorted ASC.
func (s *PositionSeriesStore) Symbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.data {
		seen[r.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return symbols, nil
}

func (s *PositionSeriesStore) collect(match func(domain.PositionRecord) bool) []domain.PositionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PositionRecord
	for _, r := range s.data {
		if match(r) {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result
}

var _ storage.PositionSeriesStore = (*PositionSeriesStore)(nil)
