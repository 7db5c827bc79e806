package memory

import (
	"context"
	"sort"
	"sync"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

type tableKey struct {
	symbol string
	def    domain.TradeDefinition
}

// TradeStatsStore is an in-memory implementation of storage.TradeStatsStore.
type TradeStatsStore struct {
	mu     sync.RWMutex
	tables map[tableKey][]domain.TradeStats
	byID   map[string]domain.TradeStats // keyed by trade_id
}

// NewTradeStatsStore creates a new in-memory trade stats store.
func NewTradeStatsStore() *TradeStatsStore {
	return &TradeStatsStore{
		tables: make(map[tableKey][]domain.TradeStats),
		byID:   make(map[string]domain.TradeStats),
	}
}

// ReplaceForSymbol atomically swaps the (symbol, definition) table.
func (s *TradeStatsStore) ReplaceForSymbol(_ context.Context, symbol string, def domain.TradeDefinition, trades []domain.TradeStats) error {
	if symbol == "" || !def.Valid() {
		return storage.ErrInvalidInput
	}

	batchKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t.TradeID == "" || t.Symbol != symbol || t.Definition != def {
			return storage.ErrInvalidInput
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	table := make([]domain.TradeStats, len(trades))
	copy(table, trades)
	sort.SliceStable(table, func(i, j int) bool {
		if table[i].Start != table[j].Start {
			return table[i].Start < table[j].Start
		}
		return table[i].End < table[j].End
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tableKey{symbol: symbol, def: def}
	for _, old := range s.tables[key] {
		delete(s.byID, old.TradeID)
	}
	for _, t := range table {
		s.byID[t.TradeID] = t
	}
	s.tables[key] = table

	return nil
}

// GetBySymbol retrieves the table of (symbol, definition), ordered by start ASC, end ASC.
func (s *TradeStatsStore) GetBySymbol(_ context.Context, symbol string, def domain.TradeDefinition) ([]domain.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.tables[tableKey{symbol: symbol, def: def}]
	if len(table) == 0 {
		return nil, nil
	}

	result := make([]domain.TradeStats, len(table))
	copy(result, table)
	return result, nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStatsStore) GetByID(_ context.Context, tradeID string) (*domain.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byID[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return &t, nil
}

var _ storage.TradeStatsStore = (*TradeStatsStore)(nil)
