package memory

import (
	"context"
	"sync"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// QuantileSummaryStore is an in-memory implementation of storage.QuantileSummaryStore.
type QuantileSummaryStore struct {
	mu   sync.RWMutex
	data map[tableKey]*domain.QuantileSummary
}

// NewQuantileSummaryStore creates a new in-memory quantile summary store.
func NewQuantileSummaryStore() *QuantileSummaryStore {
	return &QuantileSummaryStore{
		data: make(map[tableKey]*domain.QuantileSummary),
	}
}

// Upsert inserts or replaces the summary of (symbol, definition).
func (s *QuantileSummaryStore) Upsert(_ context.Context, summary *domain.QuantileSummary) error {
	if summary == nil || summary.Symbol == "" || !summary.Definition.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[tableKey{symbol: summary.Symbol, def: summary.Definition}] = cloneSummary(summary)
	return nil
}

// GetBySymbol retrieves the summary. Returns ErrNotFound if not exists.
func (s *QuantileSummaryStore) GetBySymbol(_ context.Context, symbol string, def domain.TradeDefinition) (*domain.QuantileSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, exists := s.data[tableKey{symbol: symbol, def: def}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneSummary(summary), nil
}

func cloneSummary(src *domain.QuantileSummary) *domain.QuantileSummary {
	dst := *src
	dst.Scales = append([]domain.Scale(nil), src.Scales...)
	dst.Probs = append([]float64(nil), src.Probs...)
	dst.Quantiles = append([]domain.QuantileEntry(nil), src.Quantiles...)
	dst.MaxCum = append([]domain.MaxCumEntry(nil), src.MaxCum...)
	dst.EmptyPartitions = append([]domain.PartitionKey(nil), src.EmptyPartitions...)
	return &dst
}

var _ storage.QuantileSummaryStore = (*QuantileSummaryStore)(nil)
