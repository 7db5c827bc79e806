package memory

import (
	"context"
	"sync"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument // keyed by symbol
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
	}
}

// Insert adds a new instrument. Returns ErrDuplicateKey if symbol exists.
func (s *InstrumentStore) Insert(_ context.Context, inst *domain.Instrument) error {
	if inst == nil || inst.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[inst.Symbol]; exists {
		return storage.ErrDuplicateKey
	}

	instCopy := *inst
	s.data[inst.Symbol] = &instCopy
	return nil
}

// Upsert inserts or replaces an instrument.
func (s *InstrumentStore) Upsert(_ context.Context, inst *domain.Instrument) error {
	if inst == nil || inst.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	instCopy := *inst
	s.data[inst.Symbol] = &instCopy
	return nil
}

// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetBySymbol(_ context.Context, symbol string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.data[symbol]
	if !exists {
		return nil, storage.ErrNotFound
	}

	instCopy := *inst
	return &instCopy, nil
}

var _ storage.InstrumentStore = (*InstrumentStore)(nil)
