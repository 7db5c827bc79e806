package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

func TestInstrumentStore_InsertAndGetBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	inst := &domain.Instrument{Symbol: "ES", Multiplier: 50, TickSize: 0.25}
	require.NoError(t, store.Insert(ctx, inst))

	retrieved, err := store.GetBySymbol(ctx, "ES")
	require.NoError(t, err)

	assert.Equal(t, inst.Symbol, retrieved.Symbol)
	assert.InDelta(t, inst.Multiplier, retrieved.Multiplier, 1e-12)
	assert.InDelta(t, inst.TickSize, retrieved.TickSize, 1e-12)
	assert.InDelta(t, 12.5, retrieved.TickValue(), 1e-12)
}

func TestInstrumentStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	inst := &domain.Instrument{Symbol: "CL", Multiplier: 1000, TickSize: 0.01}
	require.NoError(t, store.Insert(ctx, inst))

	err := store.Insert(ctx, inst)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInstrumentStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	require.NoError(t, store.Upsert(ctx, &domain.Instrument{Symbol: "NQ", Multiplier: 20, TickSize: 0.25}))
	require.NoError(t, store.Upsert(ctx, &domain.Instrument{Symbol: "NQ", Multiplier: 2, TickSize: 0.25}))

	retrieved, err := store.GetBySymbol(ctx, "NQ")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, retrieved.Multiplier, 1e-12)
}

func TestInstrumentStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInstrumentStore(pool)

	_, err := store.GetBySymbol(context.Background(), "ZZ")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
