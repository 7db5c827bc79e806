package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

func TestPositionSeriesStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionSeriesStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	assert.NoError(t, store.InsertBulk(ctx, nil))

	records := []domain.PositionRecord{
		{Symbol: "ES", TimestampMs: 2000, PosQty: 1, TxnValue: 0, PosValue: 98},
		{Symbol: "ES", TimestampMs: 1000, PosQty: 1, TxnValue: 100, PosValue: 100},
		{Symbol: "ES", TimestampMs: 3000, PosQty: 0, TxnValue: -105, PosValue: 0},
	}
	require.NoError(t, store.InsertBulk(ctx, records))

	got, err := store.GetBySymbol(ctx, "ES")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, 100.0, got[0].TxnValue)
	assert.Equal(t, int64(3000), got[2].TimestampMs)
	assert.Equal(t, -105.0, got[2].TxnValue)
}

func TestPositionSeriesStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionSeriesStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []domain.PositionRecord{
		{Symbol: "CL", TimestampMs: 1000},
		{Symbol: "CL", TimestampMs: 1000},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, store.InsertBulk(ctx, []domain.PositionRecord{{Symbol: "CL", TimestampMs: 1000, PosQty: 2}}))

	err = store.InsertBulk(ctx, []domain.PositionRecord{
		{Symbol: "CL", TimestampMs: 2000},
		{Symbol: "CL", TimestampMs: 1000},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetBySymbol(ctx, "CL")
	require.NoError(t, err)
	assert.Len(t, got, 1, "rejected batch must not be written")
}

func TestPositionSeriesStore_TimeRangeAndSymbols(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionSeriesStore(conn)
	ctx := context.Background()

	var records []domain.PositionRecord
	for i := int64(1); i <= 5; i++ {
		records = append(records, domain.PositionRecord{Symbol: "NQ", TimestampMs: i * 1000, PosQty: float64(i)})
	}
	records = append(records, domain.PositionRecord{Symbol: "CL", TimestampMs: 1000})
	require.NoError(t, store.InsertBulk(ctx, records))

	got, err := store.GetByTimeRange(ctx, "NQ", 2000, 4000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2000), got[0].TimestampMs)
	assert.Equal(t, int64(4000), got[2].TimestampMs)

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CL", "NQ"}, symbols)
}
