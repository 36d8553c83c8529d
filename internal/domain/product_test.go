package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestStockRecord_Available(t *testing.T) {
	rec := StockRecord{OnHand: 10, Reserved: 6}
	assert.Equal(t, int64(4), rec.Available())

	// legacy data may already be inconsistent
	rec = StockRecord{OnHand: 2, Reserved: 5}
	assert.Equal(t, int64(-3), rec.Available())
}

func TestNormalizeStock(t *testing.T) {
	updatedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name         string
		raw          StoredStock
		wantOnHand   int64
		wantReserved int64
	}{
		{
			name:         "split schema",
			raw:          StoredStock{OnHand: int64Ptr(10), Reserved: int64Ptr(3), Quantity: int64Ptr(10)},
			wantOnHand:   10,
			wantReserved: 3,
		},
		{
			name:         "legacy quantity only",
			raw:          StoredStock{Quantity: int64Ptr(7)},
			wantOnHand:   7,
			wantReserved: 0,
		},
		{
			name:         "onHand wins over stale quantity",
			raw:          StoredStock{OnHand: int64Ptr(4), Quantity: int64Ptr(9)},
			wantOnHand:   4,
			wantReserved: 0,
		},
		{
			name:         "empty document",
			raw:          StoredStock{},
			wantOnHand:   0,
			wantReserved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw.UpdatedAt = updatedAt
			rec := NormalizeStock("P", tt.raw)

			assert.Equal(t, "P", rec.ProductID)
			assert.Equal(t, tt.wantOnHand, rec.OnHand)
			assert.Equal(t, tt.wantReserved, rec.Reserved)
			assert.Equal(t, updatedAt, rec.UpdatedAt)
		})
	}
}

func TestStockRecord_StoredMirrorsQuantity(t *testing.T) {
	rec := StockRecord{ProductID: "P", OnHand: 4, Reserved: 1}

	stored := rec.Stored()

	require.NotNil(t, stored.OnHand)
	require.NotNil(t, stored.Reserved)
	require.NotNil(t, stored.Quantity)
	assert.Equal(t, int64(4), *stored.OnHand)
	assert.Equal(t, int64(1), *stored.Reserved)
	assert.Equal(t, int64(4), *stored.Quantity)
}

func TestNormalizeItems_MergesAndSorts(t *testing.T) {
	items := NormalizeItems([]Item{
		{ProductID: "sku-3", Quantity: 1},
		{ProductID: "sku-1", Quantity: 2},
		{ProductID: "sku-3", Quantity: 4},
	})

	assert.Equal(t, []Item{
		{ProductID: "sku-1", Quantity: 2},
		{ProductID: "sku-3", Quantity: 5},
	}, items)
}

func TestNormalizeItems_Empty(t *testing.T) {
	assert.Empty(t, NormalizeItems(nil))
}

func TestNormalizeItems_SaturatesInsteadOfWrapping(t *testing.T) {
	items := NormalizeItems([]Item{
		{ProductID: "sku-1", Quantity: math.MaxInt64},
		{ProductID: "sku-1", Quantity: math.MaxInt64},
	})

	require.Len(t, items, 1)
	assert.Equal(t, int64(math.MaxInt64), items[0].Quantity)
}
