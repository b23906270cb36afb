package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"laroza/backend/internal/domain"
)

func TestStatusThresholds(t *testing.T) {
	cases := map[int]string{
		-2: domain.StockStatusOutOfStock,
		0:  domain.StockStatusOutOfStock,
		1:  domain.StockStatusLowStock,
		9:  domain.StockStatusLowStock,
		10: domain.StockStatusInStock,
		42: domain.StockStatusInStock,
	}
	for total, want := range cases {
		require.Equal(t, want, Status(total), "total %d", total)
	}
}

func TestSummarizeIgnoresOtherProducts(t *testing.T) {
	product := domain.Product{ID: "p1"}
	records := []domain.InventoryRecord{
		{VariantKey: domain.VariantKey{ProductID: "p1", StoreType: "online", Color: "red", Size: "M"}, Quantity: 4},
		{VariantKey: domain.VariantKey{ProductID: "p2", StoreType: "online", Color: "red", Size: "M"}, Quantity: 40},
		{VariantKey: domain.VariantKey{ProductID: "p1", StoreType: "boutique", Color: "black", Size: "L"}, Quantity: 5},
	}

	got := Summarize(product, records)
	require.Equal(t, 9, got.TotalQuantity)
	require.Equal(t, domain.StockStatusLowStock, got.Status)
	require.Len(t, got.Inventory, 2)
	require.Equal(t, "boutique", got.Inventory[0].StoreType)
}
