package inventory

import (
	"slices"
	"strings"

	"laroza/backend/internal/domain"
)

// LowStockThreshold is the total below which a product counts as low stock.
const LowStockThreshold = 10

func Status(total int) string {
	switch {
	case total <= 0:
		return domain.StockStatusOutOfStock
	case total < LowStockThreshold:
		return domain.StockStatusLowStock
	default:
		return domain.StockStatusInStock
	}
}

// Summarize annotates a product with its variants, their total and the
// derived stock status. Records of other products are ignored.
func Summarize(product domain.Product, records []domain.InventoryRecord) domain.ProductWithInventory {
	own := make([]domain.InventoryRecord, 0, len(records))
	total := 0
	for _, rec := range records {
		if rec.ProductID != product.ID {
			continue
		}
		own = append(own, rec)
		total += rec.Quantity
	}
	SortRecords(own)

	return domain.ProductWithInventory{
		Product:       product,
		Inventory:     own,
		TotalQuantity: total,
		Status:        Status(total),
	}
}

func SortRecords(records []domain.InventoryRecord) {
	slices.SortFunc(records, func(a, b domain.InventoryRecord) int {
		if c := strings.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		if c := strings.Compare(a.StoreType, b.StoreType); c != 0 {
			return c
		}
		if c := strings.Compare(a.Color, b.Color); c != 0 {
			return c
		}
		return strings.Compare(a.Size, b.Size)
	})
}
