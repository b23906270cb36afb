package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

func variant(productID string, storeType string, color string, size string) domain.VariantKey {
	return domain.VariantKey{ProductID: productID, StoreType: storeType, Color: color, Size: size}
}

func TestDecrementRejectsOverdraftWithoutPartialDebit(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	key := variant(SeedDressID, domain.StoreTypeBoutique, "black", "M")

	_, err := s.DecrementVariant(ctx, key, 6)
	var insufficient *store.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient inventory error, got %v", err)
	}
	if insufficient.Available != 5 || insufficient.Requested != 6 {
		t.Fatalf("unexpected error detail: %+v", insufficient)
	}

	qty, _ := s.GetVariantQuantity(ctx, key)
	if qty != 5 {
		t.Fatalf("expected quantity untouched at 5, got %d", qty)
	}
}

func TestIncrementCreatesMissingVariant(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := variant("p1", domain.StoreTypeOnline, "green", "XL")

	if qty, _ := s.GetVariantQuantity(ctx, key); qty != 0 {
		t.Fatalf("expected absent variant to read 0, got %d", qty)
	}
	qty, err := s.IncrementVariant(ctx, key, 4)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if qty != 4 {
		t.Fatalf("expected 4, got %d", qty)
	}
}

func TestCreateProductRejectsDuplicateModelNumber(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ModelNumber: "LRZ-DR-1001",
		CompanyName: "Copy",
		ProductType: "dress",
		StorePrice:  decimal.NewFromInt(1),
	}, nil)
	if !errors.Is(err, store.ErrDuplicateModelNumber) {
		t.Fatalf("expected duplicate model number, got %v", err)
	}
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := domain.Sale{
		StoreType:     domain.StoreTypeBoutique,
		InvoiceNumber: "INV-1",
		Items: []domain.SaleItem{
			{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 2},
			{ProductID: SeedDressID, Color: "red", Size: "L", Quantity: 4},
		},
	}
	if _, err := s.CreateSale(ctx, sale); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if qty, _ := s.GetVariantQuantity(ctx, variant(SeedDressID, domain.StoreTypeBoutique, "black", "M")); qty != 5 {
		t.Fatalf("expected black/M untouched, got %d", qty)
	}

	sale.Items[1].Quantity = 3
	created, err := s.CreateSale(ctx, sale)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.Items[0].SaleID != created.ID || created.Items[0].ID == "" {
		t.Fatalf("sale items not linked: %+v", created.Items[0])
	}
	if qty, _ := s.GetVariantQuantity(ctx, variant(SeedDressID, domain.StoreTypeBoutique, "red", "L")); qty != 0 {
		t.Fatalf("expected red/L at 0, got %d", qty)
	}
}

func TestCreateReturnGuardedEntryAbortsEverything(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreType: domain.StoreTypeBoutique,
		Items:     []domain.SaleItem{{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	credit := variant(SeedDressID, domain.StoreTypeBoutique, "black", "M")
	debit := variant(SeedDressID, domain.StoreTypeBoutique, "white", "S")
	ret := domain.Return{
		OriginalSaleID: sale.ID,
		StoreType:      domain.StoreTypeBoutique,
		ReturnType:     domain.ReturnTypeExchange,
		Items:          []domain.ReturnItem{{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 1}},
	}
	entries := []domain.LedgerEntry{
		{Variant: credit, Delta: 1},
		{Variant: debit, Delta: -1, Guarded: true},
	}
	if _, err := s.CreateReturn(ctx, ret, entries); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if qty, _ := s.GetVariantQuantity(ctx, credit); qty != 4 {
		t.Fatalf("expected credit not applied, got %d", qty)
	}

	entries[1].Guarded = false
	created, err := s.CreateReturn(ctx, ret, entries)
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if len(created.Adjustments) != 2 || created.Adjustments[1].ResultingQuantity != -1 {
		t.Fatalf("unexpected adjustments: %+v", created.Adjustments)
	}

	returned, _ := s.GetReturnedQuantities(ctx, sale.ID)
	if returned[credit] != 1 {
		t.Fatalf("expected returned quantity 1, got %d", returned[credit])
	}
}

func TestCreateReturnRechecksReturnedQuantity(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreType: domain.StoreTypeBoutique,
		Items:     []domain.SaleItem{{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	key := variant(SeedDressID, domain.StoreTypeBoutique, "black", "M")
	ret := domain.Return{
		OriginalSaleID: sale.ID,
		StoreType:      domain.StoreTypeBoutique,
		ReturnType:     domain.ReturnTypeRefund,
		Items:          []domain.ReturnItem{{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 1}},
	}
	entries := []domain.LedgerEntry{{Variant: key, Delta: 1}}

	if _, err := s.CreateReturn(ctx, ret, entries); err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := s.CreateReturn(ctx, ret, entries); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected the second full return to exceed the sold quantity, got %v", err)
	}
	if qty, _ := s.GetVariantQuantity(ctx, key); qty != 5 {
		t.Fatalf("expected black M back at 5 and no further, got %d", qty)
	}

	ret.Items[0].Color = "red"
	ret.Items[0].Size = "L"
	if _, err := s.CreateReturn(ctx, ret, nil); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected a variant outside the sale to be rejected, got %v", err)
	}
}

func TestUpdateProductAppliesFieldsAndInventoryTogether(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, err := s.GetProduct(ctx, SeedDressID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	renamed := *product
	renamed.CompanyName = "Renamed House"
	foreign := []domain.InventoryRecord{{VariantKey: variant(SeedAbayaID, domain.StoreTypeBoutique, "navy", "S"), Quantity: 1}}
	if _, err := s.UpdateProduct(ctx, renamed, &foreign); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected foreign record to be rejected, got %v", err)
	}
	if stored, _ := s.GetProduct(ctx, SeedDressID); stored.CompanyName != product.CompanyName {
		t.Fatalf("expected company name untouched, got %q", stored.CompanyName)
	}

	replacement := []domain.InventoryRecord{{VariantKey: variant(SeedDressID, domain.StoreTypeOnline, "white", "S"), Quantity: 9}}
	if _, err := s.UpdateProduct(ctx, renamed, &replacement); err != nil {
		t.Fatalf("update product: %v", err)
	}
	if stored, _ := s.GetProduct(ctx, SeedDressID); stored.CompanyName != "Renamed House" {
		t.Fatalf("expected rename saved, got %q", stored.CompanyName)
	}
	records, _ := s.ListInventory(ctx, domain.InventoryFilter{ProductID: SeedDressID})
	if len(records) != 1 || records[0].Quantity != 9 {
		t.Fatalf("expected inventory replaced, got %+v", records)
	}

	renamed.ProductType = "gown"
	if _, err := s.UpdateProduct(ctx, renamed, nil); err != nil {
		t.Fatalf("update fields only: %v", err)
	}
	if records, _ := s.ListInventory(ctx, domain.InventoryFilter{ProductID: SeedDressID}); len(records) != 1 {
		t.Fatalf("expected nil inventory to leave stock alone, got %+v", records)
	}
}

func TestListSalesInclusiveRange(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{-time.Second, 0, time.Second} {
		_, err := s.CreateSale(ctx, domain.Sale{
			StoreType: domain.StoreTypeOnline,
			CreatedAt: at.Add(offset),
			Items:     []domain.SaleItem{{ProductID: SeedDressID, Color: "black", Size: "M", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	sales, err := s.ListSales(ctx, domain.DateRange{From: at, To: at})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || !sales[0].CreatedAt.Equal(at) {
		t.Fatalf("expected exactly the sale on the boundary, got %d", len(sales))
	}
}
