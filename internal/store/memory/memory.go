package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
	"laroza/backend/internal/xid"
)

// Seed product ids, stable so demos and tests can address them.
const (
	SeedDressID = "prod-seed-dress"
	SeedAbayaID = "prod-seed-abaya"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	modelNumbers map[string]string
	inventory    map[domain.VariantKey]int
	salesByID    map[string]domain.Sale
	invoices     map[string]string
	returnsByID  map[string]domain.Return
	expenses     []domain.Expense
	purchases    []domain.Purchase
	auditLogs    []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		modelNumbers: make(map[string]string),
		inventory:    make(map[domain.VariantKey]int),
		salesByID:    make(map[string]domain.Sale),
		invoices:     make(map[string]string),
		returnsByID:  make(map[string]domain.Return),
		expenses:     make([]domain.Expense, 0, 32),
		purchases:    make([]domain.Purchase, 0, 32),
		auditLogs:    make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store holding two products with variants in both
// partitions.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []struct {
		product domain.Product
		stock   []domain.InventoryRecord
	}{
		{
			product: domain.Product{
				ID:             SeedDressID,
				ModelNumber:    "LRZ-DR-1001",
				CompanyName:    "Laroza Atelier",
				ProductType:    "dress",
				StorePrice:     decimal.NewFromInt(200),
				OnlinePrice:    decimal.NewFromInt(220),
				Specifications: "Chiffon, fully lined",
				CreatedAt:      now.Add(-2 * time.Hour),
			},
			stock: []domain.InventoryRecord{
				record(SeedDressID, domain.StoreTypeBoutique, "black", "M", 5),
				record(SeedDressID, domain.StoreTypeBoutique, "red", "L", 3),
				record(SeedDressID, domain.StoreTypeOnline, "black", "M", 12),
				record(SeedDressID, domain.StoreTypeOnline, "red", "L", 0),
			},
		},
		{
			product: domain.Product{
				ID:          SeedAbayaID,
				ModelNumber: "LRZ-AB-2001",
				CompanyName: "Noor House",
				ProductType: "abaya",
				StorePrice:  decimal.RequireFromString("350.50"),
				OnlinePrice: decimal.RequireFromString("365.00"),
				CreatedAt:   now.Add(-time.Hour),
			},
			stock: []domain.InventoryRecord{
				record(SeedAbayaID, domain.StoreTypeBoutique, "navy", "S", 8),
				record(SeedAbayaID, domain.StoreTypeBoutique, "navy", "M", 6),
				record(SeedAbayaID, domain.StoreTypeOnline, "navy", "M", 4),
			},
		},
	}

	for _, item := range seed {
		s.products[item.product.ID] = item.product
		s.modelNumbers[item.product.ModelNumber] = item.product.ID
		for _, rec := range item.stock {
			s.inventory[rec.VariantKey] = rec.Quantity
		}
	}
	return s
}

func record(productID string, storeType string, color string, size string, qty int) domain.InventoryRecord {
	return domain.InventoryRecord{
		VariantKey: domain.VariantKey{ProductID: productID, StoreType: storeType, Color: color, Size: size},
		Quantity:   qty,
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ModelNumber, b.ModelNumber)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, inventory []domain.InventoryRecord) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ModelNumber == "" {
		return nil, store.NewValidationError("model_number", "is required")
	}
	if _, exists := s.modelNumbers[product.ModelNumber]; exists {
		return nil, store.ErrDuplicateModelNumber
	}
	for _, rec := range inventory {
		if rec.Quantity < 0 {
			return nil, store.NewValidationError("quantity", "must be 0 or greater")
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.products[product.ID] = product
	s.modelNumbers[product.ModelNumber] = product.ID
	for _, rec := range inventory {
		rec.ProductID = product.ID
		s.inventory[rec.VariantKey] = rec.Quantity
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, inventory *[]domain.InventoryRecord) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if owner, taken := s.modelNumbers[product.ModelNumber]; taken && owner != product.ID {
		return nil, store.ErrDuplicateModelNumber
	}

	if inventory != nil {
		for _, rec := range *inventory {
			if rec.ProductID != product.ID {
				return nil, store.NewValidationError("inventory", "record belongs to another product")
			}
		}
	}

	product.CreatedAt = existing.CreatedAt
	delete(s.modelNumbers, existing.ModelNumber)
	s.modelNumbers[product.ModelNumber] = product.ID
	s.products[product.ID] = product
	if inventory != nil {
		s.replaceInventory(product.ID, *inventory)
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	for key := range s.inventory {
		if key.ProductID == id {
			delete(s.inventory, key)
		}
	}
	delete(s.modelNumbers, product.ModelNumber)
	delete(s.products, id)
	return nil
}

func (s *Store) GetVariantQuantity(_ context.Context, key domain.VariantKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inventory[key], nil
}

func (s *Store) SetVariantQuantity(_ context.Context, key domain.VariantKey, qty int) error {
	if qty < 0 {
		return store.NewValidationError("quantity", "must be 0 or greater")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inventory[key] = qty
	return nil
}

func (s *Store) IncrementVariant(_ context.Context, key domain.VariantKey, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inventory[key] += delta
	return s.inventory[key], nil
}

func (s *Store) DecrementVariant(_ context.Context, key domain.VariantKey, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.inventory[key]
	if current < delta {
		return current, &store.InsufficientInventoryError{Variant: key, Available: current, Requested: delta}
	}
	s.inventory[key] = current - delta
	return s.inventory[key], nil
}

func (s *Store) DeleteInventoryForProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.inventory {
		if key.ProductID == productID {
			delete(s.inventory, key)
		}
	}
	return nil
}

func (s *Store) ReplaceInventory(_ context.Context, productID string, records []domain.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return store.ErrNotFound
	}
	s.replaceInventory(productID, records)
	return nil
}

// replaceInventory expects s.mu to be held for writing.
func (s *Store) replaceInventory(productID string, records []domain.InventoryRecord) {
	for key := range s.inventory {
		if key.ProductID == productID {
			delete(s.inventory, key)
		}
	}
	for _, rec := range records {
		s.inventory[rec.VariantKey] = rec.Quantity
	}
}

func (s *Store) ListInventory(_ context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.InventoryRecord, 0, len(s.inventory))
	for key, qty := range s.inventory {
		if filter.ProductID != "" && key.ProductID != filter.ProductID {
			continue
		}
		if filter.StoreType != "" && key.StoreType != filter.StoreType {
			continue
		}
		records = append(records, domain.InventoryRecord{VariantKey: key, Quantity: qty})
	}
	sortRecords(records)
	return records, nil
}

// CreateSale debits every item and stores the sale in one critical section.
// Stock is re-checked here so a sale never drives a variant negative.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.NewValidationError("items", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if _, taken := s.invoices[sale.InvoiceNumber]; taken || sale.InvoiceNumber == "" {
		sale.InvoiceNumber = xid.Invoice(sale.CreatedAt)
	}

	demand := make(map[domain.VariantKey]int, len(sale.Items))
	order := make([]domain.VariantKey, 0, len(sale.Items))
	for _, item := range sale.Items {
		key := item.Variant(sale.StoreType)
		if _, seen := demand[key]; !seen {
			order = append(order, key)
		}
		demand[key] += item.Quantity
	}
	for _, key := range order {
		if available := s.inventory[key]; available < demand[key] {
			return nil, &store.InsufficientInventoryError{Variant: key, Available: available, Requested: demand[key]}
		}
	}
	for _, key := range order {
		s.inventory[key] -= demand[key]
	}

	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("si")
		}
		item.SaleID = sale.ID
		items[i] = item
	}
	sale.Items = items

	s.salesByID[sale.ID] = cloneSale(sale)
	s.invoices[sale.InvoiceNumber] = sale.ID
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, rng domain.DateRange) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !rng.Contains(sale.CreatedAt) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.OrderStatus = status
	s.salesByID[id] = sale
	updated := cloneSale(sale)
	return &updated, nil
}

// CreateReturn applies entries in order and stores the return atomically.
// A guarded entry that would leave its variant negative aborts the whole
// return before anything is written.
func (s *Store) CreateReturn(_ context.Context, ret domain.Return, entries []domain.LedgerEntry) (*domain.Return, error) {
	if len(ret.Items) == 0 {
		return nil, store.NewValidationError("items", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[ret.OriginalSaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := store.CheckReturnCap(sale, s.returnedQuantities(sale.ID), ret.Items); err != nil {
		return nil, err
	}

	next := make(map[domain.VariantKey]int, len(entries))
	adjustments := make([]domain.StockAdjustment, 0, len(entries))
	for _, entry := range entries {
		current, ok := next[entry.Variant]
		if !ok {
			current = s.inventory[entry.Variant]
		}
		result := current + entry.Delta
		if entry.Guarded && entry.Delta < 0 && result < 0 {
			return nil, &store.InsufficientInventoryError{Variant: entry.Variant, Available: current, Requested: -entry.Delta}
		}
		next[entry.Variant] = result
		adjustments = append(adjustments, domain.StockAdjustment{
			VariantKey:        entry.Variant,
			Delta:             entry.Delta,
			ResultingQuantity: result,
		})
	}
	for key, qty := range next {
		s.inventory[key] = qty
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.ReturnItem, len(ret.Items))
	for i, item := range ret.Items {
		if item.ID == "" {
			item.ID = xid.New("ri")
		}
		item.ReturnID = ret.ID
		items[i] = item
	}
	ret.Items = items
	ret.Adjustments = adjustments

	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) GetReturn(_ context.Context, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returnsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneReturn(ret)
	return &found, nil
}

func (s *Store) ListReturns(_ context.Context, rng domain.DateRange) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returnsByID))
	for _, ret := range s.returnsByID {
		if !rng.Contains(ret.CreatedAt) {
			continue
		}
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetReturnedQuantities(_ context.Context, saleID string) (map[domain.VariantKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQuantities(saleID), nil
}

// returnedQuantities expects s.mu to be held.
func (s *Store) returnedQuantities(saleID string) map[domain.VariantKey]int {
	result := make(map[domain.VariantKey]int)
	for _, ret := range s.returnsByID {
		if ret.OriginalSaleID != saleID {
			continue
		}
		for _, item := range ret.Items {
			key := domain.VariantKey{ProductID: item.ProductID, StoreType: ret.StoreType, Color: item.Color, Size: item.Size}
			result[key] += item.Quantity
		}
	}
	return result
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	s.expenses = append(s.expenses, expense)
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if rng.Contains(expense.Date) {
			result = append(result, expense)
		}
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return b.Date.Compare(a.Date)
	})
	return result, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}
	s.purchases = append(s.purchases, purchase)
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, rng domain.DateRange) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		if rng.Contains(purchase.Date) {
			result = append(result, purchase)
		}
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		return b.Date.Compare(a.Date)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, rng domain.DateRange, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if rng.Contains(entry.CreatedAt) {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortRecords(records []domain.InventoryRecord) {
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

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func cloneReturn(src domain.Return) domain.Return {
	dst := src
	dst.Items = slices.Clone(src.Items)
	dst.Adjustments = slices.Clone(src.Adjustments)
	return dst
}
