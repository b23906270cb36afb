package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"laroza/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient inventory")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateModelNumber = errors.New("model number already exists")
	// ErrConflict marks a write that lost to a concurrent one and may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

// InsufficientInventoryError names the variant that could not cover a debit.
type InsufficientInventoryError struct {
	Variant   domain.VariantKey
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s %s. Available: %d, Requested: %d", e.Variant.Color, e.Variant.Size, e.Available, e.Requested)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError carries per-field messages keyed by json field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field string, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, inventory []domain.InventoryRecord) (*domain.Product, error)
	// UpdateProduct saves the product fields and, when inventory is non-nil,
	// replaces the product's inventory with it. Both apply or neither does.
	UpdateProduct(ctx context.Context, product domain.Product, inventory *[]domain.InventoryRecord) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	GetVariantQuantity(ctx context.Context, key domain.VariantKey) (int, error)
	SetVariantQuantity(ctx context.Context, key domain.VariantKey, qty int) error
	IncrementVariant(ctx context.Context, key domain.VariantKey, delta int) (int, error)
	DecrementVariant(ctx context.Context, key domain.VariantKey, delta int) (int, error)
	DeleteInventoryForProduct(ctx context.Context, productID string) error
	ReplaceInventory(ctx context.Context, productID string, records []domain.InventoryRecord) error
	ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, rng domain.DateRange) ([]domain.Sale, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Sale, error)

	CreateReturn(ctx context.Context, ret domain.Return, entries []domain.LedgerEntry) (*domain.Return, error)
	GetReturn(ctx context.Context, id string) (*domain.Return, error)
	ListReturns(ctx context.Context, rng domain.DateRange) ([]domain.Return, error)
	GetReturnedQuantities(ctx context.Context, saleID string) (map[domain.VariantKey]int, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, rng domain.DateRange) ([]domain.Purchase, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, rng domain.DateRange, limit int) ([]domain.AuditLog, error)
}

// CheckReturnCap fails when items would take back more of a variant than the
// sale sold, counting what earlier returns already took back.
func CheckReturnCap(sale domain.Sale, returned map[domain.VariantKey]int, items []domain.ReturnItem) error {
	sold := make(map[domain.VariantKey]int, len(sale.Items))
	for _, item := range sale.Items {
		sold[item.Variant(sale.StoreType)] += item.Quantity
	}
	requested := make(map[domain.VariantKey]int, len(items))
	for i, item := range items {
		key := domain.VariantKey{ProductID: item.ProductID, StoreType: sale.StoreType, Color: item.Color, Size: item.Size}
		requested[key] += item.Quantity
		if returned[key]+requested[key] > sold[key] {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("only %d left to return", max(sold[key]-returned[key], 0)))
		}
	}
	return nil
}
