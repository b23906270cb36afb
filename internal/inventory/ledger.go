package inventory

import (
	"context"
	"fmt"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

// Store is the slice of the repository the ledger mutates.
type Store interface {
	GetVariantQuantity(ctx context.Context, key domain.VariantKey) (int, error)
	SetVariantQuantity(ctx context.Context, key domain.VariantKey, qty int) error
	IncrementVariant(ctx context.Context, key domain.VariantKey, delta int) (int, error)
	DecrementVariant(ctx context.Context, key domain.VariantKey, delta int) (int, error)
	DeleteInventoryForProduct(ctx context.Context, productID string) error
	ReplaceInventory(ctx context.Context, productID string, records []domain.InventoryRecord) error
	ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error)
}

// Demand is the quantity a caller wants to debit from one variant.
type Demand struct {
	Variant  domain.VariantKey
	Quantity int
}

// Ledger is the only way stock counters change. Every mutation holds the
// per-key lock of the variants it touches. Locks are not reentrant, so the
// mutating methods must not be called while holding a lock from Lock.
type Ledger struct {
	store  Store
	locker Locker
}

func NewLedger(st Store, locker Locker) *Ledger {
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	return &Ledger{store: st, locker: locker}
}

// Lock takes the per-key locks for a multi-step operation such as a sale
// commit.
func (l *Ledger) Lock(ctx context.Context, keys ...domain.VariantKey) (Unlock, error) {
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.String())
	}
	return l.locker.Lock(ctx, names)
}

func (l *Ledger) Quantity(ctx context.Context, key domain.VariantKey) (int, error) {
	return l.store.GetVariantQuantity(ctx, key)
}

func (l *Ledger) Records(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	return l.store.ListInventory(ctx, filter)
}

func (l *Ledger) Set(ctx context.Context, key domain.VariantKey, qty int) error {
	if qty < 0 {
		return store.NewValidationError("quantity", "must be 0 or greater")
	}
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	return l.store.SetVariantQuantity(ctx, key, qty)
}

func (l *Ledger) Increment(ctx context.Context, key domain.VariantKey, delta int) (int, error) {
	if delta <= 0 {
		return 0, store.NewValidationError("delta", "must be greater than 0")
	}
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return l.store.IncrementVariant(ctx, key, delta)
}

func (l *Ledger) Decrement(ctx context.Context, key domain.VariantKey, delta int) (int, error) {
	if delta <= 0 {
		return 0, store.NewValidationError("delta", "must be greater than 0")
	}
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return l.store.DecrementVariant(ctx, key, delta)
}

// lockProductAttempts bounds how often LockProduct relists when variants of
// the product keep appearing while it waits for locks.
const lockProductAttempts = 3

// LockProduct locks every variant the product holds plus extra. The product's
// inventory is listed again once the locks are held, and the locks are retaken
// if a variant appeared in between.
func (l *Ledger) LockProduct(ctx context.Context, productID string, extra ...domain.VariantKey) (Unlock, error) {
	existing, err := l.store.ListInventory(ctx, domain.InventoryFilter{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	for range lockProductAttempts {
		keys := append(recordKeys(existing), extra...)
		unlock, err := l.Lock(ctx, keys...)
		if err != nil {
			return nil, err
		}
		current, err := l.store.ListInventory(ctx, domain.InventoryFilter{ProductID: productID})
		if err != nil {
			unlock()
			return nil, fmt.Errorf("list inventory: %w", err)
		}
		if coversRecords(keys, current) {
			return unlock, nil
		}
		unlock()
		existing = current
	}
	return nil, fmt.Errorf("%w: inventory of product %s keeps changing", ErrLockBusy, productID)
}

func (l *Ledger) DeleteAllForProduct(ctx context.Context, productID string) error {
	unlock, err := l.LockProduct(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	return l.store.DeleteInventoryForProduct(ctx, productID)
}

// Replace swaps the product's whole inventory for records.
func (l *Ledger) Replace(ctx context.Context, productID string, records []domain.InventoryRecord) error {
	if err := ValidateRecords(productID, records); err != nil {
		return err
	}
	unlock, err := l.LockProduct(ctx, productID, recordKeys(records)...)
	if err != nil {
		return err
	}
	defer unlock()

	return l.store.ReplaceInventory(ctx, productID, records)
}

// ValidateRecords checks a full replacement inventory for one product.
func ValidateRecords(productID string, records []domain.InventoryRecord) error {
	for _, rec := range records {
		if rec.ProductID != productID {
			return store.NewValidationError("inventory", "record belongs to another product")
		}
		if rec.Quantity < 0 {
			return store.NewValidationError("quantity", "must be 0 or greater")
		}
	}
	return nil
}

// CheckAvailability is the sale pre-check. Callers hold the locks of every
// demanded variant so the answer stays true until they commit.
func (l *Ledger) CheckAvailability(ctx context.Context, demands []Demand) error {
	for _, d := range Aggregate(demands) {
		available, err := l.store.GetVariantQuantity(ctx, d.Variant)
		if err != nil {
			return fmt.Errorf("read %s: %w", d.Variant, err)
		}
		if available < d.Quantity {
			return &store.InsufficientInventoryError{
				Variant:   d.Variant,
				Available: available,
				Requested: d.Quantity,
			}
		}
	}
	return nil
}

// Aggregate merges demands on the same variant, keeping first-seen order.
func Aggregate(demands []Demand) []Demand {
	index := make(map[domain.VariantKey]int, len(demands))
	out := make([]Demand, 0, len(demands))
	for _, d := range demands {
		if i, ok := index[d.Variant]; ok {
			out[i].Quantity += d.Quantity
			continue
		}
		index[d.Variant] = len(out)
		out = append(out, d)
	}
	return out
}

func coversRecords(keys []domain.VariantKey, records []domain.InventoryRecord) bool {
	locked := make(map[domain.VariantKey]struct{}, len(keys))
	for _, key := range keys {
		locked[key] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := locked[rec.VariantKey]; !ok {
			return false
		}
	}
	return true
}

func recordKeys(records []domain.InventoryRecord) []domain.VariantKey {
	keys := make([]domain.VariantKey, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.VariantKey)
	}
	return keys
}
