package inventory_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/store"
	"laroza/backend/internal/store/memory"
)

func key(color string, size string) domain.VariantKey {
	return domain.VariantKey{ProductID: memory.SeedDressID, StoreType: domain.StoreTypeBoutique, Color: color, Size: size}
}

func TestLedgerSufficiencyGate(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewLedger(memory.NewSeeded(), inventory.NewLocalLocker(0))

	q, err := ledger.Quantity(ctx, key("black", "M"))
	require.NoError(t, err)

	_, err = ledger.Decrement(ctx, key("black", "M"), q+1)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	after, _ := ledger.Quantity(ctx, key("black", "M"))
	require.Equal(t, q, after)

	left, err := ledger.Decrement(ctx, key("black", "M"), q)
	require.NoError(t, err)
	require.Zero(t, left)
}

func TestLedgerRejectsNonPositiveDelta(t *testing.T) {
	ledger := inventory.NewLedger(memory.NewSeeded(), nil)

	_, err := ledger.Increment(context.Background(), key("black", "M"), 0)
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = ledger.Decrement(context.Background(), key("black", "M"), -1)
	require.ErrorIs(t, err, store.ErrValidation)
	require.ErrorIs(t, ledger.Set(context.Background(), key("black", "M"), -3), store.ErrValidation)
}

func TestLedgerCheckAvailabilityAggregatesDemand(t *testing.T) {
	ledger := inventory.NewLedger(memory.NewSeeded(), nil)

	err := ledger.CheckAvailability(context.Background(), []inventory.Demand{
		{Variant: key("red", "L"), Quantity: 2},
		{Variant: key("red", "L"), Quantity: 2},
	})
	var insufficient *store.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 3, insufficient.Available)
	require.Equal(t, 4, insufficient.Requested)
	require.Contains(t, err.Error(), "red L")
}

func TestLedgerReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewLedger(memory.NewSeeded(), nil)

	err := ledger.Replace(ctx, memory.SeedDressID, []domain.InventoryRecord{
		{VariantKey: key("white", "S"), Quantity: 7},
	})
	require.NoError(t, err)

	records, err := ledger.Records(ctx, domain.InventoryFilter{ProductID: memory.SeedDressID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 7, records[0].Quantity)

	require.NoError(t, ledger.DeleteAllForProduct(ctx, memory.SeedDressID))
	records, err = ledger.Records(ctx, domain.InventoryFilter{ProductID: memory.SeedDressID})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestLedgerConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewLedger(memory.NewSeeded(), inventory.NewLocalLocker(0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Decrement(ctx, key("black", "M"), 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, succeeded)
	qty, _ := ledger.Quantity(ctx, key("black", "M"))
	require.Zero(t, qty)
}

type recordingLocker struct {
	inventory.Locker
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingLocker) Lock(ctx context.Context, keys []string) (inventory.Unlock, error) {
	r.mu.Lock()
	r.calls = append(r.calls, slices.Clone(keys))
	r.mu.Unlock()
	return r.Locker.Lock(ctx, keys)
}

// appearingVariantStore adds a variant right after the first inventory
// listing, as a concurrent Increment on a new key would.
type appearingVariantStore struct {
	*memory.Store
	once    sync.Once
	variant domain.VariantKey
}

func (s *appearingVariantStore) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	records, err := s.Store.ListInventory(ctx, filter)
	s.once.Do(func() {
		_ = s.Store.SetVariantQuantity(ctx, s.variant, 2)
	})
	return records, err
}

func TestLedgerDeleteAllLocksVariantsCreatedMeanwhile(t *testing.T) {
	ctx := context.Background()
	late := key("green", "XL")
	st := &appearingVariantStore{Store: memory.NewSeeded(), variant: late}
	locker := &recordingLocker{Locker: inventory.NewLocalLocker(0)}
	ledger := inventory.NewLedger(st, locker)

	if err := ledger.DeleteAllForProduct(ctx, memory.SeedDressID); err != nil {
		t.Fatalf("DeleteAllForProduct returned error: %v", err)
	}

	if len(locker.calls) != 2 {
		t.Fatalf("expected the locks to be retaken once, got %d lock calls", len(locker.calls))
	}
	if slices.Contains(locker.calls[0], late.String()) {
		t.Fatalf("first lock call should predate the new variant: %v", locker.calls[0])
	}
	if !slices.Contains(locker.calls[1], late.String()) {
		t.Fatalf("expected %s to be locked before deletion, got %v", late, locker.calls[1])
	}
	records, err := ledger.Records(ctx, domain.InventoryFilter{ProductID: memory.SeedDressID})
	if err != nil {
		t.Fatalf("Records returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected every variant deleted, got %v", records)
	}
}

func TestLedgerLockProductCoversNewKeys(t *testing.T) {
	ctx := context.Background()
	locker := inventory.NewLocalLocker(50 * time.Millisecond)
	ledger := inventory.NewLedger(memory.NewSeeded(), locker)

	unlock, err := ledger.LockProduct(ctx, memory.SeedDressID, key("white", "S"))
	if err != nil {
		t.Fatalf("LockProduct returned error: %v", err)
	}
	defer unlock()

	for _, held := range []domain.VariantKey{key("black", "M"), key("white", "S")} {
		if _, err := ledger.Increment(ctx, held, 1); !errors.Is(err, inventory.ErrLockBusy) {
			t.Fatalf("expected %s to be locked, got %v", held, err)
		}
	}
}
