package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

func (s *Service) ListInventory(ctx context.Context, productID string, storeType string) ([]domain.InventoryRecord, error) {
	storeType = strings.TrimSpace(storeType)
	if storeType != "" && !slices.Contains(domain.StoreTypes, storeType) {
		return nil, store.NewValidationError("store_type", "must be one of: online, boutique")
	}
	return s.ledger.Records(ctx, domain.InventoryFilter{ProductID: strings.TrimSpace(productID), StoreType: storeType})
}

// SetInventory upserts absolute quantities for the given variants.
func (s *Service) SetInventory(ctx context.Context, req domain.InventorySetRequest) ([]domain.InventoryRecord, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Records))
	for _, rec := range req.Records {
		ids = append(ids, strings.TrimSpace(rec.ProductID))
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := make([]domain.InventoryRecord, 0, len(req.Records))
	for i, in := range req.Records {
		key := domain.VariantKey{
			ProductID: strings.TrimSpace(in.ProductID),
			StoreType: in.StoreType,
			Color:     strings.TrimSpace(in.Color),
			Size:      strings.TrimSpace(in.Size),
		}
		if _, ok := products[key.ProductID]; !ok {
			return nil, fmt.Errorf("records[%d] product %s: %w", i, key.ProductID, store.ErrNotFound)
		}
		records = append(records, domain.InventoryRecord{VariantKey: key, Quantity: in.Quantity})
	}

	for _, rec := range records {
		if err := s.ledger.Set(ctx, rec.VariantKey, rec.Quantity); err != nil {
			return nil, err
		}
		s.logAudit(ctx, rec.StoreType, "inventory_set", "variant", rec.VariantKey.String(), fmt.Sprintf("quantity=%d", rec.Quantity))
	}

	s.invalidateProducts(ctx)
	return records, nil
}

// AdjustInventory credits a positive delta and debits a negative one. Debits
// never drive a variant below zero.
func (s *Service) AdjustInventory(ctx context.Context, req domain.InventoryAdjustRequest) (domain.StockAdjustment, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Color = strings.TrimSpace(req.Color)
	req.Size = strings.TrimSpace(req.Size)
	if err := validateStruct(req); err != nil {
		return domain.StockAdjustment{}, err
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.StockAdjustment{}, err
	}

	key := domain.VariantKey{ProductID: req.ProductID, StoreType: req.StoreType, Color: req.Color, Size: req.Size}
	var result int
	var err error
	if req.Delta > 0 {
		result, err = s.ledger.Increment(ctx, key, req.Delta)
	} else {
		result, err = s.ledger.Decrement(ctx, key, -req.Delta)
	}
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	s.invalidateProducts(ctx)
	s.logAudit(ctx, key.StoreType, "inventory_adjust", "variant", key.String(), fmt.Sprintf("delta=%d,result=%d,reason=%s", req.Delta, result, strings.TrimSpace(req.Reason)))
	return domain.StockAdjustment{VariantKey: key, Delta: req.Delta, ResultingQuantity: result}, nil
}
