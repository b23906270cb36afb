package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/store"
)

// ListProductsWithStatus annotates every product with the variants of the
// selected partition (both when storeType is empty), their total and the
// derived stock status.
func (s *Service) ListProductsWithStatus(ctx context.Context, storeType string) ([]domain.ProductWithInventory, error) {
	storeType = strings.TrimSpace(storeType)
	if storeType != "" && !slices.Contains(domain.StoreTypes, storeType) {
		return nil, store.NewValidationError("store_type", "must be one of: online, boutique")
	}

	if cached, hit, err := s.cache.Get(ctx, storeType); err != nil {
		s.log.Warn(ctx, "product cache read failed", err)
	} else if hit {
		return cached, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.Records(ctx, domain.InventoryFilter{StoreType: storeType})
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string][]domain.InventoryRecord, len(products))
	for _, rec := range records {
		byProduct[rec.ProductID] = append(byProduct[rec.ProductID], rec)
	}
	result := make([]domain.ProductWithInventory, 0, len(products))
	for _, p := range products {
		result = append(result, inventory.Summarize(p, byProduct[p.ID]))
	}

	if err := s.cache.Set(ctx, storeType, result, s.opts.CacheTTL); err != nil {
		s.log.Warn(ctx, "product cache write failed", err)
	}
	return result, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductWithInventory, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductWithInventory{}, err
	}
	records, err := s.ledger.Records(ctx, domain.InventoryFilter{ProductID: product.ID})
	if err != nil {
		return domain.ProductWithInventory{}, err
	}
	return inventory.Summarize(*product, records), nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.ProductWithInventory, error) {
	req.ModelNumber = strings.TrimSpace(req.ModelNumber)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.ProductType = strings.TrimSpace(req.ProductType)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.Specifications = strings.TrimSpace(req.Specifications)
	if err := validateStruct(req); err != nil {
		return domain.ProductWithInventory{}, err
	}

	records, err := inventoryRecords("", req.Inventory)
	if err != nil {
		return domain.ProductWithInventory{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ModelNumber:    req.ModelNumber,
		CompanyName:    req.CompanyName,
		ProductType:    req.ProductType,
		StorePrice:     req.StorePrice.Round(2),
		OnlinePrice:    req.OnlinePrice.Round(2),
		ImageURL:       req.ImageURL,
		Specifications: req.Specifications,
		CreatedAt:      s.now(),
	}, records)
	if err != nil {
		return domain.ProductWithInventory{}, err
	}

	s.invalidateProducts(ctx)
	s.logAudit(ctx, "", "product_create", "product", created.ID, fmt.Sprintf("model=%s,variants=%d", created.ModelNumber, len(records)))
	return s.GetProduct(ctx, created.ID)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.ProductWithInventory, error) {
	if err := validateStruct(req); err != nil {
		return domain.ProductWithInventory{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductWithInventory{}, err
	}

	updated := *existing
	changes := make([]string, 0, 8)
	if req.ModelNumber != nil {
		updated.ModelNumber = strings.TrimSpace(*req.ModelNumber)
		changes = append(changes, "model_number")
	}
	if req.CompanyName != nil {
		updated.CompanyName = strings.TrimSpace(*req.CompanyName)
		changes = append(changes, "company_name")
	}
	if req.ProductType != nil {
		updated.ProductType = strings.TrimSpace(*req.ProductType)
		changes = append(changes, "product_type")
	}
	if req.StorePrice != nil {
		updated.StorePrice = req.StorePrice.Round(2)
		changes = append(changes, "store_price")
	}
	if req.OnlinePrice != nil {
		updated.OnlinePrice = req.OnlinePrice.Round(2)
		changes = append(changes, "online_price")
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
		changes = append(changes, "image_url")
	}
	if req.Specifications != nil {
		updated.Specifications = strings.TrimSpace(*req.Specifications)
		changes = append(changes, "specifications")
	}
	if updated.ModelNumber == "" || updated.CompanyName == "" {
		return domain.ProductWithInventory{}, store.NewValidationError("model_number", "must not be blank")
	}

	var replacement *[]domain.InventoryRecord
	var newKeys []domain.VariantKey
	if req.Inventory != nil {
		records, err := inventoryRecords(existing.ID, *req.Inventory)
		if err != nil {
			return domain.ProductWithInventory{}, err
		}
		if err := inventory.ValidateRecords(existing.ID, records); err != nil {
			return domain.ProductWithInventory{}, err
		}
		for _, rec := range records {
			newKeys = append(newKeys, rec.VariantKey)
		}
		replacement = &records
		changes = append(changes, "inventory")
	}

	// Fields and inventory are written in one repository call, under the
	// locks of every affected variant.
	if replacement != nil {
		unlock, err := s.ledger.LockProduct(ctx, existing.ID, newKeys...)
		if err != nil {
			return domain.ProductWithInventory{}, err
		}
		defer unlock()
	}
	if _, err := s.repo.UpdateProduct(ctx, updated, replacement); err != nil {
		return domain.ProductWithInventory{}, err
	}

	s.invalidateProducts(ctx)
	s.logAudit(ctx, "", "product_update", "product", existing.ID, "fields="+strings.Join(changes, ","))
	return s.GetProduct(ctx, existing.ID)
}

// DeleteProduct clears the product's inventory before removing it. Sale and
// return history keeps the product id.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if err := s.ledger.DeleteAllForProduct(ctx, product.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, product.ID); err != nil {
		return err
	}

	s.invalidateProducts(ctx)
	s.logAudit(ctx, "", "product_delete", "product", product.ID, "model="+product.ModelNumber)
	return nil
}

// inventoryRecords converts request rows into ledger records, rejecting a
// variant listed twice.
func inventoryRecords(productID string, inputs []domain.InventoryInput) ([]domain.InventoryRecord, error) {
	seen := make(map[domain.VariantKey]struct{}, len(inputs))
	records := make([]domain.InventoryRecord, 0, len(inputs))
	for i, in := range inputs {
		key := domain.VariantKey{
			ProductID: productID,
			StoreType: strings.TrimSpace(in.StoreType),
			Color:     strings.TrimSpace(in.Color),
			Size:      strings.TrimSpace(in.Size),
		}
		if key.Color == "" || key.Size == "" {
			return nil, store.NewValidationError(fmt.Sprintf("inventory[%d]", i), "color and size are required")
		}
		if _, dup := seen[key]; dup {
			return nil, store.NewValidationError(fmt.Sprintf("inventory[%d]", i), "duplicate variant")
		}
		seen[key] = struct{}{}
		records = append(records, domain.InventoryRecord{VariantKey: key, Quantity: in.Quantity})
	}
	return records, nil
}
