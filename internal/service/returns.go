package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
	"laroza/backend/internal/xid"
)

// CreateReturn reconciles stock for a refund or exchange against the
// original sale's partition. Each item credits its original variant first;
// an exchange then debits the replacement variant. Replacement debits are
// permissive unless strict mode is on and no manager override was given.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	req.OriginalSaleID = strings.TrimSpace(req.OriginalSaleID)
	req.ReturnType = strings.TrimSpace(req.ReturnType)
	req.ExchangeType = strings.TrimSpace(req.ExchangeType)
	req.NewProductID = strings.TrimSpace(req.NewProductID)
	req.NewColor = strings.TrimSpace(req.NewColor)
	req.NewSize = strings.TrimSpace(req.NewSize)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validateStruct(req); err != nil {
		return domain.Return{}, err
	}

	sale, err := s.repo.GetSale(ctx, req.OriginalSaleID)
	if err != nil {
		return domain.Return{}, err
	}

	if err := s.checkExchangeFields(ctx, req); err != nil {
		return domain.Return{}, err
	}

	guarded := s.opts.StrictExchange
	override := false
	if req.ReturnType == domain.ReturnTypeExchange && strings.TrimSpace(req.ManagerPIN) != "" {
		if err := s.verifyManagerPIN(req.ManagerPIN); err != nil {
			s.logAudit(ctx, sale.StoreType, "exchange_override_denied", "sale", sale.ID, "")
			return domain.Return{}, err
		}
		guarded = false
		override = true
	}

	// Returned quantities are read and capped under the same locks as the
	// stock movement.
	unlock, err := s.ledger.Lock(ctx, returnKeys(sale.StoreType, req)...)
	if err != nil {
		return domain.Return{}, err
	}
	defer unlock()

	items, returnedValue, err := s.matchReturnItems(ctx, *sale, req.Items)
	if err != nil {
		return domain.Return{}, err
	}

	refund, err := refundAmount(*sale, req, returnedValue)
	if err != nil {
		return domain.Return{}, err
	}

	entries := ledgerEntries(sale.StoreType, req, items, guarded)

	actor, _ := ActorFromContext(ctx)
	processedBy := actor.Employee
	if processedBy == "" {
		processedBy = "system"
	}

	ret := domain.Return{
		ID:             xid.New("ret"),
		OriginalSaleID: sale.ID,
		StoreType:      sale.StoreType,
		ReturnType:     req.ReturnType,
		ExchangeType:   req.ExchangeType,
		NewProductID:   req.NewProductID,
		NewColor:       req.NewColor,
		NewSize:        req.NewSize,
		RefundAmount:   refund,
		Reason:         req.Reason,
		ProcessedBy:    processedBy,
		CreatedAt:      s.now(),
		Items:          items,
	}
	created, err := s.repo.CreateReturn(ctx, ret, entries)
	if err != nil {
		return domain.Return{}, err
	}
	unlock()

	for _, adj := range created.Adjustments {
		if adj.ResultingQuantity < 0 {
			warnCtx := s.log.WithFields(ctx, map[string]any{
				"return_id": created.ID,
				"variant":   adj.VariantKey.String(),
				"quantity":  adj.ResultingQuantity,
			})
			s.log.Warn(warnCtx, "exchange left variant below zero", nil)
		}
	}

	s.invalidateProducts(ctx)
	detail := fmt.Sprintf("sale=%s,type=%s,exchange=%s,refund=%s,items=%d", sale.ID, created.ReturnType, created.ExchangeType, created.RefundAmount.StringFixed(2), len(created.Items))
	if override {
		detail += ",override=manager"
	}
	s.logAudit(ctx, sale.StoreType, "return_create", "return", created.ID, detail)
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	ret, err := s.repo.GetReturn(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, rng domain.DateRange) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx, rng)
}

func (s *Service) checkExchangeFields(ctx context.Context, req domain.ReturnCreateRequest) error {
	if req.ReturnType == domain.ReturnTypeRefund {
		if req.ExchangeType != "" || req.NewProductID != "" || req.NewColor != "" || req.NewSize != "" {
			return store.NewValidationError("exchange_type", "exchange fields are only allowed for exchanges")
		}
		return nil
	}

	if req.RefundAmount != nil && !req.RefundAmount.IsZero() {
		return store.NewValidationError("refund_amount", "must be zero for exchanges")
	}

	switch req.ExchangeType {
	case domain.ExchangeTypeProductToProduct:
		fields := map[string]string{}
		if req.NewProductID == "" {
			fields["new_product_id"] = "is required"
		}
		if req.NewColor == "" {
			fields["new_color"] = "is required"
		}
		if req.NewSize == "" {
			fields["new_size"] = "is required"
		}
		if len(fields) > 0 {
			return &store.ValidationError{Fields: fields}
		}
		if _, err := s.repo.GetProduct(ctx, req.NewProductID); err != nil {
			return fmt.Errorf("new product %s: %w", req.NewProductID, err)
		}
	case domain.ExchangeTypeColorChange:
		if req.NewColor == "" {
			return store.NewValidationError("new_color", "is required")
		}
		if req.NewProductID != "" || req.NewSize != "" {
			return store.NewValidationError("new_color", "a color change only takes new_color")
		}
		for i, item := range req.Items {
			if strings.TrimSpace(item.Color) == req.NewColor {
				return store.NewValidationError(fmt.Sprintf("items[%d].color", i), "must differ from new_color")
			}
		}
	case domain.ExchangeTypeSizeChange:
		if req.NewSize == "" {
			return store.NewValidationError("new_size", "is required")
		}
		if req.NewProductID != "" || req.NewColor != "" {
			return store.NewValidationError("new_size", "a size change only takes new_size")
		}
		for i, item := range req.Items {
			if strings.TrimSpace(item.Size) == req.NewSize {
				return store.NewValidationError(fmt.Sprintf("items[%d].size", i), "must differ from new_size")
			}
		}
	default:
		return store.NewValidationError("exchange_type", "is required for exchanges")
	}
	return nil
}

// matchReturnItems checks the items against what the sale sold minus what
// earlier returns already took back, and prices the returned units.
func (s *Service) matchReturnItems(ctx context.Context, sale domain.Sale, inputs []domain.ReturnItemInput) ([]domain.ReturnItem, decimal.Decimal, error) {
	type soldLine struct {
		quantity int
		value    decimal.Decimal
	}
	sold := make(map[domain.VariantKey]*soldLine, len(sale.Items))
	for _, item := range sale.Items {
		key := item.Variant(sale.StoreType)
		line, ok := sold[key]
		if !ok {
			line = &soldLine{value: decimal.Zero}
			sold[key] = line
		}
		line.quantity += item.Quantity
		line.value = line.value.Add(item.TotalPrice)
	}

	returned, err := s.repo.GetReturnedQuantities(ctx, sale.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	requested := make(map[domain.VariantKey]int, len(inputs))
	items := make([]domain.ReturnItem, 0, len(inputs))
	value := decimal.Zero
	for i, in := range inputs {
		item := domain.ReturnItem{
			ProductID: strings.TrimSpace(in.ProductID),
			Color:     strings.TrimSpace(in.Color),
			Size:      strings.TrimSpace(in.Size),
			Quantity:  in.Quantity,
		}
		key := domain.VariantKey{ProductID: item.ProductID, StoreType: sale.StoreType, Color: item.Color, Size: item.Size}
		line, ok := sold[key]
		if !ok {
			return nil, decimal.Zero, store.NewValidationError(fmt.Sprintf("items[%d]", i), fmt.Sprintf("%s %s was not part of the sale", item.Color, item.Size))
		}
		requested[key] += item.Quantity
		if returned[key]+requested[key] > line.quantity {
			remaining := line.quantity - returned[key]
			return nil, decimal.Zero, store.NewValidationError(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("only %d left to return", max(remaining, 0)))
		}
		unitValue := line.value.Div(decimal.NewFromInt(int64(line.quantity)))
		value = value.Add(unitValue.Mul(decimal.NewFromInt(int64(item.Quantity))))
		items = append(items, item)
	}
	return items, value, nil
}

// refundAmount defaults to the returned share of the sale total, fees
// included, so a full refund gives back exactly what was paid.
func refundAmount(sale domain.Sale, req domain.ReturnCreateRequest, returnedValue decimal.Decimal) (decimal.Decimal, error) {
	if req.ReturnType == domain.ReturnTypeExchange {
		return decimal.Zero, nil
	}
	if req.RefundAmount != nil {
		amount := req.RefundAmount.Round(2)
		if amount.GreaterThan(sale.Total) {
			return decimal.Zero, store.NewValidationError("refund_amount", fmt.Sprintf("must not exceed the sale total %s", sale.Total.StringFixed(2)))
		}
		return amount, nil
	}
	if sale.Subtotal.IsZero() {
		return decimal.Zero, nil
	}
	amount := sale.Total.Mul(returnedValue).Div(sale.Subtotal).Round(2)
	if amount.GreaterThan(sale.Total) {
		amount = sale.Total
	}
	return amount, nil
}

// returnKeys lists every variant a return may touch, taken from the raw
// request before the items are matched against the sale.
func returnKeys(storeType string, req domain.ReturnCreateRequest) []domain.VariantKey {
	items := make([]domain.ReturnItem, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, domain.ReturnItem{
			ProductID: strings.TrimSpace(in.ProductID),
			Color:     strings.TrimSpace(in.Color),
			Size:      strings.TrimSpace(in.Size),
			Quantity:  in.Quantity,
		})
	}
	entries := ledgerEntries(storeType, req, items, false)
	keys := make([]domain.VariantKey, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Variant)
	}
	return keys
}

// ledgerEntries lists the stock movements of a return in application order.
func ledgerEntries(storeType string, req domain.ReturnCreateRequest, items []domain.ReturnItem, guarded bool) []domain.LedgerEntry {
	entries := make([]domain.LedgerEntry, 0, len(items)*2)
	for _, item := range items {
		original := domain.VariantKey{ProductID: item.ProductID, StoreType: storeType, Color: item.Color, Size: item.Size}
		entries = append(entries, domain.LedgerEntry{Variant: original, Delta: item.Quantity})

		if req.ReturnType != domain.ReturnTypeExchange {
			continue
		}
		replacement := original
		switch req.ExchangeType {
		case domain.ExchangeTypeProductToProduct:
			replacement = domain.VariantKey{ProductID: req.NewProductID, StoreType: storeType, Color: req.NewColor, Size: req.NewSize}
		case domain.ExchangeTypeColorChange:
			replacement.Color = req.NewColor
		case domain.ExchangeTypeSizeChange:
			replacement.Size = req.NewSize
		}
		entries = append(entries, domain.LedgerEntry{Variant: replacement, Delta: -item.Quantity, Guarded: guarded})
	}
	return entries
}
