package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/pricing"
	"laroza/backend/internal/store"
	"laroza/backend/internal/xid"
)

func (s *Service) PaymentMethods(storeType string) (domain.PaymentMethodsResponse, error) {
	storeType = strings.TrimSpace(storeType)
	if !slices.Contains(domain.StoreTypes, storeType) {
		return domain.PaymentMethodsResponse{}, store.NewValidationError("store_type", "must be one of: online, boutique")
	}
	return domain.PaymentMethodsResponse{
		StoreType: storeType,
		Channel:   pricing.ChannelForStore(storeType),
		Methods:   pricing.AllowedPaymentMethods(storeType),
	}, nil
}

// CreateSale checks every variant under its lock before debiting anything,
// then commits the debit together with the sale record.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.Channel = strings.TrimSpace(req.Channel)
	req.StoreType = strings.TrimSpace(req.StoreType)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.Employee = strings.TrimSpace(req.Employee)
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	req.OrderStatus = strings.TrimSpace(req.OrderStatus)
	if err := validateStruct(req); err != nil {
		return domain.Sale{}, err
	}

	actor, _ := ActorFromContext(ctx)
	storeType := req.StoreType
	if storeType == "" {
		storeType = actor.StoreType
	}
	if storeType == "" {
		return domain.Sale{}, store.NewValidationError("store_type", "is required")
	}

	channel := pricing.ChannelForStore(storeType)
	if req.Channel != "" && req.Channel != channel {
		return domain.Sale{}, store.NewValidationError("channel", fmt.Sprintf("must be %s for the %s store", channel, storeType))
	}
	if !pricing.IsPaymentMethodAllowed(storeType, req.PaymentMethod) {
		return domain.Sale{}, store.NewValidationError("payment_method", fmt.Sprintf("must be one of: %s", strings.Join(pricing.AllowedPaymentMethods(storeType), ", ")))
	}

	employee := req.Employee
	if employee == "" {
		employee = actor.Employee
	}
	if employee == "" {
		return domain.Sale{}, store.NewValidationError("employee", "is required")
	}

	orderStatus := req.OrderStatus
	if storeType == domain.StoreTypeBoutique {
		if req.TrackingNumber != "" {
			return domain.Sale{}, store.NewValidationError("tracking_number", "is only allowed for online sales")
		}
		if orderStatus != "" {
			return domain.Sale{}, store.NewValidationError("order_status", "is only allowed for online sales")
		}
	} else if orderStatus == "" {
		orderStatus = domain.OrderStatusPendingDelivery
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, strings.TrimSpace(item.ProductID))
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	demands := make([]inventory.Demand, 0, len(req.Items))
	lineSum := decimal.Zero
	for _, in := range req.Items {
		item := domain.SaleItem{
			ProductID: strings.TrimSpace(in.ProductID),
			Color:     strings.TrimSpace(in.Color),
			Size:      strings.TrimSpace(in.Size),
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice.Round(2),
		}
		if _, ok := products[item.ProductID]; !ok {
			return domain.Sale{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lineSum = lineSum.Add(item.TotalPrice)
		items = append(items, item)
		demands = append(demands, inventory.Demand{Variant: item.Variant(storeType), Quantity: item.Quantity})
	}

	subtotal := lineSum
	if !req.Subtotal.IsZero() && !req.Subtotal.Round(2).Equal(lineSum) {
		return domain.Sale{}, store.NewValidationError("subtotal", fmt.Sprintf("must equal the sum of item totals (%s)", lineSum.StringFixed(2)))
	}
	fees := pricing.ComputeFee(subtotal, req.PaymentMethod, storeType)

	keys := make([]domain.VariantKey, 0, len(demands))
	for _, d := range demands {
		keys = append(keys, d.Variant)
	}
	unlock, err := s.ledger.Lock(ctx, keys...)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	if err := s.ledger.CheckAvailability(ctx, demands); err != nil {
		return domain.Sale{}, err
	}

	now := s.now()
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:             xid.New("sale"),
		InvoiceNumber:  xid.Invoice(now),
		Channel:        channel,
		PaymentMethod:  req.PaymentMethod,
		StoreType:      storeType,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Employee:       employee,
		TrackingNumber: req.TrackingNumber,
		Subtotal:       subtotal,
		Fees:           fees,
		Total:          subtotal.Add(fees),
		OrderStatus:    orderStatus,
		CreatedAt:      now,
		Items:          items,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	unlock()

	s.invalidateProducts(ctx)
	s.logAudit(ctx, storeType, "sale_create", "sale", created.ID, fmt.Sprintf("invoice=%s,total=%s,items=%d", created.InvoiceNumber, created.Total.StringFixed(2), len(created.Items)))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// SalesInRange lists sales whose createdAt falls inside [From, To].
func (s *Service) SalesInRange(ctx context.Context, rng domain.DateRange) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, rng)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusUpdateRequest) (domain.Sale, error) {
	req.OrderStatus = strings.TrimSpace(req.OrderStatus)
	if err := validateStruct(req); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.StoreType != domain.StoreTypeOnline {
		return domain.Sale{}, store.NewValidationError("order_status", "is only tracked for online sales")
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, sale.ID, req.OrderStatus)
	if err != nil {
		return domain.Sale{}, err
	}
	s.logAudit(ctx, sale.StoreType, "order_status_update", "sale", sale.ID, fmt.Sprintf("from=%s,to=%s", sale.OrderStatus, req.OrderStatus))
	return *updated, nil
}
