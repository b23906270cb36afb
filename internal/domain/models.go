package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StoreTypeOnline   = "online"
	StoreTypeBoutique = "boutique"
)

const (
	ChannelInStore = "in-store"
	ChannelOnline  = "online"
)

const (
	PaymentMethodCash           = "cash"
	PaymentMethodVisa           = "visa"
	PaymentMethodCashOnDelivery = "cash-on-delivery"
	PaymentMethodBankTransfer   = "bank-transfer"
)

const (
	OrderStatusPendingDelivery = "pending-delivery"
	OrderStatusDelivered       = "delivered"
	OrderStatusCancelled       = "cancelled"
)

const (
	ReturnTypeRefund   = "refund"
	ReturnTypeExchange = "exchange"
)

const (
	ExchangeTypeProductToProduct = "product-to-product"
	ExchangeTypeColorChange      = "color-change"
	ExchangeTypeSizeChange       = "size-change"
)

const (
	StockStatusInStock    = "in-stock"
	StockStatusLowStock   = "low-stock"
	StockStatusOutOfStock = "out-of-stock"
)

var ProductTypes = []string{"dress", "evening-wear", "hijab", "abaya", "accessories"}

var StoreTypes = []string{StoreTypeOnline, StoreTypeBoutique}

type Product struct {
	ID             string          `json:"id"`
	ModelNumber    string          `json:"model_number"`
	CompanyName    string          `json:"company_name"`
	ProductType    string          `json:"product_type"`
	StorePrice     decimal.Decimal `json:"store_price"`
	OnlinePrice    decimal.Decimal `json:"online_price"`
	ImageURL       string          `json:"image_url,omitempty"`
	Specifications string          `json:"specifications,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// VariantKey identifies one stock counter: a color/size of a product inside a
// store partition.
type VariantKey struct {
	ProductID string `json:"product_id"`
	StoreType string `json:"store_type"`
	Color     string `json:"color"`
	Size      string `json:"size"`
}

func (k VariantKey) String() string {
	return k.ProductID + ":" + k.StoreType + ":" + k.Color + ":" + k.Size
}

type InventoryRecord struct {
	VariantKey
	Quantity int `json:"quantity"`
}

type InventoryFilter struct {
	ProductID string
	StoreType string
}

type ProductWithInventory struct {
	Product
	Inventory     []InventoryRecord `json:"inventory"`
	TotalQuantity int               `json:"total_quantity"`
	Status        string            `json:"status"`
}

type Sale struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Channel        string          `json:"channel"`
	PaymentMethod  string          `json:"payment_method"`
	StoreType      string          `json:"store_type"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	Employee       string          `json:"employee"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Fees           decimal.Decimal `json:"fees"`
	Total          decimal.Decimal `json:"total"`
	OrderStatus    string          `json:"order_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID         string          `json:"id"`
	SaleID     string          `json:"sale_id"`
	ProductID  string          `json:"product_id"`
	Color      string          `json:"color"`
	Size       string          `json:"size"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func (i SaleItem) Variant(storeType string) VariantKey {
	return VariantKey{ProductID: i.ProductID, StoreType: storeType, Color: i.Color, Size: i.Size}
}

type Return struct {
	ID             string            `json:"id"`
	OriginalSaleID string            `json:"original_sale_id"`
	StoreType      string            `json:"store_type"`
	ReturnType     string            `json:"return_type"`
	ExchangeType   string            `json:"exchange_type,omitempty"`
	NewProductID   string            `json:"new_product_id,omitempty"`
	NewColor       string            `json:"new_color,omitempty"`
	NewSize        string            `json:"new_size,omitempty"`
	RefundAmount   decimal.Decimal   `json:"refund_amount"`
	Reason         string            `json:"reason,omitempty"`
	ProcessedBy    string            `json:"processed_by"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []ReturnItem      `json:"items"`
	Adjustments    []StockAdjustment `json:"adjustments,omitempty"`
}

type ReturnItem struct {
	ID        string `json:"id"`
	ReturnID  string `json:"return_id"`
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// LedgerEntry is one signed stock movement. Guarded debits fail instead of
// driving the variant below zero.
type LedgerEntry struct {
	Variant VariantKey
	Delta   int
	Guarded bool
}

type StockAdjustment struct {
	VariantKey
	Delta             int `json:"delta"`
	ResultingQuantity int `json:"resulting_quantity"`
}

type Expense struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
}

type Purchase struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Supplier    string          `json:"supplier"`
	Date        time.Time       `json:"date"`
}

// DateRange is inclusive on both ends. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

type AuditLog struct {
	ID         string    `json:"id"`
	StoreType  string    `json:"store_type,omitempty"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actor is the employee picked on the selection screen.
type Actor struct {
	Employee  string `json:"employee"`
	StoreType string `json:"store_type"`
}

type InventoryInput struct {
	StoreType string `json:"store_type" validate:"required,oneof=online boutique"`
	Color     string `json:"color" validate:"required,max=64"`
	Size      string `json:"size" validate:"required,max=16"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

type ProductCreateRequest struct {
	ModelNumber    string           `json:"model_number" validate:"required,max=64"`
	CompanyName    string           `json:"company_name" validate:"required,max=128"`
	ProductType    string           `json:"product_type" validate:"required,oneof=dress evening-wear hijab abaya accessories"`
	StorePrice     decimal.Decimal  `json:"store_price" validate:"gte=0"`
	OnlinePrice    decimal.Decimal  `json:"online_price" validate:"gte=0"`
	ImageURL       string           `json:"image_url" validate:"omitempty,url"`
	Specifications string           `json:"specifications" validate:"max=2000"`
	Inventory      []InventoryInput `json:"inventory" validate:"dive"`
}

// ProductUpdateRequest applies only the fields that are set. A non-nil
// Inventory replaces the product's whole inventory.
type ProductUpdateRequest struct {
	ModelNumber    *string           `json:"model_number,omitempty" validate:"omitempty,min=1,max=64"`
	CompanyName    *string           `json:"company_name,omitempty" validate:"omitempty,min=1,max=128"`
	ProductType    *string           `json:"product_type,omitempty" validate:"omitempty,oneof=dress evening-wear hijab abaya accessories"`
	StorePrice     *decimal.Decimal  `json:"store_price,omitempty" validate:"omitempty,gte=0"`
	OnlinePrice    *decimal.Decimal  `json:"online_price,omitempty" validate:"omitempty,gte=0"`
	ImageURL       *string           `json:"image_url,omitempty" validate:"omitempty,max=2048"`
	Specifications *string           `json:"specifications,omitempty" validate:"omitempty,max=2000"`
	Inventory      *[]InventoryInput `json:"inventory,omitempty" validate:"omitempty,dive"`
}

type InventoryRecordInput struct {
	ProductID string `json:"product_id" validate:"required"`
	InventoryInput
}

type InventorySetRequest struct {
	Records []InventoryRecordInput `json:"records" validate:"required,min=1,dive"`
}

type InventoryAdjustRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	StoreType string `json:"store_type" validate:"required,oneof=online boutique"`
	Color     string `json:"color" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Delta     int    `json:"delta" validate:"ne=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type SaleItemInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Color     string          `json:"color" validate:"required"`
	Size      string          `json:"size" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type SaleCreateRequest struct {
	Channel        string          `json:"channel" validate:"omitempty,oneof=in-store online"`
	PaymentMethod  string          `json:"payment_method" validate:"required,oneof=cash visa cash-on-delivery bank-transfer"`
	StoreType      string          `json:"store_type" validate:"omitempty,oneof=online boutique"`
	CustomerName   string          `json:"customer_name" validate:"required,max=128"`
	CustomerPhone  string          `json:"customer_phone" validate:"required,max=32"`
	Employee       string          `json:"employee" validate:"max=64"`
	TrackingNumber string          `json:"tracking_number" validate:"max=64"`
	OrderStatus    string          `json:"order_status" validate:"omitempty,oneof=pending-delivery delivered cancelled"`
	Subtotal       decimal.Decimal `json:"subtotal" validate:"gte=0"`
	Items          []SaleItemInput `json:"items" validate:"required,min=1,dive"`
}

type OrderStatusUpdateRequest struct {
	OrderStatus string `json:"order_status" validate:"required,oneof=pending-delivery delivered cancelled"`
}

type ReturnItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Color     string `json:"color" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type ReturnCreateRequest struct {
	OriginalSaleID string            `json:"original_sale_id" validate:"required"`
	ReturnType     string            `json:"return_type" validate:"required,oneof=refund exchange"`
	ExchangeType   string            `json:"exchange_type" validate:"omitempty,oneof=product-to-product color-change size-change"`
	NewProductID   string            `json:"new_product_id"`
	NewColor       string            `json:"new_color" validate:"max=64"`
	NewSize        string            `json:"new_size" validate:"max=16"`
	RefundAmount   *decimal.Decimal  `json:"refund_amount,omitempty" validate:"omitempty,gte=0"`
	Reason         string            `json:"reason" validate:"max=500"`
	ManagerPIN     string            `json:"manager_pin,omitempty"`
	Items          []ReturnItemInput `json:"items" validate:"required,min=1,dive"`
}

type ExpenseCreateRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Category    string          `json:"category" validate:"required,max=64"`
	Date        string          `json:"date"`
}

type PurchaseCreateRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Supplier    string          `json:"supplier" validate:"required,max=128"`
	Date        string          `json:"date"`
}

type SessionRequest struct {
	Employee  string `json:"employee" validate:"required"`
	StoreType string `json:"store_type" validate:"required,oneof=online boutique"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	Employee  string `json:"employee"`
	StoreType string `json:"store_type"`
	ExpiresAt string `json:"expires_at"`
}

type PaymentMethodsResponse struct {
	StoreType string   `json:"store_type"`
	Channel   string   `json:"channel"`
	Methods   []string `json:"methods"`
}

type ChannelSummary struct {
	Channel  string          `json:"channel"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Fees     decimal.Decimal `json:"fees"`
	Total    decimal.Decimal `json:"total"`
}

type RangeSummary struct {
	Start          string           `json:"start"`
	End            string           `json:"end"`
	Channels       []ChannelSummary `json:"channels"`
	SalesCount     int              `json:"sales_count"`
	SalesTotal     decimal.Decimal  `json:"sales_total"`
	RefundsTotal   decimal.Decimal  `json:"refunds_total"`
	ExpensesTotal  decimal.Decimal  `json:"expenses_total"`
	PurchasesTotal decimal.Decimal  `json:"purchases_total"`
	Net            decimal.Decimal  `json:"net"`
	Sales          []Sale           `json:"sales"`
	Expenses       []Expense        `json:"expenses"`
	Purchases      []Purchase       `json:"purchases"`
}

type DashboardStats struct {
	TotalProducts     int             `json:"total_products"`
	TodaySales        decimal.Decimal `json:"today_sales"`
	OutOfStockCount   int             `json:"out_of_stock_count"`
	OnlineOrdersCount int             `json:"online_orders_count"`
}
