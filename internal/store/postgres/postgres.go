package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
	"laroza/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, model_number, company_name, product_type, store_price, online_price, image_url, specifications, created_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var imageURL, specs sql.NullString
	if err := row.Scan(&p.ID, &p.ModelNumber, &p.CompanyName, &p.ProductType, &p.StorePrice, &p.OnlinePrice, &imageURL, &specs, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	p.ImageURL = imageURL.String
	p.Specifications = specs.String
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, model_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, inventory []domain.InventoryRecord) (_ *domain.Product, err error) {
	defer func() { err = translateTxError(err) }()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, model_number, company_name, product_type, store_price, online_price, image_url, specifications, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.ModelNumber, product.CompanyName, product.ProductType, product.StorePrice, product.OnlinePrice,
		nullIfEmpty(product.ImageURL), nullIfEmpty(product.Specifications), product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateModelNumber
		}
		return nil, err
	}

	for _, rec := range inventory {
		rec.ProductID = product.ID
		if err := upsertQuantity(ctx, tx, rec.VariantKey, rec.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, inventory *[]domain.InventoryRecord) (_ *domain.Product, err error) {
	defer func() { err = translateTxError(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products
		SET model_number = $2, company_name = $3, product_type = $4, store_price = $5, online_price = $6,
			image_url = $7, specifications = $8
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.ModelNumber, product.CompanyName, product.ProductType, product.StorePrice, product.OnlinePrice,
		nullIfEmpty(product.ImageURL), nullIfEmpty(product.Specifications)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateModelNumber
		}
		return nil, err
	}

	if inventory != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_inventory WHERE product_id = $1`, product.ID); err != nil {
			return nil, err
		}
		for _, rec := range *inventory {
			if rec.ProductID != product.ID {
				return nil, store.NewValidationError("inventory", "record belongs to another product")
			}
			if err := upsertQuantity(ctx, tx, rec.VariantKey, rec.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct removes the product; remaining inventory rows cascade.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetVariantQuantity(ctx context.Context, key domain.VariantKey) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM product_inventory
		WHERE product_id = $1 AND store_type = $2 AND color = $3 AND size = $4
	`, key.ProductID, key.StoreType, key.Color, key.Size).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (s *Store) SetVariantQuantity(ctx context.Context, key domain.VariantKey, qty int) error {
	if qty < 0 {
		return store.NewValidationError("quantity", "must be 0 or greater")
	}
	return upsertQuantity(ctx, s.db, key, qty)
}

func (s *Store) IncrementVariant(ctx context.Context, key domain.VariantKey, delta int) (int, error) {
	return applyDelta(ctx, s.db, key, delta)
}

func (s *Store) DecrementVariant(ctx context.Context, key domain.VariantKey, delta int) (_ int, err error) {
	defer func() { err = translateTxError(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockQuantity(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	if current < delta {
		return current, &store.InsufficientInventoryError{Variant: key, Available: current, Requested: delta}
	}
	result, err := applyDelta(ctx, tx, key, -delta)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return result, nil
}

func (s *Store) DeleteInventoryForProduct(ctx context.Context, productID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM product_inventory WHERE product_id = $1`, productID)
	return err
}

func (s *Store) ReplaceInventory(ctx context.Context, productID string, records []domain.InventoryRecord) (err error) {
	defer func() { err = translateTxError(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_inventory WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, rec := range records {
		if err := upsertQuantity(ctx, tx, rec.VariantKey, rec.Quantity); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, store_type, color, size, quantity
		FROM product_inventory
		WHERE ($1 = '' OR product_id = $1) AND ($2 = '' OR store_type = $2)
		ORDER BY product_id, store_type, color, size
	`, filter.ProductID, filter.StoreType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0, 64)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.ProductID, &rec.StoreType, &rec.Color, &rec.Size, &rec.Quantity); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateSale locks every demanded variant row, re-checks stock, debits and
// writes the sale with its items in one serializable transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (_ *domain.Sale, err error) {
	defer func() { err = translateTxError(err) }()

	if len(sale.Items) == 0 {
		return nil, store.NewValidationError("items", "is required")
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.InvoiceNumber == "" {
		sale.InvoiceNumber = xid.Invoice(sale.CreatedAt)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

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
		current, err := lockQuantity(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if current < demand[key] {
			return nil, &store.InsufficientInventoryError{Variant: key, Available: current, Requested: demand[key]}
		}
	}
	for _, key := range order {
		if _, err := applyDelta(ctx, tx, key, -demand[key]); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, channel, payment_method, store_type, customer_name, customer_phone, employee,
			tracking_number, subtotal, fees, total, order_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.InvoiceNumber, sale.Channel, sale.PaymentMethod, sale.StoreType, sale.CustomerName, sale.CustomerPhone,
		sale.Employee, nullIfEmpty(sale.TrackingNumber), sale.Subtotal, sale.Fees, sale.Total, nullIfEmpty(sale.OrderStatus), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice number %s already used: %w", sale.InvoiceNumber, err)
		}
		return nil, err
	}

	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("si")
		}
		item.SaleID = sale.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, color, size, quantity, unit_price, total_price, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.SaleID, item.ProductID, item.Color, item.Size, item.Quantity, item.UnitPrice, item.TotalPrice, i)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	sale.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, invoice_number, channel, payment_method, store_type, customer_name, customer_phone, employee,
	tracking_number, subtotal, fees, total, order_status, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var tracking, status sql.NullString
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.Channel, &sale.PaymentMethod, &sale.StoreType, &sale.CustomerName,
		&sale.CustomerPhone, &sale.Employee, &tracking, &sale.Subtotal, &sale.Fees, &sale.Total, &status, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.TrackingNumber = tracking.String
	sale.OrderStatus = status.String
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadSaleItems(ctx, s.db, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, rng domain.DateRange) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC, id DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadSaleItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func loadSaleItems(ctx context.Context, q queryer, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, color, size, quantity, unit_price, total_price
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Color, &item.Size, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	return result, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sales SET order_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSale(ctx, id)
}

// CreateReturn applies the ledger entries in order under row locks, then
// writes the return. A guarded debit that cannot be covered rolls back the
// whole transaction.
func (s *Store) CreateReturn(ctx context.Context, ret domain.Return, entries []domain.LedgerEntry) (_ *domain.Return, err error) {
	defer func() { err = translateTxError(err) }()

	if len(ret.Items) == 0 {
		return nil, store.NewValidationError("items", "is required")
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The sale row lock serializes returns of the same sale across instances.
	sale := domain.Sale{ID: ret.OriginalSaleID}
	err = tx.QueryRowContext(ctx, `SELECT store_type FROM sales WHERE id = $1 FOR UPDATE`, sale.ID).Scan(&sale.StoreType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	saleItems, err := loadSaleItems(ctx, tx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = saleItems[sale.ID]
	returned, err := returnedQuantities(ctx, tx, sale.ID)
	if err != nil {
		return nil, err
	}
	if err := store.CheckReturnCap(sale, returned, ret.Items); err != nil {
		return nil, err
	}

	adjustments := make([]domain.StockAdjustment, 0, len(entries))
	for _, entry := range entries {
		current, err := lockQuantity(ctx, tx, entry.Variant)
		if err != nil {
			return nil, err
		}
		if entry.Guarded && entry.Delta < 0 && current+entry.Delta < 0 {
			return nil, &store.InsufficientInventoryError{Variant: entry.Variant, Available: current, Requested: -entry.Delta}
		}
		result, err := applyDelta(ctx, tx, entry.Variant, entry.Delta)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, domain.StockAdjustment{VariantKey: entry.Variant, Delta: entry.Delta, ResultingQuantity: result})
	}
	ret.Adjustments = adjustments

	payload, err := json.Marshal(adjustments)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (id, original_sale_id, store_type, return_type, exchange_type, new_product_id, new_color, new_size,
			refund_amount, reason, processed_by, adjustments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, ret.ID, ret.OriginalSaleID, ret.StoreType, ret.ReturnType, nullIfEmpty(ret.ExchangeType), nullIfEmpty(ret.NewProductID),
		nullIfEmpty(ret.NewColor), nullIfEmpty(ret.NewSize), ret.RefundAmount, nullIfEmpty(ret.Reason), ret.ProcessedBy, payload, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ReturnItem, len(ret.Items))
	for i, item := range ret.Items {
		if item.ID == "" {
			item.ID = xid.New("ri")
		}
		item.ReturnID = ret.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO return_items (id, return_id, product_id, color, size, quantity, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.ReturnID, item.ProductID, item.Color, item.Size, item.Quantity, i)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	ret.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ret, nil
}

const returnColumns = `id, original_sale_id, store_type, return_type, exchange_type, new_product_id, new_color, new_size,
	refund_amount, reason, processed_by, adjustments, created_at`

func scanReturn(row rowScanner) (domain.Return, error) {
	var ret domain.Return
	var exchangeType, newProductID, newColor, newSize, reason sql.NullString
	var adjustments []byte
	err := row.Scan(&ret.ID, &ret.OriginalSaleID, &ret.StoreType, &ret.ReturnType, &exchangeType, &newProductID, &newColor,
		&newSize, &ret.RefundAmount, &reason, &ret.ProcessedBy, &adjustments, &ret.CreatedAt)
	if err != nil {
		return domain.Return{}, err
	}
	ret.ExchangeType = exchangeType.String
	ret.NewProductID = newProductID.String
	ret.NewColor = newColor.String
	ret.NewSize = newSize.String
	ret.Reason = reason.String
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &ret.Adjustments); err != nil {
			return domain.Return{}, fmt.Errorf("decode adjustments: %w", err)
		}
	}
	return ret, nil
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	ret, err := scanReturn(s.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadReturnItems(ctx, s.db, []string{ret.ID})
	if err != nil {
		return nil, err
	}
	ret.Items = items[ret.ID]
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context, rng domain.DateRange) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC, id DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		returns = append(returns, ret)
		ids = append(ids, ret.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadReturnItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range returns {
		returns[i].Items = items[returns[i].ID]
	}
	return returns, nil
}

func loadReturnItems(ctx context.Context, q queryer, returnIDs []string) (map[string][]domain.ReturnItem, error) {
	result := make(map[string][]domain.ReturnItem, len(returnIDs))
	if len(returnIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, return_id, product_id, color, size, quantity
		FROM return_items
		WHERE return_id = ANY($1)
		ORDER BY return_id, position
	`, returnIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.Color, &item.Size, &item.Quantity); err != nil {
			return nil, err
		}
		result[item.ReturnID] = append(result[item.ReturnID], item)
	}
	return result, rows.Err()
}

func (s *Store) GetReturnedQuantities(ctx context.Context, saleID string) (map[domain.VariantKey]int, error) {
	return returnedQuantities(ctx, s.db, saleID)
}

func returnedQuantities(ctx context.Context, q queryer, saleID string) (map[domain.VariantKey]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ri.product_id, r.store_type, ri.color, ri.size, COALESCE(SUM(ri.quantity), 0)
		FROM return_items ri
		JOIN returns r ON r.id = ri.return_id
		WHERE r.original_sale_id = $1
		GROUP BY ri.product_id, r.store_type, ri.color, ri.size
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[domain.VariantKey]int)
	for rows.Next() {
		var key domain.VariantKey
		var qty int
		if err := rows.Scan(&key.ProductID, &key.StoreType, &key.Color, &key.Size, &qty); err != nil {
			return nil, err
		}
		result[key] = qty
	}
	return result, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount, description, category, date)
		VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, expense.Amount, expense.Description, expense.Category, expense.Date)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, description, category, date
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR date >= $1) AND ($2::timestamptz IS NULL OR date <= $2)
		ORDER BY date DESC, id DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Amount, &e.Description, &e.Category, &e.Date); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, amount, description, supplier, date)
		VALUES ($1,$2,$3,$4,$5)
	`, purchase.ID, purchase.Amount, purchase.Description, purchase.Supplier, purchase.Date)
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, rng domain.DateRange) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, description, supplier, date
		FROM purchases
		WHERE ($1::timestamptz IS NULL OR date >= $1) AND ($2::timestamptz IS NULL OR date <= $2)
		ORDER BY date DESC, id DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.Amount, &p.Description, &p.Supplier, &p.Date); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_type, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, nullIfEmpty(entry.StoreType), entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, rng domain.DateRange, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_type, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTime(rng.From), nullTime(rng.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var storeType sql.NullString
		if err := rows.Scan(&entry.ID, &storeType, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.StoreType = storeType.String
		result = append(result, entry)
	}
	return result, rows.Err()
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lockQuantity reads a variant under FOR UPDATE. A missing row reads as 0.
func lockQuantity(ctx context.Context, tx *sql.Tx, key domain.VariantKey) (int, error) {
	var qty int
	err := tx.QueryRowContext(ctx, `
		SELECT quantity FROM product_inventory
		WHERE product_id = $1 AND store_type = $2 AND color = $3 AND size = $4
		FOR UPDATE
	`, key.ProductID, key.StoreType, key.Color, key.Size).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func upsertQuantity(ctx context.Context, q execQueryer, key domain.VariantKey, qty int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO product_inventory (product_id, store_type, color, size, quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (product_id, store_type, color, size)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`, key.ProductID, key.StoreType, key.Color, key.Size, qty)
	if err != nil && isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

// applyDelta adds delta to the variant, creating it at delta when absent.
func applyDelta(ctx context.Context, q execQueryer, key domain.VariantKey, delta int) (int, error) {
	var qty int
	err := q.QueryRowContext(ctx, `
		INSERT INTO product_inventory (product_id, store_type, color, size, quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (product_id, store_type, color, size)
		DO UPDATE SET quantity = product_inventory.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING quantity
	`, key.ProductID, key.StoreType, key.Color, key.Size, delta).Scan(&qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return qty, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// translateTxError reports a serialization failure as store.ErrConflict so
// callers can retry.
func translateTxError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
