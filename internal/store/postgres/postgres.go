package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"alameenpos/internal/domain"
	"alameenpos/internal/store"
)

type Store struct {
	db *sql.DB
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

	if err := initInvoiceSequence(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// initInvoiceSequence advances the invoice sequence past every suffix already
// issued, so numbers stay monotonic across restarts and deleted sales never
// free theirs for reuse.
func initInvoiceSequence(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE SEQUENCE IF NOT EXISTS sale_invoice_seq MINVALUE 0 START WITH 0`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		SELECT setval('sale_invoice_seq', GREATEST(
			(SELECT last_value FROM sale_invoice_seq),
			(SELECT COALESCE(MAX(SPLIT_PART(invoice_number, '-', 2)::bigint), 0) FROM sales)
		))
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, name, COALESCE(brand,''), COALESCE(barcode,''), cost, retail_price, wholesale_price,
	quantity, COALESCE(units_per_packet,0), COALESCE(packets_per_carton,0), allow_wholesale,
	min_stock_level, store_id, COALESCE(description,''), status, created_at, updated_at
`

func scanProduct(scanner interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := scanner.Scan(
		&p.ID, &p.Name, &p.Brand, &p.Barcode, &p.Cost, &p.RetailPrice, &p.WholesalePrice,
		&p.Quantity, &p.UnitsPerPacket, &p.PacketsPerCarton, &p.AllowWholesale,
		&p.MinStockLevel, &p.StoreID, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE status = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
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
	if err := s.attachCategories(ctx, products); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE status = true AND (name ILIKE '%' || $1 || '%' OR barcode = $1)
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
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
	if err := s.attachCategories(ctx, products); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) attachCategories(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, category_id
		FROM category_product
		WHERE product_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	categoryIDs := make(map[string][]string, len(products))
	for rows.Next() {
		var productID, categoryID string
		if err := rows.Scan(&productID, &categoryID); err != nil {
			return err
		}
		categoryIDs[productID] = append(categoryIDs[productID], categoryID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range products {
		products[i].CategoryIDs = categoryIDs[products[i].ID]
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Cost.IsNegative() || product.RetailPrice.IsNegative() || product.WholesalePrice.IsNegative() || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Status = true
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, brand, barcode, cost, retail_price, wholesale_price, quantity,
			units_per_packet, packets_per_carton, allow_wholesale, min_stock_level,
			store_id, description, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, product.ID, product.Name, nullIfEmpty(product.Brand), nullIfEmpty(product.Barcode),
		product.Cost, product.RetailPrice, product.WholesalePrice, product.Quantity,
		nullIfZero(product.UnitsPerPacket), nullIfZero(product.PacketsPerCarton),
		product.AllowWholesale, product.MinStockLevel, product.StoreID,
		nullIfEmpty(product.Description), product.Status, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, categoryID := range product.CategoryIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_product (category_id, product_id)
			VALUES ($1,$2)
		`, categoryID, product.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	products := []domain.Product{product}
	if err := s.attachCategories(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE status = true AND id = ANY($1)
	`, ids)
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

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Cost.IsNegative() || product.RetailPrice.IsNegative() || product.WholesalePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Stock is owned by the sale engine and AdjustStock; plain product
	// updates never touch the quantity column.
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, barcode = $4, cost = $5, retail_price = $6,
			wholesale_price = $7, units_per_packet = $8, packets_per_carton = $9,
			allow_wholesale = $10, min_stock_level = $11, store_id = $12,
			description = $13, status = $14, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Brand), nullIfEmpty(product.Barcode),
		product.Cost, product.RetailPrice, product.WholesalePrice,
		nullIfZero(product.UnitsPerPacket), nullIfZero(product.PacketsPerCarton),
		product.AllowWholesale, product.MinStockLevel, product.StoreID,
		nullIfEmpty(product.Description), product.Status)
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

	_, err = tx.ExecContext(ctx, `DELETE FROM category_product WHERE product_id = $1`, product.ID)
	if err != nil {
		return nil, err
	}
	for _, categoryID := range product.CategoryIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_product (category_id, product_id)
			VALUES ($1,$2)
		`, categoryID, product.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return store.ErrProductInUse
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM category_product WHERE product_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
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

	return tx.Commit()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, nullIfEmpty(category.Description), category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''), created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, description = $3 WHERE id = $1
	`, category.ID, category.Name, nullIfEmpty(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM category_product WHERE category_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
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

	return tx.Commit()
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, phone, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, st.ID, st.Name, nullIfEmpty(st.Address), nullIfEmpty(st.Phone), st.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address,''), COALESCE(phone,''), created_at
		FROM stores
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 8)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.CreatedAt = st.CreatedAt.UTC()
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) GetStoreByID(ctx context.Context, id string) (*domain.Store, error) {
	return s.findStore(ctx, "id", id)
}

func (s *Store) GetStoreByName(ctx context.Context, name string) (*domain.Store, error) {
	return s.findStore(ctx, "name", name)
}

func (s *Store) findStore(ctx context.Context, column string, value string) (*domain.Store, error) {
	if column != "id" && column != "name" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var st domain.Store
	query := fmt.Sprintf(`
		SELECT id, name, COALESCE(address,''), COALESCE(phone,''), created_at
		FROM stores
		WHERE %s = $1
	`, column)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET name = $2, address = $3, phone = $4 WHERE id = $1
	`, st.ID, st.Name, nullIfEmpty(st.Address), nullIfEmpty(st.Phone))
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

	updated := st
	return &updated, nil
}

func (s *Store) DeleteStore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
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

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.Type == "" {
		customer.Type = domain.CustomerRetail
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, address, type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone),
		nullIfEmpty(customer.Address), customer.Type, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), type, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Type, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), type, created_at
		FROM customers
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCustomers(rows)
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), type, created_at
		FROM customers
		WHERE name ILIKE '%' || $1 || '%'
			OR email ILIKE '%' || $1 || '%'
			OR phone ILIKE '%' || $1 || '%'
			OR type::text ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCustomers(rows)
}

func scanCustomers(rows *sql.Rows) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Type, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, address = $5, type = $6
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone),
		nullIfEmpty(customer.Address), customer.Type)
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

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
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

// CreateSale commits a validated sale atomically: the header, its lines, the
// conditional stock decrements, and the movement rows all succeed or none do.
// The decrement re-checks stock at write time so two concurrent sales cannot
// push a product negative.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// nextval is not rolled back with the transaction: aborted sales leave
	// gaps, but an issued number is never handed out twice.
	var invoiceSeq int64
	if err := pgTx.QueryRowContext(ctx, `SELECT nextval('sale_invoice_seq')`).Scan(&invoiceSeq); err != nil {
		return nil, err
	}
	sale.InvoiceNumber = fmt.Sprintf("INVOICE-%07d", invoiceSeq)

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, customer_id, customer_type, payment_method, store_id,
			user_id, subtotal, discount, tax, total, status, note, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, sale.ID, sale.InvoiceNumber, sale.CustomerID, sale.CustomerType, sale.PaymentMethod,
		sale.StoreID, sale.UserID, sale.Subtotal, sale.Discount, sale.Tax, sale.Total,
		sale.Status, nullIfEmpty(sale.Note), sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := applyLines(ctx, pgTx, &sale, now); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

// applyLines inserts sale_items, decrements stock conditionally, and records
// an outbound movement per line. Runs inside the caller's transaction.
func applyLines(ctx context.Context, pgTx *sql.Tx, sale *domain.Sale, now time.Time) error {
	for i := range sale.Items {
		item := &sale.Items[i]
		if item.Quantity < 1 {
			return store.ErrInvalidInput
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.SaleID = sale.ID

		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $1, updated_at = now()
			WHERE id = $2 AND quantity >= $1
		`, item.Quantity, item.ProductID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var name string
			var available int
			err := pgTx.QueryRowContext(ctx, `
				SELECT name, quantity FROM products WHERE id = $1
			`, item.ProductID).Scan(&name, &available)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w (ID: %s)", store.ErrProductNotFound, item.ProductID)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w for %s: Available %d, Requested %d", store.ErrInsufficientStock, name, available, item.Quantity)
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, unit, quantity, unit_price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, sale.ID, item.ProductID, item.Unit, item.Quantity, item.UnitPrice, item.Total)
		if err != nil {
			return err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, store_id, user_id, type, quantity, reason, reference_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, uuid.NewString(), item.ProductID, sale.StoreID, sale.UserID,
			domain.MovementOut, -item.Quantity, "sale", sale.ID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// restoreLines puts each line's base-unit quantity back on stock and records
// an inbound movement with the given reason.
func restoreLines(ctx context.Context, pgTx *sql.Tx, sale *domain.Sale, reason string, now time.Time) error {
	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $1, updated_at = now()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, store_id, user_id, type, quantity, reason, reference_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, uuid.NewString(), item.ProductID, sale.StoreID, sale.UserID,
			domain.MovementIn, item.Quantity, reason, sale.ID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `
	id, invoice_number, customer_id, customer_type, payment_method, store_id,
	user_id, subtotal, discount, tax, total, status, COALESCE(note,''), created_at, updated_at
`

func scanSale(scanner interface{ Scan(dest ...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	err := scanner.Scan(
		&sale.ID, &sale.InvoiceNumber, &customerID, &sale.CustomerType, &sale.PaymentMethod,
		&sale.StoreID, &sale.UserID, &sale.Subtotal, &sale.Discount, &sale.Tax, &sale.Total,
		&sale.Status, &sale.Note, &sale.CreatedAt, &sale.UpdatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	if customerID.Valid {
		sale.CustomerID = &customerID.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, unit, quantity, unit_price, total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Unit, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const salesFilterClause = `
	($1::timestamptz IS NULL OR created_at >= $1)
	AND ($2::timestamptz IS NULL OR created_at <= $2)
	AND ($3 = '' OR store_id = $3)
	AND ($4 = '' OR customer_id::text = $4)
	AND ($5 = '' OR user_id = $5)
	AND ($6 = '' OR payment_method::text = $6)
	AND ($7 = '' OR status::text = $7)
`

func filterArgs(filter domain.SalesFilter) []any {
	return []any{
		nullTimePtr(filter.From), nullTimePtr(filter.To), filter.StoreID,
		filter.CustomerID, filter.UserID, string(filter.PaymentMethod), filter.Status,
	}
}

func (s *Store) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	args := append(filterArgs(filter), limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE `+salesFilterClause+`
		ORDER BY created_at DESC
		LIMIT $8
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.loadSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

// UpdateSale reconciles a committed sale against a new validated line set.
// Old lines are restored first so the new set is checked against the full
// stock pool, then applied through the same conditional decrement as a
// fresh sale.
func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, sale.ID)
	existing, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if existing.Status == domain.SaleStatusCancelled {
		return nil, store.ErrSaleNotEditable
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM sale_items
		WHERE sale_id = $1
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	oldItems := make([]domain.SaleItem, 0, 8)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ProductID, &item.Quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		oldItems = append(oldItems, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	now := time.Now().UTC()
	existing.Items = oldItems
	if err := restoreLines(ctx, pgTx, &existing, "sale_update", now); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID)
	if err != nil {
		return nil, err
	}

	sale.InvoiceNumber = existing.InvoiceNumber
	sale.CustomerID = existing.CustomerID
	sale.CustomerType = existing.CustomerType
	sale.StoreID = existing.StoreID
	sale.UserID = existing.UserID
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = now
	if sale.Status == "" {
		sale.Status = existing.Status
	}

	if err := applyLines(ctx, pgTx, &sale, now); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET payment_method = $2, subtotal = $3, discount = $4, tax = $5, total = $6,
			status = $7, note = $8, updated_at = $9
		WHERE id = $1
	`, sale.ID, sale.PaymentMethod, sale.Subtotal, sale.Discount, sale.Tax, sale.Total,
		sale.Status, nullIfEmpty(sale.Note), sale.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

// DeleteSale removes a sale and returns its stock, leaving an inbound
// movement per line as the audit trail of the reversal.
func (s *Store) DeleteSale(ctx context.Context, id string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return err
	}
	items := make([]domain.SaleItem, 0, 8)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ProductID, &item.Quantity); err != nil {
			_ = itemRows.Close()
			return err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	sale.Items = items
	if err := restoreLines(ctx, pgTx, &sale, "sale_reversal", time.Now().UTC()); err != nil {
		return err
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id)
	if err != nil {
		return err
	}
	_, err = pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) AdjustStock(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	qty := movement.Quantity
	if qty < 0 {
		qty = -qty
	}
	if qty == 0 {
		return nil, store.ErrInvalidInput
	}
	if movement.Type != domain.MovementIn && movement.Type != domain.MovementOut {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var res sql.Result
	if movement.Type == domain.MovementIn {
		movement.Quantity = qty
		res, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $1, updated_at = now()
			WHERE id = $2
		`, qty, movement.ProductID)
	} else {
		movement.Quantity = -qty
		res, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $1, updated_at = now()
			WHERE id = $2 AND quantity >= $1
		`, qty, movement.ProductID)
	}
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var name string
		var available int
		err := pgTx.QueryRowContext(ctx, `
			SELECT name, quantity FROM products WHERE id = $1
		`, movement.ProductID).Scan(&name, &available)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w (ID: %s)", store.ErrProductNotFound, movement.ProductID)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w for %s: Available %d, Requested %d", store.ErrInsufficientStock, name, available, qty)
	}

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	movement.CreatedAt = time.Now().UTC()
	if movement.StoreID == "" {
		err := pgTx.QueryRowContext(ctx, `
			SELECT store_id FROM products WHERE id = $1
		`, movement.ProductID).Scan(&movement.StoreID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, store_id, user_id, type, quantity, reason, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, movement.StoreID, movement.UserID,
		movement.Type, movement.Quantity, movement.Reason, nullIfEmpty(movement.ReferenceID), movement.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := movement
	return &created, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, store_id, user_id, type, quantity, reason, COALESCE(reference_id,''), created_at
		FROM stock_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.StoreID, &m.UserID, &m.Type, &m.Quantity, &m.Reason, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, filter domain.SalesFilter) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(subtotal),0), COALESCE(SUM(total),0),
			COALESCE(SUM(discount),0), COALESCE(SUM(tax),0)
		FROM sales
		WHERE `+salesFilterClause+`
	`, filterArgs(filter)...).Scan(&summary.TotalSales, &summary.Subtotal, &summary.GrossTotal, &summary.TotalDiscount, &summary.TotalTax)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.NetTotal = summary.GrossTotal.Sub(summary.TotalDiscount).Add(summary.TotalTax)
	return summary, nil
}

func (s *Store) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM products WHERE quantity <= CASE WHEN min_stock_level < 1 THEN 10 ELSE min_stock_level END)
	`).Scan(&stats.TotalUsers, &stats.TotalProducts, &stats.TotalCategories, &stats.ProductShortage)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return stats, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZero(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
