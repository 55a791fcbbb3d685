package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/ledger"
	"sarisari/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(ctx context.Context, databaseURL string, loc *time.Location) (*Store, error) {
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

	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, description, parent_id, deleted
		FROM categories
		WHERE tenant_id = $1 AND deleted IS NULL
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		c, err := s.scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, tenantID string, id int64) (*domain.Category, error) {
	c, err := s.scanCategory(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, parent_id, deleted
		FROM categories
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (tenant_id, name, description, parent_id)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, category.TenantID, category.Name, category.Description, nullID(category.ParentID)).Scan(&category.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	category.Deleted = nil
	return &category, nil
}

// UpdateCategory holds the tenant's category tree lock for the whole edit, so two parent
// changes cannot each pass the ancestor walk and close a cycle together.
func (s *Store) UpdateCategory(ctx context.Context, tenantID string, id int64, apply func(*domain.Category, store.CategoryLookup) error) (*domain.Category, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockCategoryTree(ctx, tx, tenantID); err != nil {
		return nil, err
	}
	category, err := s.scanCategory(tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, parent_id, deleted
		FROM categories
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
		FOR UPDATE
	`, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lookup := func(other int64) (*domain.Category, error) {
		c, err := s.scanCategory(tx.QueryRowContext(ctx, `
			SELECT id, tenant_id, name, description, parent_id, deleted
			FROM categories
			WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
		`, other, tenantID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
	if err := apply(&category, lookup); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE categories
		SET name = $3, description = $4, parent_id = $5
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, category.Name, category.Description, nullID(category.ParentID)); err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	category.ID = id
	category.TenantID = tenantID
	category.Deleted = nil
	return &category, nil
}

// lockCategoryTree takes a transaction scoped advisory lock on one tenant's category tree.
func lockCategoryTree(ctx context.Context, tx *sql.Tx, tenantID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "categories:"+tenantID)
	return err
}

func (s *Store) SoftDeleteCategoryTree(ctx context.Context, tenantID string, id int64, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockCategoryTree(ctx, tx, tenantID); err != nil {
		return 0, err
	}
	var rootID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM categories
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
		FOR UPDATE
	`, id, tenantID).Scan(&rootID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	ids, err := store.CollectSubtree(rootID, func(parents []int64) ([]int64, error) {
		return int64Column(ctx, tx, `
			SELECT id FROM categories
			WHERE tenant_id = $1 AND deleted IS NULL AND parent_id = ANY($2)
			ORDER BY id
		`, tenantID, parents)
	})
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET deleted = $3
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, ids, at); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

const productColumns = `id, tenant_id, name, code, brand, description, image_url, buy_price, sell_price,
	stock, low_stock_level, expiration_date, category_id, unit_measurement, deleted`

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND deleted IS NULL
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := s.scanProduct(rows)
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

func (s *Store) GetProduct(ctx context.Context, tenantID string, id int64) (*domain.Product, error) {
	p, err := s.scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	expiration, err := nullDate(product.ExpirationDate)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO products (
			tenant_id, name, code, brand, description, image_url, buy_price, sell_price,
			stock, low_stock_level, expiration_date, category_id, unit_measurement
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, product.TenantID, product.Name, product.Code, product.Brand, product.Description, product.ImageURL,
		product.BuyPrice, product.SellPrice, product.Stock, nullInt(product.LowStockLevel), expiration,
		nullID(product.CategoryID), product.UnitMeasurement).Scan(&product.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	product.Deleted = nil
	return &product, nil
}

// UpdateProduct writes catalog fields only; stock moves through sales, refunds and restocks.
// The row is locked before apply sees it, so a concurrent restock's expiration date is
// either already visible or waits for this edit.
func (s *Store) UpdateProduct(ctx context.Context, tenantID string, id int64, apply func(*domain.Product) error) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := s.scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
		FOR UPDATE
	`, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := apply(&product); err != nil {
		return nil, err
	}

	expiration, err := nullDate(product.ExpirationDate)
	if err != nil {
		return nil, err
	}
	updated, err := s.scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products
		SET name = $3, code = $4, brand = $5, description = $6, image_url = $7, buy_price = $8,
			sell_price = $9, low_stock_level = $10, expiration_date = $11, category_id = $12, unit_measurement = $13
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+productColumns,
		id, tenantID, product.Name, product.Code, product.Brand, product.Description, product.ImageURL,
		product.BuyPrice, product.SellPrice, nullInt(product.LowStockLevel), expiration,
		nullID(product.CategoryID), product.UnitMeasurement))
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(ctx context.Context, tenantID string, id int64, at time.Time) error {
	return s.softDelete(ctx, "products", tenantID, id, at)
}

func (s *Store) Restock(ctx context.Context, restock domain.Restock) (*domain.RestockHistory, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := s.scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
		FOR UPDATE
	`, restock.ProductID, restock.TenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated, history, err := ledger.PlanRestock(product, restock)
	if err != nil {
		return nil, err
	}
	newExpiration, err := nullDate(updated.ExpirationDate)
	if err != nil {
		return nil, err
	}
	previousExpiration, err := nullDate(history.PreviousExpirationDate)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $3, expiration_date = $4
		WHERE id = $1 AND tenant_id = $2
	`, updated.ID, restock.TenantID, updated.Stock, newExpiration); err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO restock_history (
			tenant_id, product_id, quantity, previous_stock, new_stock,
			previous_expiration_date, new_expiration_date, date_of_restock, notes
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, restock.TenantID, history.ProductID, history.Quantity, history.PreviousStock, history.NewStock,
		previousExpiration, newExpiration, history.DateOfRestock, history.Notes).Scan(&history.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &history, nil
}

func (s *Store) ListRestockHistory(ctx context.Context, tenantID string, productID int64) ([]domain.RestockHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.tenant_id, h.product_id, COALESCE(p.name, ''), COALESCE(p.code, ''), h.quantity,
			h.previous_stock, h.new_stock, h.previous_expiration_date, h.new_expiration_date,
			h.date_of_restock, h.notes
		FROM restock_history h
		LEFT JOIN products p ON p.id = h.product_id AND p.tenant_id = h.tenant_id
		WHERE h.tenant_id = $1 AND ($2 = 0 OR h.product_id = $2)
		ORDER BY h.date_of_restock, h.id
	`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.RestockHistory, 0, 64)
	for rows.Next() {
		var h domain.RestockHistory
		var previous, next sql.NullTime
		if err := rows.Scan(&h.ID, &h.TenantID, &h.ProductID, &h.ProductName, &h.ProductCode, &h.Quantity,
			&h.PreviousStock, &h.NewStock, &previous, &next, &h.DateOfRestock, &h.Notes); err != nil {
			return nil, err
		}
		h.PreviousExpirationDate = dateString(previous)
		h.NewExpirationDate = dateString(next)
		h.DateOfRestock = h.DateOfRestock.In(s.loc)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context, tenantID string) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name
		FROM payment_methods
		WHERE tenant_id = $1 AND deleted IS NULL
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, tenantID string, id int64) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name
		FROM payment_methods
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, id, tenantID).Scan(&m.ID, &m.TenantID, &m.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_methods (tenant_id, name) VALUES ($1,$2) RETURNING id
	`, method.TenantID, method.Name).Scan(&method.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	method.Deleted = nil
	return &method, nil
}

func (s *Store) UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_methods SET name = $3
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, method.ID, method.TenantID, method.Name)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	method.Deleted = nil
	return &method, nil
}

func (s *Store) SoftDeletePaymentMethod(ctx context.Context, tenantID string, id int64, at time.Time) error {
	return s.softDelete(ctx, "payment_methods", tenantID, id, at)
}

func (s *Store) ListUnitMeasurements(ctx context.Context, tenantID string) ([]domain.UnitMeasurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, description
		FROM unit_measurements
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.UnitMeasurement, 0, 8)
	for rows.Next() {
		var u domain.UnitMeasurement
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Description); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) CreateUnitMeasurement(ctx context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO unit_measurements (tenant_id, name, description) VALUES ($1,$2,$3) RETURNING id
	`, unit.TenantID, unit.Name, unit.Description).Scan(&unit.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	return &unit, nil
}

func (s *Store) UpdateUnitMeasurement(ctx context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE unit_measurements SET name = $3, description = $4
		WHERE id = $1 AND tenant_id = $2
	`, unit.ID, unit.TenantID, unit.Name, unit.Description)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (s *Store) DeleteUnitMeasurement(ctx context.Context, tenantID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM unit_measurements WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return mapConstraint(err)
	}
	return expectAffected(res)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, []domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var methodID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM payment_methods
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, sale.PaymentMethodID, sale.TenantID).Scan(&methodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: payment method %d", store.ErrNotFound, sale.PaymentMethodID)
		}
		return nil, nil, err
	}

	// Rows are locked one at a time in ascending id order. A waiter re-reads the
	// committed stock once the holder commits.
	locked := make(map[int64]domain.Product)
	for _, id := range ledger.LockOrder(sale.Items) {
		p, err := s.scanProduct(tx.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
			FOR UPDATE
		`, id, sale.TenantID))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		locked[id] = p
	}

	plan, err := ledger.PlanSale(sale.Items, locked)
	if err != nil {
		return nil, nil, err
	}

	for _, id := range slices.Sorted(maps.Keys(plan.Stock)) {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = $3 WHERE id = $1 AND tenant_id = $2
		`, id, sale.TenantID, plan.Stock[id]); err != nil {
			return nil, nil, mapConstraint(err)
		}
	}

	created := domain.Transaction{
		TenantID:          sale.TenantID,
		DateOfTransaction: sale.DateOfTransaction,
		PaymentMethodID:   sale.PaymentMethodID,
		TotalPrice:        plan.Total,
		CashReceived:      sale.CashReceived,
		ReferenceNumber:   sale.ReferenceNumber,
		Status:            domain.TxStatusActive,
		EmailTo:           sale.EmailTo,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (
			tenant_id, date_of_transaction, payment_method_id, total_price, cash_received,
			reference_number, status, email_to
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, created.TenantID, created.DateOfTransaction, created.PaymentMethodID, created.TotalPrice,
		nullDecimal(created.CashReceived), created.ReferenceNumber, created.Status, created.EmailTo).Scan(&created.ID); err != nil {
		return nil, nil, mapConstraint(err)
	}

	orders := make([]domain.Order, 0, len(plan.Lines))
	for _, line := range plan.Lines {
		order := domain.Order{
			TenantID:      sale.TenantID,
			TransactionID: created.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			RefundStatus:  domain.RefundStatusNone,
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (tenant_id, transaction_id, product_id, quantity, unit_price, refunded_quantity, refund_status)
			VALUES ($1,$2,$3,$4,$5,0,$6)
			RETURNING id
		`, order.TenantID, order.TransactionID, order.ProductID, order.Quantity, order.UnitPrice, order.RefundStatus).Scan(&order.ID); err != nil {
			return nil, nil, mapConstraint(err)
		}
		orders = append(orders, order)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &created, orders, nil
}

const transactionColumns = `id, tenant_id, date_of_transaction, payment_method_id, total_price, cash_received,
	reference_number, status, email_to`

func (s *Store) GetTransaction(ctx context.Context, tenantID string, id int64) (*domain.Transaction, error) {
	t, err := s.scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tenantID string, id int64, patch domain.TransactionPatch) (*domain.Transaction, error) {
	t, err := s.scanTransaction(s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET email_to = COALESCE($3, email_to), reference_number = COALESCE($4, reference_number)
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+transactionColumns,
		id, tenantID, nullString(patch.EmailTo), nullString(patch.ReferenceNumber)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

const orderLineQuery = `
	SELECT o.id, o.tenant_id, o.transaction_id, o.product_id, o.quantity, o.unit_price,
		o.refunded_quantity, o.refund_status, p.name, p.sell_price, p.buy_price
	FROM orders o
	LEFT JOIN products p ON p.id = o.product_id AND p.tenant_id = o.tenant_id
`

func (s *Store) ListOrderLines(ctx context.Context, tenantID string, transactionID int64) ([]domain.OrderLine, error) {
	if _, err := s.GetTransaction(ctx, tenantID, transactionID); err != nil {
		return nil, err
	}
	return scanOrderLines(s.db.QueryContext(ctx, orderLineQuery+`
		WHERE o.tenant_id = $1 AND o.transaction_id = $2
		ORDER BY o.id
	`, tenantID, transactionID))
}

// ReportRows reads every normalized row of the report inside one read-only snapshot.
func (s *Store) ReportRows(ctx context.Context, tenantID string) (domain.ReportRows, error) {
	rows := domain.ReportRows{PaymentMethods: make(map[int64]string)}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return rows, err
	}
	defer func() { _ = tx.Rollback() }()

	txRows, err := tx.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
	if err != nil {
		return rows, err
	}
	for txRows.Next() {
		t, err := s.scanTransaction(txRows)
		if err != nil {
			_ = txRows.Close()
			return rows, err
		}
		rows.Transactions = append(rows.Transactions, t)
	}
	if err := txRows.Err(); err != nil {
		_ = txRows.Close()
		return rows, err
	}
	_ = txRows.Close()

	methodRows, err := tx.QueryContext(ctx, `SELECT id, name FROM payment_methods WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return rows, err
	}
	for methodRows.Next() {
		var id int64
		var name string
		if err := methodRows.Scan(&id, &name); err != nil {
			_ = methodRows.Close()
			return rows, err
		}
		rows.PaymentMethods[id] = name
	}
	if err := methodRows.Err(); err != nil {
		_ = methodRows.Close()
		return rows, err
	}
	_ = methodRows.Close()

	rows.Orders, err = scanOrderLines(tx.QueryContext(ctx, orderLineQuery+`
		WHERE o.tenant_id = $1
		ORDER BY o.id
	`, tenantID))
	if err != nil {
		return rows, err
	}

	rows.Refunds, err = s.queryRefunds(ctx, tx, `WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return rows, err
	}

	lineRows, err := tx.QueryContext(ctx, `
		SELECT ri.id, ri.tenant_id, ri.refund_id, ri.order_id, ri.product_id, p.name, ri.quantity, ri.amount,
			r.transaction_id, COALESCE(r.reason, '')
		FROM refund_items ri
		LEFT JOIN refunds r ON r.id = ri.refund_id AND r.tenant_id = ri.tenant_id
		LEFT JOIN products p ON p.id = ri.product_id AND p.tenant_id = ri.tenant_id
		WHERE ri.tenant_id = $1
		ORDER BY ri.id
	`, tenantID)
	if err != nil {
		return rows, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var line domain.RefundLine
		var productName sql.NullString
		var transactionID sql.NullInt64
		if err := lineRows.Scan(&line.ID, &line.TenantID, &line.RefundID, &line.OrderID, &line.ProductID, &productName,
			&line.Quantity, &line.Amount, &transactionID, &line.Reason); err != nil {
			return rows, err
		}
		line.ProductName = productName.String
		line.ProductKnown = productName.Valid
		line.TransactionID = transactionID.Int64
		rows.RefundLines = append(rows.RefundLines, line)
	}
	if err := lineRows.Err(); err != nil {
		return rows, err
	}

	return rows, nil
}

func (s *Store) CreateRefund(ctx context.Context, cmd domain.RefundCommand) (*domain.Refund, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx, `
		SELECT status FROM transactions
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, cmd.TransactionID, cmd.TenantID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %d", store.ErrNotFound, cmd.TransactionID)
		}
		return nil, err
	}

	orderRows, err := tx.QueryContext(ctx, `
		SELECT id, tenant_id, transaction_id, product_id, quantity, unit_price, refunded_quantity, refund_status
		FROM orders
		WHERE transaction_id = $1 AND tenant_id = $2
		ORDER BY id
		FOR UPDATE
	`, cmd.TransactionID, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 8)
	for orderRows.Next() {
		var o domain.Order
		if err := orderRows.Scan(&o.ID, &o.TenantID, &o.TransactionID, &o.ProductID, &o.Quantity, &o.UnitPrice,
			&o.RefundedQuantity, &o.RefundStatus); err != nil {
			_ = orderRows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := orderRows.Err(); err != nil {
		_ = orderRows.Close()
		return nil, err
	}
	_ = orderRows.Close()

	plan, err := ledger.PlanRefund(cmd, status, orders)
	if err != nil {
		return nil, err
	}

	refund := domain.Refund{
		TenantID:      cmd.TenantID,
		TransactionID: cmd.TransactionID,
		DateOfRefund:  cmd.At,
		TotalAmount:   plan.Total,
		Reason:        cmd.Reason,
		Type:          cmd.Type,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO refunds (tenant_id, transaction_id, date_of_refund, total_amount, reason, type)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, refund.TenantID, refund.TransactionID, refund.DateOfRefund, refund.TotalAmount, refund.Reason, refund.Type).Scan(&refund.ID); err != nil {
		return nil, mapConstraint(err)
	}

	for _, order := range plan.Orders {
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET refunded_quantity = $3, refund_status = $4
			WHERE id = $1 AND tenant_id = $2
		`, order.ID, cmd.TenantID, order.RefundedQuantity, order.RefundStatus); err != nil {
			return nil, mapConstraint(err)
		}
	}

	productIDs := slices.Sorted(maps.Keys(plan.Restock))
	names := make(map[int64]string, len(productIDs))
	for _, productID := range productIDs {
		var name string
		err := tx.QueryRowContext(ctx, `
			UPDATE products SET stock = stock + $3
			WHERE id = $1 AND tenant_id = $2
			RETURNING name
		`, productID, cmd.TenantID, plan.Restock[productID]).Scan(&name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		names[productID] = name
	}

	for _, item := range plan.Items {
		item.RefundID = refund.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO refund_items (tenant_id, refund_id, order_id, product_id, quantity, amount)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, cmd.TenantID, item.RefundID, item.OrderID, item.ProductID, item.Quantity, item.Amount).Scan(&item.ID); err != nil {
			return nil, mapConstraint(err)
		}
		item.ProductName = names[item.ProductID]
		refund.Items = append(refund.Items, item)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $3 WHERE id = $1 AND tenant_id = $2
	`, cmd.TransactionID, cmd.TenantID, plan.Status); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) ListRefunds(ctx context.Context, tenantID string) ([]domain.Refund, error) {
	return s.queryRefunds(ctx, s.db, `WHERE tenant_id = $1 ORDER BY date_of_refund, id`, tenantID)
}

func (s *Store) ListRefundsByTransaction(ctx context.Context, tenantID string, transactionID int64) ([]domain.Refund, error) {
	if _, err := s.GetTransaction(ctx, tenantID, transactionID); err != nil {
		return nil, err
	}
	return s.queryRefunds(ctx, s.db, `WHERE tenant_id = $1 AND transaction_id = $2 ORDER BY date_of_refund, id`, tenantID, transactionID)
}

func (s *Store) GetRefund(ctx context.Context, tenantID string, id int64) (*domain.Refund, error) {
	refunds, err := s.queryRefunds(ctx, s.db, `WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(refunds) == 0 {
		return nil, store.ErrNotFound
	}
	refund := refunds[0]

	rows, err := s.db.QueryContext(ctx, `
		SELECT ri.id, ri.tenant_id, ri.refund_id, ri.order_id, ri.product_id, COALESCE(p.name, ''), ri.quantity, ri.amount
		FROM refund_items ri
		LEFT JOIN products p ON p.id = ri.product_id AND p.tenant_id = ri.tenant_id
		WHERE ri.refund_id = $1 AND ri.tenant_id = $2
		ORDER BY ri.id
	`, id, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refund.Items = make([]domain.RefundItem, 0, 4)
	for rows.Next() {
		var item domain.RefundItem
		if err := rows.Scan(&item.ID, &item.TenantID, &item.RefundID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Amount); err != nil {
			return nil, err
		}
		refund.Items = append(refund.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) queryRefunds(ctx context.Context, q queryer, where string, args ...any) ([]domain.Refund, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, transaction_id, date_of_refund, total_amount, reason, type
		FROM refunds `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0, 16)
	for rows.Next() {
		var r domain.Refund
		if err := rows.Scan(&r.ID, &r.TenantID, &r.TransactionID, &r.DateOfRefund, &r.TotalAmount, &r.Reason, &r.Type); err != nil {
			return nil, err
		}
		r.DateOfRefund = r.DateOfRefund.In(s.loc)
		refunds = append(refunds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, tenant_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.TenantID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrValidation)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, tenant_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.TenantID, &user.Active, &user.CreatedAt); err != nil {
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
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) softDelete(ctx context.Context, table string, tenantID string, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET deleted = $3
		WHERE id = $1 AND tenant_id = $2 AND deleted IS NULL
	`, id, tenantID, at)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) scanCategory(row rowScanner) (domain.Category, error) {
	var c domain.Category
	var parent sql.NullInt64
	var deleted sql.NullTime
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &parent, &deleted); err != nil {
		return domain.Category{}, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	c.Deleted = s.localTime(deleted)
	return c, nil
}

func (s *Store) scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var lowStock, category sql.NullInt64
	var expiration, deleted sql.NullTime
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Code, &p.Brand, &p.Description, &p.ImageURL, &p.BuyPrice,
		&p.SellPrice, &p.Stock, &lowStock, &expiration, &category, &p.UnitMeasurement, &deleted); err != nil {
		return domain.Product{}, err
	}
	if lowStock.Valid {
		level := int(lowStock.Int64)
		p.LowStockLevel = &level
	}
	if category.Valid {
		p.CategoryID = &category.Int64
	}
	p.ExpirationDate = dateString(expiration)
	p.Deleted = s.localTime(deleted)
	return p, nil
}

func (s *Store) scanTransaction(row rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	var cash decimal.NullDecimal
	if err := row.Scan(&t.ID, &t.TenantID, &t.DateOfTransaction, &t.PaymentMethodID, &t.TotalPrice, &cash,
		&t.ReferenceNumber, &t.Status, &t.EmailTo); err != nil {
		return domain.Transaction{}, err
	}
	if cash.Valid {
		t.CashReceived = &cash.Decimal
	}
	t.DateOfTransaction = t.DateOfTransaction.In(s.loc)
	return t, nil
}

func scanOrderLines(rows *sql.Rows, err error) ([]domain.OrderLine, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 16)
	for rows.Next() {
		var line domain.OrderLine
		var name sql.NullString
		var sell, buy decimal.NullDecimal
		if err := rows.Scan(&line.ID, &line.TenantID, &line.TransactionID, &line.ProductID, &line.Quantity, &line.UnitPrice,
			&line.RefundedQuantity, &line.RefundStatus, &name, &sell, &buy); err != nil {
			return nil, err
		}
		line.ProductKnown = name.Valid
		line.ProductName = name.String
		line.ProductSellPrice = sell.Decimal
		line.ProductBuyPrice = buy.Decimal
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func int64Column(ctx context.Context, q queryer, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0, 8)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) localTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.In(s.loc)
	return &t
}

func expectAffected(res sql.Result) error {
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

// mapConstraint turns integrity violations into validation errors.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: duplicate value (%s)", store.ErrValidation, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: referenced row does not exist (%s)", store.ErrValidation, pgErr.ConstraintName)
	case "23514":
		return fmt.Errorf("%w: check failed (%s)", store.ErrValidation, pgErr.ConstraintName)
	default:
		return err
	}
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullID(val *int64) any {
	if val == nil || *val == 0 {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *string) (any, error) {
	if val == nil || *val == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, *val)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", store.ErrValidation, *val)
	}
	return t, nil
}

func dateString(val sql.NullTime) *string {
	if !val.Valid {
		return nil
	}
	s := val.Time.Format(domain.DateLayout)
	return &s
}
