package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/ledger"
	"sarisari/backend/internal/store"
)

// DemoTenantID owns the rows created by NewSeeded.
const DemoTenantID = "tenant-demo"

type Store struct {
	mu              sync.RWMutex
	lastID          int64
	categories      map[int64]domain.Category
	products        map[int64]domain.Product
	paymentMethods  map[int64]domain.PaymentMethod
	units           map[int64]domain.UnitMeasurement
	transactions    map[int64]domain.Transaction
	orders          map[int64]domain.Order
	refunds         map[int64]domain.Refund
	refundItems     []domain.RefundItem
	restocks        []domain.RestockHistory
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		categories:      make(map[int64]domain.Category),
		products:        make(map[int64]domain.Product),
		paymentMethods:  make(map[int64]domain.PaymentMethod),
		units:           make(map[int64]domain.UnitMeasurement),
		transactions:    make(map[int64]domain.Transaction),
		orders:          make(map[int64]domain.Order),
		refunds:         make(map[int64]domain.Refund),
		refundItems:     make([]domain.RefundItem, 0, 64),
		restocks:        make([]domain.RestockHistory, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo account for dev mode. The password is read from
// SEED_DEMO_PASSWORD; when unset a dev default is used and a warning is logged.
// The in-memory store is never used when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	password := envOr("SEED_DEMO_PASSWORD", "demo12345")
	if os.Getenv("SEED_DEMO_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_DEMO_PASSWORD to override")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"demo": {
			Username:  "demo",
			Password:  string(hash),
			TenantID:  DemoTenantID,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a demo tenant: payment methods, units, a small
// category tree and a handful of stocked products.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	for _, name := range []string{"Cash", "GCash"} {
		id := s.nextID()
		s.paymentMethods[id] = domain.PaymentMethod{ID: id, TenantID: DemoTenantID, Name: name}
	}
	for _, u := range []domain.UnitMeasurement{
		{Name: "pcs", Description: "Piece"},
		{Name: "pack", Description: "Pack"},
		{Name: "kg", Description: "Kilogram"},
	} {
		u.ID = s.nextID()
		u.TenantID = DemoTenantID
		s.units[u.ID] = u
	}

	beverages := s.nextID()
	s.categories[beverages] = domain.Category{ID: beverages, TenantID: DemoTenantID, Name: "Beverages"}
	coffee := s.nextID()
	s.categories[coffee] = domain.Category{ID: coffee, TenantID: DemoTenantID, Name: "Coffee", ParentID: &beverages}
	snacks := s.nextID()
	s.categories[snacks] = domain.Category{ID: snacks, TenantID: DemoTenantID, Name: "Snacks"}

	lowStock := 10
	for _, p := range []struct {
		name, code, unit string
		buy, sell        string
		stock            int
		category         int64
	}{
		{"3-in-1 Coffee Sachet", "BEV-COF-01", "pcs", "7.50", "10.00", 120, coffee},
		{"Bottled Water 500ml", "BEV-WAT-01", "pcs", "9.00", "15.00", 80, beverages},
		{"Instant Pancit Canton", "SNK-NDL-01", "pack", "11.25", "16.00", 60, snacks},
		{"Potato Chips", "SNK-CHP-01", "pack", "18.00", "25.00", 40, snacks},
	} {
		category := p.category
		id := s.nextID()
		s.products[id] = domain.Product{
			ID:              id,
			TenantID:        DemoTenantID,
			Name:            p.name,
			Code:            p.code,
			BuyPrice:        decimal.RequireFromString(p.buy),
			SellPrice:       decimal.RequireFromString(p.sell),
			Stock:           p.stock,
			LowStockLevel:   &lowStock,
			CategoryID:      &category,
			UnitMeasurement: p.unit,
		}
	}

	return s
}

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) ListCategories(_ context.Context, tenantID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if c.TenantID == tenantID && c.Deleted == nil {
			out = append(out, cloneCategory(c))
		}
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, tenantID string, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.liveCategory(tenantID, id)
}

// liveCategory expects the caller to hold s.mu.
func (s *Store) liveCategory(tenantID string, id int64) (*domain.Category, error) {
	c, ok := s.categories[id]
	if !ok || c.TenantID != tenantID || c.Deleted != nil {
		return nil, store.ErrNotFound
	}
	out := cloneCategory(c)
	return &out, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.ID = s.nextID()
	category.Deleted = nil
	s.categories[category.ID] = cloneCategory(category)
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, tenantID string, id int64, apply func(*domain.Category, store.CategoryLookup) error) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, err := s.liveCategory(tenantID, id)
	if err != nil {
		return nil, err
	}
	lookup := func(other int64) (*domain.Category, error) {
		return s.liveCategory(tenantID, other)
	}
	if err := apply(category, lookup); err != nil {
		return nil, err
	}

	category.ID = id
	category.TenantID = tenantID
	category.Deleted = nil
	s.categories[id] = cloneCategory(*category)
	return category, nil
}

func (s *Store) SoftDeleteCategoryTree(_ context.Context, tenantID string, id int64, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.categories[id]
	if !ok || root.TenantID != tenantID || root.Deleted != nil {
		return 0, store.ErrNotFound
	}

	ids, err := store.CollectSubtree(id, func(parents []int64) ([]int64, error) {
		children := make([]int64, 0)
		for _, c := range s.categories {
			if c.TenantID != tenantID || c.Deleted != nil || c.ParentID == nil {
				continue
			}
			if slices.Contains(parents, *c.ParentID) {
				children = append(children, c.ID)
			}
		}
		slices.Sort(children)
		return children, nil
	})
	if err != nil {
		return 0, err
	}

	for _, cid := range ids {
		c := s.categories[cid]
		deletedAt := at
		c.Deleted = &deletedAt
		s.categories[cid] = c
	}
	return len(ids), nil
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.TenantID == tenantID && p.Deleted == nil {
			out = append(out, cloneProduct(p))
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, tenantID string, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok || p.TenantID != tenantID || p.Deleted != nil {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.TenantID == product.TenantID && p.Deleted == nil && strings.EqualFold(p.Code, product.Code) {
			return nil, fmt.Errorf("%w: product code %s already exists", store.ErrValidation, product.Code)
		}
	}

	product.ID = s.nextID()
	product.Deleted = nil
	s.products[product.ID] = cloneProduct(product)
	return &product, nil
}

// UpdateProduct writes catalog fields only; stock moves through sales, refunds and restocks.
func (s *Store) UpdateProduct(_ context.Context, tenantID string, id int64, apply func(*domain.Product) error) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok || existing.TenantID != tenantID || existing.Deleted != nil {
		return nil, store.ErrNotFound
	}
	product := cloneProduct(existing)
	if err := apply(&product); err != nil {
		return nil, err
	}
	for _, p := range s.products {
		if p.ID != id && p.TenantID == tenantID && p.Deleted == nil && strings.EqualFold(p.Code, product.Code) {
			return nil, fmt.Errorf("%w: product code %s already exists", store.ErrValidation, product.Code)
		}
	}

	product.ID = id
	product.TenantID = tenantID
	product.Stock = existing.Stock
	product.Deleted = nil
	s.products[id] = cloneProduct(product)
	return &product, nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, tenantID string, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.TenantID != tenantID || p.Deleted != nil {
		return store.ErrNotFound
	}
	p.Deleted = &at
	s.products[id] = p
	return nil
}

func (s *Store) Restock(_ context.Context, restock domain.Restock) (*domain.RestockHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[restock.ProductID]
	if !ok || product.TenantID != restock.TenantID || product.Deleted != nil {
		return nil, store.ErrNotFound
	}

	updated, history, err := ledger.PlanRestock(cloneProduct(product), restock)
	if err != nil {
		return nil, err
	}
	history.ID = s.nextID()
	s.products[updated.ID] = updated
	s.restocks = append(s.restocks, history)
	return &history, nil
}

func (s *Store) ListRestockHistory(_ context.Context, tenantID string, productID int64) ([]domain.RestockHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RestockHistory, 0, len(s.restocks))
	for _, h := range s.restocks {
		if h.TenantID != tenantID || (productID > 0 && h.ProductID != productID) {
			continue
		}
		if p, ok := s.products[h.ProductID]; ok {
			h.ProductName = p.Name
			h.ProductCode = p.Code
		}
		out = append(out, h)
	}
	slices.SortStableFunc(out, func(a, b domain.RestockHistory) int {
		if c := a.DateOfRestock.Compare(b.DateOfRestock); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListPaymentMethods(_ context.Context, tenantID string) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PaymentMethod, 0, len(s.paymentMethods))
	for _, m := range s.paymentMethods {
		if m.TenantID == tenantID && m.Deleted == nil {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b domain.PaymentMethod) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, tenantID string, id int64) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.paymentMethods[id]
	if !ok || m.TenantID != tenantID || m.Deleted != nil {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method.ID = s.nextID()
	method.Deleted = nil
	s.paymentMethods[method.ID] = method
	return &method, nil
}

func (s *Store) UpdatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.paymentMethods[method.ID]
	if !ok || existing.TenantID != method.TenantID || existing.Deleted != nil {
		return nil, store.ErrNotFound
	}
	method.Deleted = nil
	s.paymentMethods[method.ID] = method
	return &method, nil
}

func (s *Store) SoftDeletePaymentMethod(_ context.Context, tenantID string, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.paymentMethods[id]
	if !ok || m.TenantID != tenantID || m.Deleted != nil {
		return store.ErrNotFound
	}
	m.Deleted = &at
	s.paymentMethods[id] = m
	return nil
}

func (s *Store) ListUnitMeasurements(_ context.Context, tenantID string) ([]domain.UnitMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UnitMeasurement, 0, len(s.units))
	for _, u := range s.units {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b domain.UnitMeasurement) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) CreateUnitMeasurement(_ context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit.ID = s.nextID()
	s.units[unit.ID] = unit
	return &unit, nil
}

func (s *Store) UpdateUnitMeasurement(_ context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.units[unit.ID]
	if !ok || existing.TenantID != unit.TenantID {
		return nil, store.ErrNotFound
	}
	s.units[unit.ID] = unit
	return &unit, nil
}

func (s *Store) DeleteUnitMeasurement(_ context.Context, tenantID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[id]
	if !ok || u.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(s.units, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Transaction, []domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, ok := s.paymentMethods[sale.PaymentMethodID]
	if !ok || method.TenantID != sale.TenantID || method.Deleted != nil {
		return nil, nil, fmt.Errorf("%w: payment method %d", store.ErrNotFound, sale.PaymentMethodID)
	}

	locked := make(map[int64]domain.Product)
	for _, id := range ledger.LockOrder(sale.Items) {
		if p, ok := s.products[id]; ok && p.TenantID == sale.TenantID {
			locked[id] = p
		}
	}
	plan, err := ledger.PlanSale(sale.Items, locked)
	if err != nil {
		return nil, nil, err
	}

	for id, stock := range plan.Stock {
		p := s.products[id]
		p.Stock = stock
		s.products[id] = p
	}

	tx := domain.Transaction{
		ID:                s.nextID(),
		TenantID:          sale.TenantID,
		DateOfTransaction: sale.DateOfTransaction,
		PaymentMethodID:   sale.PaymentMethodID,
		TotalPrice:        plan.Total,
		CashReceived:      sale.CashReceived,
		ReferenceNumber:   sale.ReferenceNumber,
		Status:            domain.TxStatusActive,
		EmailTo:           sale.EmailTo,
	}
	s.transactions[tx.ID] = tx

	orders := make([]domain.Order, 0, len(plan.Lines))
	for _, line := range plan.Lines {
		order := domain.Order{
			ID:            s.nextID(),
			TenantID:      sale.TenantID,
			TransactionID: tx.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			RefundStatus:  domain.RefundStatusNone,
		}
		s.orders[order.ID] = order
		orders = append(orders, order)
	}

	return &tx, orders, nil
}

func (s *Store) GetTransaction(_ context.Context, tenantID string, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tenantID string, id int64, patch domain.TransactionPatch) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if patch.EmailTo != nil {
		tx.EmailTo = *patch.EmailTo
	}
	if patch.ReferenceNumber != nil {
		tx.ReferenceNumber = *patch.ReferenceNumber
	}
	s.transactions[id] = tx
	return &tx, nil
}

func (s *Store) ListOrderLines(_ context.Context, tenantID string, transactionID int64) ([]domain.OrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, ok := s.transactions[transactionID]; !ok || tx.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	lines := make([]domain.OrderLine, 0)
	for _, o := range s.orders {
		if o.TransactionID == transactionID && o.TenantID == tenantID {
			lines = append(lines, s.orderLine(o))
		}
	}
	slices.SortFunc(lines, func(a, b domain.OrderLine) int { return cmp.Compare(a.ID, b.ID) })
	return lines, nil
}

func (s *Store) orderLine(o domain.Order) domain.OrderLine {
	line := domain.OrderLine{Order: o}
	if p, ok := s.products[o.ProductID]; ok {
		line.ProductName = p.Name
		line.ProductSellPrice = p.SellPrice
		line.ProductBuyPrice = p.BuyPrice
		line.ProductKnown = true
	}
	return line
}

func (s *Store) ReportRows(_ context.Context, tenantID string) (domain.ReportRows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := domain.ReportRows{PaymentMethods: make(map[int64]string)}
	for _, tx := range s.transactions {
		if tx.TenantID == tenantID {
			rows.Transactions = append(rows.Transactions, tx)
		}
	}
	slices.SortFunc(rows.Transactions, func(a, b domain.Transaction) int { return cmp.Compare(a.ID, b.ID) })

	for _, m := range s.paymentMethods {
		if m.TenantID == tenantID {
			rows.PaymentMethods[m.ID] = m.Name
		}
	}
	for _, o := range s.orders {
		if o.TenantID == tenantID {
			rows.Orders = append(rows.Orders, s.orderLine(o))
		}
	}
	slices.SortFunc(rows.Orders, func(a, b domain.OrderLine) int { return cmp.Compare(a.ID, b.ID) })

	for _, r := range s.refunds {
		if r.TenantID == tenantID {
			rows.Refunds = append(rows.Refunds, r)
		}
	}
	slices.SortFunc(rows.Refunds, func(a, b domain.Refund) int { return cmp.Compare(a.ID, b.ID) })

	for _, item := range s.refundItems {
		if item.TenantID != tenantID {
			continue
		}
		refund := s.refunds[item.RefundID]
		_, known := s.products[item.ProductID]
		rows.RefundLines = append(rows.RefundLines, domain.RefundLine{
			RefundItem:    s.namedRefundItem(item),
			TransactionID: refund.TransactionID,
			Reason:        refund.Reason,
			ProductKnown:  known,
		})
	}
	return rows, nil
}

func (s *Store) CreateRefund(_ context.Context, cmd domain.RefundCommand) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[cmd.TransactionID]
	if !ok || tx.TenantID != cmd.TenantID {
		return nil, fmt.Errorf("%w: transaction %d", store.ErrNotFound, cmd.TransactionID)
	}

	orders := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.TransactionID == tx.ID && o.TenantID == cmd.TenantID {
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })

	plan, err := ledger.PlanRefund(cmd, tx.Status, orders)
	if err != nil {
		return nil, err
	}

	refund := domain.Refund{
		ID:            s.nextID(),
		TenantID:      cmd.TenantID,
		TransactionID: tx.ID,
		DateOfRefund:  cmd.At,
		TotalAmount:   plan.Total,
		Reason:        cmd.Reason,
		Type:          cmd.Type,
	}
	s.refunds[refund.ID] = refund

	for _, order := range plan.Orders {
		s.orders[order.ID] = order
	}
	for _, item := range plan.Items {
		item.ID = s.nextID()
		item.RefundID = refund.ID
		s.refundItems = append(s.refundItems, item)
		refund.Items = append(refund.Items, s.namedRefundItem(item))
	}
	for productID, qty := range plan.Restock {
		if p, ok := s.products[productID]; ok && p.TenantID == cmd.TenantID {
			p.Stock += qty
			s.products[productID] = p
		}
	}
	tx.Status = plan.Status
	s.transactions[tx.ID] = tx

	return &refund, nil
}

func (s *Store) namedRefundItem(item domain.RefundItem) domain.RefundItem {
	if p, ok := s.products[item.ProductID]; ok {
		item.ProductName = p.Name
	}
	return item
}

func (s *Store) ListRefunds(_ context.Context, tenantID string) ([]domain.Refund, error) {
	return s.listRefunds(tenantID, 0), nil
}

func (s *Store) ListRefundsByTransaction(_ context.Context, tenantID string, transactionID int64) ([]domain.Refund, error) {
	s.mu.RLock()
	tx, ok := s.transactions[transactionID]
	s.mu.RUnlock()
	if !ok || tx.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return s.listRefunds(tenantID, transactionID), nil
}

func (s *Store) listRefunds(tenantID string, transactionID int64) []domain.Refund {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Refund, 0)
	for _, r := range s.refunds {
		if r.TenantID != tenantID || (transactionID > 0 && r.TransactionID != transactionID) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.Refund) int {
		if c := a.DateOfRefund.Compare(b.DateOfRefund); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) GetRefund(_ context.Context, tenantID string, id int64) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refund, ok := s.refunds[id]
	if !ok || refund.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	refund.Items = make([]domain.RefundItem, 0)
	for _, item := range s.refundItems {
		if item.RefundID == id {
			refund.Items = append(refund.Items, s.namedRefundItem(item))
		}
	}
	return &refund, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrValidation)
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[key] = user
	return nil
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.LowStockLevel = clonePtr(src.LowStockLevel)
	dst.ExpirationDate = clonePtr(src.ExpirationDate)
	dst.CategoryID = clonePtr(src.CategoryID)
	dst.Deleted = clonePtr(src.Deleted)
	return dst
}

func cloneCategory(src domain.Category) domain.Category {
	dst := src
	dst.ParentID = clonePtr(src.ParentID)
	dst.Deleted = clonePtr(src.Deleted)
	return dst
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
