package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sarisari/backend/internal/cache"
	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/report"
	"sarisari/backend/internal/store"
	"sarisari/backend/internal/store/memory"
)

const tenant = memory.DemoTenantID

var manila = time.FixedZone("PHT", 8*60*60)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService() *Service {
	repo := memory.NewSeeded()
	logger := quietLogger()
	engine := report.NewEngine(cache.NewMemoryReportCache(), time.Minute, logger)
	return New(repo, engine, manila, logger)
}

func productByCode(t *testing.T, svc *Service, code string) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(context.Background(), tenant)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if p.Code == code {
			return p
		}
	}
	t.Fatalf("product %s not seeded", code)
	return domain.Product{}
}

func methodByName(t *testing.T, svc *Service, name string) domain.PaymentMethod {
	t.Helper()
	methods, err := svc.ListPaymentMethods(context.Background(), tenant)
	if err != nil {
		t.Fatalf("list payment methods: %v", err)
	}
	for _, m := range methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("payment method %s not seeded", name)
	return domain.PaymentMethod{}
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func sell(t *testing.T, svc *Service, productID int64, qty int) domain.SaleResponse {
	t.Helper()
	cash := methodByName(t, svc, "Cash")
	resp, err := svc.CreateSale(context.Background(), tenant, domain.SaleRequest{
		Items:           []domain.SaleItem{{ProductID: productID, Quantity: qty}},
		PaymentMethodID: cash.ID,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	return resp
}

func TestCreateSaleDecrementsStockAndCapturesPrice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	water := productByCode(t, svc, "BEV-WAT-01")
	cash := methodByName(t, svc, "Cash")

	resp, err := svc.CreateSale(ctx, tenant, domain.SaleRequest{
		Items: []domain.SaleItem{
			{ProductID: coffee.ID, Quantity: 3},
			{ProductID: water.ID, Quantity: 2},
		},
		PaymentMethodID: cash.ID,
		TotalPrice:      amount("60"),
		CashReceived:    amount("100"),
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if !resp.Success || resp.Transaction.Status != domain.TxStatusActive {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !resp.Transaction.TotalPrice.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected total 60, got %s", resp.Transaction.TotalPrice)
	}
	if len(resp.Orders) != 2 || !resp.Orders[0].UnitPrice.Equal(coffee.SellPrice) {
		t.Fatalf("expected captured unit prices, got %+v", resp.Orders)
	}
	if resp.Transaction.DateOfTransaction.Location() != manila {
		t.Fatalf("expected tenant-local timestamp, got %s", resp.Transaction.DateOfTransaction)
	}

	if got := productByCode(t, svc, "BEV-COF-01").Stock; got != coffee.Stock-3 {
		t.Fatalf("expected coffee stock %d, got %d", coffee.Stock-3, got)
	}

	// a later price change must not rewrite the captured order price
	if _, err := svc.UpdateProduct(ctx, tenant, coffee.ID, domain.ProductPatch{SellPrice: amount("12")}); err != nil {
		t.Fatalf("update product: %v", err)
	}
	editor, err := svc.RefundEditor(ctx, tenant, resp.Transaction.ID)
	if err != nil {
		t.Fatalf("refund editor: %v", err)
	}
	if !editor.Items[0].UnitPrice.Equal(coffee.SellPrice) {
		t.Fatalf("expected captured price %s, got %s", coffee.SellPrice, editor.Items[0].UnitPrice)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	cash := methodByName(t, svc, "Cash")
	gcash := methodByName(t, svc, "GCash")

	cases := []struct {
		name string
		req  domain.SaleRequest
		want error
	}{
		{"empty cart", domain.SaleRequest{PaymentMethodID: cash.ID}, store.ErrValidation},
		{"zero quantity", domain.SaleRequest{PaymentMethodID: cash.ID, Items: []domain.SaleItem{{ProductID: coffee.ID}}}, store.ErrValidation},
		{"unknown method", domain.SaleRequest{PaymentMethodID: 9999, Items: []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}}}, store.ErrNotFound},
		{"gcash without reference", domain.SaleRequest{PaymentMethodID: gcash.ID, Items: []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}}}, store.ErrValidation},
		{"cash short", domain.SaleRequest{PaymentMethodID: cash.ID, CashReceived: amount("5"), Items: []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}}}, store.ErrValidation},
		{"unknown product", domain.SaleRequest{PaymentMethodID: cash.ID, Items: []domain.SaleItem{{ProductID: 9999, Quantity: 1}}}, store.ErrNotFound},
		{"bad email", domain.SaleRequest{PaymentMethodID: cash.ID, EmailTo: "nope", Items: []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}}}, store.ErrValidation},
		{"out of stock", domain.SaleRequest{PaymentMethodID: cash.ID, Items: []domain.SaleItem{{ProductID: coffee.ID, Quantity: coffee.Stock + 1}}}, store.ErrOutOfStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSale(ctx, tenant, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if got := productByCode(t, svc, "BEV-COF-01").Stock; got != coffee.Stock {
		t.Fatalf("failed sales must not touch stock, got %d", got)
	}

	resp, err := svc.CreateSale(ctx, tenant, domain.SaleRequest{
		PaymentMethodID: gcash.ID,
		ReferenceNumber: " GC-1029 ",
		Items:           []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("gcash sale with reference failed: %v", err)
	}
	if resp.Transaction.ReferenceNumber != "GC-1029" {
		t.Fatalf("expected trimmed reference, got %q", resp.Transaction.ReferenceNumber)
	}
}

func TestConcurrentSalesOfLastUnit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	product, err := svc.CreateProduct(ctx, tenant, domain.ProductInput{
		Name:      "Last Bread",
		Code:      "BRD-LAST",
		BuyPrice:  decimal.NewFromInt(5),
		SellPrice: decimal.NewFromInt(8),
		Stock:     1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	cash := methodByName(t, svc, "Cash")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSale(ctx, tenant, domain.SaleRequest{
				PaymentMethodID: cash.ID,
				Items:           []domain.SaleItem{{ProductID: product.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || outOfStock != 1 {
		t.Fatalf("expected one success and one out of stock, got %d/%d", succeeded, outOfStock)
	}
	if got, _ := svc.GetProduct(ctx, tenant, product.ID); got.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", got.Stock)
	}
}

func TestPartialThenFullRefundLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	sale := sell(t, svc, coffee.ID, 5)
	order := sale.Orders[0]

	resp, err := svc.CreateRefund(ctx, tenant, domain.RefundRequest{
		TransactionID: sale.Transaction.ID,
		Type:          domain.RefundTypePartial,
		Reason:        "damaged",
		TotalAmount:   amount("1"),
		Items:         []domain.RefundEntry{{OrderID: order.ID, QuantityToRefund: 2}},
	})
	if err != nil {
		t.Fatalf("partial refund failed: %v", err)
	}
	refund, err := svc.GetRefund(ctx, tenant, resp.RefundID)
	if err != nil {
		t.Fatalf("get refund: %v", err)
	}
	if !refund.TotalAmount.Equal(decimal.NewFromInt(20)) || len(refund.Items) != 1 {
		t.Fatalf("expected a 20.00 refund with one item, got %+v", refund)
	}
	if got := productByCode(t, svc, "BEV-COF-01").Stock; got != coffee.Stock-3 {
		t.Fatalf("expected restocked coffee %d, got %d", coffee.Stock-3, got)
	}

	reports, err := svc.ListTransactions(ctx, tenant)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(reports) != 1 || reports[0].Status != domain.TxStatusPartiallyRefunded {
		t.Fatalf("expected partially refunded report, got %+v", reports)
	}
	if reports[0].RefundReasons != "damaged" || !reports[0].TotalRefund.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected refund figures %+v", reports[0])
	}

	_, err = svc.CreateRefund(ctx, tenant, domain.RefundRequest{
		TransactionID: sale.Transaction.ID,
		Type:          domain.RefundTypePartial,
		Items:         []domain.RefundEntry{{OrderID: order.ID, QuantityToRefund: 4}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected over-refund to fail validation, got %v", err)
	}

	if _, err := svc.CreateRefund(ctx, tenant, domain.RefundRequest{
		TransactionID: sale.Transaction.ID,
		Type:          domain.RefundTypeFull,
		Reason:        "changed mind",
	}); err != nil {
		t.Fatalf("full refund failed: %v", err)
	}

	editor, err := svc.RefundEditor(ctx, tenant, sale.Transaction.ID)
	if err != nil {
		t.Fatalf("refund editor: %v", err)
	}
	if editor.Transaction.Status != domain.TxStatusRefunded || editor.Items[0].AvailableQuantity != 0 || editor.Items[0].RefundStatus != domain.RefundStatusFull {
		t.Fatalf("expected fully refunded editor, got %+v", editor)
	}
	if got := productByCode(t, svc, "BEV-COF-01").Stock; got != coffee.Stock {
		t.Fatalf("expected stock restored to %d, got %d", coffee.Stock, got)
	}

	refunds, err := svc.ListTransactionRefunds(ctx, tenant, sale.Transaction.ID)
	if err != nil || len(refunds) != 2 {
		t.Fatalf("expected two refunds, got %d (%v)", len(refunds), err)
	}

	reports, _ = svc.ListTransactions(ctx, tenant)
	if reports[0].RefundReasons != "damaged; changed mind" {
		t.Fatalf("expected joined reasons, got %q", reports[0].RefundReasons)
	}

	_, err = svc.CreateRefund(ctx, tenant, domain.RefundRequest{TransactionID: sale.Transaction.ID, Type: domain.RefundTypeFull})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected nothing left to refund, got %v", err)
	}
}

func TestRefundRejectsEmptyAndUnknownInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	sale := sell(t, svc, coffee.ID, 1)
	order := sale.Orders[0]

	cases := []struct {
		name string
		req  domain.RefundRequest
		want error
	}{
		{"all zero", domain.RefundRequest{TransactionID: sale.Transaction.ID, Type: "partial", Items: []domain.RefundEntry{{OrderID: order.ID}}}, store.ErrValidation},
		{"negative", domain.RefundRequest{TransactionID: sale.Transaction.ID, Type: "partial", Items: []domain.RefundEntry{{OrderID: order.ID, QuantityToRefund: -1}}}, store.ErrValidation},
		{"bad type", domain.RefundRequest{TransactionID: sale.Transaction.ID, Type: "store-credit", Items: []domain.RefundEntry{{OrderID: order.ID, QuantityToRefund: 1}}}, store.ErrValidation},
		{"unknown order", domain.RefundRequest{TransactionID: sale.Transaction.ID, Type: "partial", Items: []domain.RefundEntry{{OrderID: 9999, QuantityToRefund: 1}}}, store.ErrNotFound},
		{"unknown transaction", domain.RefundRequest{TransactionID: 9999, Type: "full"}, store.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRefund(ctx, tenant, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	editor, err := svc.RefundEditor(ctx, tenant, sale.Transaction.ID)
	if err != nil {
		t.Fatalf("refund editor: %v", err)
	}
	if editor.Transaction.Status != domain.TxStatusActive || editor.Items[0].RefundedQuantity != 0 {
		t.Fatalf("rejected refunds must not change state, got %+v", editor)
	}
}

func TestRestockProduct(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	chips := productByCode(t, svc, "SNK-CHP-01")
	expiry := "2026-01-31"

	history, err := svc.RestockProduct(ctx, tenant, chips.ID, domain.RestockRequest{Quantity: 20, ExpirationDate: &expiry, Notes: " delivery "})
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if history.PreviousStock != chips.Stock || history.NewStock != chips.Stock+20 || history.Notes != "delivery" {
		t.Fatalf("unexpected history %+v", history)
	}
	if history.NewExpirationDate == nil || *history.NewExpirationDate != expiry || history.PreviousExpirationDate != nil {
		t.Fatalf("unexpected expiration trail %+v", history)
	}

	// correction without a date keeps the expiration
	if _, err := svc.RestockProduct(ctx, tenant, chips.ID, domain.RestockRequest{Quantity: -5}); err != nil {
		t.Fatalf("correction failed: %v", err)
	}
	product, _ := svc.GetProduct(ctx, tenant, chips.ID)
	if product.Stock != chips.Stock+15 || product.ExpirationDate == nil || *product.ExpirationDate != expiry {
		t.Fatalf("unexpected product after restocks %+v", product)
	}

	trail, err := svc.RestockHistory(ctx, tenant, chips.ID)
	if err != nil || len(trail) != 2 {
		t.Fatalf("expected two history rows, got %d (%v)", len(trail), err)
	}

	bad := "31/01/2026"
	for name, req := range map[string]domain.RestockRequest{
		"zero":       {Quantity: 0},
		"bad date":   {Quantity: 1, ExpirationDate: &bad},
		"below zero": {Quantity: -10_000},
	} {
		if _, err := svc.RestockProduct(ctx, tenant, chips.ID, req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := svc.RestockProduct(ctx, tenant, 9999, domain.RestockRequest{Quantity: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryCascadeDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Household"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	child, err := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Cleaning", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Soap", ParentID: &child.ID}); err != nil {
		t.Fatalf("create grandchild: %v", err)
	}

	deleted, err := svc.DeleteCategory(ctx, tenant, root.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 rows deleted, got %d", deleted)
	}
	if _, err := svc.DeleteCategory(ctx, tenant, root.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}

	categories, _ := svc.ListCategories(ctx, tenant)
	for _, c := range categories {
		if c.Name == "Household" || c.Name == "Cleaning" || c.Name == "Soap" {
			t.Fatalf("deleted category %s still listed", c.Name)
		}
	}
}

func TestCategoryParentRules(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	parent, _ := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Frozen"})
	child, _ := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Ice Cream", ParentID: &parent.ID})

	missing := int64(9999)
	if _, err := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Orphan", ParentID: &missing}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected missing parent to fail validation, got %v", err)
	}
	if _, err := svc.UpdateCategory(ctx, tenant, parent.ID, domain.CategoryPatch{ParentID: &child.ID}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected cycle to fail validation, got %v", err)
	}
	blank := "  "
	if _, err := svc.UpdateCategory(ctx, tenant, parent.ID, domain.CategoryPatch{Name: &blank}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected blank name to fail validation, got %v", err)
	}

	none := int64(0)
	updated, err := svc.UpdateCategory(ctx, tenant, child.ID, domain.CategoryPatch{ParentID: &none})
	if err != nil {
		t.Fatalf("detach child: %v", err)
	}
	if updated.ParentID != nil {
		t.Fatalf("expected parent cleared, got %d", *updated.ParentID)
	}
	if _, err := svc.UpdateCategory(ctx, tenant, 9999, domain.CategoryPatch{Name: &updated.Name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProductCatalogRules(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	zero := int64(0)

	product, err := svc.CreateProduct(ctx, tenant, domain.ProductInput{
		Name:       "  Sardines  ",
		Code:       "CAN-SAR-01",
		BuyPrice:   decimal.RequireFromString("18.5"),
		SellPrice:  decimal.RequireFromString("24"),
		Stock:      12,
		CategoryID: &zero,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Name != "Sardines" || product.CategoryID != nil {
		t.Fatalf("expected trimmed name and no category, got %+v", product)
	}

	_, err = svc.CreateProduct(ctx, tenant, domain.ProductInput{Name: "Dup", Code: "can-sar-01", SellPrice: decimal.NewFromInt(1)})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate code to fail, got %v", err)
	}
	_, err = svc.CreateProduct(ctx, tenant, domain.ProductInput{Name: "Neg", Code: "NEG", SellPrice: decimal.NewFromInt(-1)})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected negative price to fail, got %v", err)
	}

	updated, err := svc.UpdateProduct(ctx, tenant, product.ID, domain.ProductPatch{SellPrice: amount("26")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stock != 12 || !updated.SellPrice.Equal(decimal.NewFromInt(26)) {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if err := svc.DeleteProduct(ctx, tenant, product.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetProduct(ctx, tenant, product.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted product to be hidden, got %v", err)
	}
}

func TestProductSummary(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, manila) }

	expired := "2025-05-31"
	level := 5
	if _, err := svc.CreateProduct(ctx, tenant, domain.ProductInput{
		Name: "Old Milk", Code: "MLK-OLD", SellPrice: decimal.NewFromInt(30), Stock: 3,
		LowStockLevel: &level, ExpirationDate: &expired,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	summary, err := svc.ProductSummary(ctx, tenant)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 5 || summary.InStock != 5 || summary.LowStock != 1 || summary.Expired != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestTenantIsolation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	sale := sell(t, svc, coffee.ID, 1)

	const other = "tenant-other"
	if err := svc.ProvisionTenant(ctx, other); err != nil {
		t.Fatalf("provision: %v", err)
	}

	if products, _ := svc.ListProducts(ctx, other); len(products) != 0 {
		t.Fatalf("expected no products for another tenant, got %d", len(products))
	}
	if _, err := svc.RestockProduct(ctx, other, coffee.ID, domain.RestockRequest{Quantity: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cross-tenant restock to be not found, got %v", err)
	}
	if _, err := svc.RefundEditor(ctx, other, sale.Transaction.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cross-tenant transaction to be not found, got %v", err)
	}
	if _, err := svc.DeleteCategory(ctx, other, *coffee.CategoryID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cross-tenant category delete to be not found, got %v", err)
	}

	methods, _ := svc.ListPaymentMethods(ctx, other)
	if len(methods) != 2 {
		t.Fatalf("expected provisioned payment methods, got %+v", methods)
	}
	_, err := svc.CreateSale(ctx, other, domain.SaleRequest{
		PaymentMethodID: methods[0].ID,
		Items:           []domain.SaleItem{{ProductID: coffee.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cross-tenant product to be not found, got %v", err)
	}
	if reports, _ := svc.ListTransactions(ctx, other); len(reports) != 0 {
		t.Fatalf("expected empty report for another tenant, got %d", len(reports))
	}
}

func TestReportCacheInvalidatedBySale(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")

	reports, err := svc.ListTransactions(ctx, tenant)
	if err != nil || len(reports) != 0 {
		t.Fatalf("expected empty report, got %d (%v)", len(reports), err)
	}
	sell(t, svc, coffee.ID, 2)

	reports, err = svc.ListTransactions(ctx, tenant)
	if err != nil || len(reports) != 1 {
		t.Fatalf("expected fresh report after sale, got %d (%v)", len(reports), err)
	}
	if !reports[0].TotalCost.Equal(decimal.NewFromInt(15)) || reports[0].PaymentMethodName != "Cash" {
		t.Fatalf("unexpected report %+v", reports[0])
	}
}

func TestUpdateTransaction(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	sale := sell(t, svc, coffee.ID, 1)

	email := "buyer@example.com"
	tx, err := svc.UpdateTransaction(ctx, tenant, sale.Transaction.ID, domain.TransactionPatch{EmailTo: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if tx.EmailTo != email || !tx.TotalPrice.Equal(sale.Transaction.TotalPrice) {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	bad := "not-an-email"
	if _, err := svc.UpdateTransaction(ctx, tenant, sale.Transaction.ID, domain.TransactionPatch{EmailTo: &bad}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateTransaction(ctx, tenant, 9999, domain.TransactionPatch{EmailTo: &email}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExports(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	coffee := productByCode(t, svc, "BEV-COF-01")
	sell(t, svc, coffee.ID, 2)
	if _, err := svc.RestockProduct(ctx, tenant, coffee.ID, domain.RestockRequest{Quantity: 4}); err != nil {
		t.Fatalf("restock: %v", err)
	}

	restocks, err := svc.ExportRestockHistory(ctx, tenant)
	if err != nil || len(restocks.Data) == 0 {
		t.Fatalf("restock export: %v", err)
	}
	transactions, err := svc.ExportTransactions(ctx, tenant, "daily")
	if err != nil || len(transactions.Data) == 0 {
		t.Fatalf("transactions export: %v", err)
	}
	products, err := svc.ExportProductSales(ctx, tenant, "month")
	if err != nil || len(products.Data) == 0 {
		t.Fatalf("product export: %v", err)
	}
}

func TestPaymentMethodsAndUnits(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	method, err := svc.CreatePaymentMethod(ctx, tenant, domain.PaymentMethodInput{Name: " Maya "})
	if err != nil || method.Name != "Maya" {
		t.Fatalf("create method: %+v %v", method, err)
	}
	if _, err := svc.CreatePaymentMethod(ctx, tenant, domain.PaymentMethodInput{Name: " "}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected blank name to fail, got %v", err)
	}
	if err := svc.DeletePaymentMethod(ctx, tenant, method.ID); err != nil {
		t.Fatalf("delete method: %v", err)
	}
	methods, _ := svc.ListPaymentMethods(ctx, tenant)
	for _, m := range methods {
		if m.ID == method.ID {
			t.Fatalf("deleted method still listed")
		}
	}

	unit, err := svc.CreateUnitMeasurement(ctx, tenant, domain.UnitMeasurementInput{Name: "box"})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := svc.UpdateUnitMeasurement(ctx, tenant, unit.ID, domain.UnitMeasurementInput{Name: "crate"}); err != nil {
		t.Fatalf("update unit: %v", err)
	}
	if err := svc.DeleteUnitMeasurement(ctx, tenant, unit.ID); err != nil {
		t.Fatalf("delete unit: %v", err)
	}
	if err := svc.DeleteUnitMeasurement(ctx, tenant, unit.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected hard-deleted unit to be gone, got %v", err)
	}
}

// interleavedRepo commits another writer's change right before an update takes its lock.
type interleavedRepo struct {
	store.Repository
	beforeProductUpdate  func()
	beforeCategoryUpdate func()
}

func (r *interleavedRepo) UpdateProduct(ctx context.Context, tenantID string, id int64, apply func(*domain.Product) error) (*domain.Product, error) {
	if r.beforeProductUpdate != nil {
		r.beforeProductUpdate()
	}
	return r.Repository.UpdateProduct(ctx, tenantID, id, apply)
}

func (r *interleavedRepo) UpdateCategory(ctx context.Context, tenantID string, id int64, apply func(*domain.Category, store.CategoryLookup) error) (*domain.Category, error) {
	if r.beforeCategoryUpdate != nil {
		r.beforeCategoryUpdate()
	}
	return r.Repository.UpdateCategory(ctx, tenantID, id, apply)
}

func TestProductEditKeepsExpirationFromConcurrentRestock(t *testing.T) {
	base := memory.NewSeeded()
	repo := &interleavedRepo{Repository: base}
	svc := New(repo, nil, manila, quietLogger())
	ctx := context.Background()

	coffee := productByCode(t, svc, "BEV-COF-01")
	if coffee.ExpirationDate != nil {
		t.Fatalf("expected seeded coffee without an expiration date")
	}

	expiry := "2026-01-01"
	repo.beforeProductUpdate = func() {
		if _, err := base.Restock(ctx, domain.Restock{
			TenantID:       tenant,
			ProductID:      coffee.ID,
			Quantity:       5,
			ExpirationDate: &expiry,
			At:             time.Now(),
		}); err != nil {
			t.Errorf("restock: %v", err)
		}
	}

	rename := "Kapeng Barako"
	updated, err := svc.UpdateProduct(ctx, tenant, coffee.ID, domain.ProductPatch{Name: &rename})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != rename {
		t.Fatalf("expected renamed product, got %q", updated.Name)
	}
	if updated.ExpirationDate == nil || *updated.ExpirationDate != expiry {
		t.Fatalf("expected restocked expiration %s to survive the edit, got %v", expiry, updated.ExpirationDate)
	}
	if updated.Stock != coffee.Stock+5 {
		t.Fatalf("expected stock %d, got %d", coffee.Stock+5, updated.Stock)
	}

	history, err := svc.RestockHistory(ctx, tenant, coffee.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one restock entry, got %d (%v)", len(history), err)
	}
	if history[0].NewExpirationDate == nil || *history[0].NewExpirationDate != *updated.ExpirationDate {
		t.Fatalf("product and restock history disagree on expiration")
	}
}

func TestCategoryReparentSeesConcurrentReparent(t *testing.T) {
	base := memory.NewSeeded()
	repo := &interleavedRepo{Repository: base}
	svc := New(repo, nil, manila, quietLogger())
	ctx := context.Background()

	a, _ := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Aisle A"})
	b, _ := svc.CreateCategory(ctx, tenant, domain.CategoryInput{Name: "Aisle B"})

	// B moves under A just before A is moved under B
	repo.beforeCategoryUpdate = func() {
		repo.beforeCategoryUpdate = nil
		if _, err := svc.UpdateCategory(ctx, tenant, b.ID, domain.CategoryPatch{ParentID: &a.ID}); err != nil {
			t.Errorf("move b under a: %v", err)
		}
	}

	if _, err := svc.UpdateCategory(ctx, tenant, a.ID, domain.CategoryPatch{ParentID: &b.ID}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected the second reparent to be rejected as a cycle, got %v", err)
	}

	stored, err := base.GetCategory(ctx, tenant, a.ID)
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	if stored.ParentID != nil {
		t.Fatalf("expected category A to stay a root, got parent %d", *stored.ParentID)
	}
}

func TestProvisionTenantIsRepeatable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	const fresh = "tenant-fresh"

	for range 2 {
		if err := svc.ProvisionTenant(ctx, fresh); err != nil {
			t.Fatalf("provision: %v", err)
		}
	}
	methods, err := svc.ListPaymentMethods(ctx, fresh)
	if err != nil {
		t.Fatalf("list payment methods: %v", err)
	}
	if len(methods) != 2 {
		t.Fatalf("expected Cash and GCash once each, got %+v", methods)
	}

	if err := svc.ProvisionTenant(ctx, tenant); err != nil {
		t.Fatalf("provision demo tenant: %v", err)
	}
	if seeded, _ := svc.ListPaymentMethods(ctx, tenant); len(seeded) != 2 {
		t.Fatalf("expected the seeded tenant to keep its two methods, got %d", len(seeded))
	}
}
