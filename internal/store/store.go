package store

import (
	"context"
	"errors"
	"time"

	"sarisari/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrOutOfStock = errors.New("insufficient stock")
	ErrValidation = errors.New("validation failed")
)

// CategoryLookup reads a live category of the tenant inside an update's atomic unit.
type CategoryLookup func(id int64) (*domain.Category, error)

// Repository is the tenant-scoped data store. Every method that names a workflow
// (CreateSale, CreateRefund, Restock, SoftDeleteCategoryTree) runs as one atomic unit,
// and so do UpdateCategory and UpdateProduct: apply edits the current row under the
// row lock and its result is written back before the lock is released.
type Repository interface {
	ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error)
	GetCategory(ctx context.Context, tenantID string, id int64) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, tenantID string, id int64, apply func(category *domain.Category, lookup CategoryLookup) error) (*domain.Category, error)
	SoftDeleteCategoryTree(ctx context.Context, tenantID string, id int64, at time.Time) (int, error)

	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, tenantID string, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, tenantID string, id int64, apply func(product *domain.Product) error) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, tenantID string, id int64, at time.Time) error
	Restock(ctx context.Context, restock domain.Restock) (*domain.RestockHistory, error)
	ListRestockHistory(ctx context.Context, tenantID string, productID int64) ([]domain.RestockHistory, error)

	ListPaymentMethods(ctx context.Context, tenantID string) ([]domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, tenantID string, id int64) (*domain.PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	SoftDeletePaymentMethod(ctx context.Context, tenantID string, id int64, at time.Time) error

	ListUnitMeasurements(ctx context.Context, tenantID string) ([]domain.UnitMeasurement, error)
	CreateUnitMeasurement(ctx context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error)
	UpdateUnitMeasurement(ctx context.Context, unit domain.UnitMeasurement) (*domain.UnitMeasurement, error)
	DeleteUnitMeasurement(ctx context.Context, tenantID string, id int64) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, []domain.Order, error)
	GetTransaction(ctx context.Context, tenantID string, id int64) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tenantID string, id int64, patch domain.TransactionPatch) (*domain.Transaction, error)
	ListOrderLines(ctx context.Context, tenantID string, transactionID int64) ([]domain.OrderLine, error)
	ReportRows(ctx context.Context, tenantID string) (domain.ReportRows, error)

	CreateRefund(ctx context.Context, cmd domain.RefundCommand) (*domain.Refund, error)
	ListRefunds(ctx context.Context, tenantID string) ([]domain.Refund, error)
	ListRefundsByTransaction(ctx context.Context, tenantID string, transactionID int64) ([]domain.Refund, error)
	GetRefund(ctx context.Context, tenantID string, id int64) (*domain.Refund, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// CollectSubtree walks the category tree breadth first from root and returns root followed
// by every descendant. children returns the live child ids of a frontier; ids already
// visited are never expanded again, so malformed cyclic data terminates.
func CollectSubtree(root int64, children func(parents []int64) ([]int64, error)) ([]int64, error) {
	visited := map[int64]struct{}{root: {}}
	collected := []int64{root}
	frontier := []int64{root}

	for len(frontier) > 0 {
		next, err := children(frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0:0]
		for _, id := range next {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			collected = append(collected, id)
			frontier = append(frontier, id)
		}
	}

	return collected, nil
}
