// Package ledger holds the inventory and refund bookkeeping rules shared by every
// repository. Functions here are pure: callers load and lock the rows, ask the ledger
// for a plan, then persist the plan inside the same atomic unit.
package ledger

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

type SaleLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

type SalePlan struct {
	Lines []SaleLine
	Total decimal.Decimal
	// Stock is the post-sale stock of every touched product.
	Stock map[int64]int
}

// PlanSale validates every line against the locked product rows and computes the stock
// after the sale. Repeated product ids draw down the same running stock.
func PlanSale(items []domain.SaleItem, products map[int64]domain.Product) (SalePlan, error) {
	if len(items) == 0 {
		return SalePlan{}, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}

	plan := SalePlan{
		Lines: make([]SaleLine, 0, len(items)),
		Total: decimal.Zero,
		Stock: make(map[int64]int, len(products)),
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return SalePlan{}, fmt.Errorf("%w: quantity must be positive for product %d", store.ErrValidation, item.ProductID)
		}
		product, ok := products[item.ProductID]
		if !ok || product.Deleted != nil {
			return SalePlan{}, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
		}
		available, touched := plan.Stock[item.ProductID]
		if !touched {
			available = product.Stock
		}
		if available < item.Quantity {
			return SalePlan{}, fmt.Errorf("%w for product %s: available %d, requested %d", store.ErrOutOfStock, product.Name, available, item.Quantity)
		}
		plan.Stock[item.ProductID] = available - item.Quantity
		plan.Lines = append(plan.Lines, SaleLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.SellPrice,
		})
		plan.Total = plan.Total.Add(LineAmount(product.SellPrice, item.Quantity))
	}
	return plan, nil
}

// LockOrder returns the distinct product ids of a sale in ascending order, the order in
// which rows must be locked so concurrent sales cannot deadlock.
func LockOrder(items []domain.SaleItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func LineAmount(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// RefundStatusFor derives an order's refund status from its quantities.
func RefundStatusFor(refunded int, quantity int) string {
	switch {
	case refunded <= 0:
		return domain.RefundStatusNone
	case refunded >= quantity:
		return domain.RefundStatusFull
	default:
		return domain.RefundStatusPartial
	}
}

type RefundPlan struct {
	// Orders holds the updated order rows, in entry order.
	Orders []domain.Order
	Items  []domain.RefundItem
	// Restock maps product id to the units going back on the shelf.
	Restock map[int64]int
	Total   decimal.Decimal
	Status  string
}

// PlanRefund applies a refund command to the locked orders of one transaction.
// For a full refund every remaining unit of every line is refunded and the entries are
// ignored. For a partial refund entries with zero quantity are skipped; a refund that
// would push an order past its sold quantity fails instead of clamping.
func PlanRefund(cmd domain.RefundCommand, current string, orders []domain.Order) (RefundPlan, error) {
	byID := make(map[int64]int, len(orders))
	working := make([]domain.Order, len(orders))
	copy(working, orders)
	for i, order := range working {
		byID[order.ID] = i
	}

	entries := cmd.Entries
	if cmd.Type == domain.RefundTypeFull {
		entries = make([]domain.RefundEntry, 0, len(working))
		for _, order := range working {
			if remaining := order.Quantity - order.RefundedQuantity; remaining > 0 {
				entries = append(entries, domain.RefundEntry{OrderID: order.ID, ProductID: order.ProductID, QuantityToRefund: remaining})
			}
		}
		if len(entries) == 0 {
			return RefundPlan{}, fmt.Errorf("%w: transaction %d is already fully refunded", store.ErrValidation, cmd.TransactionID)
		}
	}

	plan := RefundPlan{Total: decimal.Zero, Restock: make(map[int64]int)}
	touched := make(map[int64]struct{})
	for _, entry := range entries {
		if entry.QuantityToRefund < 0 {
			return RefundPlan{}, fmt.Errorf("%w: negative refund quantity for order %d", store.ErrValidation, entry.OrderID)
		}
		if entry.QuantityToRefund == 0 {
			continue
		}
		idx, ok := byID[entry.OrderID]
		if !ok {
			return RefundPlan{}, fmt.Errorf("%w: order %d", store.ErrNotFound, entry.OrderID)
		}
		order := &working[idx]
		refunded := order.RefundedQuantity + entry.QuantityToRefund
		if refunded > order.Quantity {
			return RefundPlan{}, fmt.Errorf("%w: order %d has %d of %d units left to refund, requested %d",
				store.ErrValidation, order.ID, order.Quantity-order.RefundedQuantity, order.Quantity, entry.QuantityToRefund)
		}
		order.RefundedQuantity = refunded
		order.RefundStatus = RefundStatusFor(refunded, order.Quantity)
		touched[order.ID] = struct{}{}

		amount := LineAmount(order.UnitPrice, entry.QuantityToRefund)
		plan.Items = append(plan.Items, domain.RefundItem{
			TenantID:  cmd.TenantID,
			OrderID:   order.ID,
			ProductID: order.ProductID,
			Quantity:  entry.QuantityToRefund,
			Amount:    amount,
		})
		plan.Restock[order.ProductID] += entry.QuantityToRefund
		plan.Total = plan.Total.Add(amount)
	}
	if len(plan.Items) == 0 {
		return RefundPlan{}, fmt.Errorf("%w: nothing to refund", store.ErrValidation)
	}

	for _, order := range working {
		if _, ok := touched[order.ID]; ok {
			plan.Orders = append(plan.Orders, order)
		}
	}
	plan.Status = TransactionStatus(current, cmd.Type, working)
	return plan, nil
}

// TransactionStatus recomputes a transaction's status from all of its orders.
func TransactionStatus(current string, refundType string, orders []domain.Order) string {
	if refundType == domain.RefundTypeFull {
		return domain.TxStatusRefunded
	}
	if len(orders) == 0 {
		return current
	}
	allFull := true
	anyRefunded := false
	for _, order := range orders {
		if order.RefundStatus != domain.RefundStatusFull && order.RefundedQuantity < order.Quantity {
			allFull = false
		}
		if order.RefundedQuantity > 0 {
			anyRefunded = true
		}
	}
	switch {
	case allFull:
		return domain.TxStatusRefunded
	case anyRefunded:
		return domain.TxStatusPartiallyRefunded
	default:
		return current
	}
}

// PlanRestock returns the updated product and the audit row for a restock. A negative
// quantity is a stock correction and may not take the stock below zero.
func PlanRestock(product domain.Product, cmd domain.Restock) (domain.Product, domain.RestockHistory, error) {
	if product.Stock+cmd.Quantity < 0 {
		return domain.Product{}, domain.RestockHistory{}, fmt.Errorf("%w: stock of %s cannot go below zero (current %d, change %d)",
			store.ErrValidation, product.Name, product.Stock, cmd.Quantity)
	}
	updated := product
	updated.Stock = product.Stock + cmd.Quantity
	if cmd.ExpirationDate != nil {
		exp := *cmd.ExpirationDate
		updated.ExpirationDate = &exp
	}

	history := domain.RestockHistory{
		TenantID:               cmd.TenantID,
		ProductID:              product.ID,
		ProductName:            product.Name,
		ProductCode:            product.Code,
		Quantity:               cmd.Quantity,
		PreviousStock:          product.Stock,
		NewStock:               updated.Stock,
		PreviousExpirationDate: product.ExpirationDate,
		NewExpirationDate:      updated.ExpirationDate,
		DateOfRestock:          cmd.At,
		Notes:                  cmd.Notes,
	}
	return updated, history, nil
}
