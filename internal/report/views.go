package report

import (
	"github.com/shopspring/decimal"

	"sarisari/backend/internal/domain"
)

// Summarize counts the dashboard figures of a product list. today is a YYYY-MM-DD date in
// the tenant's timezone; a product is expired when its expiration date is before today.
func Summarize(products []domain.Product, today string) domain.ProductSummary {
	summary := domain.ProductSummary{Total: len(products)}
	for _, p := range products {
		if p.Stock > 0 {
			summary.InStock++
		}
		level := 0
		if p.LowStockLevel != nil {
			level = *p.LowStockLevel
		}
		if p.Stock <= level {
			summary.LowStock++
		}
		if p.ExpirationDate != nil && *p.ExpirationDate != "" && *p.ExpirationDate < today {
			summary.Expired++
		}
	}
	return summary
}

// RefundEditor lists every order of a transaction with the quantity still refundable.
func RefundEditor(tx domain.Transaction, lines []domain.OrderLine) domain.RefundEditor {
	editor := domain.RefundEditor{Transaction: tx, Items: make([]domain.RefundableLine, 0, len(lines))}
	for _, line := range lines {
		available := line.Quantity - line.RefundedQuantity
		if available < 0 {
			available = 0
		}
		editor.Items = append(editor.Items, domain.RefundableLine{
			OrderID:           line.ID,
			ProductID:         line.ProductID,
			ProductName:       line.ProductName,
			OriginalQuantity:  line.Quantity,
			RefundedQuantity:  line.RefundedQuantity,
			AvailableQuantity: available,
			UnitPrice:         line.UnitPrice,
			TotalRefund:       decimal.Zero,
			RefundStatus:      line.RefundStatus,
		})
	}
	return editor
}
