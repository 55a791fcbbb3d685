// Package export renders reports as xlsx workbooks.
package export

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sarisari/backend/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Workbook struct {
	FileName string
	Data     []byte
}

var hundred = decimal.NewFromInt(100)

func currency(amount decimal.Decimal) string {
	return "PHP " + amount.StringFixed(2)
}

// margin is (net-cost)/net as a percentage, or N/A when net is not positive.
func margin(net decimal.Decimal, cost decimal.Decimal) string {
	if !net.IsPositive() || cost.IsNegative() {
		return "N/A"
	}
	return net.Sub(cost).Div(net).Mul(hundred).StringFixed(1) + "%"
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func calendarDate(value *string) string {
	if value == nil || *value == "" {
		return "N/A"
	}
	t, err := time.Parse(domain.DateLayout, *value)
	if err != nil {
		return *value
	}
	return t.Format("Jan 02, 2006")
}

// sheetWriter appends rows to a single named sheet.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheet(name string) (*sheetWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &sheetWriter{f: f, sheet: name, row: 1}, nil
}

func (w *sheetWriter) append(values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		return err
	}
	w.row++
	return nil
}

func (w *sheetWriter) finish(fileName string) (*Workbook, error) {
	defer w.f.Close()
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Workbook{FileName: fileName, Data: buf.Bytes()}, nil
}

// RestockHistoryWorkbook renders the restock audit trail, one row per restock plus a summary.
func RestockHistoryWorkbook(history []domain.RestockHistory, now time.Time) (*Workbook, error) {
	w, err := newSheet("Restock History")
	if err != nil {
		return nil, err
	}
	rows := [][]any{{
		"Restock ID", "Product Code", "Product Name", "Quantity Added", "Previous Stock", "New Stock",
		"Previous Expiration Date", "New Expiration Date", "Date of Restock", "Notes",
	}}

	totalQuantity := 0
	products := make(map[int64]struct{})
	for _, h := range history {
		totalQuantity += h.Quantity
		products[h.ProductID] = struct{}{}
		rows = append(rows, []any{
			h.ID, h.ProductCode, h.ProductName, h.Quantity, h.PreviousStock, h.NewStock,
			calendarDate(h.PreviousExpirationDate), calendarDate(h.NewExpirationDate),
			h.DateOfRestock.Format("Jan 02, 2006 15:04:05"), h.Notes,
		})
	}
	rows = append(rows,
		[]any{""},
		[]any{"Summary"},
		[]any{"Total Restock Records", len(history)},
		[]any{"Total Products Restocked", len(products)},
		[]any{"Total Quantity Added", totalQuantity},
	)

	for _, row := range rows {
		if err := w.append(row...); err != nil {
			_ = w.f.Close()
			return nil, err
		}
	}
	return w.finish(fmt.Sprintf("restock_history_%s.xlsx", now.Format(domain.DateLayout)))
}

// TransactionsWorkbook renders the transactions of a date range with refund and profit figures.
func TransactionsWorkbook(reports []domain.TransactionReport, rangeName string, now time.Time) (*Workbook, error) {
	rangeName = NormalizeRange(rangeName)
	filtered := FilterTransactions(reports, rangeName, now)

	w, err := newSheet("Transactions")
	if err != nil {
		return nil, err
	}
	rows := [][]any{{
		"Transaction ID", "Date", "Total Amount", "Payment Method", "Status", "Cash Received",
		"Total Refund", "Net Amount", "Cost", "Profit", "Profit Margin", "Refund Reason",
	}}

	totalAmount, totalRefunds, totalCost := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range filtered {
		net := nonNegative(t.TotalPrice.Sub(t.TotalRefund))
		cost := nonNegative(t.TotalCost)
		profit := nonNegative(net.Sub(cost))

		cash := "-"
		if t.CashReceived != nil {
			cash = currency(*t.CashReceived)
		}
		refund := "-"
		if t.TotalRefund.IsPositive() {
			refund = currency(t.TotalRefund)
		}
		reasons := "-"
		if t.RefundReasons != "" {
			reasons = t.RefundReasons
		}

		rows = append(rows, []any{
			t.ID, t.DateOfTransaction.Format("01/02/2006 15:04:05"), currency(t.TotalPrice), t.PaymentMethodName,
			t.Status, cash, refund, currency(net), currency(cost), currency(profit), margin(net, cost), reasons,
		})

		totalAmount = totalAmount.Add(t.TotalPrice)
		totalRefunds = totalRefunds.Add(t.TotalRefund)
		totalCost = totalCost.Add(t.TotalCost)
	}

	totalAmount = nonNegative(totalAmount)
	totalRefunds = nonNegative(totalRefunds)
	totalCost = nonNegative(totalCost)
	net := nonNegative(totalAmount.Sub(totalRefunds))
	rows = append(rows,
		[]any{""},
		[]any{"Summary"},
		[]any{"Total Transactions", len(filtered)},
		[]any{"Total Amount", currency(totalAmount)},
		[]any{"Total Refunds", currency(totalRefunds)},
		[]any{"Net Amount", currency(net)},
		[]any{"Total Cost", currency(totalCost)},
		[]any{"Total Profit", currency(nonNegative(net.Sub(totalCost)))},
		[]any{"Overall Profit Margin", margin(net, totalCost)},
	)

	for _, row := range rows {
		if err := w.append(row...); err != nil {
			_ = w.f.Close()
			return nil, err
		}
	}
	return w.finish(fmt.Sprintf("transactions_%s_%s.xlsx", rangeName, now.Format(domain.DateLayout)))
}

type ProductSales struct {
	ProductID       int64
	Name            string
	BuyPrice        decimal.Decimal
	SellPrice       decimal.Decimal
	TotalQuantity   int
	TotalBuyAmount  decimal.Decimal
	TotalSellAmount decimal.Decimal
	Profit          decimal.Decimal
}

// SummarizeProductSales aggregates sold quantities per product. Sell amounts use the
// price captured on each order; buy amounts use the product's current buy price.
func SummarizeProductSales(reports []domain.TransactionReport) []ProductSales {
	byProduct := make(map[int64]*ProductSales)
	for _, r := range reports {
		for _, item := range r.Items {
			qty := decimal.NewFromInt(int64(item.Quantity))
			sales, ok := byProduct[item.ProductID]
			if !ok {
				sales = &ProductSales{
					ProductID:       item.ProductID,
					Name:            item.ProductName,
					BuyPrice:        item.ProductBuyPrice,
					SellPrice:       item.ProductSellPrice,
					TotalBuyAmount:  decimal.Zero,
					TotalSellAmount: decimal.Zero,
				}
				byProduct[item.ProductID] = sales
			}
			sales.TotalQuantity += item.Quantity
			sales.TotalBuyAmount = sales.TotalBuyAmount.Add(item.ProductBuyPrice.Mul(qty))
			sales.TotalSellAmount = sales.TotalSellAmount.Add(item.UnitPrice.Mul(qty))
			sales.Profit = sales.TotalSellAmount.Sub(sales.TotalBuyAmount)
		}
	}

	out := make([]ProductSales, 0, len(byProduct))
	for _, sales := range byProduct {
		out = append(out, *sales)
	}
	slices.SortFunc(out, func(a, b ProductSales) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

func salesMargin(profit decimal.Decimal, sell decimal.Decimal) string {
	if sell.IsZero() {
		return "N/A"
	}
	return profit.Div(sell).Mul(hundred).StringFixed(1) + "%"
}

// ProductSalesWorkbook renders per-product sales of a date range.
func ProductSalesWorkbook(reports []domain.TransactionReport, rangeName string, now time.Time) (*Workbook, error) {
	rangeName = NormalizeRange(rangeName)
	sales := SummarizeProductSales(FilterTransactions(reports, rangeName, now))

	w, err := newSheet("Products")
	if err != nil {
		return nil, err
	}
	rows := [][]any{{
		"Product ID", "Product Name", "Product Buy Price", "Product Sell Price", "Total Quantity Sold",
		"Total Buy Amount", "Total Sell Amount", "Profit", "Profit Margin",
	}}

	totalQuantity := 0
	totalBuy, totalSell := decimal.Zero, decimal.Zero
	for _, p := range sales {
		rows = append(rows, []any{
			p.ProductID, p.Name, p.BuyPrice.InexactFloat64(), p.SellPrice.InexactFloat64(), p.TotalQuantity,
			currency(p.TotalBuyAmount), currency(p.TotalSellAmount), currency(p.Profit), salesMargin(p.Profit, p.TotalSellAmount),
		})
		totalQuantity += p.TotalQuantity
		totalBuy = totalBuy.Add(p.TotalBuyAmount)
		totalSell = totalSell.Add(p.TotalSellAmount)
	}

	totalProfit := totalSell.Sub(totalBuy)
	rows = append(rows,
		[]any{""},
		[]any{"Summary"},
		[]any{"Total Products Sold", totalQuantity},
		[]any{"Total Buy Amount", currency(totalBuy)},
		[]any{"Total Sell Amount", currency(totalSell)},
		[]any{"Total Profit", currency(totalProfit)},
		[]any{"Overall Profit Margin", salesMargin(totalProfit, totalSell)},
	)

	for _, row := range rows {
		if err := w.append(row...); err != nil {
			_ = w.f.Close()
			return nil, err
		}
	}
	return w.finish(fmt.Sprintf("products_%s_%s.xlsx", rangeName, now.Format(domain.DateLayout)))
}
