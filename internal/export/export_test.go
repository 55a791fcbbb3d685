package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sarisari/backend/internal/domain"
)

var manila = time.FixedZone("PHT", 8*60*60)

func TestNormalizeRange(t *testing.T) {
	cases := map[string]string{
		"daily":   RangeDaily,
		"3MONTHS": Range3Months,
		"":        RangeWeek,
		"decade":  RangeWeek,
	}
	for in, want := range cases {
		if got := NormalizeRange(in); got != want {
			t.Fatalf("NormalizeRange(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBounds(t *testing.T) {
	now := time.Date(2025, 3, 15, 14, 30, 0, 0, manila)

	start, end := Bounds(RangeDaily, now)
	if !start.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, manila)) {
		t.Fatalf("daily start %s", start)
	}
	if end.Day() != 15 || end.Hour() != 23 || end.Minute() != 59 {
		t.Fatalf("daily end %s", end)
	}

	start, end = Bounds(RangeYesterday, now)
	if start.Day() != 14 || start.Hour() != 0 || end.Day() != 14 || end.Hour() != 23 {
		t.Fatalf("yesterday window %s - %s", start, end)
	}

	start, _ = Bounds("bogus", now)
	if !start.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("expected unknown ranges to fall back to a week, got %s", start)
	}

	start, _ = Bounds(RangeAnnual, now)
	if start.Year() != 2024 {
		t.Fatalf("annual start %s", start)
	}
}

func TestFilterTransactions(t *testing.T) {
	now := time.Date(2025, 3, 15, 14, 30, 0, 0, manila)
	reports := []domain.TransactionReport{
		{Transaction: domain.Transaction{ID: 1, DateOfTransaction: now.Add(-time.Hour)}},
		{Transaction: domain.Transaction{ID: 2, DateOfTransaction: now.AddDate(0, 0, -1)}},
		{Transaction: domain.Transaction{ID: 3, DateOfTransaction: now.AddDate(0, 0, -20)}},
	}
	if got := FilterTransactions(reports, RangeDaily, now); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("daily filter: %+v", got)
	}
	if got := FilterTransactions(reports, RangeYesterday, now); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("yesterday filter: %+v", got)
	}
	if got := FilterTransactions(reports, RangeMonth, now); len(got) != 3 {
		t.Fatalf("month filter: %d", len(got))
	}
}

func TestMargin(t *testing.T) {
	d := decimal.RequireFromString
	if got := margin(d("100"), d("60")); got != "40.0%" {
		t.Fatalf("margin = %s", got)
	}
	if got := margin(d("0"), d("60")); got != "N/A" {
		t.Fatalf("margin on zero net = %s", got)
	}
	if got := currency(d("12.5")); got != "PHP 12.50" {
		t.Fatalf("currency = %s", got)
	}
}

func openRows(t *testing.T, wb *Workbook, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(wb.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestTransactionsWorkbook(t *testing.T) {
	d := decimal.RequireFromString
	now := time.Date(2025, 3, 15, 14, 30, 0, 0, manila)
	cash := d("100")
	reports := []domain.TransactionReport{
		{
			Transaction:       domain.Transaction{ID: 7, DateOfTransaction: now.Add(-time.Hour), TotalPrice: d("60"), CashReceived: &cash, Status: domain.TxStatusPartiallyRefunded},
			PaymentMethodName: "Cash",
			TotalRefund:       d("20"),
			TotalCost:         d("24"),
			RefundReasons:     "damaged",
		},
	}

	wb, err := TransactionsWorkbook(reports, "nonsense", now)
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	if wb.FileName != "transactions_week_2025-03-15.xlsx" {
		t.Fatalf("unexpected file name %s", wb.FileName)
	}

	rows := openRows(t, wb, "Transactions")
	if rows[0][0] != "Transaction ID" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	row := rows[1]
	if row[0] != "7" || row[2] != "PHP 60.00" || row[6] != "PHP 20.00" || row[7] != "PHP 40.00" || row[10] != "40.0%" || row[11] != "damaged" {
		t.Fatalf("unexpected data row %v", row)
	}
}

func TestRestockHistoryWorkbook(t *testing.T) {
	prev := "2025-01-31"
	wb, err := RestockHistoryWorkbook([]domain.RestockHistory{
		{ID: 1, ProductID: 4, ProductCode: "MLK", ProductName: "Gatas", Quantity: 20, PreviousStock: 5, NewStock: 25, PreviousExpirationDate: &prev, DateOfRestock: time.Date(2025, 2, 1, 9, 0, 0, 0, manila)},
		{ID: 2, ProductID: 4, ProductCode: "MLK", ProductName: "Gatas", Quantity: 5, PreviousStock: 25, NewStock: 30, DateOfRestock: time.Date(2025, 2, 2, 9, 0, 0, 0, manila)},
	}, time.Date(2025, 2, 3, 0, 0, 0, 0, manila))
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	if wb.FileName != "restock_history_2025-02-03.xlsx" {
		t.Fatalf("unexpected file name %s", wb.FileName)
	}

	rows := openRows(t, wb, "Restock History")
	if rows[1][6] != "Jan 31, 2025" || rows[1][7] != "N/A" {
		t.Fatalf("unexpected expiration cells %v", rows[1])
	}
	last := rows[len(rows)-1]
	if last[0] != "Total Quantity Added" || last[1] != "25" {
		t.Fatalf("unexpected summary row %v", last)
	}
	if rows[len(rows)-2][1] != "1" {
		t.Fatalf("expected one unique product, got %v", rows[len(rows)-2])
	}
}

func TestSummarizeProductSales(t *testing.T) {
	d := decimal.RequireFromString
	reports := []domain.TransactionReport{
		{Items: []domain.ReportItem{{ProductID: 2, ProductName: "Tubig", ProductBuyPrice: d("9"), UnitPrice: d("15"), Quantity: 2}}},
		{Items: []domain.ReportItem{
			{ProductID: 2, ProductName: "Tubig", ProductBuyPrice: d("9"), UnitPrice: d("14"), Quantity: 1},
			{ProductID: 1, ProductName: "Kape", ProductBuyPrice: d("7.5"), UnitPrice: d("10"), Quantity: 4},
		}},
	}
	sales := SummarizeProductSales(reports)
	if len(sales) != 2 || sales[0].ProductID != 1 {
		t.Fatalf("expected products sorted by id, got %+v", sales)
	}
	water := sales[1]
	if water.TotalQuantity != 3 || !water.TotalSellAmount.Equal(d("44")) || !water.Profit.Equal(d("17")) {
		t.Fatalf("unexpected water sales %+v", water)
	}

	wb, err := ProductSalesWorkbook(nil, RangeMonth, time.Date(2025, 3, 15, 0, 0, 0, 0, manila))
	if err != nil {
		t.Fatalf("empty workbook: %v", err)
	}
	rows := openRows(t, wb, "Products")
	if rows[len(rows)-1][1] != "N/A" {
		t.Fatalf("expected N/A margin with no sales, got %v", rows[len(rows)-1])
	}
}
