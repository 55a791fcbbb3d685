package service

import (
	"context"
	"fmt"

	"sarisari/backend/internal/export"
)

// ExportRestockHistory renders every restock of the tenant, newest last.
func (s *Service) ExportRestockHistory(ctx context.Context, tenantID string) (*export.Workbook, error) {
	history, err := s.repo.ListRestockHistory(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	wb, err := export.RestockHistoryWorkbook(history, s.Now())
	if err != nil {
		return nil, fmt.Errorf("restock history workbook: %w", err)
	}
	return wb, nil
}

func (s *Service) ExportTransactions(ctx context.Context, tenantID string, rangeName string) (*export.Workbook, error) {
	reports, err := s.ListTransactions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	wb, err := export.TransactionsWorkbook(reports, rangeName, s.Now())
	if err != nil {
		return nil, fmt.Errorf("transactions workbook: %w", err)
	}
	return wb, nil
}

func (s *Service) ExportProductSales(ctx context.Context, tenantID string, rangeName string) (*export.Workbook, error) {
	reports, err := s.ListTransactions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	wb, err := export.ProductSalesWorkbook(reports, rangeName, s.Now())
	if err != nil {
		return nil, fmt.Errorf("product sales workbook: %w", err)
	}
	return wb, nil
}
