package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/ledger"
	"sarisari/backend/internal/report"
	"sarisari/backend/internal/store"
)

func isMethod(method *domain.PaymentMethod, name string) bool {
	return strings.EqualFold(strings.TrimSpace(method.Name), name)
}

// quoteSale prices a sale from the current catalog. The repository recomputes the
// total under its product locks; the quote only serves tender checks made up front.
func (s *Service) quoteSale(ctx context.Context, tenantID string, items []domain.SaleItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		product, err := s.repo.GetProduct(ctx, tenantID, item.ProductID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(ledger.LineAmount(product.SellPrice, item.Quantity))
	}
	return total, nil
}

func (s *Service) CreateSale(ctx context.Context, tenantID string, req domain.SaleRequest) (domain.SaleResponse, error) {
	if err := s.check(req); err != nil {
		return domain.SaleResponse{}, err
	}

	method, err := s.repo.GetPaymentMethod(ctx, tenantID, req.PaymentMethodID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	reference := strings.TrimSpace(req.ReferenceNumber)
	if isMethod(method, "gcash") && reference == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: reference number is required for GCash payments", store.ErrValidation)
	}

	if (isMethod(method, "cash") && req.CashReceived != nil) || req.TotalPrice != nil {
		quoted, err := s.quoteSale(ctx, tenantID, req.Items)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if isMethod(method, "cash") && req.CashReceived != nil && req.CashReceived.LessThan(quoted) {
			return domain.SaleResponse{}, fmt.Errorf("%w: cash received %s is less than total %s", store.ErrValidation, req.CashReceived.StringFixed(2), quoted.StringFixed(2))
		}
		if req.TotalPrice != nil && !req.TotalPrice.Equal(quoted) {
			s.logger.WithFields(logrus.Fields{
				"tenant":       tenantID,
				"client_total": req.TotalPrice.String(),
				"total":        quoted.String(),
			}).Warn("client total differs from catalog prices, storing computed total")
		}
	}

	at := s.Now()
	if req.DateOfTransaction != nil && !req.DateOfTransaction.IsZero() {
		at = req.DateOfTransaction.In(s.loc)
	}

	tx, orders, err := s.repo.CreateSale(ctx, domain.Sale{
		TenantID:          tenantID,
		PaymentMethodID:   method.ID,
		DateOfTransaction: at,
		CashReceived:      req.CashReceived,
		ReferenceNumber:   reference,
		EmailTo:           strings.TrimSpace(req.EmailTo),
		Items:             req.Items,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.changed(ctx, tenantID)

	return domain.SaleResponse{Success: true, Transaction: *tx, Orders: orders}, nil
}

func (s *Service) ListTransactions(ctx context.Context, tenantID string) ([]domain.TransactionReport, error) {
	return s.reports.Transactions(ctx, tenantID, s.repo.ReportRows)
}

func (s *Service) UpdateTransaction(ctx context.Context, tenantID string, id int64, patch domain.TransactionPatch) (*domain.Transaction, error) {
	if patch.EmailTo != nil {
		email := strings.TrimSpace(*patch.EmailTo)
		if email != "" {
			if err := s.validate.Var(email, "email"); err != nil {
				return nil, fmt.Errorf("%w: emailTo must be a valid email address", store.ErrValidation)
			}
		}
		patch.EmailTo = &email
	}
	if patch.ReferenceNumber != nil {
		reference := strings.TrimSpace(*patch.ReferenceNumber)
		patch.ReferenceNumber = &reference
	}

	tx, err := s.repo.UpdateTransaction(ctx, tenantID, id, patch)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return tx, nil
}

// RefundEditor lists the lines of a transaction with what can still be refunded.
func (s *Service) RefundEditor(ctx context.Context, tenantID string, transactionID int64) (domain.RefundEditor, error) {
	tx, err := s.repo.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return domain.RefundEditor{}, err
	}
	lines, err := s.repo.ListOrderLines(ctx, tenantID, transactionID)
	if err != nil {
		return domain.RefundEditor{}, err
	}
	return report.RefundEditor(*tx, lines), nil
}

func (s *Service) CreateRefund(ctx context.Context, tenantID string, req domain.RefundRequest) (domain.RefundResponse, error) {
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if err := s.check(req); err != nil {
		return domain.RefundResponse{}, err
	}

	entries := make([]domain.RefundEntry, 0, len(req.Items))
	for _, entry := range req.Items {
		if entry.QuantityToRefund == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	if req.Type == domain.RefundTypePartial && len(entries) == 0 {
		return domain.RefundResponse{}, fmt.Errorf("%w: nothing to refund", store.ErrValidation)
	}

	refund, err := s.repo.CreateRefund(ctx, domain.RefundCommand{
		TenantID:      tenantID,
		TransactionID: req.TransactionID,
		Type:          req.Type,
		Reason:        strings.TrimSpace(req.Reason),
		At:            s.Now(),
		Entries:       entries,
	})
	if err != nil {
		return domain.RefundResponse{}, err
	}
	s.changed(ctx, tenantID)

	if req.TotalAmount != nil && !req.TotalAmount.Equal(refund.TotalAmount) {
		s.logger.WithFields(logrus.Fields{
			"tenant":       tenantID,
			"refund_id":    refund.ID,
			"client_total": req.TotalAmount.String(),
			"total":        refund.TotalAmount.String(),
		}).Warn("client refund total differs from captured prices")
	}

	return domain.RefundResponse{Success: true, RefundID: refund.ID}, nil
}

func (s *Service) ListRefunds(ctx context.Context, tenantID string) ([]domain.Refund, error) {
	return s.repo.ListRefunds(ctx, tenantID)
}

func (s *Service) ListTransactionRefunds(ctx context.Context, tenantID string, transactionID int64) ([]domain.Refund, error) {
	if _, err := s.repo.GetTransaction(ctx, tenantID, transactionID); err != nil {
		return nil, err
	}
	return s.repo.ListRefundsByTransaction(ctx, tenantID, transactionID)
}

func (s *Service) GetRefund(ctx context.Context, tenantID string, id int64) (*domain.Refund, error) {
	return s.repo.GetRefund(ctx, tenantID, id)
}
