package report

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sarisari/backend/internal/cache"
	"sarisari/backend/internal/domain"
)

// Loader fetches the normalized rows of one tenant.
type Loader func(ctx context.Context, tenantID string) (domain.ReportRows, error)

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
	lockTTL  time.Duration
	logger   logrus.FieldLogger
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration, logger logrus.FieldLogger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		lockTTL:  10 * time.Second,
		logger:   logger.WithField("module", "report"),
	}
}

// Transactions returns the report projection of every transaction of a tenant. A fresh
// cached copy is served when present. On a miss only the holder of the rebuild lock
// writes the cache; concurrent builders compute the projection without storing it.
func (e *Engine) Transactions(ctx context.Context, tenantID string, load Loader) ([]domain.TransactionReport, error) {
	if cached, ok, err := e.cache.Get(ctx, tenantID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		e.logger.WithField("tenant", tenantID).Warnf("report cache read failed: %v", err)
	}

	release, locked, err := e.cache.TryLock(ctx, tenantID, e.lockTTL)
	if err != nil {
		e.logger.WithField("tenant", tenantID).Warnf("report lock unavailable: %v", err)
		locked = false
	}
	if locked {
		defer release()
	}

	// the generation is read before loading; a mutation committed during the load
	// bumps it and the write below is dropped
	var gen int64
	if locked {
		if gen, err = e.cache.Generation(ctx, tenantID); err != nil {
			e.logger.WithField("tenant", tenantID).Warnf("report generation unavailable: %v", err)
			locked = false
		}
	}

	rows, err := load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	reports := Build(rows, e.logger)

	if locked {
		stored, err := e.cache.Set(ctx, tenantID, gen, reports, e.cacheTTL)
		if err != nil {
			e.logger.WithField("tenant", tenantID).Warnf("report cache write failed: %v", err)
		} else if !stored {
			e.logger.WithField("tenant", tenantID).Debug("report changed while building, not cached")
		}
	}
	return reports, nil
}

// Invalidate drops the cached projection of a tenant after a mutation.
func (e *Engine) Invalidate(ctx context.Context, tenantID string) {
	if err := e.cache.Invalidate(ctx, tenantID); err != nil {
		e.logger.WithField("tenant", tenantID).Warnf("report cache invalidation failed: %v", err)
	}
}

// Build assembles the per-transaction projection. Rows that point at a missing
// transaction or product are logged and skipped; they never fail the whole report.
func Build(rows domain.ReportRows, logger logrus.FieldLogger) []domain.TransactionReport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	reports := make([]domain.TransactionReport, 0, len(rows.Transactions))
	index := make(map[int64]int, len(rows.Transactions))
	for _, tx := range rows.Transactions {
		index[tx.ID] = len(reports)
		reports = append(reports, domain.TransactionReport{
			Transaction:       tx,
			PaymentMethodName: rows.PaymentMethods[tx.PaymentMethodID],
			Items:             make([]domain.ReportItem, 0),
			RefundedItems:     make([]domain.RefundedItem, 0),
			TotalRefund:       decimal.Zero,
			TotalCost:         decimal.Zero,
		})
	}

	for _, line := range rows.Orders {
		i, ok := index[line.TransactionID]
		if !ok {
			logger.WithFields(logrus.Fields{"orderId": line.ID, "transactionId": line.TransactionID}).Warn("skipping order of unknown transaction")
			continue
		}
		if !line.ProductKnown {
			logger.WithFields(logrus.Fields{"orderId": line.ID, "productId": line.ProductID}).Warn("skipping order of unknown product")
			continue
		}
		r := &reports[i]
		r.Items = append(r.Items, domain.ReportItem{
			ID:               line.ID,
			ProductID:        line.ProductID,
			ProductName:      line.ProductName,
			ProductSellPrice: line.ProductSellPrice,
			ProductBuyPrice:  line.ProductBuyPrice,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			RefundedQuantity: line.RefundedQuantity,
			RefundStatus:     line.RefundStatus,
		})
		r.TotalCost = r.TotalCost.Add(line.ProductBuyPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	reasons := make(map[int64][]string)
	for _, refund := range rows.Refunds {
		i, ok := index[refund.TransactionID]
		if !ok {
			logger.WithFields(logrus.Fields{"refundId": refund.ID, "transactionId": refund.TransactionID}).Warn("skipping refund of unknown transaction")
			continue
		}
		reports[i].TotalRefund = reports[i].TotalRefund.Add(refund.TotalAmount)
		if reason := strings.TrimSpace(refund.Reason); reason != "" {
			reasons[refund.TransactionID] = append(reasons[refund.TransactionID], reason)
		}
	}
	for txID, list := range reasons {
		reports[index[txID]].RefundReasons = strings.Join(list, "; ")
	}

	for _, line := range rows.RefundLines {
		i, ok := index[line.TransactionID]
		if !ok || !line.ProductKnown {
			logger.WithFields(logrus.Fields{"refundItemId": line.ID, "refundId": line.RefundID}).Warn("skipping dangling refund item")
			continue
		}
		reports[i].RefundedItems = append(reports[i].RefundedItems, domain.RefundedItem{
			ID:          line.RefundID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Amount:      line.Amount,
			Reason:      line.Reason,
		})
	}

	return reports
}
