package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"sarisari/backend/internal/domain"
)

// ReportCache stores the per-tenant transaction report projection.
type ReportCache interface {
	Get(ctx context.Context, tenantID string) ([]domain.TransactionReport, bool, error)
	// Generation is bumped by every Invalidate.
	Generation(ctx context.Context, tenantID string) (int64, error)
	// Set stores reports only while the tenant is still at generation gen. stored is false
	// when an invalidation happened since gen was read.
	Set(ctx context.Context, tenantID string, gen int64, reports []domain.TransactionReport, ttl time.Duration) (stored bool, err error)
	Invalidate(ctx context.Context, tenantID string) error
	// TryLock takes the rebuild lock of a tenant. ok is false when another builder holds it.
	TryLock(ctx context.Context, tenantID string, ttl time.Duration) (release func(), ok bool, err error)
}

func ReportKey(tenantID string) string {
	return "report:" + tenantID
}

func LockKey(tenantID string) string {
	return "lock:report:" + tenantID
}

func GenerationKey(tenantID string) string {
	return "report:gen:" + tenantID
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]domain.TransactionReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ int64, _ []domain.TransactionReport, _ time.Duration) (bool, error) {
	return false, nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func (NoopReportCache) TryLock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

type memoryEntry struct {
	reports   []domain.TransactionReport
	expiresAt time.Time
}

type memoryLock struct {
	token uint64
	until time.Time
}

// MemoryReportCache is the single-process cache used when no redis is configured.
type MemoryReportCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	generations map[string]int64
	locks       map[string]memoryLock
	lockSeq     uint64
	now         func() time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
		locks:       make(map[string]memoryLock),
		now:         time.Now,
	}
}

func (c *MemoryReportCache) Get(_ context.Context, tenantID string) ([]domain.TransactionReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[ReportKey(tenantID)]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, ReportKey(tenantID))
		return nil, false, nil
	}
	return slices.Clone(entry.reports), true, nil
}

func (c *MemoryReportCache) Generation(_ context.Context, tenantID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generations[GenerationKey(tenantID)], nil
}

func (c *MemoryReportCache) Set(_ context.Context, tenantID string, gen int64, reports []domain.TransactionReport, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[GenerationKey(tenantID)] != gen {
		return false, nil
	}
	c.entries[ReportKey(tenantID)] = memoryEntry{reports: slices.Clone(reports), expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *MemoryReportCache) Invalidate(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[GenerationKey(tenantID)]++
	delete(c.entries, ReportKey(tenantID))
	return nil
}

func (c *MemoryReportCache) TryLock(_ context.Context, tenantID string, ttl time.Duration) (func(), bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := LockKey(tenantID)
	if held, ok := c.locks[key]; ok && c.now().Before(held.until) {
		return nil, false, nil
	}
	c.lockSeq++
	token := c.lockSeq
	c.locks[key] = memoryLock{token: token, until: c.now().Add(ttl)}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// an expired lock may have been taken over; only the owner removes it
		if held, ok := c.locks[key]; ok && held.token == token {
			delete(c.locks, key)
		}
	}, true, nil
}
