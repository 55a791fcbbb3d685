package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"sarisari/backend/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
	locker *redislock.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client, locker: redislock.New(client)}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, tenantID string) ([]domain.TransactionReport, bool, error) {
	val, err := c.client.Get(ctx, ReportKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var reports []domain.TransactionReport
	if err := json.Unmarshal([]byte(val), &reports); err != nil {
		return nil, false, err
	}
	return reports, true, nil
}

func (c *RedisReportCache) Generation(ctx context.Context, tenantID string) (int64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set writes under WATCH on the generation key, so an Invalidate that lands between
// the generation read and the write aborts the transaction.
func (c *RedisReportCache) Set(ctx context.Context, tenantID string, gen int64, reports []domain.TransactionReport, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(reports)
	if err != nil {
		return false, err
	}

	genKey := GenerationKey(tenantID)
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if errors.Is(err, redis.Nil) {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ReportKey(tenantID), payload, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (c *RedisReportCache) Invalidate(ctx context.Context, tenantID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey(tenantID))
		pipe.Del(ctx, ReportKey(tenantID))
		return nil
	})
	return err
}

func (c *RedisReportCache) TryLock(ctx context.Context, tenantID string, ttl time.Duration) (func(), bool, error) {
	lock, err := c.locker.Obtain(ctx, LockKey(tenantID), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		// A fresh context: the request context may already be cancelled when the rebuild ends.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, true, nil
}
