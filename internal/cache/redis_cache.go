package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"warungrekap/internal/domain"
)

// RedisSummaryCache namespaces every summary key under a per-tenant version
// counter. Invalidate bumps the counter, which orphans all existing keys for
// that tenant; the orphans expire on their own TTL.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) version(ctx context.Context, tenant string) (int64, error) {
	val, err := c.client.Get(ctx, "rekap:ver:"+tenant).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (c *RedisSummaryCache) key(ctx context.Context, tenant, kind, period string) (string, error) {
	ver, err := c.version(ctx, tenant)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rekap:%s:v%d:%s:%s", tenant, ver, kind, period), nil
}

func (c *RedisSummaryCache) GetDaily(ctx context.Context, tenant, date string) (*domain.DailySummary, bool, error) {
	key, err := c.key(ctx, tenant, "daily", date)
	if err != nil {
		return nil, false, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DailySummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) SetDaily(ctx context.Context, tenant, date string, value *domain.DailySummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	key, err := c.key(ctx, tenant, "daily", date)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSummaryCache) GetMonthly(ctx context.Context, tenant, period string) (*domain.MonthlySummary, bool, error) {
	key, err := c.key(ctx, tenant, "monthly", period)
	if err != nil {
		return nil, false, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.MonthlySummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) SetMonthly(ctx context.Context, tenant, period string, value *domain.MonthlySummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	key, err := c.key(ctx, tenant, "monthly", period)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, tenant string) error {
	return c.client.Incr(ctx, "rekap:ver:"+tenant).Err()
}
