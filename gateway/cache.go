package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

const generationKey = "taskboard:cache:generation"

// Cache wraps a Service with Redis-backed caching for counts, lookups and
// comment threads. Page reads always go to the backing service.
type Cache struct {
	Service
	redis     *redis.Client
	ttl       time.Duration
	lookupTTL time.Duration
}

// NewCache creates a caching Service wrapper using the provided Redis client and TTL.
func NewCache(base Service, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("gateway.NewCache: base service is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Service: base, redis: client, ttl: ttl, lookupTTL: ttl}
}

// WithLookupTTL keeps filter option lists for d instead of the count TTL.
func (c *Cache) WithLookupTTL(d time.Duration) *Cache {
	if d >= 0 {
		c.lookupTTL = d
	}
	return c
}

func (c *Cache) CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error) {
	key, ok := c.countKey(ctx, status, filters)
	if ok {
		if n, hit := load[int](ctx, c, key); hit {
			return n, nil
		}
	}
	n, err := c.Service.CountByStatus(ctx, status, filters)
	if err != nil {
		return 0, err
	}
	if ok {
		store(ctx, c, key, n, c.ttl)
	}
	return n, nil
}

func (c *Cache) ListDistinctValues(ctx context.Context, column LookupColumn) ([]string, error) {
	key := lookupCacheKey(string(column))
	if values, ok := load[[]string](ctx, c, key); ok {
		return values, nil
	}
	values, err := c.Service.ListDistinctValues(ctx, column)
	if err != nil {
		return nil, err
	}
	store(ctx, c, key, values, c.lookupTTL)
	return values, nil
}

func (c *Cache) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	key := lookupCacheKey("subcategory-map")
	if m, ok := load[map[string][]string](ctx, c, key); ok {
		return m, nil
	}
	m, err := c.Service.SubcategoryMap(ctx)
	if err != nil {
		return nil, err
	}
	store(ctx, c, key, m, c.lookupTTL)
	return m, nil
}

func (c *Cache) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	key := commentsCacheKey(taskID)
	if comments, ok := load[[]domain.Comment](ctx, c, key); ok {
		return comments, nil
	}
	comments, err := c.Service.Comments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	store(ctx, c, key, comments, c.ttl)
	return comments, nil
}

func (c *Cache) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	if err := c.Service.UpdateStatus(ctx, taskID, status); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *Cache) AddComment(ctx context.Context, taskID, content, userEmail string) (domain.Comment, error) {
	comment, err := c.Service.AddComment(ctx, taskID, content, userEmail)
	if err != nil {
		return domain.Comment{}, err
	}
	if c.redis != nil {
		_ = c.redis.Del(ctx, commentsCacheKey(taskID)).Err()
	}
	return comment, nil
}

// Invalidate drops every cached count by moving to a new key generation.
// Stale entries expire on their own.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, generationKey).Err()
}

func (c *Cache) countKey(ctx context.Context, status domain.Status, filters domain.FilterSet) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", false
	}
	payload, err := sonic.Marshal(filters)
	if err != nil {
		return "", false
	}
	digest := strconv.FormatUint(xxhash.Sum64(payload), 16)
	return "counts:" + strconv.FormatInt(gen, 10) + ":" + string(status) + ":" + digest, true
}

func load[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing service without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var v T
	if err := sonic.Unmarshal(data, &v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return v, true
}

func store(ctx context.Context, c *Cache, key string, v any, ttl time.Duration) {
	if c.redis == nil || ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, ttl).Err()
}

func lookupCacheKey(name string) string {
	return "lookups:" + name
}

func commentsCacheKey(taskID string) string {
	return "comments:" + taskID
}
