package scan

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache remembers recent resolutions for a bounded time.
type Cache interface {
	Get(ctx context.Context, code string) (*model.CatalogItem, bool)
	Set(ctx context.Context, code string, item *model.CatalogItem)
	Clear(ctx context.Context)
}

type memoryEntry struct {
	item *model.CatalogItem
	at   time.Time
}

// MemoryCache is an in-process recency cache. An entry stored at t0 is
// served during [t0, t0+ttl) and purged lazily afterwards.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, code string) (*model.CatalogItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[code]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, code)
		return nil, false
	}
	return e.item, true
}

func (c *MemoryCache) Set(_ context.Context, code string, item *model.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[code] = memoryEntry{item: item, at: now}
}

func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}

// Len counts entries including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares the recency cache between terminals through Redis. Keys
// expire server-side after ttl. Redis errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.ZapLogger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, log logger.ZapLogger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: log}
}

func (c *RedisCache) key(code string) string {
	return c.prefix + "scan:" + code
}

func (c *RedisCache) Get(ctx context.Context, code string) (*model.CatalogItem, bool) {
	val, err := c.client.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Recency cache read failed", zap.String("barcode", code), zap.Error(err))
		}
		return nil, false
	}
	var item model.CatalogItem
	if err := json.Unmarshal(val, &item); err != nil {
		return nil, false
	}
	return &item, true
}

func (c *RedisCache) Set(ctx context.Context, code string, item *model.CatalogItem) {
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(code), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Recency cache write failed", zap.String("barcode", code), zap.Error(err))
	}
}

func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"scan:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Recency cache scan failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
