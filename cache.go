package studiocms

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListCache holds rendered public list responses, grouped by table so a write
// to a table can drop every cached list of it at once.
type ListCache interface {
	Get(ctx context.Context, table, key string) ([]byte, bool)
	Set(ctx context.Context, table, key string, body []byte)
	Invalidate(ctx context.Context, table string)
}

type cacheEntry struct {
	body    []byte
	fetched time.Time
}

// MemoryCache is an in-process ListCache with a TTL.
type MemoryCache struct {
	mu     sync.RWMutex
	tables map[string]map[string]cacheEntry
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryCache creates a MemoryCache whose entries expire after ttl. A
// non-positive ttl disables caching.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		tables: make(map[string]map[string]cacheEntry),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *MemoryCache) valid(e cacheEntry) bool {
	return c.now().Sub(e.fetched) < c.ttl
}

func (c *MemoryCache) Get(_ context.Context, table, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tables[table][key]
	if !ok || !c.valid(e) {
		return nil, false
	}
	return e.body, true
}

func (c *MemoryCache) Set(_ context.Context, table, key string, body []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.tables[table]
	if entries == nil {
		entries = make(map[string]cacheEntry)
		c.tables[table] = entries
	}
	for k, e := range entries {
		if !c.valid(e) {
			delete(entries, k)
		}
	}
	entries[key] = cacheEntry{body: body, fetched: c.now()}
}

// Invalidate clears the table so the next read triggers a fresh load.
func (c *MemoryCache) Invalidate(_ context.Context, table string) {
	c.mu.Lock()
	delete(c.tables, table)
	c.mu.Unlock()
}

const redisOpTimeout = 250 * time.Millisecond

// RedisCache is a ListCache shared between instances. Each table has a
// version counter that is part of every entry key; invalidation bumps it and
// the stale entries age out on their TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache returns a RedisCache storing keys under prefix.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (c *RedisCache) versionKey(table string) string {
	return c.prefix + "cache:" + table + ":version"
}

func (c *RedisCache) entryKey(ctx context.Context, table, key string) (string, error) {
	v, err := c.client.Get(ctx, c.versionKey(table)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return c.prefix + "cache:" + table + ":" + strconv.FormatInt(v, 10) + ":" + key, nil
}

func (c *RedisCache) Get(ctx context.Context, table, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	k, err := c.entryKey(ctx, table, key)
	if err != nil {
		c.log.Warn("cache version lookup failed", zap.String("table", table), zap.Error(err))
		return nil, false
	}
	body, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", zap.String("key", k), zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

func (c *RedisCache) Set(ctx context.Context, table, key string, body []byte) {
	if c.ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	k, err := c.entryKey(ctx, table, key)
	if err != nil {
		c.log.Warn("cache version lookup failed", zap.String("table", table), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, k, body, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", k), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, table string) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := c.client.Incr(ctx, c.versionKey(table)).Err(); err != nil {
		c.log.Error("cache invalidation failed", zap.String("table", table), zap.Error(err))
	}
}

// NewRedisClient connects to the server at rawURL and checks it responds.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
