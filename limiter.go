package studiocms

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether another attempt under key is allowed and records
// it when it is.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter is a per-key sliding window limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryLimiter creates a MemoryLimiter that allows max attempts per
// window. A non-positive window falls back to one minute. Call Stop to end
// its cleanup goroutine.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for key, hits := range l.attempts {
			kept := prune(hits, cutoff)
			if len(kept) == 0 {
				delete(l.attempts, key)
			} else {
				l.attempts[key] = kept
			}
		}
		l.mu.Unlock()
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.attempts[key], now.Add(-l.window))
	if len(kept) >= l.max {
		l.attempts[key] = kept
		return false
	}
	l.attempts[key] = append(kept, now)
	return true
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RedisLimiter is a fixed-window limiter shared between instances. It fails
// open when Redis is unreachable.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
	log    *zap.Logger
}

// NewRedisLimiter returns a RedisLimiter storing counters under prefix.
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration, log *zap.Logger) *RedisLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{client: client, prefix: prefix, max: max, window: window, log: log}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	k := l.prefix + "ratelimit:" + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.String("key", k), zap.Error(err))
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			l.log.Warn("rate limiter expire failed", zap.String("key", k), zap.Error(err))
		}
	}
	return count <= int64(l.max)
}
