package store

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter decides whether a client identifier may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NormalizeIP returns host portion of addr
func NormalizeIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a token bucket per key, held in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

func NewMemoryLimiter(requestsPerMinute, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(float64(requestsPerMinute) / 60),
		burst:    burst,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.visitors[key] = v
	}
	v.lastSeen = time.Now()
	m.mu.Unlock()
	return v.limiter.Allow(), nil
}

// Cleanup forgets keys idle for longer than ttl.
func (m *MemoryLimiter) Cleanup(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, v := range m.visitors {
		if now.Sub(v.lastSeen) > ttl {
			delete(m.visitors, key)
			removed++
		}
	}
	return removed
}

// Run cleans up idle keys every minute until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Cleanup(now, ttl)
		}
	}
}

// RedisLimiter counts requests per key in fixed one-minute windows, so
// several instances share one budget.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(addr string, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		limit:  requestsPerMinute,
		window: time.Minute,
	}
}

// Ping checks the connection.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := "vantage:ratelimit:" + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("redis rate limit %s: %w", key, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return true, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return n <= int64(r.limit), nil
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
