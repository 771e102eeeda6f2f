package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"musinotes/config"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int((d.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)

func decide(rule config.LimitRule, count int, resetAt time.Time) Decision {
	remaining := rule.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rule.Max,
		Limit:     rule.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// fixedWindowScript increments the counter and starts the window on the first hit.
// A key that somehow lost its TTL gets one again instead of blocking forever.
var fixedWindowScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl < 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// RedisLimiter shares counters between server instances.
type RedisLimiter struct {
	client redis.Scripter
	name   string
	rule   config.LimitRule
}

// NewRedisLimiter creates a limiter whose keys are namespaced by name.
func NewRedisLimiter(client redis.Scripter, name string, rule config.LimitRule) *RedisLimiter {
	return &RedisLimiter{client: client, name: name, rule: rule}
}

// Allow records one hit for key. On a Redis error the request is allowed and the
// error returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("musinotes:ratelimit:%s:%s", l.name, key)
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, l.rule.Window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = fmt.Errorf("unexpected limiter reply %v", res)
	}
	if err != nil {
		return Decision{Allowed: true, Limit: l.rule.Max, Remaining: l.rule.Max, ResetAt: time.Now().Add(l.rule.Window)},
			fmt.Errorf("rate limiter %s: %w", l.name, err)
	}
	resetAt := time.Now().Add(time.Duration(res[1]) * time.Millisecond)
	return decide(l.rule, int(res[0]), resetAt), nil
}

// MemoryLimiter keeps counters in process. Used when Redis is disabled.
type MemoryLimiter struct {
	mu    sync.Mutex
	store *gocache.Cache
	rule  config.LimitRule
}

// NewMemoryLimiter creates an in-process fixed window limiter.
func NewMemoryLimiter(rule config.LimitRule) *MemoryLimiter {
	return &MemoryLimiter{
		store: gocache.New(rule.Window, 2*rule.Window),
		rule:  rule,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 1
	if err := l.store.Add(key, 1, l.rule.Window); err != nil {
		n, err := l.store.IncrementInt(key, 1)
		if err != nil {
			return Decision{Allowed: true, Limit: l.rule.Max, Remaining: l.rule.Max}, err
		}
		count = n
	}

	_, resetAt, found := l.store.GetWithExpiration(key)
	if !found || resetAt.IsZero() {
		resetAt = time.Now().Add(l.rule.Window)
	}
	return decide(l.rule, count, resetAt), nil
}
