package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// StateStore remembers issued OAuth state values until they are consumed once.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume reports whether state was issued and not yet used, and invalidates it.
	Consume(ctx context.Context, state string) (bool, error)
}

func stateKey(state string) string {
	return "musinotes:oauth_state:" + state
}

// RedisStateStore keeps states in Redis so any instance can finish the callback.
type RedisStateStore struct {
	client redis.Cmdable
}

func NewRedisStateStore(client redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKey(state), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	err := s.client.GetDel(ctx, stateKey(state)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}

// MemoryStateStore is the single-instance fallback.
type MemoryStateStore struct {
	mu    sync.Mutex
	store *gocache.Cache
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{store: gocache.New(10*time.Minute, 20*time.Minute)}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.store.Set(state, struct{}{}, ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.store.Get(state); !found {
		return false, nil
	}
	s.store.Delete(state)
	return true, nil
}
