package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters between instances through Redis. Each identity
// is one integer key whose TTL is the remainder of its window, so an elapsed
// window simply expires.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the "ratelimit" key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// NewRedisStore creates a store on the given client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	if rdb == nil {
		panic("ratelimit: redis client cannot be nil")
	}
	s := &RedisStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + ":" + identity
}

func (s *RedisStore) Increment(ctx context.Context, identity string, window time.Duration, now time.Time) (Counter, error) {
	key := s.key(identity)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Counter{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}

	count := incr.Val()
	ttl := pttl.Val()
	// First hit of a window, or a key that lost its TTL.
	if count == 1 || ttl < 0 {
		if err := s.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return Counter{}, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
		ttl = window
	}
	return Counter{Count: int(count), WindowStart: now.Add(ttl - window)}, nil
}

func (s *RedisStore) Get(ctx context.Context, identity string, window time.Duration, now time.Time) (Counter, bool, error) {
	key := s.key(identity)

	pipe := s.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counter{}, false, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	count, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return Counter{}, false, nil
	}
	if err != nil {
		return Counter{}, false, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	ttl := pttl.Val()
	if ttl < 0 {
		ttl = window
	}
	return Counter{Count: count, WindowStart: now.Add(ttl - window)}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, identity string) error {
	if err := s.rdb.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
