package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CounterStore is the bucketed-counter backing store the behavioral rate
// limiter (spec.md §4.2) and the authorization cache build on. Redis is
// used when available (bucketed INCR+EXPIRE); otherwise an in-process
// map with periodic sweep, exactly as §4.2 specifies.
type CounterStore interface {
	// Incr increments key by 1 and returns the resulting count. The memory
	// store applies ttl only when it creates the key; the Redis store
	// re-applies ttl as the key's expiry on every call.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current value for key, or 0 if absent.
	Get(ctx context.Context, key string) (int64, error)
	// SetString stores an arbitrary string with a TTL (used for auth cache).
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	// GetString retrieves a string previously stored with SetString.
	GetString(ctx context.Context, key string) (string, bool, error)
	// Del removes a key.
	Del(ctx context.Context, key string) error
}

// RedisStore backs CounterStore with go-redis/v9.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore parses a redis URL and builds a RedisStore.
func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{Client: redis.NewClient(opt)}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.Client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (s *RedisStore) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

// MemoryStore backs CounterStore with an in-process go-cache instance,
// used when Redis is unavailable (spec.md §4.2) and in tests.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore builds a MemoryStore with a background sweep interval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, sweepInterval)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if err := s.c.Add(key, int64(0), ttl); err != nil {
		// already exists, fall through to increment
	}
	n, err := s.c.IncrementInt64(key, 1)
	if err != nil {
		// race: the Add above lost to an expiry between Add and Increment
		s.c.Set(key, int64(1), ttl)
		return 1, nil
	}
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	if v, ok := s.c.Get(key); ok {
		if n, ok := v.(int64); ok {
			return n, nil
		}
	}
	return 0, nil
}

func (s *MemoryStore) SetString(_ context.Context, key, value string, ttl time.Duration) error {
	s.c.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	if v, ok := s.c.Get(key); ok {
		if str, ok := v.(string); ok {
			return str, true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}
