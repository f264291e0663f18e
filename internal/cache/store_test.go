package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIncrAndGet(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	n, err := s.Incr(ctx, "residential:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.Incr(ctx, "residential:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	v, err := s.Get(ctx, "residential:1.2.3.4")
	require.NoError(t, err)
	require.EqualValues(t, 2, v)
}

func TestMemoryStoreGetMissingKeyIsZero(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	v, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.EqualValues(t, 0, v)
}

func TestMemoryStoreSetStringGetStringDel(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SetString(ctx, "user:42", `{"plan":"pro"}`, time.Minute))

	v, ok, err := s.GetString(ctx, "user:42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"plan":"pro"}`, v)

	require.NoError(t, s.Del(ctx, "user:42"))
	_, ok, err = s.GetString(ctx, "user:42")
	require.NoError(t, err)
	require.False(t, ok)
}

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return &RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func TestRedisStoreIncrAndGet(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	n, err := s.Incr(ctx, "datacenter:203.0.113.5", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.Incr(ctx, "datacenter:203.0.113.5", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	v, err := s.Get(ctx, "datacenter:203.0.113.5")
	require.NoError(t, err)
	require.EqualValues(t, 2, v)
}

func TestRedisStoreGetMissingKeyIsZero(t *testing.T) {
	s := newTestRedisStore(t)
	v, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.EqualValues(t, 0, v)
}

func TestRedisStoreSetStringGetStringDel(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetString(ctx, "apikey:sk-test", "user-7", time.Minute))

	v, ok, err := s.GetString(ctx, "apikey:sk-test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "user-7", v)

	require.NoError(t, s.Del(ctx, "apikey:sk-test"))
	_, ok, err = s.GetString(ctx, "apikey:sk-test")
	require.NoError(t, err)
	require.False(t, ok)
}
