package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewRedisCache(rdb)

	_, ok, err := c.Get(ctx, "slots:x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "slots:x", []byte(`{"count":1}`), 30*time.Minute))
	assert.Equal(t, 30*time.Minute, rdb.ttl["slots:x"])

	val, ok, err := c.Get(ctx, "slots:x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"count":1}`, string(val))
}

func TestRedisCacheErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	c := NewRedisCache(rdb)

	_, ok, err := c.Get(context.Background(), "slots:x")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "slots:x", []byte("{}"), time.Minute))
}

func TestKey(t *testing.T) {
	type req struct {
		Busy     [][2]int64
		Duration int
	}
	a, err := Key("slots", req{Busy: [][2]int64{{1, 2}}, Duration: 25})
	require.NoError(t, err)
	b, err := Key("slots", req{Busy: [][2]int64{{1, 2}}, Duration: 25})
	require.NoError(t, err)
	c, err := Key("slots", req{Busy: [][2]int64{{1, 2}}, Duration: 30})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "slots:"))
	assert.Len(t, a, len("slots:")+64)
}

func TestReadyCheckWithoutClient(t *testing.T) {
	assert.Error(t, ReadyCheck(nil)(context.Background()))
}
