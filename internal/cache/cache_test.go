package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/config"
)

func TestKey_IsMD5Hex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Key(""))
	assert.Len(t, Key("why did the bot stop trading?"), 32)
	assert.Equal(t, Key("a"), Key("a"))
	assert.NotEqual(t, Key("a"), Key("b"))
}

func TestMemory_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 50*time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "answer"))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "answer", v)

	assert.Eventually(t, func() bool {
		_, ok, _ := m.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Minute)

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	require.NoError(t, m.Set(ctx, "c", "3"))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestRedis_GetSetExpire(t *testing.T) {
	// Given
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := NewRedis(RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	defer r.Close()

	// When: miss, then set
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.Set(ctx, "k", "answer"))

	// Then
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "answer", v)
	assert.True(t, mr.Exists(keyPrefix+"k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(RedisConfig{Addr: addr})

	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	c, err := New(config.CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	mr := miniredis.RunT(t)
	c, err = New(config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr(), TTL: "10m"})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, c)
	require.NoError(t, c.Close())

	_, err = New(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
