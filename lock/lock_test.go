package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNop(t *testing.T) {
	t.Parallel()

	l, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopLock{}, l)

	ok, err := l.TryLock(context.Background(), "bot-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.Unlock(context.Background(), "bot-1"))
	assert.NoError(t, l.Close())
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Enabled: true, Type: "redis"})
	assert.Error(t, err)

	_, err = New(Config{Enabled: true, Type: "etcd"})
	assert.Error(t, err)
}

func TestRedisLock_UnlockNotHeld(t *testing.T) {
	t.Parallel()

	l := NewRedisLock(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "test:")
	defer l.Close()
	assert.Error(t, l.Unlock(context.Background(), "missing"))
}

// Needs a reachable server: TRADER_TEST_REDIS_ADDR=localhost:6379.
func TestRedisLock_Exclusive(t *testing.T) {
	addr := os.Getenv("TRADER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRADER_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	a := NewRedisLock(redis.NewClient(&redis.Options{Addr: addr}), "trader-test:")
	b := NewRedisLock(redis.NewClient(&redis.Options{Addr: addr}), "trader-test:")
	defer a.Close()
	defer b.Close()

	ok, err := a.TryLock(ctx, "bot", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "bot", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock(ctx, "bot"))

	ok, err = b.TryLock(ctx, "bot", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, "bot"))
}
