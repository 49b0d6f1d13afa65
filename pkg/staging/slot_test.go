package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseSlot(t *testing.T, slot Slot) {
	ctx := context.Background()

	_, err := slot.ReadAndClear(ctx)
	assert.True(t, errors.Is(err, ErrEmpty), "fresh slot: %v", err)

	require.NoError(t, slot.Write(ctx, []byte("first")))
	require.NoError(t, slot.Write(ctx, []byte("second")))

	got, err := slot.ReadAndClear(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got), "last write wins")

	_, err = slot.ReadAndClear(ctx)
	assert.True(t, errors.Is(err, ErrEmpty), "read clears: %v", err)
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, &MemorySlot{})
}

func TestMemoryFactory(t *testing.T) {
	f := NewMemoryFactory()
	ctx := context.Background()

	require.NoError(t, f("alice").Write(ctx, []byte("a")))
	_, err := f("bob").ReadAndClear(ctx)
	assert.True(t, errors.Is(err, ErrEmpty))

	got, err := f("alice").ReadAndClear(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	return client
}

func TestRedisSlot(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	t.Run("read and clear", func(t *testing.T) {
		exerciseSlot(t, NewRedisFactory(client, time.Minute)("session-1"))
	})

	t.Run("entry expires", func(t *testing.T) {
		slot := NewRedisSlot(client, SlotKey("session-2"), time.Second)
		require.NoError(t, slot.Write(context.Background(), []byte("x")))

		ttl, err := client.TTL(context.Background(), SlotKey("session-2")).Result()
		require.NoError(t, err)
		assert.True(t, ttl > 0 && ttl <= time.Second)
	})
}

func TestSlotKey(t *testing.T) {
	assert.Equal(t, "staging:optimistic:u-42", SlotKey("u-42"))
}
