package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a staged entry waits for the view that consumes it.
const DefaultTTL = 5 * time.Minute

type RedisSlot struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisSlot(client redis.Cmdable, key string, ttl time.Duration) *RedisSlot {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSlot{client: client, key: key, ttl: ttl}
}

func NewRedisFactory(client redis.Cmdable, ttl time.Duration) Factory {
	return func(sessionID string) Slot {
		return NewRedisSlot(client, SlotKey(sessionID), ttl)
	}
}

func (s *RedisSlot) Write(ctx context.Context, payload []byte) error {
	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to stage payload: %w", err)
	}
	return nil
}

// ReadAndClear uses GETDEL so two readers can never both get the payload.
func (s *RedisSlot) ReadAndClear(ctx context.Context) ([]byte, error) {
	payload, err := s.client.GetDel(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read staged payload: %w", err)
	}
	return payload, nil
}
