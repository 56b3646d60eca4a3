package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments atomically and arms the TTL only on the first hit,
// so the window never slides on later increments.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// CounterStore implements search.CounterStore on Redis.
type CounterStore struct {
	client redis.UniversalClient
}

// NewCounterStore wraps a client.
func NewCounterStore(client redis.UniversalClient) *CounterStore {
	return &CounterStore{client: client}
}

// Incr increments the counter and returns the new value.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	count, err := incrScript.Run(ctx, s.client, []string{key}, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr counter %s: %w", key, err)
	}
	return count, nil
}
