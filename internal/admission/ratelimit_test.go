package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/storage/memory"
)

func TestRateLimiter_RejectsBeyondLimit(t *testing.T) {
	t.Parallel()

	counters := memory.NewCounterStore()
	limiter := NewRateLimiter(counters, []Window{{Seconds: 60, Limit: 3}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Check(ctx, "user@example.com"))
	}

	err := limiter.Check(ctx, "user@example.com")
	var rl *search.RateLimitedError
	require.True(t, errors.As(err, &rl))
	require.Equal(t, 60, rl.WindowSeconds)
	require.Equal(t, int64(3), rl.Limit)
	require.Equal(t, int64(4), rl.Count)
}

func TestRateLimiter_WindowExpiryResets(t *testing.T) {
	t.Parallel()

	counters := memory.NewCounterStore()
	now := time.Unix(1000, 0)
	counters.SetNowFunc(func() time.Time { return now })

	limiter := NewRateLimiter(counters, []Window{{Seconds: 60, Limit: 1}})
	ctx := context.Background()

	require.NoError(t, limiter.Check(ctx, "user@example.com"))
	require.Error(t, limiter.Check(ctx, "user@example.com"))

	now = now.Add(61 * time.Second)
	require.NoError(t, limiter.Check(ctx, "user@example.com"))
}

func TestRateLimiter_EarlierWindowsKeepIncrements(t *testing.T) {
	t.Parallel()

	counters := memory.NewCounterStore()
	limiter := NewRateLimiter(counters, []Window{
		{Seconds: 60, Limit: 10},
		{Seconds: 3600, Limit: 1},
	})
	ctx := context.Background()

	require.NoError(t, limiter.Check(ctx, "user@example.com"))
	require.Error(t, limiter.Check(ctx, "user@example.com"))

	// The 60s counter was incremented by the rejected attempt too: the next
	// accepted call sees count 3 there, not 2.
	count, err := counters.Incr(ctx, "rl:email:user@example.com:60", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestRateLimiter_KeysAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	counters := memory.NewCounterStore()
	limiter := NewRateLimiter(counters, []Window{{Seconds: 60, Limit: 1}})
	ctx := context.Background()

	require.NoError(t, limiter.Check(ctx, "User@Example.com"))
	require.Error(t, limiter.Check(ctx, "user@example.com"))
}

func TestRateLimiter_IndependentEmails(t *testing.T) {
	t.Parallel()

	counters := memory.NewCounterStore()
	limiter := NewRateLimiter(counters, []Window{{Seconds: 60, Limit: 1}})
	ctx := context.Background()

	require.NoError(t, limiter.Check(ctx, "a@example.com"))
	require.NoError(t, limiter.Check(ctx, "b@example.com"))
}
