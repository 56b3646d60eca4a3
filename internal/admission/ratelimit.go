package admission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diskseek/diskseek/internal/search"
)

// Window is one fixed rate-limit window with its own limit.
type Window struct {
	Seconds int
	Limit   int64
}

// DefaultWindows mirror the production limits: 3 per minute, 10 per hour,
// 30 per day.
func DefaultWindows() []Window {
	return []Window{
		{Seconds: 60, Limit: 3},
		{Seconds: 3600, Limit: 10},
		{Seconds: 86400, Limit: 30},
	}
}

// RateLimiter enforces per-email fixed windows over a counter store.
type RateLimiter struct {
	counters search.CounterStore
	windows  []Window
}

// NewRateLimiter builds a limiter over the given windows.
func NewRateLimiter(counters search.CounterStore, windows []Window) *RateLimiter {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	return &RateLimiter{counters: counters, windows: windows}
}

// Check increments every window counter in order until one rejects.
// Counters touched before the violating window keep their increment; a
// rejected caller still consumes budget in the smaller windows.
func (l *RateLimiter) Check(ctx context.Context, email string) error {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return nil
	}
	for _, w := range l.windows {
		counterKey := fmt.Sprintf("rl:email:%s:%d", key, w.Seconds)
		count, err := l.counters.Incr(ctx, counterKey, time.Duration(w.Seconds)*time.Second)
		if err != nil {
			return fmt.Errorf("rate limit counter %s: %w", counterKey, err)
		}
		if count > w.Limit {
			return &search.RateLimitedError{
				WindowSeconds: w.Seconds,
				Limit:         w.Limit,
				Count:         count,
			}
		}
	}
	return nil
}
