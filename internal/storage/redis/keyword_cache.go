package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keywordPrefix = "kw:"

// KeywordCache implements search.KeywordCache on Redis.
type KeywordCache struct {
	client redis.UniversalClient
}

// NewKeywordCache wraps a client.
func NewKeywordCache(client redis.UniversalClient) *KeywordCache {
	return &KeywordCache{client: client}
}

// GetKeyword resolves a keyword to the task id crawling it, if any.
func (c *KeywordCache) GetKeyword(ctx context.Context, keyword string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, keywordKey(keyword)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("get keyword %q: %w", keyword, err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// A corrupt entry behaves like a miss.
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// SetKeyword records the crawling task for a keyword.
func (c *KeywordCache) SetKeyword(ctx context.Context, keyword string, taskID uuid.UUID, ttl time.Duration) error {
	if err := c.client.Set(ctx, keywordKey(keyword), taskID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("set keyword %q: %w", keyword, err)
	}
	return nil
}

func keywordKey(keyword string) string {
	return keywordPrefix + strings.ToLower(keyword)
}
