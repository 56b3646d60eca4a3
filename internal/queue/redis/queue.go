// Package redis provides a Redis-list work queue with at-least-once
// delivery.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diskseek/diskseek/internal/search"
)

const defaultKey = "crawl:queue"

// popTimeout bounds each BRPOP so a canceled context is noticed promptly.
const popTimeout = 5 * time.Second

// Queue implements search.Queue on a Redis list.
type Queue struct {
	client redis.UniversalClient
	key    string
}

// NewQueue wraps a client. An empty key selects the default list.
func NewQueue(client redis.UniversalClient, key string) *Queue {
	if key == "" {
		key = defaultKey
	}
	return &Queue{client: client, key: key}
}

// Enqueue pushes the item onto the list head.
func (q *Queue) Enqueue(ctx context.Context, item search.WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}
	return nil
}

// Dequeue blocks until an item arrives or the context ends. Undecodable
// payloads are dropped with the next item fetched instead.
func (q *Queue) Dequeue(ctx context.Context) (search.WorkItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return search.WorkItem{}, err
		}
		vals, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return search.WorkItem{}, fmt.Errorf("dequeue work item: %w", err)
		}
		// BRPOP returns [key, value].
		if len(vals) != 2 {
			continue
		}
		var item search.WorkItem
		if err := json.Unmarshal([]byte(vals[1]), &item); err != nil {
			continue
		}
		return item, nil
	}
}
