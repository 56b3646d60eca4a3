package search

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskStore persists search tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	// GetTask returns the task with the given task id, or nil when absent.
	GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error)
	// LatestByRelated returns the newest task in a related group, or nil.
	LatestByRelated(ctx context.Context, relatedID uuid.UUID) (*Task, error)
	// UpdateStatus moves a task to the given status. Transitions out of a
	// terminal status are silently ignored so redelivered work stays safe.
	UpdateStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus) error
	// SetExpireTime backfills expire_time when it is still null.
	SetExpireTime(ctx context.Context, taskID uuid.UUID, expire time.Time) error
	RecentTasks(ctx context.Context, limit int) ([]Task, error)
}

// ResultStore persists discovered resources.
type ResultStore interface {
	InsertResource(ctx context.Context, res Resource) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]Resource, error)
	// RecentResources returns resources created after the cutoff, newest first.
	RecentResources(ctx context.Context, since time.Time, limit int) ([]Resource, error)
}

// SiteStore reads site definitions. Their lifecycle is owned elsewhere.
type SiteStore interface {
	ListEnabledSites(ctx context.Context) ([]Site, error)
	UpsertSite(ctx context.Context, site Site) error
}

// RuleStore reads email allow/block rules.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]EmailRule, error)
}

// CounterStore is the fast store backing the rate limiter. Incr atomically
// increments the counter and arms the TTL when the counter is created.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// KeywordCache maps a normalized keyword to the original task id for
// submission coalescing. It is a hint, never ground truth.
type KeywordCache interface {
	GetKeyword(ctx context.Context, keyword string) (uuid.UUID, bool, error)
	SetKeyword(ctx context.Context, keyword string, taskID uuid.UUID, ttl time.Duration) error
}

// Queue carries work items to the crawl workers with at-least-once delivery.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
}

// Mailer is the boundary toward the mail transport.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task ids.
type IDGenerator interface {
	NewID() uuid.UUID
}
