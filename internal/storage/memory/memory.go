// Package memory provides in-memory store implementations for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diskseek/diskseek/internal/search"
)

// TaskStore is an in-memory search.TaskStore.
type TaskStore struct {
	mu    sync.Mutex
	tasks []search.Task
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{}
}

// CreateTask appends a task row.
func (s *TaskStore) CreateTask(_ context.Context, task search.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

// GetTask returns the task with the given id, or nil.
func (s *TaskStore) GetTask(_ context.Context, taskID uuid.UUID) (*search.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.tasks) - 1; i >= 0; i-- {
		if s.tasks[i].TaskID == taskID {
			t := s.tasks[i]
			return &t, nil
		}
	}
	return nil, nil
}

// LatestByRelated returns the newest task sharing the related id, or nil.
func (s *TaskStore) LatestByRelated(_ context.Context, relatedID uuid.UUID) (*search.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *search.Task
	for i := range s.tasks {
		t := s.tasks[i]
		if t.RelatedTaskID != relatedID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = &t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// UpdateStatus moves a task to status, ignoring transitions out of a
// terminal state.
func (s *TaskStore) UpdateStatus(_ context.Context, taskID uuid.UUID, status search.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].TaskID == taskID && !s.tasks[i].Status.Terminal() {
			s.tasks[i].Status = status
		}
	}
	return nil
}

// SetExpireTime backfills expire_time when null.
func (s *TaskStore) SetExpireTime(_ context.Context, taskID uuid.UUID, expire time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].TaskID == taskID && s.tasks[i].ExpireTime == nil {
			e := expire
			s.tasks[i].ExpireTime = &e
		}
	}
	return nil
}

// RecentTasks lists the newest tasks first.
func (s *TaskStore) RecentTasks(_ context.Context, limit int) ([]search.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]search.Task(nil), s.tasks...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResultStore is an in-memory search.ResultStore.
type ResultStore struct {
	mu        sync.Mutex
	resources []search.Resource
}

// NewResultStore creates an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// InsertResource appends a resource row.
func (s *ResultStore) InsertResource(_ context.Context, res search.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, res)
	return nil
}

// ListByTask returns resources owned by the task, newest first.
func (s *ResultStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]search.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []search.Resource
	for _, r := range s.resources {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RecentResources returns resources created after the cutoff, newest first.
func (s *ResultStore) RecentResources(_ context.Context, since time.Time, limit int) ([]search.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []search.Resource
	for _, r := range s.resources {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SiteStore is an in-memory search.SiteStore.
type SiteStore struct {
	mu    sync.Mutex
	sites map[string]search.Site
}

// NewSiteStore creates an empty SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{sites: make(map[string]search.Site)}
}

// UpsertSite inserts or replaces a site definition by key.
func (s *SiteStore) UpsertSite(_ context.Context, site search.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.Key] = site
	return nil
}

// ListEnabledSites returns enabled sites ordered by key.
func (s *SiteStore) ListEnabledSites(_ context.Context) ([]search.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []search.Site
	for _, site := range s.sites {
		if site.Enabled {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// RuleStore is an in-memory search.RuleStore.
type RuleStore struct {
	mu    sync.Mutex
	rules []search.EmailRule
}

// NewRuleStore creates a RuleStore seeded with the given rules.
func NewRuleStore(rules ...search.EmailRule) *RuleStore {
	return &RuleStore{rules: rules}
}

// SetRules replaces the rule list.
func (s *RuleStore) SetRules(rules []search.EmailRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

// ListEnabledRules returns enabled rules.
func (s *RuleStore) ListEnabledRules(_ context.Context) ([]search.EmailRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []search.EmailRule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// CounterStore is an in-memory search.CounterStore with TTL expiry.
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	now      func() time.Time
}

// NewCounterStore creates a CounterStore using the real clock.
func NewCounterStore() *CounterStore {
	return &CounterStore{counters: make(map[string]*counterEntry), now: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (s *CounterStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Incr increments the counter, arming the TTL on creation.
func (s *CounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.counters[key]
	if !ok || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(ttl)}
		s.counters[key] = e
	}
	e.count++
	return e.count, nil
}

type cacheEntry struct {
	taskID    uuid.UUID
	expiresAt time.Time
}

// KeywordCache is an in-memory search.KeywordCache with TTL expiry.
type KeywordCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewKeywordCache creates a KeywordCache using the real clock.
func NewKeywordCache() *KeywordCache {
	return &KeywordCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (c *KeywordCache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// GetKeyword looks up a live cache entry.
func (c *KeywordCache) GetKeyword(_ context.Context, keyword string) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[strings.ToLower(keyword)]
	if !ok || c.now().After(e.expiresAt) {
		return uuid.Nil, false, nil
	}
	return e.taskID, true, nil
}

// SetKeyword writes a cache entry with the given TTL.
func (c *KeywordCache) SetKeyword(_ context.Context, keyword string, taskID uuid.UUID, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(keyword)] = cacheEntry{taskID: taskID, expiresAt: c.now().Add(ttl)}
	return nil
}
