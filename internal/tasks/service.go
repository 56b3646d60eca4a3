// Package tasks implements the submission and viewing lifecycle of search
// tasks: admission, coalescing of duplicate keywords, queueing, expiry
// gating and exports.
package tasks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/admission"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// ErrEmptyKeyword rejects submissions with nothing to search for.
var ErrEmptyKeyword = errors.New("keyword must not be empty")

const maxKeywordLen = 100

// Config carries the tunables of the lifecycle service.
type Config struct {
	// CacheTTL bounds how long a keyword coalesces onto an earlier task.
	CacheTTL time.Duration
	// ResultTTL is how long results stay visible after creation.
	ResultTTL time.Duration
}

// Service coordinates admission, task rows, the keyword cache and the work
// queue.
type Service struct {
	cfg     Config
	guard   *admission.Guard
	tasks   search.TaskStore
	results search.ResultStore
	cache   search.KeywordCache
	queue   search.Queue
	ids     search.IDGenerator
	clock   search.Clock
	logger  *zap.Logger
}

// NewService wires a lifecycle service.
func NewService(
	cfg Config,
	guard *admission.Guard,
	tasks search.TaskStore,
	results search.ResultStore,
	cache search.KeywordCache,
	queue search.Queue,
	ids search.IDGenerator,
	clock search.Clock,
	logger *zap.Logger,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &Service{
		cfg:     cfg,
		guard:   guard,
		tasks:   tasks,
		results: results,
		cache:   cache,
		queue:   queue,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// SubmitResult is what a submission hands back to the caller.
type SubmitResult struct {
	Task      search.Task
	Coalesced bool
}

// Submit validates the request, runs admission, and either coalesces onto a
// fresh earlier task for the same keyword or creates and enqueues a new
// crawling task.
func (s *Service) Submit(ctx context.Context, keyword, email string, notifyEmail bool) (*SubmitResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		telemetry.ObserveSubmission("invalid")
		return nil, ErrEmptyKeyword
	}
	if len(keyword) > maxKeywordLen {
		telemetry.ObserveSubmission("invalid")
		return nil, fmt.Errorf("%w: keyword exceeds %d characters", ErrEmptyKeyword, maxKeywordLen)
	}

	if err := s.guard.Check(ctx, email); err != nil {
		var rl *search.RateLimitedError
		if errors.As(err, &rl) {
			telemetry.ObserveSubmission("rate_limited")
		} else {
			telemetry.ObserveSubmission("rejected")
		}
		return nil, err
	}

	normalized := strings.ToLower(keyword)
	if result, ok := s.coalesce(ctx, normalized, keyword, email, notifyEmail); ok {
		telemetry.ObserveSubmission("coalesced")
		return result, nil
	}

	now := s.clock.Now()
	expire := now.Add(s.cfg.ResultTTL)
	task := search.Task{
		TaskID:      s.ids.NewID(),
		Keyword:     keyword,
		Email:       email,
		NotifyEmail: notifyEmail,
		Status:      search.StatusPending,
		ExpireTime:  &expire,
		CreatedAt:   now,
	}
	task.RelatedTaskID = task.TaskID

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, search.WorkItem{TaskID: task.TaskID, Keyword: keyword}); err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.TaskID, err)
	}
	if err := s.cache.SetKeyword(ctx, normalized, task.TaskID, s.cfg.CacheTTL); err != nil {
		// The cache is a coalescing hint; losing it only costs a re-crawl.
		s.logger.Warn("Failed to cache keyword", zap.String("keyword", normalized), zap.Error(err))
	}

	telemetry.ObserveSubmission("accepted")
	s.logger.Info("Task submitted",
		zap.String("task_id", task.TaskID.String()),
		zap.String("keyword", keyword),
	)
	return &SubmitResult{Task: task}, nil
}

// coalesce links the submission onto an earlier task for the same keyword.
// A live cache entry always coalesces and never enqueues a second crawl;
// only an absent or expired entry lets Submit start a fresh one.
func (s *Service) coalesce(ctx context.Context, normalized, keyword, email string, notifyEmail bool) (*SubmitResult, bool) {
	originalID, ok, err := s.cache.GetKeyword(ctx, normalized)
	if err != nil {
		s.logger.Warn("Keyword cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	task := search.Task{
		TaskID:        s.ids.NewID(),
		RelatedTaskID: originalID,
		IsCache:       true,
		Keyword:       keyword,
		Email:         email,
		NotifyEmail:   notifyEmail,
		Status:        search.StatusPending,
		CreatedAt:     s.clock.Now(),
	}

	original, err := s.tasks.GetTask(ctx, originalID)
	if err != nil {
		s.logger.Warn("Failed to load coalescing target", zap.Error(err))
		return nil, false
	}
	if original != nil {
		task.Status = original.Status
		task.ExpireTime = original.ExpireTime
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		s.logger.Error("Failed to create coalesced task", zap.Error(err))
		return nil, false
	}

	s.logger.Info("Submission coalesced",
		zap.String("task_id", task.TaskID.String()),
		zap.String("related_task_id", originalID.String()),
	)
	return &SubmitResult{Task: task, Coalesced: true}, true
}

// View resolves the task group for display. The crawling task is preferred
// over coalesced rows; expired groups render without resources.
func (s *Service) View(ctx context.Context, relatedID uuid.UUID) (*search.TaskView, error) {
	task, err := s.tasks.GetTask(ctx, relatedID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", relatedID, err)
	}
	if task == nil {
		task, err = s.tasks.LatestByRelated(ctx, relatedID)
		if err != nil {
			return nil, fmt.Errorf("load task group %s: %w", relatedID, err)
		}
	}
	if task == nil {
		return nil, search.ErrTaskNotFound
	}

	now := s.clock.Now()
	if task.ExpireTime == nil {
		expire := now.Add(s.cfg.ResultTTL)
		if err := s.tasks.SetExpireTime(ctx, task.TaskID, expire); err != nil {
			s.logger.Warn("Failed to backfill expire time", zap.Error(err))
		} else {
			task.ExpireTime = &expire
		}
	}

	view := &search.TaskView{Task: task}
	if task.ExpireTime != nil && now.After(*task.ExpireTime) {
		view.Expired = true
		return view, nil
	}

	resources, err := s.results.ListByTask(ctx, task.RelatedTaskID)
	if err != nil {
		return nil, fmt.Errorf("list resources for %s: %w", task.RelatedTaskID, err)
	}
	view.Resources = resources
	return view, nil
}

// Verify reports whether the email owns the task group.
func (s *Service) Verify(ctx context.Context, relatedID uuid.UUID, email string) (bool, error) {
	view, err := s.View(ctx, relatedID)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(view.Task.Email, email), nil
}

// ExportCSV streams the group's resources as CSV.
func (s *Service) ExportCSV(ctx context.Context, relatedID uuid.UUID, w io.Writer) error {
	view, err := s.View(ctx, relatedID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"title", "disk_type", "url", "site_source", "created_at"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, res := range view.Resources {
		record := []string{
			res.Title,
			res.DiskType,
			res.URL,
			res.SiteSource,
			res.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RecentFeed lists resources discovered inside the window, newest first,
// deduplicated by URL. An optional query filters titles case-insensitively.
func (s *Service) RecentFeed(ctx context.Context, window time.Duration, limit int, query string) ([]search.Resource, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if limit <= 0 {
		limit = 100
	}

	resources, err := s.results.RecentResources(ctx, s.clock.Now().Add(-window), limit*2)
	if err != nil {
		return nil, fmt.Errorf("list recent resources: %w", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]struct{}, len(resources))
	out := make([]search.Resource, 0, len(resources))
	for _, res := range resources {
		if len(out) >= limit {
			break
		}
		if query != "" && !strings.Contains(strings.ToLower(res.Title), query) {
			continue
		}
		if _, dup := seen[res.URL]; dup {
			continue
		}
		seen[res.URL] = struct{}{}
		out = append(out, res)
	}
	return out, nil
}

// RecentTasks lists the latest submissions for the public feed. Emails must
// be masked before rendering.
func (s *Service) RecentTasks(ctx context.Context, limit int) ([]search.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.tasks.RecentTasks(ctx, limit)
}
