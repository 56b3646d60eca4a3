// Package executor drives one crawl task from PENDING to a terminal state,
// delegating the actual crawling to an isolated child process.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/notify"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// Config carries the run budget of a single crawl.
type Config struct {
	// Timeout is the wall-clock budget before the child is killed.
	Timeout time.Duration
	// ResultTTL backfills expire_time on tasks that still lack one.
	ResultTTL time.Duration
}

// Executor owns the status transitions of a crawl run. Transitions are
// idempotent so redelivered queue items are safe.
type Executor struct {
	cfg      Config
	tasks    search.TaskStore
	sites    search.SiteStore
	results  search.ResultStore
	launcher Launcher
	notifier *notify.Notifier
	clock    search.Clock
	logger   *zap.Logger
}

// New wires an Executor.
func New(
	cfg Config,
	tasks search.TaskStore,
	sites search.SiteStore,
	results search.ResultStore,
	launcher Launcher,
	notifier *notify.Notifier,
	clock search.Clock,
	logger *zap.Logger,
) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1200 * time.Second
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &Executor{
		cfg:      cfg,
		tasks:    tasks,
		sites:    sites,
		results:  results,
		launcher: launcher,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Execute runs one work item to completion. The returned error reports why
// the run failed; the task row already carries the terminal status either
// way.
func (e *Executor) Execute(ctx context.Context, item search.WorkItem) error {
	logger := e.logger.With(zap.String("task_id", item.TaskID.String()))

	task, err := e.tasks.GetTask(ctx, item.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", item.TaskID, err)
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", item.TaskID, search.ErrTaskNotFound)
	}
	if task.Status.Terminal() {
		logger.Info("Skipping redelivered task in terminal state",
			zap.String("status", string(task.Status)))
		return nil
	}

	if task.ExpireTime == nil {
		expire := e.clock.Now().Add(e.cfg.ResultTTL)
		if err := e.tasks.SetExpireTime(ctx, task.TaskID, expire); err != nil {
			logger.Warn("Failed to backfill expire time", zap.Error(err))
		} else {
			task.ExpireTime = &expire
		}
	}

	if err := e.tasks.UpdateStatus(ctx, task.TaskID, search.StatusRunning); err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}

	start := e.clock.Now()
	runErr := e.run(ctx, *task)

	status := search.StatusSuccess
	if runErr != nil {
		status = search.StatusFailure
	}
	if err := e.tasks.UpdateStatus(ctx, task.TaskID, status); err != nil {
		logger.Error("Failed to record terminal status", zap.Error(err))
	}
	task.Status = status
	telemetry.ObserveCrawlRun(strings.ToLower(string(status)), e.clock.Now().Sub(start))

	if runErr != nil {
		logger.Error("Crawl run failed", zap.Error(runErr))
		return runErr
	}

	resourceCount := 0
	if resources, err := e.results.ListByTask(ctx, task.TaskID); err != nil {
		logger.Warn("Failed to count resources", zap.Error(err))
	} else {
		resourceCount = len(resources)
	}

	// Only successful runs notify, and mail retries must never hold a
	// worker, so delivery runs on its own goroutine.
	notified := *task
	go func() {
		if err := e.notifier.NotifyCompletion(ctx, notified, resourceCount); err != nil {
			logger.Warn("Notification failed", zap.Error(err))
		}
	}()

	logger.Info("Crawl run finished", zap.Int("resources", resourceCount))
	return nil
}

func (e *Executor) run(ctx context.Context, task search.Task) error {
	sites, err := e.sites.ListEnabledSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	if len(sites) == 0 {
		return search.ErrNoSitesEnabled
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.launcher.Launch(runCtx, task); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return &search.RunTimeoutError{TimeoutSeconds: int(e.cfg.Timeout / time.Second)}
		}
		return err
	}
	return nil
}
