// Package worker implements the crawl consumption loop and its fan-out.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/executor"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// Worker consumes work items and hands them to the executor.
type Worker struct {
	queue  search.Queue
	exec   *executor.Executor
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue search.Queue, exec *executor.Executor, logger *zap.Logger) *Worker {
	return &Worker{queue: queue, exec: exec, logger: logger}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item search.WorkItem) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	if err := w.exec.Execute(ctx, item); err != nil {
		w.logger.Error("Work item failed",
			zap.String("task_id", item.TaskID.String()),
			zap.Error(err),
		)
	}
}
