package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/diskseek/diskseek/internal/search"
)

// TaskStore persists search tasks in the search_tasks table.
type TaskStore struct {
	pool db
}

// NewTaskStore wraps a pool.
func NewTaskStore(pool db) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `task_id, related_task_id, is_cache, keyword, email, notify_email, status, expire_time, created_at`

// CreateTask inserts a task row.
func (s *TaskStore) CreateTask(ctx context.Context, task search.Task) error {
	query := `
INSERT INTO search_tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := s.pool.Exec(ctx, query,
		task.TaskID,
		task.RelatedTaskID,
		task.IsCache,
		task.Keyword,
		task.Email,
		task.NotifyEmail,
		string(task.Status),
		task.ExpireTime,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task by id, returning nil when absent.
func (s *TaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*search.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM search_tasks WHERE task_id = $1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// LatestByRelated loads the newest row of a related group, or nil.
func (s *TaskStore) LatestByRelated(ctx context.Context, relatedID uuid.UUID) (*search.Task, error) {
	query := `
SELECT ` + taskColumns + `
FROM search_tasks
WHERE related_task_id = $1
ORDER BY created_at DESC
LIMIT 1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, relatedID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select task group: %w", err)
	}
	return task, nil
}

// UpdateStatus moves a task to the given status. Rows already in a terminal
// status are left untouched.
func (s *TaskStore) UpdateStatus(ctx context.Context, taskID uuid.UUID, status search.TaskStatus) error {
	query := `
UPDATE search_tasks
SET status = $2
WHERE task_id = $1 AND status NOT IN ('SUCCESS','FAILURE')`
	if _, err := s.pool.Exec(ctx, query, taskID, string(status)); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// SetExpireTime backfills expire_time on rows that still lack one.
func (s *TaskStore) SetExpireTime(ctx context.Context, taskID uuid.UUID, expire time.Time) error {
	query := `
UPDATE search_tasks
SET expire_time = $2
WHERE task_id = $1 AND expire_time IS NULL`
	if _, err := s.pool.Exec(ctx, query, taskID, expire); err != nil {
		return fmt.Errorf("set task expire time: %w", err)
	}
	return nil
}

// RecentTasks lists the newest submissions.
func (s *TaskStore) RecentTasks(ctx context.Context, limit int) ([]search.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM search_tasks ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent tasks: %w", err)
	}
	defer rows.Close()

	var out []search.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func scanTask(row pgx.Row) (*search.Task, error) {
	var (
		task   search.Task
		status string
	)
	err := row.Scan(
		&task.TaskID,
		&task.RelatedTaskID,
		&task.IsCache,
		&task.Keyword,
		&task.Email,
		&task.NotifyEmail,
		&status,
		&task.ExpireTime,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = search.TaskStatus(status)
	return &task, nil
}
