package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/diskseek/diskseek/internal/search"
)

// ResultStore persists discovered resources in the resource_results table.
type ResultStore struct {
	pool db
}

// NewResultStore wraps a pool.
func NewResultStore(pool db) *ResultStore {
	return &ResultStore{pool: pool}
}

const resourceColumns = `task_id, title, disk_type, url, site_source, created_at`

// InsertResource appends one resource row.
func (s *ResultStore) InsertResource(ctx context.Context, res search.Resource) error {
	query := `
INSERT INTO resource_results (` + resourceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.pool.Exec(ctx, query,
		res.TaskID,
		res.Title,
		res.DiskType,
		res.URL,
		res.SiteSource,
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// ListByTask lists a task's resources, newest first.
func (s *ResultStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]search.Resource, error) {
	query := `
SELECT ` + resourceColumns + `
FROM resource_results
WHERE task_id = $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("select resources: %w", err)
	}
	return collectResources(rows)
}

// RecentResources lists resources created after the cutoff, newest first.
func (s *ResultStore) RecentResources(ctx context.Context, since time.Time, limit int) ([]search.Resource, error) {
	query := `
SELECT ` + resourceColumns + `
FROM resource_results
WHERE created_at > $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent resources: %w", err)
	}
	return collectResources(rows)
}

func collectResources(rows pgx.Rows) ([]search.Resource, error) {
	defer rows.Close()

	var out []search.Resource
	for rows.Next() {
		var res search.Resource
		if err := rows.Scan(&res.TaskID, &res.Title, &res.DiskType, &res.URL, &res.SiteSource, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}
