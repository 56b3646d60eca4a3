package spider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/diskseek/diskseek/internal/search"
)

// StoreSink persists emitted items as resource rows owned by one task.
type StoreSink struct {
	store  search.ResultStore
	taskID uuid.UUID
	clock  search.Clock
}

// NewStoreSink binds a result store to a task.
func NewStoreSink(store search.ResultStore, taskID uuid.UUID, clock search.Clock) *StoreSink {
	return &StoreSink{store: store, taskID: taskID, clock: clock}
}

// Persist writes one item as a resource row.
func (s *StoreSink) Persist(ctx context.Context, item Item) error {
	res := search.Resource{
		TaskID:     s.taskID,
		Title:      item.Title,
		DiskType:   item.DiskType,
		URL:        item.ResourceURL,
		SiteSource: item.SiteName,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.InsertResource(ctx, res); err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}
