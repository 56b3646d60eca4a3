package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/diskseek/diskseek/internal/search"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func taskRowColumns() []string {
	return []string{
		"task_id", "related_task_id", "is_cache", "keyword", "email",
		"notify_email", "status", "expire_time", "created_at",
	}
}

func TestTaskStore_CreateTask(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	expire := now.Add(24 * time.Hour)
	task := search.Task{
		TaskID: id, RelatedTaskID: id, Keyword: "foo",
		Email: "a@example.com", NotifyEmail: true,
		Status: search.StatusPending, ExpireTime: &expire, CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO search_tasks").
		WithArgs(id, id, false, "foo", "a@example.com", true, "PENDING", &expire, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateTask(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_GetTask(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM search_tasks WHERE task_id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(taskRowColumns()).AddRow(
			id, id, false, "foo", "a@example.com", true, "RUNNING", (*time.Time)(nil), now,
		))

	task, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, search.StatusRunning, task.Status)
	require.Nil(t, task.ExpireTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_GetTaskAbsent(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM search_tasks WHERE task_id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(taskRowColumns()))

	task, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, task)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_UpdateStatusGuardsTerminalRows(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	mock.ExpectExec(`UPDATE search_tasks\s+SET status = \$2\s+WHERE task_id = \$1 AND status NOT IN`).
		WithArgs(id, "SUCCESS").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateStatus(context.Background(), id, search.StatusSuccess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_SetExpireTimeOnlyWhenNull(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	expire := time.Unix(1700086400, 0).UTC()
	mock.ExpectExec(`UPDATE search_tasks\s+SET expire_time = \$2\s+WHERE task_id = \$1 AND expire_time IS NULL`).
		WithArgs(id, expire).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetExpireTime(context.Background(), id, expire))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_RecentTasks(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewTaskStore(mock)

	id := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM search_tasks ORDER BY created_at DESC").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(taskRowColumns()).AddRow(
			id, id, false, "foo", "a@example.com", true, "SUCCESS", (*time.Time)(nil), now,
		))

	tasks, err := store.RecentTasks(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "foo", tasks[0].Keyword)
	require.NoError(t, mock.ExpectationsWereMet())
}
