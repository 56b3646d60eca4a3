package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	systemclock "github.com/diskseek/diskseek/internal/clock/system"
	"github.com/diskseek/diskseek/internal/executor"
	"github.com/diskseek/diskseek/internal/notify"
	queuemem "github.com/diskseek/diskseek/internal/queue/memory"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/storage/memory"
)

type noopLauncher struct{}

func (noopLauncher) Launch(context.Context, search.Task) error { return nil }

type dropMailer struct{}

func (dropMailer) Send(context.Context, string, string, string) error { return nil }

func TestWorker_ProcessesQueuedTask(t *testing.T) {
	t.Parallel()

	tasks := memory.NewTaskStore()
	sites := memory.NewSiteStore()
	require.NoError(t, sites.UpsertSite(context.Background(), search.Site{
		Key: "demo", Name: "Demo", Host: "demo.test", Enabled: true,
		Config: []byte(`{"start_url":"https://demo.test/s?kw={keyword}"}`),
	}))

	id := uuid.New()
	require.NoError(t, tasks.CreateTask(context.Background(), search.Task{
		TaskID: id, RelatedTaskID: id, Keyword: "foo",
		Email: "a@example.com", Status: search.StatusPending,
		CreatedAt: time.Now().UTC(),
	}))

	notifier := notify.New(notify.Config{Attempts: 1, Backoff: time.Millisecond}, dropMailer{}, zap.NewNop())
	exec := executor.New(
		executor.Config{Timeout: time.Second},
		tasks, sites, memory.NewResultStore(),
		noopLauncher{}, notifier, systemclock.New(), zap.NewNop(),
	)

	queue := queuemem.NewQueue(4)
	require.NoError(t, queue.Enqueue(context.Background(), search.WorkItem{TaskID: id, Keyword: "foo"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := NewDispatcher([]*Worker{New(queue, exec, zap.NewNop())})
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		task, err := tasks.GetTask(context.Background(), id)
		return err == nil && task != nil && task.Status == search.StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
