package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	systemclock "github.com/diskseek/diskseek/internal/clock/system"
	"github.com/diskseek/diskseek/internal/notify"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/storage/memory"
)

type fakeLauncher struct {
	mu       sync.Mutex
	launched int
	result   error
	block    time.Duration
}

func (l *fakeLauncher) Launch(ctx context.Context, _ search.Task) error {
	l.mu.Lock()
	l.launched++
	block, result := l.block, l.result
	l.mu.Unlock()

	if block > 0 {
		select {
		case <-time.After(block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return result
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

type countMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *countMailer) Send(context.Context, string, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return nil
}

func (m *countMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type fixture struct {
	exec     *Executor
	tasks    *memory.TaskStore
	sites    *memory.SiteStore
	results  *memory.ResultStore
	launcher *fakeLauncher
	mailer   *countMailer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		tasks:    memory.NewTaskStore(),
		sites:    memory.NewSiteStore(),
		results:  memory.NewResultStore(),
		launcher: &fakeLauncher{},
		mailer:   &countMailer{},
	}
	notifier := notify.New(notify.Config{Attempts: 1, Backoff: time.Millisecond}, f.mailer, zap.NewNop())
	f.exec = New(cfg, f.tasks, f.sites, f.results, f.launcher, notifier, systemclock.New(), zap.NewNop())
	return f
}

func (f *fixture) addSite(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sites.UpsertSite(context.Background(), search.Site{
		Key: "demo", Name: "Demo", Host: "demo.test", Enabled: true,
		Config: []byte(`{"start_url":"https://demo.test/s?kw={keyword}"}`),
	}))
}

func (f *fixture) addTask(t *testing.T, status search.TaskStatus, notify bool) search.Task {
	t.Helper()
	id := uuid.New()
	task := search.Task{
		TaskID: id, RelatedTaskID: id, Keyword: "foo",
		Email: "a@example.com", NotifyEmail: notify,
		Status: status, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.tasks.CreateTask(context.Background(), task))
	return task
}

func (f *fixture) status(t *testing.T, id uuid.UUID) search.TaskStatus {
	t.Helper()
	task, err := f.tasks.GetTask(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task.Status
}

func TestExecute_SuccessfulRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	f.addSite(t)
	task := f.addTask(t, search.StatusPending, false)

	err := f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID, Keyword: "foo"})
	require.NoError(t, err)
	require.Equal(t, search.StatusSuccess, f.status(t, task.TaskID))
	require.Equal(t, 1, f.launcher.launches())

	got, err := f.tasks.GetTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpireTime)
}

func TestExecute_NoSitesFailsWithoutLaunch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	task := f.addTask(t, search.StatusPending, false)

	err := f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID})
	require.ErrorIs(t, err, search.ErrNoSitesEnabled)
	require.Equal(t, search.StatusFailure, f.status(t, task.TaskID))
	require.Zero(t, f.launcher.launches())
}

func TestExecute_TimeoutKillsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: 30 * time.Millisecond})
	f.addSite(t)
	f.launcher.block = time.Second
	task := f.addTask(t, search.StatusPending, false)

	err := f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID})
	var timeout *search.RunTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, search.StatusFailure, f.status(t, task.TaskID))
}

func TestExecute_AbnormalExitFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	f.addSite(t)
	f.launcher.result = &search.RunExitError{Code: 2, Stderr: "boom"}
	task := f.addTask(t, search.StatusPending, false)

	err := f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID})
	var exit *search.RunExitError
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 2, exit.Code)
	require.Equal(t, search.StatusFailure, f.status(t, task.TaskID))
}

func TestExecute_SkipsTerminalTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	f.addSite(t)
	task := f.addTask(t, search.StatusSuccess, false)

	require.NoError(t, f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID}))
	require.Equal(t, search.StatusSuccess, f.status(t, task.TaskID))
	require.Zero(t, f.launcher.launches())
}

func TestExecute_UnknownTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	err := f.exec.Execute(context.Background(), search.WorkItem{TaskID: uuid.New()})
	require.ErrorIs(t, err, search.ErrTaskNotFound)
}

func TestExecute_NotifiesAfterSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	f.addSite(t)
	task := f.addTask(t, search.StatusPending, true)

	require.NoError(t, f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID, Keyword: "foo"}))

	// Delivery runs off the worker goroutine; wait for it.
	require.Eventually(t, func() bool {
		return f.mailer.sentCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExecute_NoNotificationOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Timeout: time.Second})
	f.addSite(t)
	f.launcher.result = &search.RunExitError{Code: 1, Stderr: "boom"}
	task := f.addTask(t, search.StatusPending, true)

	require.Error(t, f.exec.Execute(context.Background(), search.WorkItem{TaskID: task.TaskID, Keyword: "foo"}))
	require.Equal(t, search.StatusFailure, f.status(t, task.TaskID))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.mailer.sentCount())
}
