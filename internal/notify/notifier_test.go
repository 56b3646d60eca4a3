package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/search"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures int
	sent     []string
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testTask(notify bool) search.Task {
	id := uuid.New()
	expire := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	return search.Task{
		TaskID: id, RelatedTaskID: id, Keyword: "foo",
		Email: "user@example.com", NotifyEmail: notify,
		Status: search.StatusSuccess, ExpireTime: &expire,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newNotifier(mailer search.Mailer, attempts int) *Notifier {
	return New(
		Config{BaseURL: "https://diskseek.example.com", Attempts: attempts, Backoff: time.Millisecond},
		mailer, zap.NewNop(),
	)
}

func TestNotifier_DeliversOnFirstTry(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	n := newNotifier(mailer, 5)
	require.NoError(t, n.NotifyCompletion(context.Background(), testTask(true), 3))
	require.Equal(t, 1, mailer.sentCount())
	require.Equal(t, "user@example.com", mailer.sent[0])
}

func TestNotifier_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{failures: 2}
	n := newNotifier(mailer, 5)
	require.NoError(t, n.NotifyCompletion(context.Background(), testTask(true), 3))
	require.Equal(t, 1, mailer.sentCount())
}

func TestNotifier_GivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{failures: 10}
	n := newNotifier(mailer, 3)
	err := n.NotifyCompletion(context.Background(), testTask(true), 3)
	require.Error(t, err)
	require.Zero(t, mailer.sentCount())
}

func TestNotifier_HonorsOptOut(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	n := newNotifier(mailer, 5)
	require.NoError(t, n.NotifyCompletion(context.Background(), testTask(false), 3))
	require.Zero(t, mailer.sentCount())
}

func TestNotifier_ComposeMentionsResultURL(t *testing.T) {
	t.Parallel()

	n := newNotifier(&fakeMailer{}, 1)
	task := testTask(true)
	subject, body := n.compose(task, 2)
	require.Contains(t, subject, "foo")
	require.Contains(t, body, "2 resources")
	require.Contains(t, body, "https://diskseek.example.com/v1/tasks/"+task.RelatedTaskID.String())
	require.Contains(t, body, "2025-06-02")

	_, body = n.compose(task, 0)
	require.Contains(t, body, "No resources were found")
}
