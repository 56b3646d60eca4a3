// Package notify delivers completion mail for finished crawl tasks.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// Config carries the retry policy and the public base URL embedded in the
// message.
type Config struct {
	// BaseURL is the public address of the result page.
	BaseURL string
	// Attempts bounds delivery tries per task.
	Attempts int
	// Backoff is the fixed wait between tries.
	Backoff time.Duration
}

// Notifier sends completion mail with bounded retries. Delivery is best
// effort and never feeds back into task status.
type Notifier struct {
	cfg    Config
	mailer search.Mailer
	logger *zap.Logger
}

// New builds a Notifier.
func New(cfg Config, mailer search.Mailer, logger *zap.Logger) *Notifier {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Notifier{cfg: cfg, mailer: mailer, logger: logger}
}

// NotifyCompletion mails the task owner about a successfully finished run.
// Opted-out tasks are skipped. The last delivery error is returned after
// the retry budget is spent.
func (n *Notifier) NotifyCompletion(ctx context.Context, task search.Task, resourceCount int) error {
	if !task.NotifyEmail {
		telemetry.ObserveNotify("skipped")
		return nil
	}

	subject, body := n.compose(task, resourceCount)

	var lastErr error
	for attempt := 1; attempt <= n.cfg.Attempts; attempt++ {
		if err := n.mailer.Send(ctx, task.Email, subject, body); err != nil {
			lastErr = err
			telemetry.ObserveNotify("failure")
			n.logger.Warn("Notification delivery failed",
				zap.String("task_id", task.TaskID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == n.cfg.Attempts {
				break
			}
			select {
			case <-time.After(n.cfg.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		telemetry.ObserveNotify("success")
		n.logger.Info("Notification delivered",
			zap.String("task_id", task.TaskID.String()),
			zap.Int("attempt", attempt),
		)
		return nil
	}
	return fmt.Errorf("notify task %s after %d attempts: %w", task.TaskID, n.cfg.Attempts, lastErr)
}

func (n *Notifier) compose(task search.Task, resourceCount int) (subject, body string) {
	subject = fmt.Sprintf("Search finished: %s", task.Keyword)

	var b strings.Builder
	fmt.Fprintf(&b, "Your search for %q submitted at %s has finished.\n\n",
		task.Keyword, task.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if resourceCount == 0 {
		b.WriteString("No resources were found for this keyword.\n")
	} else {
		fmt.Fprintf(&b, "%d resources were found.\n", resourceCount)
	}
	if n.cfg.BaseURL != "" {
		fmt.Fprintf(&b, "\nResults: %s/v1/tasks/%s\n", strings.TrimRight(n.cfg.BaseURL, "/"), task.RelatedTaskID)
	}
	if task.ExpireTime != nil {
		fmt.Fprintf(&b, "Results remain available until %s.\n", task.ExpireTime.Format("2006-01-02 15:04:05 MST"))
	}
	return subject, b.String()
}
