package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/diskseek/diskseek/internal/search"
)

// Environment variables handed to the crawl child process.
const (
	EnvTaskID  = "CRAWL_TASK_ID"
	EnvKeyword = "CRAWL_KEYWORD"
	EnvBaseDir = "CRAWL_BASE_DIR"
)

const maxStderr = 8 * 1024

// Launcher starts one isolated crawl run and blocks until it finishes.
type Launcher interface {
	Launch(ctx context.Context, task search.Task) error
}

// ProcessLauncher runs the crawl as a child process of our own binary so a
// crashing or hanging engine never takes the worker down with it.
type ProcessLauncher struct {
	// Binary is the executable to spawn; empty means the current binary.
	Binary string
	// BaseDir is passed through for scratch files.
	BaseDir string
}

// Launch spawns `<binary> crawl` with the task handed over via environment.
// The caller bounds the run through ctx; a kill surfaces as ctx.Err().
func (l *ProcessLauncher) Launch(ctx context.Context, task search.Task) error {
	binary := l.Binary
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve own binary: %w", err)
		}
		binary = self
	}

	cmd := exec.CommandContext(ctx, binary, "crawl")
	cmd.Env = append(os.Environ(),
		EnvTaskID+"="+task.TaskID.String(),
		EnvKeyword+"="+task.Keyword,
		EnvBaseDir+"="+l.BaseDir,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &search.RunExitError{
				Code:   exitErr.ExitCode(),
				Stderr: tail(stderr.String(), maxStderr),
			}
		}
		return fmt.Errorf("start crawl process: %w", err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
