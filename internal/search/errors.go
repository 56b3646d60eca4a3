package search

import (
	"errors"
	"fmt"
)

// Submission and run failure taxonomy.
var (
	// ErrInvalidEmail rejects a malformed address before any side effect.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrEmailNotAllowed rejects an address blocked by rule evaluation.
	ErrEmailNotAllowed = errors.New("email not allowed by rules")

	// ErrNoSitesEnabled fails a run that has no sites to crawl.
	ErrNoSitesEnabled = errors.New("no enabled site definitions")

	// ErrTaskNotFound is returned by lookups that came up empty.
	ErrTaskNotFound = errors.New("task not found")
)

// RateLimitedError reports which window rejected a submission. Counters
// incremented for windows checked earlier are not rolled back.
type RateLimitedError struct {
	WindowSeconds int
	Limit         int64
	Count         int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %d submissions in %ds window (limit %d)",
		e.Count, e.WindowSeconds, e.Limit)
}

// RunTimeoutError reports that the isolated crawl run was killed after
// exceeding its wall-clock budget.
type RunTimeoutError struct {
	TimeoutSeconds int
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("crawl run killed after %ds timeout", e.TimeoutSeconds)
}

// RunExitError reports an abnormal exit of the isolated crawl run.
type RunExitError struct {
	Code   int
	Stderr string
}

func (e *RunExitError) Error() string {
	return fmt.Sprintf("crawl run exited with code %d", e.Code)
}
