// Package search defines the domain types and interfaces shared by the
// submission, crawl and notification subsystems.
package search

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a SearchTask.
type TaskStatus string

// Task lifecycle states. A task never leaves Success or Failure.
const (
	StatusPending TaskStatus = "PENDING"
	StatusRunning TaskStatus = "RUNNING"
	StatusSuccess TaskStatus = "SUCCESS"
	StatusFailure TaskStatus = "FAILURE"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Task is one submitted keyword search. Coalesced duplicate submissions get
// their own row with RelatedTaskID pointing at the original crawling task;
// for the original, TaskID and RelatedTaskID are equal.
type Task struct {
	TaskID        uuid.UUID
	RelatedTaskID uuid.UUID
	IsCache       bool
	Keyword       string
	Email         string
	NotifyEmail   bool
	Status        TaskStatus
	ExpireTime    *time.Time
	CreatedAt     time.Time
}

// MaskedEmail renders the task email with most of the local part hidden,
// suitable for public feeds.
func (t Task) MaskedEmail() string {
	at := strings.Index(t.Email, "@")
	if at < 0 {
		return t.Email
	}
	local, domain := t.Email[:at], t.Email[at+1:]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "******@" + domain
}

// Resource is one discovered downloadable link, owned by the crawling task
// that found it. Rows are append only.
type Resource struct {
	TaskID     uuid.UUID
	Title      string
	DiskType   string
	URL        string
	SiteSource string
	CreatedAt  time.Time
}

// Site is one third-party site definition. Config holds the declarative
// crawl workflow consumed by the spider engine; its schema is owned by the
// spider package.
type Site struct {
	Key     string
	Name    string
	Host    string
	Enabled bool
	Config  []byte
}

// Email rule list types.
const (
	RuleAllow = 1
	RuleBlock = 2
)

// EmailRule is one allow or block entry. Rule holds the user-facing
// mini-syntax; Pattern holds the regular expression it compiled to.
type EmailRule struct {
	ID       int64
	Rule     string
	ListType int
	Pattern  string
	Enabled  bool
}

// WorkItem is one crawl unit handed to the worker pool.
type WorkItem struct {
	TaskID  uuid.UUID `json:"task_id"`
	Keyword string    `json:"keyword"`
	Attempt int       `json:"attempt"`
}

// TaskView is what the API renders for a related task group.
type TaskView struct {
	Task      *Task
	Resources []Resource
	Expired   bool
}
