// Package store persists jobs and tasks and answers the scheduler's queries.
package store

import (
	"context"
	"time"

	"github.com/teranos/pulsed/pulse/task"
)

// Store is the persistence boundary of the scheduler.
//
// UpdateMatchingTask is the only cross-instance concurrency primitive:
// it applies patch only when every set field of filter matches, and reports
// whether a row was updated. CloseTask is the same update joined with the
// insert of a recurrence successor in one transaction.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *task.Job) error
	GetJob(ctx context.Context, id string) (*task.Job, error)
	ListJobs(ctx context.Context) ([]*task.Job, error)

	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, opts ListOptions) ([]*task.Task, error)
	UpdateMatchingTask(ctx context.Context, filter Filter, patch Patch) (bool, error)
	CloseTask(ctx context.Context, filter Filter, patch Patch, next *task.Task) (bool, error)
	CancelTask(ctx context.Context, id string, now time.Time) error

	// GetRunningTasks returns IN_PROGRESS tasks with Job and StartAfter resolved
	GetRunningTasks(ctx context.Context) ([]*task.Task, error)
	// GetCandidatePendingTasks returns PENDING tasks whose startAt has passed or
	// whose startAfter task is COMPLETED, in creation order, with Job resolved
	GetCandidatePendingTasks(ctx context.Context, now time.Time) ([]*task.Task, error)

	CountByStatus(ctx context.Context) (map[task.Status]int, error)
}

// Filter selects a single task for a conditional update.
// ID is required; zero-valued optional fields are not compared.
type Filter struct {
	ID     string
	Status task.Status
	RunBy  string
}

// Patch lists the fields a conditional update writes. Nil fields are left alone.
type Patch struct {
	Status    task.Status
	RunBy     *string
	StartedAt *time.Time
	EndedAt   *time.Time
}

// ListOptions narrows ListTasks
type ListOptions struct {
	Status task.Status
	JobID  string
	Limit  int
}
