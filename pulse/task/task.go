// Package task defines the persisted scheduling model: jobs, tasks and the
// recurrence rule that chains periodic tasks together.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/teranos/pulsed/errors"
)

// Status represents the lifecycle state of a task
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCanceled   Status = "CANCELED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCanceled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted || s == StatusFailed
}

// Job describes an executable unit of work. Jobs are created once and never
// deleted by the scheduler.
type Job struct {
	ID                   string    `json:"id"`
	ScriptPath           string    `json:"scriptPath"`           // name of a registered job function
	RequiredSlots        int       `json:"requiredSlots"`        // slots consumed per concurrent run
	MaximumExecutionTime int64     `json:"maximumExecutionTime"` // seconds; <= 0 times out on the next tick
	CreatedAt            time.Time `json:"createdAt"`
}

// NewJob creates a validated job with a fresh id
func NewJob(scriptPath string, requiredSlots int, maximumExecutionTime int64) (*Job, error) {
	j := &Job{
		ID:                   uuid.NewString(),
		ScriptPath:           scriptPath,
		RequiredSlots:        requiredSlots,
		MaximumExecutionTime: maximumExecutionTime,
		CreatedAt:            time.Now(),
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

// Validate checks the job invariants
func (j *Job) Validate() error {
	if j.ScriptPath == "" {
		return errors.NewInvalidRequestError("job scriptPath cannot be empty")
	}
	if j.RequiredSlots <= 0 {
		return errors.NewInvalidRequestError("job requiredSlots must be positive, got %d", j.RequiredSlots)
	}
	return nil
}

// Timeout is the maximum execution time as a duration
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.MaximumExecutionTime) * time.Second
}

// Task is a scheduled execution of a Job.
//
// IN_PROGRESS implies RunBy and StartedAt are set and the running instance
// holds a slot reservation. EndedAt is set exactly when the status is terminal.
type Task struct {
	ID           string     `json:"_id"`
	Status       Status     `json:"_status"`
	RunBy        string     `json:"_runBy,omitempty"` // instance id; empty when not running
	StartedAt    *time.Time `json:"_startedAt,omitempty"`
	EndedAt      *time.Time `json:"_endedAt,omitempty"`
	ParentID     string     `json:"_parent,omitempty"` // weak back-reference along a recurrence chain
	JobID        string     `json:"job"`
	Metadata     Metadata   `json:"metadata"`
	StartAt      *time.Time `json:"startAt,omitempty"`
	Recurrence   *int64     `json:"recurrence,omitempty"` // seconds
	StartAfterID string     `json:"startAfter,omitempty"` // only COMPLETED unlocks
	CreatedAt    time.Time  `json:"createdAt"`

	// Resolved by the store on read
	Job        *Job  `json:"-"`
	StartAfter *Task `json:"-"`
}

// NewTask creates a PENDING task. Exactly one of startAt and startAfterID must be set.
func NewTask(jobID string, startAt *time.Time, startAfterID string, recurrence *int64, meta Metadata) (*Task, error) {
	t := &Task{
		ID:           uuid.NewString(),
		Status:       StatusPending,
		JobID:        jobID,
		Metadata:     meta,
		StartAt:      startAt,
		Recurrence:   recurrence,
		StartAfterID: startAfterID,
		CreatedAt:    time.Now(),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the creation-time invariants of a task
func (t *Task) Validate() error {
	if t.JobID == "" {
		return errors.NewInvalidRequestError("task job cannot be empty")
	}
	if !IsValidStatus(string(t.Status)) {
		return errors.NewInvalidRequestError("invalid task status %q", t.Status)
	}
	if (t.StartAt == nil) == (t.StartAfterID == "") {
		return errors.NewInvalidRequestError("task must set exactly one of startAt and startAfter")
	}
	if t.StartAfterID != "" && t.StartAfterID == t.ID {
		return errors.NewInvalidRequestError("task cannot start after itself")
	}
	if t.Recurrence != nil && *t.Recurrence < 0 {
		return errors.NewInvalidRequestError("task recurrence must be >= 0, got %d", *t.Recurrence)
	}
	return nil
}

// Elapsed returns how long the task has been running at now.
// Zero when the task never started.
func (t *Task) Elapsed(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return now.Sub(*t.StartedAt)
}

// TimedOut reports whether a running task exceeded its job's maximum execution time.
// Orphaned tasks of crashed instances are recovered only through this check.
func (t *Task) TimedOut(now time.Time) bool {
	if t.Job == nil || t.StartedAt == nil {
		return false
	}
	return t.Elapsed(now) > t.Job.Timeout()
}

// RequiredSlots returns the resolved job's slot requirement, 0 when unresolved
func (t *Task) RequiredSlots() int {
	if t.Job == nil {
		return 0
	}
	return t.Job.RequiredSlots
}
