package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// Collections accepted by Create
const (
	CollectionJobs  = "jobs"
	CollectionTasks = "tasks"
)

// JobPayload is the creation payload of the jobs collection
type JobPayload struct {
	ScriptPath           string `json:"scriptPath"`
	RequiredSlots        int    `json:"requiredSlots"`
	MaximumExecutionTime int64  `json:"maximumExecutionTime"`
}

// TaskPayload is the creation payload of the tasks collection.
// Exactly one of StartAt and StartAfter must be set.
type TaskPayload struct {
	Job        string          `json:"job"`
	StartAt    *time.Time      `json:"startAt,omitempty"`
	StartAfter string          `json:"startAfter,omitempty"`
	Recurrence *int64          `json:"recurrence,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Create inserts a job or task described by a JSON payload and returns its id
func (s *Scheduler) Create(ctx context.Context, collection string, payload []byte) (string, error) {
	switch collection {
	case CollectionJobs:
		var p JobPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", errors.Wrapf(errors.ErrInvalidRequest, "invalid job payload: %v", err)
		}
		j, err := CreateJob(ctx, s.store, p)
		if err != nil {
			return "", err
		}
		return j.ID, nil

	case CollectionTasks:
		var p TaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", errors.Wrapf(errors.ErrInvalidRequest, "invalid task payload: %v", err)
		}
		t, err := CreateTask(ctx, s.store, p)
		if err != nil {
			return "", err
		}
		return t.ID, nil

	default:
		return "", errors.NewInvalidRequestError("unknown collection %q", collection)
	}
}

// jobCreator and taskCreator are the store methods creation needs
type jobCreator interface {
	CreateJob(ctx context.Context, job *task.Job) error
}

type taskCreator interface {
	GetJob(ctx context.Context, id string) (*task.Job, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
}

// CreateJob validates and stores a job
func CreateJob(ctx context.Context, st jobCreator, p JobPayload) (*task.Job, error) {
	j, err := task.NewJob(p.ScriptPath, p.RequiredSlots, p.MaximumExecutionTime)
	if err != nil {
		return nil, err
	}
	if err := st.CreateJob(ctx, j); err != nil {
		return nil, errors.Wrap(err, "failed to create job")
	}
	return j, nil
}

// CreateTask validates and stores a PENDING task. The job and any startAfter
// task must already exist.
func CreateTask(ctx context.Context, st taskCreator, p TaskPayload) (*task.Task, error) {
	var meta task.Metadata
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "invalid task metadata: %v", err)
		}
	}

	t, err := task.NewTask(p.Job, p.StartAt, p.StartAfter, p.Recurrence, meta)
	if err != nil {
		return nil, err
	}

	job, err := st.GetJob(ctx, p.Job)
	if err != nil {
		return nil, errors.Wrapf(err, "task job %s", p.Job)
	}
	t.Job = job

	if p.StartAfter != "" {
		upstream, err := st.GetTask(ctx, p.StartAfter)
		if err != nil {
			return nil, errors.Wrapf(err, "task startAfter %s", p.StartAfter)
		}
		t.StartAfter = upstream
	}

	if err := st.CreateTask(ctx, t); err != nil {
		return nil, errors.Wrap(err, "failed to create task")
	}
	return t, nil
}
