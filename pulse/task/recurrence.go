package task

import (
	"time"

	"github.com/google/uuid"
)

// Next computes the successor of a closed task in its recurrence chain.
// It returns false when the task does not recur. The successor is PENDING,
// starts recurrence seconds after now, points back at t through ParentID and
// never depends on another task. lastCompletedAt advances to t.EndedAt only
// when completed is true.
//
// Next has no side effects; persisting the successor is the caller's job.
func Next(t *Task, completed bool, now time.Time) (*Task, bool) {
	if t == nil || t.Recurrence == nil {
		return nil, false
	}

	meta := t.Metadata.Clone()
	if completed {
		ended := now
		if t.EndedAt != nil {
			ended = *t.EndedAt
		}
		meta.LastCompletedAt = &ended
	}

	startAt := now.Add(time.Duration(*t.Recurrence) * time.Second)
	recurrence := *t.Recurrence

	return &Task{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		ParentID:   t.ID,
		JobID:      t.JobID,
		Job:        t.Job,
		Metadata:   meta,
		StartAt:    &startAt,
		Recurrence: &recurrence,
		CreatedAt:  now,
	}, true
}
