package scheduler

import (
	"context"
	"time"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/pulse/store"
	"github.com/teranos/pulsed/pulse/task"
)

const statusOnShutdown = task.StatusFailed

// reconcile closes running tasks that timed out or whose local unit exited,
// then settles local units whose task was closed elsewhere
func (s *Scheduler) reconcile(ctx context.Context, now time.Time) error {
	running, err := s.store.GetRunningTasks(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get running tasks")
	}

	inProgress := make(map[string]bool, len(running))
	for _, t := range running {
		inProgress[t.ID] = true

		// Timeout applies to every instance's tasks; it is how orphans are recovered
		if t.TimedOut(now) {
			s.pulseLog.Warnw("Task timed out",
				logger.FieldTaskID, t.ID,
				logger.FieldJobID, t.JobID,
				logger.FieldElapsedMS, t.Elapsed(now).Milliseconds(),
				"run_by", t.RunBy)
			if err := s.closeTask(ctx, t, task.StatusFailed, now); err != nil {
				return err
			}
			continue
		}

		if t.RunBy != s.instanceID {
			continue
		}
		out, finished := s.units.Finished(t.ID)
		if !finished {
			continue
		}
		status := task.StatusFailed
		if out.Succeeded() {
			status = task.StatusCompleted
		}
		s.log.Debugw("Sandbox unit exited", logger.FieldTaskID, t.ID, logger.FieldExitCode, out.ExitCode)
		if err := s.closeTask(ctx, t, status, now); err != nil {
			return err
		}
	}

	for _, id := range s.units.IDs() {
		if inProgress[id] {
			continue
		}
		if err := s.settleClosedElsewhere(ctx, id, now); err != nil {
			return err
		}
	}
	return nil
}

// closeTask moves a running task to status if it is still IN_PROGRESS.
// Only the caller whose update wins releases, archives and recurs, so a task
// closed by a timeout on one instance and by its unit on another is finished
// exactly once. The recurrence successor is written in the same transaction
// as the close; when either write fails the task stays IN_PROGRESS and the
// next tick tries again.
func (s *Scheduler) closeTask(ctx context.Context, t *task.Task, status task.Status, now time.Time) error {
	closed := *t
	closed.Status = status
	closed.EndedAt = &now
	next, _ := task.Next(&closed, status == task.StatusCompleted, now)

	won, err := s.store.CloseTask(ctx,
		store.Filter{ID: t.ID, Status: task.StatusInProgress},
		store.Patch{Status: status, EndedAt: &now},
		next)
	if err != nil {
		return errors.Wrapf(err, "failed to close task %s", t.ID)
	}
	if !won {
		// Closed by someone else; the local unit is settled once the task
		// stops showing up as running
		s.log.Debugw("Task already closed", logger.FieldTaskID, t.ID)
		return nil
	}

	*t = closed
	exited := s.dropUnit(t.ID)

	s.pulseLog.Infow("Task closed",
		logger.FieldTaskID, t.ID,
		logger.FieldJobID, t.JobID,
		logger.FieldStatus, string(status),
		logger.FieldElapsedMS, t.Elapsed(now).Milliseconds(),
		logger.FieldSlotsAvailable, s.slots.Available())

	s.archive(t, exited)
	s.logScheduled(t, next)
	return nil
}

// settleClosedElsewhere handles a local unit whose task is no longer
// IN_PROGRESS: it was cancelled, or another instance timed it out.
// A cancelled task's unit is only forgotten once its successor is stored, so
// a failed insert is retried on the next tick.
func (s *Scheduler) settleClosedElsewhere(ctx context.Context, taskID string, now time.Time) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil && !errors.IsNotFoundError(err) {
		return errors.Wrapf(err, "failed to load task %s", taskID)
	}
	if t == nil || t.Status != task.StatusCanceled || t.RunBy != s.instanceID {
		s.dropUnit(taskID)
		return nil
	}

	if err := s.units.Kill(taskID); err != nil {
		s.log.Debugw("Kill of sandbox unit failed", logger.FieldTaskID, taskID, logger.FieldError, err)
	}
	next, recurs := task.Next(t, false, now)
	if recurs {
		if err := s.store.CreateTask(ctx, next); err != nil {
			return errors.Wrapf(err, "failed to schedule recurrence of task %s", t.ID)
		}
	}

	exited := s.dropUnit(taskID)
	s.pulseLog.Infow("Task cancelled", logger.FieldTaskID, t.ID, logger.FieldJobID, t.JobID,
		logger.FieldSlotsAvailable, s.slots.Available())
	s.archive(t, exited)
	s.logScheduled(t, next)
	return nil
}

func (s *Scheduler) logScheduled(parent, next *task.Task) {
	if next == nil {
		return
	}
	s.pulseLog.Infow("Scheduled next run",
		logger.FieldTaskID, next.ID,
		logger.FieldParentID, parent.ID,
		logger.FieldStartAt, next.StartAt.Format(time.RFC3339))
}

// archive uploads the task log in the background; failures only warn.
// A killed unit may still be writing its last lines, so the upload waits for
// exited to close, up to unitExitTimeout.
func (s *Scheduler) archive(t *task.Task, exited <-chan struct{}) {
	snapshot := *t
	s.archiveWG.Add(1)
	go func() {
		defer s.archiveWG.Done()
		if exited != nil {
			select {
			case <-exited:
			case <-time.After(unitExitTimeout):
				s.log.Debugw("Archiving before unit exit", logger.FieldTaskID, snapshot.ID)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.Upload(ctx, &snapshot); err != nil {
			s.pulseLog.Warnw("Log archival failed", logger.FieldTaskID, snapshot.ID, logger.FieldError, err)
		}
	}()
}
