package scheduler

import (
	"context"
	"time"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/store"
	"github.com/teranos/pulsed/pulse/task"
)

// admit starts every candidate that fits in the free slots, in store order.
// A candidate that does not fit is skipped so smaller ones behind it can
// still start.
func (s *Scheduler) admit(ctx context.Context, now time.Time) error {
	candidates, err := s.store.GetCandidatePendingTasks(ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to get candidate tasks")
	}

	for _, t := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.admitOne(ctx, t, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) admitOne(ctx context.Context, t *task.Task, now time.Time) error {
	need := t.RequiredSlots()
	if need <= 0 {
		s.pulseLog.Warnw("Skipping task without a resolvable job", logger.FieldTaskID, t.ID, logger.FieldJobID, t.JobID)
		return nil
	}
	if need > s.slots.Capacity() {
		s.log.Debugw("Task needs more slots than this instance has",
			logger.FieldTaskID, t.ID, logger.FieldSlots, need, logger.FieldSlotsTotal, s.slots.Capacity())
		return nil
	}
	if !s.slots.TryReserve(t.ID, need) {
		return nil
	}

	won, err := s.store.UpdateMatchingTask(ctx,
		store.Filter{ID: t.ID, Status: task.StatusPending},
		store.Patch{Status: task.StatusInProgress, RunBy: &s.instanceID, StartedAt: &now})
	if err != nil {
		s.slots.Release(t.ID)
		return errors.Wrapf(err, "failed to admit task %s", t.ID)
	}
	if !won {
		s.slots.Release(t.ID)
		s.log.Debugw("Task admitted by another instance", logger.FieldTaskID, t.ID)
		return nil
	}

	t.Status = task.StatusInProgress
	t.RunBy = s.instanceID
	t.StartedAt = &now

	h, err := s.sandbox.Spawn(ctx, sandbox.RequestFor(t))
	if err != nil {
		s.pulseLog.Errorw("Failed to start sandbox unit", logger.FieldTaskID, t.ID, logger.FieldError, err)
		return s.closeTask(ctx, t, task.StatusFailed, now)
	}
	s.units.Track(t.ID, h)

	s.pulseLog.Infow("Task admitted",
		logger.FieldTaskID, t.ID,
		logger.FieldJobID, t.JobID,
		logger.FieldScript, t.Job.ScriptPath,
		logger.FieldSlots, need,
		logger.FieldSlotsAvailable, s.slots.Available())
	return nil
}
