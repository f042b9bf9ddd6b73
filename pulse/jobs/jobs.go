// Package jobs holds the job functions bundled with pulsed.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/task"
)

// Script names of the builtin jobs
const (
	NameNoop      = "pulse.noop"
	NameSleep     = "pulse.sleep"
	NameFail      = "pulse.fail"
	NameShell     = "pulse.shell"
	NamePruneLogs = "pulse.prune-logs"
)

// Register adds every builtin job to r
func Register(r *sandbox.JobRegistry) {
	r.Register(Noop{})
	r.Register(Sleep{})
	r.Register(Fail{})
	r.Register(Shell{})
	r.Register(PruneLogs{})
}

// Registry returns a job registry holding the builtins
func Registry() *sandbox.JobRegistry {
	r := sandbox.NewJobRegistry()
	Register(r)
	return r
}

// Noop succeeds immediately
type Noop struct{}

func (Noop) Name() string { return NameNoop }

func (Noop) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	log.Infow("noop", "last_completed_at", meta.LastCompletedAt)
	return nil
}

// Sleep waits for metadata.duration, a Go duration string or a number of seconds
type Sleep struct{}

func (Sleep) Name() string { return NameSleep }

func (Sleep) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	d, err := durationFrom(meta, "duration")
	if err != nil {
		return err
	}
	log.Infow("Sleeping", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sleep interrupted")
	case <-timer.C:
		return nil
	}
}

// Fail always fails, with metadata.message when present
type Fail struct{}

func (Fail) Name() string { return NameFail }

func (Fail) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	msg, ok := meta.String("message")
	if !ok {
		msg = "pulse.fail always fails"
	}
	return errors.New(msg)
}

func durationFrom(meta task.Metadata, key string) (time.Duration, error) {
	raw, ok := meta.String(key)
	if !ok {
		return 0, errors.NewInvalidRequestError("metadata.%s is required", key)
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	var seconds float64
	if err := meta.Decode(key, &seconds); err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidRequest, "metadata.%s %q is neither a duration nor seconds", key, raw)
	}
	if seconds < 0 {
		return 0, errors.NewInvalidRequestError("metadata.%s must not be negative", key)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
