// Package sandbox runs job code outside the scheduler's failure domain.
//
// The scheduler hands a Sandbox an ExecutionRequest and gets back a Handle.
// The unit reports only an exit code; nothing is shared with the scheduler
// beyond the request message.
package sandbox

import (
	"context"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// Exit codes reported by a sandbox unit
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitBadRequest = 2
	ExitKilled     = -1
)

// ErrKilled is the outcome error of a unit that was killed before finishing
var ErrKilled = errors.New("sandbox unit killed")

// ExecutionRequest is the only data a sandbox unit receives from the scheduler
type ExecutionRequest struct {
	TaskID     string        `json:"taskId"`
	JobID      string        `json:"jobId"`
	ScriptPath string        `json:"scriptPath"`
	Metadata   task.Metadata `json:"metadata"`
}

// RequestFor builds the execution request for an admitted task
func RequestFor(t *task.Task) ExecutionRequest {
	req := ExecutionRequest{
		TaskID:   t.ID,
		JobID:    t.JobID,
		Metadata: t.Metadata.Clone(),
	}
	if t.Job != nil {
		req.ScriptPath = t.Job.ScriptPath
	}
	return req
}

// Validate checks the request carries enough to resolve a job
func (r ExecutionRequest) Validate() error {
	if r.TaskID == "" {
		return errors.NewInvalidRequestError("execution request missing taskId")
	}
	if r.ScriptPath == "" {
		return errors.NewInvalidRequestError("execution request for task %s missing scriptPath", r.TaskID)
	}
	return nil
}

// Outcome is the result of a finished unit
type Outcome struct {
	ExitCode int
	Err      error
}

// Succeeded reports a clean zero exit
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.ExitCode == ExitOK
}

// Handle is a running sandbox unit
type Handle interface {
	// Done is closed once the unit has terminated
	Done() <-chan struct{}
	// Outcome is only meaningful after Done is closed
	Outcome() Outcome
	// Kill terminates the unit. Best-effort; callers must not rely on it succeeding.
	Kill() error
}

// Sandbox starts isolated units of work
type Sandbox interface {
	Spawn(ctx context.Context, req ExecutionRequest) (Handle, error)
}
