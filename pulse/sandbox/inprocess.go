package sandbox

import (
	"context"
	"sync"
)

// InProcessSandbox runs units as goroutines. Job panics are contained, but a
// job that ignores its context cannot be stopped.
type InProcessSandbox struct {
	Jobs     *JobRegistry
	LogsPath string
	LogLevel string
}

func NewInProcessSandbox(jobs *JobRegistry, logsPath, logLevel string) *InProcessSandbox {
	return &InProcessSandbox{Jobs: jobs, LogsPath: logsPath, LogLevel: logLevel}
}

// Spawn starts req in a new goroutine. The unit's context is detached from
// ctx's cancellation so a finished tick does not end it; Kill is the only stop.
func (s *InProcessSandbox) Spawn(ctx context.Context, req ExecutionRequest) (Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &goroutineHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer cancel()
		code := Execute(unitCtx, s.Jobs, s.LogsPath, s.LogLevel, req)

		h.mu.Lock()
		if h.killed {
			h.outcome = Outcome{ExitCode: ExitKilled, Err: ErrKilled}
		} else {
			h.outcome = Outcome{ExitCode: code}
		}
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

type goroutineHandle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
	killed  bool
}

func (h *goroutineHandle) Done() <-chan struct{} { return h.done }

func (h *goroutineHandle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

func (h *goroutineHandle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	h.cancel()
	return nil
}
