package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/kballard/go-shellquote"
	"github.com/teranos/pulsed/errors"
)

// ProcessSandbox runs every unit in a child process. The child is expected to
// call RunJob with its stdin; by default it is this binary's hidden worker
// command.
type ProcessSandbox struct {
	Command  []string
	LogsPath string
	LogLevel string
	Env      []string // appended to the parent environment
	Stderr   io.Writer
}

// NewProcessSandbox parses a shell-quoted worker command line.
// An empty command line re-executes the current binary with "worker".
func NewProcessSandbox(commandLine, logsPath, logLevel string) (*ProcessSandbox, error) {
	var argv []string
	if commandLine == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve own executable for worker command")
		}
		argv = []string{self, "worker"}
	} else {
		parsed, err := shellquote.Split(commandLine)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "invalid worker command %q: %v", commandLine, err)
		}
		if len(parsed) == 0 {
			return nil, errors.NewInvalidRequestError("worker command is empty")
		}
		argv = parsed
	}
	return &ProcessSandbox{
		Command:  argv,
		LogsPath: logsPath,
		LogLevel: logLevel,
		Stderr:   os.Stderr,
	}, nil
}

// Spawn starts the worker process and writes req to its stdin
func (p *ProcessSandbox) Spawn(ctx context.Context, req ExecutionRequest) (Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(p.Command) == 0 {
		return nil, errors.NewInvalidRequestError("process sandbox has no worker command")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode execution request for task %s", req.TaskID)
	}

	args := append(append([]string{}, p.Command[1:]...), "--logs-path", p.LogsPath, "--log-level", p.LogLevel)
	cmd := exec.Command(p.Command[0], args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = p.Stderr
	cmd.Env = append(os.Environ(), p.Env...)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start worker for task %s", req.TaskID)
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type processHandle struct {
	cmd     *exec.Cmd
	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
	killed  bool
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.killed:
		h.outcome = Outcome{ExitCode: ExitKilled, Err: ErrKilled}
	case err == nil:
		h.outcome = Outcome{ExitCode: ExitOK}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.outcome = Outcome{ExitCode: exitErr.ExitCode()}
		} else {
			h.outcome = Outcome{ExitCode: ExitFailed, Err: err}
		}
	}
	close(h.done)
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

func (h *processHandle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "failed to kill worker pid %d", h.cmd.Process.Pid)
	}
	return nil
}
