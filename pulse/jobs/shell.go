package jobs

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// Shell runs metadata.command without a shell. The command line is split
// with POSIX quoting rules; every output line goes to the task log.
type Shell struct{}

func (Shell) Name() string { return NameShell }

func (Shell) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	line, ok := meta.String("command")
	if !ok || line == "" {
		return errors.NewInvalidRequestError("metadata.command is required")
	}
	argv, err := shellquote.Split(line)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "invalid metadata.command: %v", err)
	}
	if len(argv) == 0 {
		return errors.NewInvalidRequestError("metadata.command is empty")
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Infow("Running command", "argv", shellquote.Join(argv...))
	runErr := cmd.Run()

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		log.Infow(scanner.Text(), "stream", "output")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return errors.Newf("command exited with code %d", exitErr.ExitCode())
		}
		return errors.Wrap(runErr, "failed to run command")
	}
	return nil
}
