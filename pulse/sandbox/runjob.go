package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"runtime/debug"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"go.uber.org/zap"
)

// LogPath is where a task's execution log lives
func LogPath(logsPath, taskID string) string {
	return filepath.Join(logsPath, taskID+".log")
}

// RunJob is the worker-side entry point. It decodes one ExecutionRequest from
// in, runs the resolved job with a per-task file logger and returns the exit
// code the unit should terminate with.
func RunJob(ctx context.Context, jobs *JobRegistry, logsPath, logLevel string, in io.Reader) int {
	var req ExecutionRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		logger.Errorw("Failed to decode execution request", logger.FieldError, err)
		return ExitBadRequest
	}
	return Execute(ctx, jobs, logsPath, logLevel, req)
}

// Execute runs req in the calling goroutine. Panics in job code are
// recovered and reported as failures.
func Execute(ctx context.Context, jobs *JobRegistry, logsPath, logLevel string, req ExecutionRequest) (code int) {
	if err := req.Validate(); err != nil {
		logger.Errorw("Rejected execution request", logger.FieldError, err)
		return ExitBadRequest
	}

	path := LogPath(logsPath, req.TaskID)
	fileLog, closeLog, err := logger.NewFileLogger(path, logLevel)
	if err != nil {
		logger.Errorw("Failed to open task log", logger.FieldTaskID, req.TaskID, logger.FieldPath, path, logger.FieldError, err)
		fileLog, closeLog = zap.NewNop().Sugar(), func() error { return nil }
	}
	defer func() { _ = closeLog() }()

	log := logger.TaskLogger(fileLog, req.TaskID, req.JobID).With(logger.FieldScript, req.ScriptPath)

	job := jobs.Get(req.ScriptPath)
	if job == nil {
		log.Errorw("No job registered for script", logger.FieldError, errors.NewNotFoundError("job %q", req.ScriptPath))
		return ExitFailed
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Job panicked", logger.FieldError, fmt.Sprint(r), "stack", string(debug.Stack()))
			code = ExitFailed
		}
	}()

	log.Infow("Job started")
	if err := job.Execute(ctx, req.TaskID, req.Metadata, log); err != nil {
		log.Errorw("Job failed", logger.FieldError, err)
		return ExitFailed
	}
	log.Infow("Job completed")
	return ExitOK
}
