// Package archive ships finished task logs somewhere durable.
//
// Archival failures are reported to the caller but must never change the
// outcome of a task; the scheduler logs them as warnings and moves on.
package archive

import (
	"context"
	"os"
	"time"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/task"
)

// Backend names accepted by New
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Archiver uploads the execution log of a closed task
type Archiver interface {
	Upload(ctx context.Context, t *task.Task) error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend          string
	LogsPath         string
	Dir              string
	RedisAddr        string
	RedisKeyPrefix   string
	RedisTTL         time.Duration
	UploadsPerSecond float64
}

// New builds the archiver described by opts, rate limited when
// UploadsPerSecond is positive.
func New(opts Options) (Archiver, error) {
	var a Archiver
	switch opts.Backend {
	case "", BackendNone:
		return Nop{}, nil
	case BackendFile:
		if opts.Dir == "" {
			return nil, errors.NewInvalidRequestError("file archive requires a directory")
		}
		a = NewFileArchiver(opts.LogsPath, opts.Dir)
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, errors.NewInvalidRequestError("redis archive requires an address")
		}
		a = NewRedisArchiver(opts.LogsPath, opts.RedisAddr, opts.RedisKeyPrefix, opts.RedisTTL)
	default:
		return nil, errors.NewInvalidRequestError("unknown archive backend %q", opts.Backend)
	}
	if opts.UploadsPerSecond > 0 {
		a = NewLimited(a, opts.UploadsPerSecond, 1)
	}
	return a, nil
}

// Nop discards uploads
type Nop struct{}

func (Nop) Upload(context.Context, *task.Task) error { return nil }
func (Nop) Close() error                             { return nil }

func readLog(logsPath string, t *task.Task) ([]byte, string, error) {
	path := sandbox.LogPath(logsPath, t.ID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, path, errors.NewNotFoundError("log for task %s at %s", t.ID, path)
		}
		return nil, path, errors.Wrapf(err, "failed to read log for task %s", t.ID)
	}
	return data, path, nil
}
