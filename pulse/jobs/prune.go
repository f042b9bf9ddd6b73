package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

const defaultPruneHours = 24 * 7

// PruneLogs removes task logs and archives in metadata.dir whose modification
// time is older than metadata.older_than_hours (default one week)
type PruneLogs struct {
	now func() time.Time
}

func (PruneLogs) Name() string { return NamePruneLogs }

func (p PruneLogs) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	dir, ok := meta.String("dir")
	if !ok || dir == "" {
		return errors.NewInvalidRequestError("metadata.dir is required")
	}
	hours := float64(defaultPruneHours)
	if _, present := meta.Extra["older_than_hours"]; present {
		if err := meta.Decode("older_than_hours", &hours); err != nil {
			return err
		}
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().Add(-time.Duration(hours * float64(time.Hour)))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", dir)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.gz")) {
			continue
		}
		// Never prune the log this run is writing to
		if strings.TrimSuffix(name, ".log") == taskID {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			log.Warnw("Failed to remove log", "path", name, "error", err)
			continue
		}
		removed++
	}
	log.Infow("Pruned logs", "dir", dir, "count", removed, "cutoff", cutoff.Format(time.RFC3339))
	return nil
}
