package archive

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// FileArchiver gzips task logs into Dir and removes the local copy
type FileArchiver struct {
	LogsPath  string
	Dir       string
	KeepLocal bool
}

func NewFileArchiver(logsPath, dir string) *FileArchiver {
	return &FileArchiver{LogsPath: logsPath, Dir: dir}
}

// ArchivePath is where the compressed log for taskID is written
func (a *FileArchiver) ArchivePath(taskID string) string {
	return filepath.Join(a.Dir, taskID+".log.gz")
}

func (a *FileArchiver) Upload(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, src, err := readLog(a.LogsPath, t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create archive directory %s", a.Dir)
	}

	dst := a.ArchivePath(t.ID)
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}

	zw := gzip.NewWriter(f)
	zw.Name = filepath.Base(src)
	if t.EndedAt != nil {
		zw.ModTime = *t.EndedAt
	}
	_, werr := zw.Write(data)
	if cerr := zw.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(werr, "failed to write archive for task %s", t.ID)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errors.Wrapf(err, "failed to move archive into place for task %s", t.ID)
	}

	if !a.KeepLocal {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "archived task %s but failed to remove local log", t.ID)
		}
	}
	return nil
}

func (a *FileArchiver) Close() error { return nil }
