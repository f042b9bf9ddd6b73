package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

func meta(t *testing.T, kv map[string]interface{}) task.Metadata {
	t.Helper()
	var m task.Metadata
	for k, v := range kv {
		require.NoError(t, m.Set(k, v))
	}
	return m
}

func TestRegistryHasBuiltins(t *testing.T) {
	r := Registry()
	assert.Equal(t, []string{NameFail, NameNoop, NamePruneLogs, NameShell, NameSleep}, r.Names())
}

func TestSleep(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	assert.NoError(t, Sleep{}.Execute(ctx, "t", meta(t, map[string]interface{}{"duration": "5ms"}), log))
	assert.NoError(t, Sleep{}.Execute(ctx, "t", meta(t, map[string]interface{}{"duration": 0.005}), log))

	err := Sleep{}.Execute(ctx, "t", task.Metadata{}, log)
	assert.True(t, errors.IsInvalidRequestError(err))
	err = Sleep{}.Execute(ctx, "t", meta(t, map[string]interface{}{"duration": "soon"}), log)
	assert.True(t, errors.IsInvalidRequestError(err))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = Sleep{}.Execute(cctx, "t", meta(t, map[string]interface{}{"duration": "1h"}), log)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFail(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	err := Fail{}.Execute(context.Background(), "t", meta(t, map[string]interface{}{"message": "disk full"}), log)
	assert.EqualError(t, err, "disk full")
	assert.Error(t, Fail{}.Execute(context.Background(), "t", task.Metadata{}, log))
}

func TestShell(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()
	ctx := context.Background()

	err := Shell{}.Execute(ctx, "t", meta(t, map[string]interface{}{"command": `echo "hello world"`}), log)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("hello world").Len())

	err = Shell{}.Execute(ctx, "t", meta(t, map[string]interface{}{"command": "false"}), log)
	assert.EqualError(t, err, "command exited with code 1")

	err = Shell{}.Execute(ctx, "t", meta(t, map[string]interface{}{"command": `echo "open`}), log)
	assert.True(t, errors.IsInvalidRequestError(err))

	err = Shell{}.Execute(ctx, "t", task.Metadata{}, log)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(path, now.Add(-age), now.Add(-age)))
	}
	write("old.log", 48*time.Hour)
	write("old.log.gz", 48*time.Hour)
	write("fresh.log", time.Hour)
	write("notes.txt", 48*time.Hour)
	write("self.log", 48*time.Hour)

	p := PruneLogs{now: func() time.Time { return now }}
	m := meta(t, map[string]interface{}{"dir": dir, "older_than_hours": 24})
	require.NoError(t, p.Execute(context.Background(), "self", m, zaptest.NewLogger(t).Sugar()))

	assert.NoFileExists(t, filepath.Join(dir, "old.log"))
	assert.NoFileExists(t, filepath.Join(dir, "old.log.gz"))
	assert.FileExists(t, filepath.Join(dir, "fresh.log"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.FileExists(t, filepath.Join(dir, "self.log"))

	err := p.Execute(context.Background(), "self", task.Metadata{}, zaptest.NewLogger(t).Sugar())
	assert.True(t, errors.IsInvalidRequestError(err))
}
