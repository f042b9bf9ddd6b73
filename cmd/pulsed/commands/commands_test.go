package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsed/am"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/archive"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/seed"
	"github.com/teranos/pulsed/pulse/store"
	"github.com/teranos/pulsed/pulse/task"
)

// isolateConfig points the config loader at an empty home and project and
// a fresh sqlite file, returning the database path
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Chdir(t.TempDir())

	prev := am.SystemConfigPath
	am.SystemConfigPath = filepath.Join(dir, "none.toml")
	dbPath := filepath.Join(dir, "pulsed.db")
	t.Setenv("PULSED_DATABASE_PATH", dbPath)
	am.Reset()
	t.Cleanup(func() {
		am.SystemConfigPath = prev
		am.Reset()
	})
	return dbPath
}

func resetTaskFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		taskJobFlag, taskStartAtFlag, taskStartInFlag, taskAfterFlag, taskMetadataFlag = "", "", "", "", ""
		taskRecurrenceFlag = 0
		for _, name := range []string{"job", "start-at", "start-in", "after", "recurrence", "metadata"} {
			taskCreateCmd.Flags().Lookup(name).Changed = false
		}
	}
	reset()
	t.Cleanup(reset)
}

func TestTaskPayloadFromFlags(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	t.Run("start in with recurrence and metadata", func(t *testing.T) {
		resetTaskFlags(t)
		require.NoError(t, taskCreateCmd.Flags().Set("job", "j1"))
		require.NoError(t, taskCreateCmd.Flags().Set("start-in", "5m"))
		require.NoError(t, taskCreateCmd.Flags().Set("recurrence", "10"))
		require.NoError(t, taskCreateCmd.Flags().Set("metadata", `{"command":"true"}`))

		p, err := taskPayloadFromFlags(taskCreateCmd, now)
		require.NoError(t, err)
		assert.Equal(t, "j1", p.Job)
		require.NotNil(t, p.StartAt)
		assert.Equal(t, now.Add(5*time.Minute), *p.StartAt)
		require.NotNil(t, p.Recurrence)
		assert.Equal(t, int64(10), *p.Recurrence)
		assert.JSONEq(t, `{"command":"true"}`, string(p.Metadata))
	})

	t.Run("zero recurrence is kept when set", func(t *testing.T) {
		resetTaskFlags(t)
		require.NoError(t, taskCreateCmd.Flags().Set("after", "t0"))
		require.NoError(t, taskCreateCmd.Flags().Set("recurrence", "0"))

		p, err := taskPayloadFromFlags(taskCreateCmd, now)
		require.NoError(t, err)
		assert.Equal(t, "t0", p.StartAfter)
		require.NotNil(t, p.Recurrence)
		assert.Zero(t, *p.Recurrence)
	})

	t.Run("no recurrence flag", func(t *testing.T) {
		resetTaskFlags(t)
		require.NoError(t, taskCreateCmd.Flags().Set("start-at", "2026-06-01T00:00:00Z"))

		p, err := taskPayloadFromFlags(taskCreateCmd, now)
		require.NoError(t, err)
		assert.Nil(t, p.Recurrence)
		assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), p.StartAt.UTC())
	})

	invalid := map[string][][2]string{
		"both start flags": {{"start-at", "2026-06-01T00:00:00Z"}, {"start-in", "1s"}},
		"bad start-at":     {{"start-at", "tomorrow"}},
		"bad start-in":     {{"start-in", "soon"}},
		"bad metadata":     {{"metadata", "{not json"}},
	}
	for name, flags := range invalid {
		t.Run(name, func(t *testing.T) {
			resetTaskFlags(t)
			for _, f := range flags {
				require.NoError(t, taskCreateCmd.Flags().Set(f[0], f[1]))
			}
			_, err := taskPayloadFromFlags(taskCreateCmd, now)
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}
}

func TestNewSandbox(t *testing.T) {
	cfg := am.Defaults()
	cfg.Scheduler.LogsPath = filepath.Join(t.TempDir(), "logs")

	cfg.Scheduler.Sandbox = am.SandboxInProcess
	sb, err := newSandbox(cfg)
	require.NoError(t, err)
	assert.IsType(t, &sandbox.InProcessSandbox{}, sb)
	assert.DirExists(t, cfg.Scheduler.LogsPath)

	cfg.Scheduler.Sandbox = am.SandboxProcess
	cfg.Scheduler.WorkerCommand = `/usr/local/bin/pulsed worker --profile "night shift"`
	sb, err = newSandbox(cfg)
	require.NoError(t, err)
	proc, ok := sb.(*sandbox.ProcessSandbox)
	require.True(t, ok)
	assert.Equal(t, []string{"/usr/local/bin/pulsed", "worker", "--profile", "night shift"}, proc.Command)

	cfg.Scheduler.Sandbox = "docker"
	_, err = newSandbox(cfg)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestArchiveOptions(t *testing.T) {
	cfg := am.Defaults()
	cfg.Archive.Backend = am.ArchiveFile
	cfg.Archive.Dir = "/var/lib/pulsed/archive"
	cfg.Archive.UploadsPerSecond = 2

	opts := archiveOptions(cfg)
	assert.Equal(t, archive.BackendFile, opts.Backend)
	assert.Equal(t, cfg.Scheduler.LogsPath, opts.LogsPath)
	assert.Equal(t, "/var/lib/pulsed/archive", opts.Dir)
	assert.Equal(t, 30*24*time.Hour, opts.RedisTTL)
	assert.Equal(t, 2.0, opts.UploadsPerSecond)
}

func TestWriteConfigFormats(t *testing.T) {
	cfg := am.Defaults()

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, cfg, "json"))
	var decoded am.Config
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *cfg, decoded)

	for _, format := range []string{"toml", "yaml"} {
		buf.Reset()
		require.NoError(t, writeConfig(&buf, cfg, format))
		assert.Contains(t, buf.String(), "# pulsed configuration")
	}

	assert.Error(t, writeConfig(&buf, cfg, "ini"))
}

func TestTableRows(t *testing.T) {
	r := int64(10)
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	rows := taskRows([]*task.Task{{ID: "t1", Status: task.StatusPending, JobID: "j1", StartAt: &at, Recurrence: &r}})
	require.Len(t, rows, 2)
	assert.Equal(t, "t1", rows[1][0])
	assert.Equal(t, "10s", rows[1][5])
	assert.Equal(t, "-", rows[1][6])

	counts := countRows(map[task.Status]int{task.StatusPending: 2, task.StatusCompleted: 3})
	assert.Equal(t, []string{"TOTAL", "5"}, counts[len(counts)-1])

	seeded := seedRows(&seed.Result{
		Jobs:  map[string]string{"b": "2", "a": "1"},
		Tasks: map[string]string{"x": "9"},
	})
	assert.Equal(t, [][]string{{"KIND", "KEY", "ID"}, {"job", "a", "1"}, {"job", "b", "2"}, {"task", "x", "9"}}, [][]string(seeded))
}

func TestJobAndTaskCommands(t *testing.T) {
	isolateConfig(t)
	resetTaskFlags(t)
	ctx := context.Background()

	JobCmd.SetArgs([]string{"create", "--script", "pulse.noop", "--slots", "4", "--max-exec-time", "30"})
	require.NoError(t, JobCmd.Execute())

	cfg, err := am.Load()
	require.NoError(t, err)
	database, st, err := openStore(cfg)
	require.NoError(t, err)
	defer database.Close()

	jobList, err := st.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobList, 1)
	assert.Equal(t, 4, jobList[0].RequiredSlots)

	TaskCmd.SetArgs([]string{"create", "--job", jobList[0].ID, "--start-in", "1h"})
	require.NoError(t, TaskCmd.Execute())

	tasks, err := st.ListTasks(ctx, store.ListOptions{JobID: jobList[0].ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StatusPending, tasks[0].Status)

	TaskCmd.SetArgs([]string{"cancel", tasks[0].ID})
	require.NoError(t, TaskCmd.Execute())

	canceled, err := st.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCanceled, canceled.Status)

	TaskCmd.SetArgs([]string{"cancel", tasks[0].ID})
	assert.True(t, errors.IsConflictError(TaskCmd.Execute()))
}

func TestAmInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	t.Cleanup(func() { amInitForce = false })

	AmCmd.SetArgs([]string{"init", path})
	require.NoError(t, AmCmd.Execute())
	assert.FileExists(t, path)

	AmCmd.SetArgs([]string{"init", path})
	assert.Error(t, AmCmd.Execute())

	AmCmd.SetArgs([]string{"init", path, "--force"})
	require.NoError(t, AmCmd.Execute())
	assert.FileExists(t, path+".back1")
}
