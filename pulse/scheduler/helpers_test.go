package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/pulsed/db"
	pulsedtest "github.com/teranos/pulsed/internal/testing"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/store"
	"github.com/teranos/pulsed/pulse/task"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJobs() *sandbox.JobRegistry {
	jobs := sandbox.NewJobRegistry()
	jobs.Register(sandbox.JobFunc{JobName: "noop", Fn: func(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
		return nil
	}})
	jobs.Register(sandbox.JobFunc{JobName: "fail", Fn: func(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
		return context.DeadlineExceeded
	}})
	jobs.Register(sandbox.JobFunc{JobName: "block", Fn: func(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	jobs.Register(sandbox.JobFunc{JobName: "linger", Fn: func(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		log.Infow("Released held resources")
		return ctx.Err()
	}})
	return jobs
}

type harness struct {
	store *store.SQLStore
	clock *fakeClock
	logs  string
	jobs  *sandbox.JobRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		store: store.NewSQLStore(pulsedtest.CreateTestDB(t), db.DriverSQLite),
		clock: newFakeClock(),
		logs:  t.TempDir(),
		jobs:  testJobs(),
	}
}

// scheduler builds an instance over the harness store. Local units are
// killed at cleanup.
func (h *harness) scheduler(t *testing.T, slots int, opts ...Option) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AvailableSlots = slots
	base := []Option{WithClock(h.clock.Now), WithLogger(zap.NewNop().Sugar())}
	s, err := New(h.store, sandbox.NewInProcessSandbox(h.jobs, h.logs, "info"), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, id := range s.units.IDs() {
			s.dropUnit(id)
		}
		s.archiveWG.Wait()
	})
	return s
}

func (h *harness) job(t *testing.T, script string, slots int, maxExec int64) *task.Job {
	t.Helper()
	j, err := task.NewJob(script, slots, maxExec)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateJob(context.Background(), j))
	return j
}

func (h *harness) taskNow(t *testing.T, j *task.Job, recurrence *int64, meta task.Metadata) *task.Task {
	t.Helper()
	startAt := h.clock.Now()
	tk, err := task.NewTask(j.ID, &startAt, "", recurrence, meta)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateTask(context.Background(), tk))
	return tk
}

func (h *harness) taskAfter(t *testing.T, j *task.Job, upstream string) *task.Task {
	t.Helper()
	tk, err := task.NewTask(j.ID, nil, upstream, nil, task.Metadata{})
	require.NoError(t, err)
	require.NoError(t, h.store.CreateTask(context.Background(), tk))
	return tk
}

func (h *harness) status(t *testing.T, id string) task.Status {
	t.Helper()
	tk, err := h.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return tk.Status
}

func (h *harness) tasksWithParent(t *testing.T, parent string) []*task.Task {
	t.Helper()
	all, err := h.store.ListTasks(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	var out []*task.Task
	for _, tk := range all {
		if tk.ParentID == parent {
			out = append(out, tk)
		}
	}
	return out
}

// waitUnit blocks until the local unit of taskID has exited. A unit that was
// already settled by the tick that started it counts as exited.
func waitUnit(t *testing.T, s *Scheduler, taskID string) {
	t.Helper()
	u, ok := s.units.Lookup(taskID)
	if !ok {
		return
	}
	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("unit for task %s did not exit", taskID)
	}
}

func tick(t *testing.T, s *Scheduler) {
	t.Helper()
	require.NoError(t, s.Tick(context.Background()))
}

func i64(v int64) *int64 { return &v }
