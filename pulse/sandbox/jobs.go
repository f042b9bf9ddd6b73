package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/pulsed/pulse/task"
	"go.uber.org/zap"
)

// Job is code the sandbox can execute, identified by the job's script path.
//
// Execute must watch ctx and return promptly once it is cancelled.
type Job interface {
	Name() string
	Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error
}

// JobFunc adapts a function to the Job interface
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error
}

func (f JobFunc) Name() string { return f.JobName }

func (f JobFunc) Execute(ctx context.Context, taskID string, meta task.Metadata, log *zap.SugaredLogger) error {
	return f.Fn(ctx, taskID, meta, log)
}

// JobRegistry maps script names to jobs.
// Safe for concurrent registration and lookup.
type JobRegistry struct {
	jobs map[string]Job
	mu   sync.RWMutex
}

// NewJobRegistry creates an empty registry
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]Job)}
}

// Register adds a job under its name.
// Panics if the name is already taken.
func (r *JobRegistry) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := job.Name()
	if _, exists := r.jobs[name]; exists {
		panic(fmt.Sprintf("job already registered for name: %s", name))
	}
	r.jobs[name] = job
}

// Get returns the job for name, or nil
func (r *JobRegistry) Get(name string) Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[name]
}

func (r *JobRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[name]
	return ok
}

// Names returns registered job names, sorted
func (r *JobRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
