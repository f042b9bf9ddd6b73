// Package seed loads YAML manifests of jobs and tasks created at deployment.
//
//	jobs:
//	  - key: digest
//	    script: pulse.shell
//	    required_slots: 4
//	    maximum_execution_time: 300
//	tasks:
//	  - key: nightly
//	    job: digest
//	    start_in: 10m
//	    recurrence: 86400
//	    metadata:
//	      command: ./bin/digest --since yesterday
//	  - key: report
//	    job: digest
//	    after: nightly
package seed

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/scheduler"
	"github.com/teranos/pulsed/pulse/store"
)

// Manifest is a seed file
type Manifest struct {
	Jobs  []JobSpec  `yaml:"jobs"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// JobSpec declares a job under a manifest-local key
type JobSpec struct {
	Key                  string `yaml:"key"`
	Script               string `yaml:"script"`
	RequiredSlots        int    `yaml:"required_slots"`
	MaximumExecutionTime int64  `yaml:"maximum_execution_time"`
}

// TaskSpec declares a task. Exactly one of StartIn, StartAt and After is set.
type TaskSpec struct {
	Key        string                 `yaml:"key"`
	Job        string                 `yaml:"job"`
	StartIn    string                 `yaml:"start_in,omitempty"`
	StartAt    *time.Time             `yaml:"start_at,omitempty"`
	After      string                 `yaml:"after,omitempty"`
	Recurrence *int64                 `yaml:"recurrence,omitempty"`
	Metadata   map[string]interface{} `yaml:"metadata,omitempty"`
}

// Result maps manifest keys to created ids
type Result struct {
	Jobs  map[string]string
	Tasks map[string]string
}

// Load decodes and validates a manifest. Unknown fields are rejected.
func Load(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "invalid seed manifest: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks keys are unique and references point backwards
func (m *Manifest) Validate() error {
	jobs := make(map[string]bool, len(m.Jobs))
	for i, j := range m.Jobs {
		if j.Key == "" {
			return errors.NewInvalidRequestError("jobs[%d]: key is required", i)
		}
		if jobs[j.Key] {
			return errors.NewInvalidRequestError("jobs[%d]: duplicate key %q", i, j.Key)
		}
		jobs[j.Key] = true
	}

	tasks := make(map[string]bool, len(m.Tasks))
	for i, t := range m.Tasks {
		if t.Key == "" {
			return errors.NewInvalidRequestError("tasks[%d]: key is required", i)
		}
		if tasks[t.Key] {
			return errors.NewInvalidRequestError("tasks[%d]: duplicate key %q", i, t.Key)
		}
		if !jobs[t.Job] {
			return errors.NewInvalidRequestError("tasks[%d] %q: unknown job %q", i, t.Key, t.Job)
		}
		set := 0
		for _, present := range []bool{t.StartIn != "", t.StartAt != nil, t.After != ""} {
			if present {
				set++
			}
		}
		if set != 1 {
			return errors.NewInvalidRequestError("tasks[%d] %q: exactly one of start_in, start_at and after must be set", i, t.Key)
		}
		if t.StartIn != "" {
			if _, err := time.ParseDuration(t.StartIn); err != nil {
				return errors.Wrapf(errors.ErrInvalidRequest, "tasks[%d] %q: invalid start_in: %v", i, t.Key, err)
			}
		}
		if t.After != "" && !tasks[t.After] {
			return errors.NewInvalidRequestError("tasks[%d] %q: after %q must name an earlier task", i, t.Key, t.After)
		}
		tasks[t.Key] = true
	}
	return nil
}

// Apply creates the manifest's jobs and then its tasks, in file order.
// start_in is resolved against now.
func Apply(ctx context.Context, st store.Store, m *Manifest, now time.Time) (*Result, error) {
	res := &Result{Jobs: map[string]string{}, Tasks: map[string]string{}}

	for _, spec := range m.Jobs {
		j, err := scheduler.CreateJob(ctx, st, scheduler.JobPayload{
			ScriptPath:           spec.Script,
			RequiredSlots:        spec.RequiredSlots,
			MaximumExecutionTime: spec.MaximumExecutionTime,
		})
		if err != nil {
			return res, errors.Wrapf(err, "seed job %q", spec.Key)
		}
		res.Jobs[spec.Key] = j.ID
	}

	for _, spec := range m.Tasks {
		p := scheduler.TaskPayload{
			Job:        res.Jobs[spec.Job],
			StartAt:    spec.StartAt,
			Recurrence: spec.Recurrence,
		}
		if spec.StartIn != "" {
			d, _ := time.ParseDuration(spec.StartIn)
			at := now.Add(d)
			p.StartAt = &at
		}
		if spec.After != "" {
			p.StartAfter = res.Tasks[spec.After]
		}
		if len(spec.Metadata) > 0 {
			raw, err := json.Marshal(spec.Metadata)
			if err != nil {
				return res, errors.Wrapf(err, "seed task %q metadata", spec.Key)
			}
			p.Metadata = raw
		}

		t, err := scheduler.CreateTask(ctx, st, p)
		if err != nil {
			return res, errors.Wrapf(err, "seed task %q", spec.Key)
		}
		res.Tasks[spec.Key] = t.ID
	}
	return res, nil
}
