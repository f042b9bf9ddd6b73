package sandbox

import (
	"sort"
	"sync"
)

// Registry tracks the units this scheduler instance started, keyed by task id.
// It is the only in-memory link between a running task and its unit.
type Registry struct {
	mu    sync.Mutex
	units map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Handle)}
}

// Track records the unit for taskID, replacing any previous entry
func (r *Registry) Track(taskID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[taskID] = h
}

func (r *Registry) Lookup(taskID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.units[taskID]
	return h, ok
}

// Finished polls the unit for taskID without blocking.
// Returns false while the unit is running or when taskID is not tracked.
func (r *Registry) Finished(taskID string) (Outcome, bool) {
	h, ok := r.Lookup(taskID)
	if !ok {
		return Outcome{}, false
	}
	select {
	case <-h.Done():
		return h.Outcome(), true
	default:
		return Outcome{}, false
	}
}

// Kill terminates the unit for taskID if it is tracked
func (r *Registry) Kill(taskID string) error {
	h, ok := r.Lookup(taskID)
	if !ok {
		return nil
	}
	return h.Kill()
}

// Forget drops the entry for taskID
func (r *Registry) Forget(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.units, taskID)
}

// IDs returns tracked task ids, sorted
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}
