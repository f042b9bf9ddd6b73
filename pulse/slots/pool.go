// Package slots owns the process-wide concurrency budget.
//
// Admission reserves slots for a task and lifecycle releases them. Reservations
// are keyed by task id, so releasing the same task twice is a no-op and the
// pool can never leak or double-count capacity.
package slots

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/pulsed/errors"
)

// Pool is a mutex-guarded slot counter with per-task reservations
type Pool struct {
	mu       sync.Mutex
	capacity int
	reserved map[string]int // task id -> slots held
	inUse    int
}

// NewPool creates a pool with capacity slots
func NewPool(capacity int) (*Pool, error) {
	if capacity < 0 {
		return nil, errors.NewInvalidRequestError("slot capacity must be >= 0, got %d", capacity)
	}
	return &Pool{
		capacity: capacity,
		reserved: make(map[string]int),
	}, nil
}

// TryReserve reserves n slots for taskID if they fit.
// Returns false when capacity is short, n is not positive, or the task already
// holds a reservation.
func (p *Pool) TryReserve(taskID string, n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= 0 {
		return false
	}
	if _, held := p.reserved[taskID]; held {
		return false
	}
	if n > p.capacity-p.inUse {
		return false
	}
	p.reserved[taskID] = n
	p.inUse += n
	return true
}

// Release returns the slots held by taskID.
// Returns the number of slots freed and whether a reservation existed.
func (p *Pool) Release(taskID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, held := p.reserved[taskID]
	if !held {
		return 0, false
	}
	delete(p.reserved, taskID)
	p.inUse -= n
	return n, true
}

// Reserved reports the slots held by taskID
func (p *Pool) Reserved(taskID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, held := p.reserved[taskID]
	return n, held
}

// Available returns free slots
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.inUse
}

// Capacity returns the total slots
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Snapshot describes the pool at a point in time
type Snapshot struct {
	Capacity     int            `json:"capacity"`
	Available    int            `json:"available"`
	Reservations map[string]int `json:"reservations"`
}

// Snapshot returns a copy of the pool state
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := make(map[string]int, len(p.reserved))
	for id, n := range p.reserved {
		res[id] = n
	}
	return Snapshot{Capacity: p.capacity, Available: p.capacity - p.inUse, Reservations: res}
}

// String renders the snapshot for logs
func (s Snapshot) String() string {
	ids := make([]string, 0, len(s.Reservations))
	for id := range s.Reservations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d/%d slots free, %d reservations", s.Available, s.Capacity, len(ids))
}
