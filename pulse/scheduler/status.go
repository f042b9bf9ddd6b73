package scheduler

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/sym"
)

// Status summarises the local state of an instance
type Status struct {
	Running        int     `json:"running"`         // local sandbox units
	SlotsAvailable int     `json:"slots_available"` // free slots
	SlotsTotal     int     `json:"slots_total"`     // configured budget
	MemoryUsedGB   float64 `json:"memory_used_gb"`  // host memory in use
	MemoryTotalGB  float64 `json:"memory_total_gb"` // host memory
	MemoryPercent  float64 `json:"memory_percent"`  // host memory utilisation
}

// memoryStats is swapped out in tests
var memoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// Status reports units, slots and host memory
func (s *Scheduler) Status() Status {
	st := Status{
		Running:        s.units.Len(),
		SlotsAvailable: s.slots.Available(),
		SlotsTotal:     s.slots.Capacity(),
	}
	if total, available, err := memoryStats(); err == nil && total > 0 {
		st.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		st.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		st.MemoryPercent = (st.MemoryUsedGB / st.MemoryTotalGB) * 100
	}
	return st
}

// logStatus logs once per change in running units or free slots
func (s *Scheduler) logStatus() {
	st := s.Status()

	s.mu.Lock()
	changed := st.Running != s.lastStatus.Running || st.SlotsAvailable != s.lastStatus.SlotsAvailable
	if changed {
		s.lastStatus = st
	}
	tick := s.ticks
	s.mu.Unlock()

	if !changed {
		return
	}

	indicator := ""
	if st.Running > 0 {
		n := st.Running/5 + 1
		if n > 20 {
			n = 20
		}
		indicator = strings.TrimSpace(strings.Repeat(sym.Pulse+" ", n)) + " "
	}
	msg := fmt.Sprintf("%sPulse - %d running │ Slots: %d/%d free │ Mem: %.1f/%.1fGB (%.0f%%)",
		indicator, st.Running, st.SlotsAvailable, st.SlotsTotal,
		st.MemoryUsedGB, st.MemoryTotalGB, st.MemoryPercent)

	s.pulseLog.Infow(msg,
		logger.FieldTick, tick,
		logger.FieldSlotsAvailable, st.SlotsAvailable,
		logger.FieldSlotsTotal, st.SlotsTotal)
}
