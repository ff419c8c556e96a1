// Package fractal implements the background task manager of spec §4.9: a
// high-priority channel for urgent tasks (batch writes), a standard-priority
// channel for generic maintenance, and a queryable GlobalHealth fault
// counter.
package fractal

import "sync/atomic"

// GlobalHealth is a process-wide fault/recovery counter drivers report
// through, exposed as a first-class queryable signal rather than a private
// atomic (SPEC_FULL §C.2).
type GlobalHealth struct {
	faults atomic.Int64
}

// ReportFault increments the fault counter. Called by a driver (journal or
// batch writer) when it hits a recoverable problem.
func (h *GlobalHealth) ReportFault() {
	h.faults.Add(1)
}

// ReportRecovery decrements the fault counter, floored at zero.
func (h *GlobalHealth) ReportRecovery() {
	for {
		cur := h.faults.Load()
		if cur <= 0 {
			return
		}
		if h.faults.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// FaultCount returns the current outstanding fault count.
func (h *GlobalHealth) FaultCount() int64 {
	return h.faults.Load()
}

// Healthy reports whether there are no outstanding faults.
func (h *GlobalHealth) Healthy() bool {
	return h.FaultCount() == 0
}
