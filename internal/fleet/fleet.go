// Package fleet implements the authoritative table of live workers and the
// round-robin dispatch cursor built on top of it.
//
// Strategy: an atomic index counter modulo the length of an immutable ports
// slice, the slice itself swapped atomically on every membership change.
// pick_next never blocks and never observes a port that was removed before
// the call began, because it always reads a single, fully-formed snapshot.
package fleet

import (
	"sync"
	"sync/atomic"
)

// Worker is a single fleet member as seen by everything except the
// supervisor: a port and a monotonic dispatch counter. The process handle
// that backs this port lives in the supervisor and is never exposed here.
type Worker struct {
	Port         uint16
	requestCount atomic.Uint64
}

// RequestCount returns the number of dispatches this worker has received.
func (w *Worker) RequestCount() uint64 {
	return w.requestCount.Load()
}

// Incr bumps the dispatch counter for this worker. Called only by the
// proxy handler (§4.E) right after a successful pick, before forwarding.
func (w *Worker) Incr() {
	w.requestCount.Add(1)
}

// Fleet is the insertion-ordered set of live workers plus the dispatch
// cursor derived from it. The zero value is not usable; use New.
type Fleet struct {
	mu      sync.Mutex
	workers []*Worker

	// ports is an immutable []uint16 snapshot of workers, in fleet order,
	// swapped atomically by rebuild(). pickNext reads it lock-free.
	ports atomic.Pointer[[]uint16]
	// cursor is the round-robin index, advanced with a single atomic add
	// per pick and taken modulo the current snapshot length.
	cursor atomic.Uint64
}

// New returns an empty fleet with an empty (absent) dispatch cursor.
func New() *Fleet {
	f := &Fleet{}
	empty := []uint16{}
	f.ports.Store(&empty)
	return f
}

// Add registers a new worker at port. Returns false if the port is already
// present (fleet invariant I1: all ports distinct). Rebuilds the cursor.
func (f *Fleet) Add(port uint16) (*Worker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range f.workers {
		if w.Port == port {
			return nil, false
		}
	}
	w := &Worker{Port: port}
	f.workers = append(f.workers, w)
	f.rebuildLocked()
	return w, true
}

// RemoveLast pops the last-added worker and rebuilds the cursor. Returns
// nil if the fleet is empty.
func (f *Fleet) RemoveLast() *Worker {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.workers)
	if n == 0 {
		return nil
	}
	w := f.workers[n-1]
	f.workers = f.workers[:n-1]
	f.rebuildLocked()
	return w
}

// Len returns the current fleet size.
func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}

// Snapshot returns the ports currently in the fleet, insertion order.
func (f *Fleet) Snapshot() []uint16 {
	p := f.ports.Load()
	out := make([]uint16, len(*p))
	copy(out, *p)
	return out
}

// MaxPort returns the highest port currently in the fleet. If the fleet is
// empty, ok is false and choosing a fallback base port is the caller's job.
func (f *Fleet) MaxPort() (port uint16, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.workers) == 0 {
		return 0, false
	}
	max := f.workers[0].Port
	for _, w := range f.workers[1:] {
		if w.Port > max {
			max = w.Port
		}
	}
	return max, true
}

// TotalRequests sums the dispatch counters of every live worker. Used by
// the autoscaler to populate stats-history's total_responses field.
func (f *Fleet) TotalRequests() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total uint64
	for _, w := range f.workers {
		total += w.RequestCount()
	}
	return total
}

// Worker returns the live worker for port, if any. Used by the proxy
// handler to increment the counter of the port it just dispatched to.
func (f *Fleet) Worker(port uint16) (*Worker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workers {
		if w.Port == port {
			return w, true
		}
	}
	return nil, false
}

// Rebuild regenerates the dispatch cursor's ports snapshot from the current
// fleet membership. Idempotent: calling it twice with no intervening
// membership change yields an equivalent (fresh) cursor starting at 0.
func (f *Fleet) Rebuild() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuildLocked()
}

func (f *Fleet) rebuildLocked() {
	ports := make([]uint16, len(f.workers))
	for i, w := range f.workers {
		ports[i] = w.Port
	}
	f.ports.Store(&ports)
	f.cursor.Store(0)
}

// PickNext returns the next port in round-robin order, or false if the
// fleet is empty (dispatch cursor absent). Lock-free and safe under
// concurrent rebuilds: it operates against a single snapshot taken at the
// start of the call, so it can never return a port removed before the
// call began.
func (f *Fleet) PickNext() (uint16, bool) {
	snapshot := f.ports.Load()
	ports := *snapshot
	n := len(ports)
	if n == 0 {
		return 0, false
	}
	i := f.cursor.Add(1) - 1
	return ports[int(i%uint64(n))], true
}
