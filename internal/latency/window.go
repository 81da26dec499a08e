// Package latency implements the bounded ring buffer of per-request
// handle-time samples consumed by the autoscaler and the stats aggregator.
package latency

import "sync"

// DefaultCapacity is the ring's bound (spec.md §3: capacity 1000, drops
// oldest on overflow).
const DefaultCapacity = 1000

// Window is a thread-safe bounded ring of latency samples, in seconds.
// Append is O(1); overflow drops the oldest sample. Only the autoscaler is
// permitted to clear it (invariant I3), and only after completing an
// evaluation.
type Window struct {
	mu       sync.Mutex
	cap      int
	buf      []float64
	start    int // index of oldest sample
	size     int
}

// New returns an empty window with the given capacity.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		cap: capacity,
		buf: make([]float64, capacity),
	}
}

// Append records a new sample, dropping the oldest one if the ring is full.
func (w *Window) Append(sample float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := (w.start + w.size) % w.cap
	w.buf[idx] = sample
	if w.size < w.cap {
		w.size++
	} else {
		w.start = (w.start + 1) % w.cap
	}
}

// Peek returns a copy of the current contents, oldest first, without
// clearing the window.
func (w *Window) Peek() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Drain returns a copy of the current contents and empties the window,
// atomically with respect to concurrent Append/Peek calls.
func (w *Window) Drain() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.snapshotLocked()
	w.start = 0
	w.size = 0
	return out
}

// Clear empties the window without returning its contents. Only the
// autoscaler calls this, and only at the end of an evaluation that
// processed the samples (invariant I3).
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start = 0
	w.size = 0
}

// Len reports the number of samples currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) snapshotLocked() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%w.cap]
	}
	return out
}
