package latency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendAndPeekPreservesOrder(t *testing.T) {
	w := New(5)
	w.Append(0.1)
	w.Append(0.2)
	w.Append(0.3)

	assert.Equal(t, []float64{0.1, 0.2, 0.3}, w.Peek())
	assert.Equal(t, 3, w.Len())
}

func TestPeekDoesNotClear(t *testing.T) {
	w := New(3)
	w.Append(1)
	w.Peek()
	assert.Equal(t, 1, w.Len())
}

func TestDrainClearsAndReturnsContents(t *testing.T) {
	w := New(3)
	w.Append(1)
	w.Append(2)

	got := w.Drain()
	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Peek())
}

func TestOverflowDropsOldestSample(t *testing.T) {
	w := New(3)
	w.Append(1)
	w.Append(2)
	w.Append(3)
	w.Append(4) // should evict 1

	assert.Equal(t, []float64{2, 3, 4}, w.Peek())
	assert.Equal(t, 3, w.Len())
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	w := New(1000)
	for i := 0; i < 5000; i++ {
		w.Append(float64(i))
	}
	assert.LessOrEqual(t, w.Len(), 1000)
	assert.Len(t, w.Peek(), 1000)
}

func TestClearEmptiesWithoutReturning(t *testing.T) {
	w := New(3)
	w.Append(1)
	w.Clear()
	assert.Equal(t, 0, w.Len())
}
