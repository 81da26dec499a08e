package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/logging"
)

// "sleep" stands in for the worker executable: the supervisor never waits
// for HTTP readiness (spec.md §4.D), so any long-lived process is enough
// to exercise spawn/terminate/cleanup.
const fakeWorkerBinary = "sleep"

func newTestSupervisor(t *testing.T, minServices int) (*Supervisor, *fleet.Fleet) {
	t.Helper()
	f := fleet.New()
	s := New(f, fakeWorkerBinary, minServices, 9000, logging.Component("test"))
	s.Application = fakeWorkerBinary
	return s, f
}

// Spawn passes the port as the worker's only argument, and sleep reads it
// as a duration in seconds. Ports from 9000 up are harmless long sleeps.
func TestSpawnRegistersWorkerInFleet(t *testing.T) {
	s, f := newTestSupervisor(t, 0)
	require.NoError(t, s.Spawn(9000))
	defer s.Cleanup()

	assert.Equal(t, 1, f.Len())
	pid, ok := s.PID(9000)
	assert.True(t, ok)
	assert.Greater(t, pid, int32(0))
}

func TestSpawnRejectsDuplicatePort(t *testing.T) {
	s, _ := newTestSupervisor(t, 0)
	require.NoError(t, s.Spawn(9000))
	defer s.Cleanup()

	err := s.Spawn(9000)
	assert.Error(t, err)
}

func TestTerminateLastNoopAtMinServices(t *testing.T) {
	s, f := newTestSupervisor(t, 1)
	require.NoError(t, s.Spawn(9000))
	defer s.Cleanup()

	s.TerminateLast()
	assert.Equal(t, 1, f.Len(), "must not terminate at MinServices floor")
}

func TestTerminateLastKillsProcessAndShrinksFleet(t *testing.T) {
	s, f := newTestSupervisor(t, 0)
	require.NoError(t, s.Spawn(9000))
	require.NoError(t, s.Spawn(9001))

	s.TerminateLast()
	assert.Equal(t, 1, f.Len())

	_, ok := s.PID(9001)
	assert.False(t, ok, "terminated worker must be untracked")
	s.Cleanup()
}

func TestSpawnBatchAllocatesConsecutivePortsAboveMax(t *testing.T) {
	s, f := newTestSupervisor(t, 0)
	require.NoError(t, s.Spawn(9000))
	defer s.Cleanup()

	require.NoError(t, s.SpawnBatch(2))
	ports := f.Snapshot()
	assert.Equal(t, []uint16{9000, 9001, 9002}, ports)
}

func TestCleanupDoesNotPanicOnRepeatedCalls(t *testing.T) {
	s, _ := newTestSupervisor(t, 0)
	require.NoError(t, s.Spawn(9000))
	require.NoError(t, s.Spawn(9001))

	assert.NotPanics(t, func() {
		s.Cleanup()
		time.Sleep(50 * time.Millisecond)
		s.Cleanup()
	})
}
