// Package supervisor owns worker process lifecycle (spec.md §4.D). It is
// the only component allowed to signal a worker's OS process; every other
// component sees workers only as ports via the fleet package.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/metrics"
)

// Supervisor spawns and terminates worker processes and keeps the fleet
// registry in sync with them.
type Supervisor struct {
	Fleet       *fleet.Fleet
	Application string
	MinServices int
	PortStart   uint16

	mu    sync.Mutex
	procs map[uint16]*exec.Cmd

	log zerolog.Logger
}

// New builds a Supervisor targeting the given worker executable.
func New(f *fleet.Fleet, application string, minServices int, portStart uint16, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		Fleet:       f,
		Application: application,
		MinServices: minServices,
		PortStart:   portStart,
		procs:       make(map[uint16]*exec.Cmd),
		log:         log,
	}
}

// Spawn starts a child process bound to port, registers it in the fleet,
// and rebuilds the dispatch cursor. Fails if the port is already present
// (fleet invariant I1) or if the OS spawn fails; in either case the fleet
// is left unchanged.
func (s *Supervisor) Spawn(port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.procs[port]; exists {
		return fmt.Errorf("spawn port %d: already present", port)
	}

	cmd := exec.Command(s.Application, strconv.Itoa(int(port)))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		metrics.SpawnFailureTotal.Inc()
		return fmt.Errorf("spawn port %d: %w", port, err)
	}

	if _, ok := s.Fleet.Add(port); !ok {
		_ = cmd.Process.Kill()
		return fmt.Errorf("spawn port %d: already present in fleet", port)
	}

	s.procs[port] = cmd
	metrics.SpawnTotal.Inc()
	metrics.FleetSize.Set(float64(s.Fleet.Len()))
	s.log.Info().Uint16("port", port).Int("pid", cmd.Process.Pid).Msg("worker spawned")

	go s.watch(port, cmd, pr, pw)
	return nil
}

// watch logs worker stdout/stderr and the exit reason. It does not restart
// the worker: the spec describes no restart-on-crash behavior for the
// supervisor, only spawn/terminate/spawn_batch/cleanup.
func (s *Supervisor) watch(port uint16, cmd *exec.Cmd, pr *io.PipeReader, pw *io.PipeWriter) {
	scanner := bufio.NewScanner(pr)
	go func() {
		for scanner.Scan() {
			s.log.Debug().Uint16("port", port).Str("worker_output", scanner.Text()).Msg("worker output")
		}
	}()
	err := cmd.Wait()
	pw.Close()
	s.log.Info().Uint16("port", port).Err(err).Msg("worker process exited")
}

// SpawnBatch computes the base port as max(current ports, PortStart)+1 and
// spawns k consecutive ports. Used only by the autoscaler on scale-up.
func (s *Supervisor) SpawnBatch(k int) error {
	base, ok := s.Fleet.MaxPort()
	if !ok {
		base = s.PortStart
	}
	if base < s.PortStart {
		base = s.PortStart
	}
	for i := 0; i < k; i++ {
		port := base + 1 + uint16(i)
		if err := s.Spawn(port); err != nil {
			return err
		}
	}
	return nil
}

// TerminateLast pops the last-added worker and kills its process. No-op if
// the fleet is already at MinServices.
func (s *Supervisor) TerminateLast() {
	if s.Fleet.Len() <= s.MinServices {
		return
	}
	w := s.Fleet.RemoveLast()
	if w == nil {
		return
	}

	s.mu.Lock()
	cmd, ok := s.procs[w.Port]
	delete(s.procs, w.Port)
	s.mu.Unlock()

	if ok && cmd.Process != nil {
		// No graceful drain of in-flight requests (spec.md §9(c)): kill
		// immediately, matching the original's bare proc.terminate().
		_ = cmd.Process.Kill()
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		}
	}
	metrics.TerminateTotal.Inc()
	metrics.FleetSize.Set(float64(s.Fleet.Len()))
	s.log.Info().Uint16("port", w.Port).Msg("worker terminated")
}

// PID returns the OS process id backing port, if the supervisor still
// tracks it. Used by the stats aggregator to query the resource probe
// without ever handing out the *exec.Cmd itself.
func (s *Supervisor) PID(port uint16) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.procs[port]
	if !ok || cmd.Process == nil {
		return 0, false
	}
	return int32(cmd.Process.Pid), true
}

// Cleanup terminates every worker process. Invoked from the lifecycle
// driver on shutdown; does not wait for in-flight requests.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for port, cmd := range s.procs {
		if cmd.Process == nil {
			continue
		}
		_ = cmd.Process.Kill()
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		}
		s.log.Info().Uint16("port", port).Msg("worker killed on cleanup")
	}
}
