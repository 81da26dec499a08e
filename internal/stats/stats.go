// Package stats implements the read-only aggregator snapshot consumed by
// the dashboard's /stats endpoint (spec.md §4.G).
package stats

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Death-Raider/dynamic-load-balancer/internal/autoscaler"
	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/resourceprobe"
)

// historyDepth is the number of stats-history entries the aggregator reads
// each tick (spec.md §4.G, and original_source's `[-70:]` slice).
const historyDepth = 70

// PIDLookup resolves a fleet port to the OS process id backing it, without
// exposing the supervisor's process handles to this package.
type PIDLookup func(port uint16) (pid int32, ok bool)

// Snapshot is the immutable view published for the dashboard.
type Snapshot struct {
	NumServices int       `json:"num_services"`
	Ports       []string  `json:"ports"`
	CPU         []float64 `json:"cpu"`
	MemRSSMB    []float64 `json:"mem_rss_mb"`
	MemPercent  []float64 `json:"mem_percent"`
	Threads     []int32   `json:"threads"`

	TS             []float64 `json:"ts"`
	Latency        []float64 `json:"latency"`
	RPS            []float64 `json:"rps"`
	ActiveServices []int     `json:"active_services"`
	TotalRequests  []uint64  `json:"total_requests"`

	ResponseTimes []float64 `json:"response_times"`
}

// Aggregator periodically snapshots fleet + latency-window + resource-probe
// state into a Snapshot consumers can read lock-free.
type Aggregator struct {
	Interval time.Duration
	Fleet    *fleet.Fleet
	Window   *latency.Window
	History  *autoscaler.History
	Probe    resourceprobe.Probe
	PID      PIDLookup

	current atomic.Pointer[Snapshot]
	log     zerolog.Logger
}

// New builds an Aggregator. Interval defaults to 1s if <= 0.
func New(interval time.Duration, f *fleet.Fleet, w *latency.Window, h *autoscaler.History, probe resourceprobe.Probe, pid PIDLookup, log zerolog.Logger) *Aggregator {
	if interval <= 0 {
		interval = time.Second
	}
	a := &Aggregator{
		Interval: interval,
		Fleet:    f,
		Window:   w,
		History:  h,
		Probe:    probe,
		PID:      pid,
		log:      log,
	}
	empty := &Snapshot{}
	a.current.Store(empty)
	return a
}

// Run blocks, ticking every Interval, until ctx is canceled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

// Latest returns the most recently published snapshot.
func (a *Aggregator) Latest() *Snapshot {
	return a.current.Load()
}

func (a *Aggregator) tick() {
	ports := a.Fleet.Snapshot()

	cpu := make([]float64, len(ports))
	memRSS := make([]float64, len(ports))
	memPercent := make([]float64, len(ports))
	threads := make([]int32, len(ports))
	portStrs := make([]string, len(ports))

	for i, port := range ports {
		portStrs[i] = strconv.Itoa(int(port))

		pid, ok := a.PID(port)
		if !ok {
			// spec.md §7 StatsProbeFailure: keep going. The entry's
			// resource fields stay zero; the snapshot carries no
			// terminated flag for it.
			continue
		}
		sample := a.Probe.Sample(pid, port)
		if sample.Terminated {
			continue
		}
		cpu[i] = sample.CPUPercent
		memRSS[i] = sample.MemRSSMB
		memPercent[i] = float64(sample.MemPercent)
		threads[i] = sample.Threads
	}

	recent := a.History.Last(historyDepth)
	ts := make([]float64, len(recent))
	lat := make([]float64, len(recent))
	rps := make([]float64, len(recent))
	active := make([]int, len(recent))
	total := make([]uint64, len(recent))
	for i, s := range recent {
		ts[i] = float64(s.T.UnixNano()) / 1e9
		lat[i] = s.MeanLatency
		rps[i] = s.RPS
		active[i] = s.ActiveServices
		total[i] = s.TotalResponses
	}

	snap := &Snapshot{
		NumServices:    len(ports),
		Ports:          portStrs,
		CPU:            cpu,
		MemRSSMB:       memRSS,
		MemPercent:     memPercent,
		Threads:        threads,
		TS:             ts,
		Latency:        lat,
		RPS:            rps,
		ActiveServices: active,
		TotalRequests:  total,
		ResponseTimes:  a.Window.Peek(),
	}
	a.current.Store(snap)
	a.log.Debug().Int("num_services", snap.NumServices).Msg("stats snapshot published")
}
