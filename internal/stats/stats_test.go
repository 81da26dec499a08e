package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Death-Raider/dynamic-load-balancer/internal/autoscaler"
	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/logging"
	"github.com/Death-Raider/dynamic-load-balancer/internal/resourceprobe"
)

type fakeProbe struct {
	samples map[int32]resourceprobe.Sample
}

func (p *fakeProbe) Sample(pid int32, port uint16) resourceprobe.Sample {
	if s, ok := p.samples[pid]; ok {
		return s
	}
	return resourceprobe.Sample{Port: port, PID: pid, Terminated: true}
}

func TestTickPublishesFleetAndResourceFields(t *testing.T) {
	f := fleet.New()
	f.Add(8000)
	f.Add(8001)

	w := latency.New(10)
	w.Append(0.25)

	h := autoscaler.NewHistory(10)

	probe := &fakeProbe{samples: map[int32]resourceprobe.Sample{
		100: {CPUPercent: 12.5, MemRSSMB: 42, MemPercent: 1.5, Threads: 4},
	}}
	pid := func(port uint16) (int32, bool) {
		if port == 8000 {
			return 100, true
		}
		return 0, false // simulates a terminated worker, spec.md §7
	}

	agg := New(time.Second, f, w, h, probe, pid, logging.Component("test"))
	agg.tick()

	snap := agg.Latest()
	require.Equal(t, 2, snap.NumServices)
	assert.Equal(t, []string{"8000", "8001"}, snap.Ports)
	assert.Equal(t, 12.5, snap.CPU[0])
	assert.Equal(t, 0.0, snap.CPU[1], "untracked PID reports zeroed stats, not an error")
	assert.Equal(t, []float64{0.25}, snap.ResponseTimes)
}

func TestHistoryDepthCapAt70(t *testing.T) {
	f := fleet.New()
	w := latency.New(10)
	h := autoscaler.NewHistory(1000)
	for i := 0; i < 200; i++ {
		h.Append(autoscaler.Snapshot{ActiveServices: i})
	}

	agg := New(time.Second, f, w, h, &fakeProbe{}, func(uint16) (int32, bool) { return 0, false }, logging.Component("test"))
	agg.tick()

	snap := agg.Latest()
	assert.Len(t, snap.TS, historyDepth)
	assert.Equal(t, 199, snap.ActiveServices[len(snap.ActiveServices)-1])
}
