// Package resourceprobe defines the external per-PID resource sensor
// interface the stats aggregator consumes (spec.md §1, §4.G) and a default
// implementation backed by gopsutil, the Go analogue of the Python
// `psutil` library original_source/service/load_balancer.py uses directly
// in get_service_stats.
package resourceprobe

import (
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// Sample is one worker's resource snapshot. Ports whose process has
// exited are reported with Terminated=true and zero values elsewhere
// (spec.md §7 StatsProbeFailure: the aggregator reports zeroed fields for
// that entry and continues rather than failing the whole snapshot; its
// snapshot has no terminated flag).
type Sample struct {
	Port        uint16
	PID         int32
	Terminated  bool
	CPUPercent  float64
	MemRSSMB    float64
	MemPercent  float32
	Threads     int32
}

// Probe reports resource usage for a set of live PIDs.
type Probe interface {
	Sample(pid int32, port uint16) Sample
}

// GopsutilProbe is the default Probe implementation.
type GopsutilProbe struct {
	// SampleInterval bounds how long CPUPercent spends sampling; psutil's
	// cpu_percent(interval=...) blocks for the same duration.
	SampleInterval time.Duration
}

// NewGopsutilProbe returns a Probe sampling CPU over interval.
func NewGopsutilProbe(interval time.Duration) *GopsutilProbe {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &GopsutilProbe{SampleInterval: interval}
}

// Sample implements Probe.
func (p *GopsutilProbe) Sample(pid int32, port uint16) Sample {
	proc, err := gopsprocess.NewProcess(pid)
	if err != nil {
		return Sample{Port: port, PID: pid, Terminated: true}
	}

	cpuPercent, err := proc.Percent(p.SampleInterval)
	if err != nil {
		return Sample{Port: port, PID: pid, Terminated: true}
	}

	memInfo, err := proc.MemoryInfo()
	var rssMB float64
	if err == nil && memInfo != nil {
		rssMB = float64(memInfo.RSS) / (1024 * 1024)
	}

	memPercent, _ := proc.MemoryPercent()
	threads, _ := proc.NumThreads()

	return Sample{
		Port:       port,
		PID:        pid,
		CPUPercent: cpuPercent,
		MemRSSMB:   rssMB,
		MemPercent: memPercent,
		Threads:    threads,
	}
}
