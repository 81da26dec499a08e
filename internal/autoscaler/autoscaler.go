// Package autoscaler implements the periodic control loop that grows or
// shrinks the fleet to keep tail latency within a configured band
// (spec.md §4.F).
package autoscaler

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/metrics"
)

// Config holds the tunables named as constants in spec.md §3/§4.F.
type Config struct {
	SampleTime  time.Duration // default 2s
	MinSamples  int           // default 5
	Cooldown    time.Duration // default 6s
	MinServices int
	MaxServices int
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		SampleTime:  2 * time.Second,
		MinSamples:  5,
		Cooldown:    6 * time.Second,
		MinServices: 1,
		MaxServices: 4,
	}
}

// Scaler is the minimal interface the autoscaler needs from the worker
// supervisor: it never touches process handles directly.
type Scaler interface {
	SpawnBatch(k int) error
	TerminateLast()
}

// Snapshot is one entry of the stats-history ring (spec.md §3 "Stats
// history"), written only by the autoscaler and read by the stats
// aggregator.
type Snapshot struct {
	T               time.Time
	MeanLatency     float64
	RPS             float64
	ActiveServices  int
	TotalResponses  uint64
}

// History is the bounded ring of Snapshot entries (capacity 1000).
type History struct {
	cap     int
	entries []Snapshot
}

// NewHistory returns an empty history with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1000
	}
	return &History{cap: capacity}
}

// Append records a new entry, dropping the oldest once capacity is
// exceeded. Exported so the stats aggregator can build history state
// directly in tests without a real autoscaler tick.
func (h *History) Append(s Snapshot) {
	h.entries = append(h.entries, s)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
}

// Last returns the most recent n entries (or fewer if the history is
// shorter), oldest first. Used by the stats aggregator (spec.md §4.G:
// "last ≤70 stats-history entries").
func (h *History) Last(n int) []Snapshot {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Snapshot, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Autoscaler runs the control loop on its own timer.
type Autoscaler struct {
	Config  Config
	Fleet   *fleet.Fleet
	Window  *latency.Window
	Scaler  Scaler
	History *History

	lastScaleTime time.Time
	log           zerolog.Logger
}

// New builds an Autoscaler. History must be shared with the stats
// aggregator that will read it.
func New(cfg Config, f *fleet.Fleet, w *latency.Window, scaler Scaler, history *History, log zerolog.Logger) *Autoscaler {
	return &Autoscaler{
		Config:  cfg,
		Fleet:   f,
		Window:  w,
		Scaler:  scaler,
		History: history,
		log:     log,
	}
}

// Run blocks, ticking every Config.SampleTime, until ctx is canceled.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Config.SampleTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(time.Now())
		}
	}
}

// tick implements one evaluation cycle, steps 1-7 of spec.md §4.F.
func (a *Autoscaler) tick(now time.Time) {
	samples := a.Window.Peek()

	if len(samples) < a.Config.MinSamples {
		// Skip entirely: no clear, no stats-history entry, no cooldown
		// touch (spec.md §4.F step 2).
		metrics.ScaleDecisions.WithLabelValues("skip").Inc()
		return
	}

	sort.Float64s(samples)
	n := len(samples)
	median := samples[n/2]
	p95Idx := n*95/100 - 1
	if p95Idx < 0 {
		p95Idx = 0
	}
	p95 := samples[p95Idx]
	rps := float64(n) / a.Config.SampleTime.Seconds()
	mean := stat.Mean(samples, nil)

	fleetLen := a.Fleet.Len()
	a.History.Append(Snapshot{
		T:              now,
		MeanLatency:    mean,
		RPS:            rps,
		ActiveServices: fleetLen,
		TotalResponses: a.Fleet.TotalRequests(),
	})

	if !a.lastScaleTime.IsZero() && now.Sub(a.lastScaleTime) < a.Config.Cooldown {
		metrics.ScaleDecisions.WithLabelValues("cooldown").Inc()
		a.Window.Clear()
		return
	}

	switch {
	case p95 > 1.0 && fleetLen < a.Config.MaxServices:
		add := min2(a.Config.MaxServices-fleetLen, 2)
		if err := a.Scaler.SpawnBatch(add); err != nil {
			a.log.Warn().Err(err).Msg("scale-up spawn batch failed")
		}
		a.lastScaleTime = now
		metrics.ScaleDecisions.WithLabelValues("scale_up").Inc()
		a.log.Info().Float64("p95", p95).Int("added", add).Msg("scaled up")

	case p95 > 0.6 && fleetLen < a.Config.MaxServices:
		if err := a.Scaler.SpawnBatch(1); err != nil {
			a.log.Warn().Err(err).Msg("scale-up spawn failed")
		}
		a.lastScaleTime = now
		metrics.ScaleDecisions.WithLabelValues("scale_up").Inc()
		a.log.Info().Float64("p95", p95).Msg("scaled up by 1")

	case median < 0.3 && fleetLen > a.Config.MinServices:
		a.Scaler.TerminateLast()
		a.lastScaleTime = now
		metrics.ScaleDecisions.WithLabelValues("scale_down").Inc()
		a.log.Info().Float64("median", median).Msg("scaled down")

	default:
		metrics.ScaleDecisions.WithLabelValues("hold").Inc()
	}

	a.Window.Clear()
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
