package main

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"microsim-control-core/control"
)

// RunStats accumulates per-step measurements for one run. The per-step reward
// is the network mean speed, so the return is the speed integral over the run.
type RunStats struct {
	RunID      string
	Times      []float64
	MeanSpeeds []float64
	Rewards    []float64
}

// NewRunStats allocates stats with a fresh run identifier.
func NewRunStats() *RunStats {
	return &RunStats{RunID: uuid.NewString()}
}

// Record ingests one simulation step.
func (s *RunStats) Record(t float64, states []control.VehicleState) {
	mean := 0.0
	if len(states) > 0 {
		speeds := make([]float64, len(states))
		for i, st := range states {
			speeds[i] = st.Speed
		}
		mean = stat.Mean(speeds, nil)
	}
	s.Times = append(s.Times, t)
	s.MeanSpeeds = append(s.MeanSpeeds, mean)
	s.Rewards = append(s.Rewards, mean)
}

// Steps returns the number of recorded steps.
func (s *RunStats) Steps() int { return len(s.Times) }

// Return is the cumulative reward over the run.
func (s *RunStats) Return() float64 { return floats.Sum(s.Rewards) }

// MeanSpeed is the run-average of per-step mean speeds.
func (s *RunStats) MeanSpeed() float64 {
	if len(s.MeanSpeeds) == 0 {
		return 0
	}
	return stat.Mean(s.MeanSpeeds, nil)
}

// StdSpeed is the standard deviation of per-step mean speeds.
func (s *RunStats) StdSpeed() float64 {
	if len(s.MeanSpeeds) < 2 {
		return 0
	}
	return stat.StdDev(s.MeanSpeeds, nil)
}

// FlowMeter derives inflow/outflow rates from the set of vehicle IDs visible
// per step: a vehicle seen for the first time entered the network, a vehicle
// that disappears left it. Rates are counted over a trailing window.
type FlowMeter struct {
	windowS float64
	present map[string]bool
	entries []float64
	exits   []float64
}

// NewFlowMeter counts events over a trailing window of windowS seconds.
func NewFlowMeter(windowS float64) *FlowMeter {
	return &FlowMeter{windowS: windowS, present: map[string]bool{}}
}

// Observe ingests the vehicle IDs visible at time t. Events that have aged
// out of the window are dropped; the rates never look back further anyway.
func (f *FlowMeter) Observe(t float64, ids []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		if !f.present[id] {
			f.entries = append(f.entries, t)
		}
	}
	for id := range f.present {
		if !seen[id] {
			f.exits = append(f.exits, t)
		}
	}
	f.present = seen

	cutoff := t - f.windowS
	f.entries = dropBefore(f.entries, cutoff)
	f.exits = dropBefore(f.exits, cutoff)
}

// dropBefore trims events at or before cutoff; events arrive in time order.
func dropBefore(events []float64, cutoff float64) []float64 {
	i := 0
	for i < len(events) && events[i] <= cutoff {
		i++
	}
	return events[i:]
}

// InflowRate returns vehicles/hour entering over the trailing window at t.
func (f *FlowMeter) InflowRate(t float64) float64 { return f.rate(f.entries, t) }

// OutflowRate returns vehicles/hour leaving over the trailing window at t.
func (f *FlowMeter) OutflowRate(t float64) float64 { return f.rate(f.exits, t) }

// Throughput returns outflow/inflow at t, or 0 when the inflow is ~zero.
func (f *FlowMeter) Throughput(t float64) float64 {
	in := f.InflowRate(t)
	if in < 1e-5 {
		return 0
	}
	return f.OutflowRate(t) / in
}

func (f *FlowMeter) rate(events []float64, t float64) float64 {
	span := f.windowS
	if t < span {
		span = t
	}
	if span <= 0 {
		return 0
	}
	count := 0
	for _, et := range events {
		if et > t-span && et <= t {
			count++
		}
	}
	return float64(count) * 3600.0 / span
}

// Summary aggregates run-level results across repeated runs.
type Summary struct {
	Runs       int
	AvgSpeed   float64
	StdSpeed   float64
	AvgReturn  float64
	StdReturn  float64
	Throughput float64
}

// Summarize computes the cross-run summary printed at the end of an
// experiment.
func Summarize(runs []*RunStats, throughputs []float64) Summary {
	if len(runs) == 0 {
		return Summary{}
	}
	means := make([]float64, len(runs))
	rets := make([]float64, len(runs))
	for i, r := range runs {
		means[i] = r.MeanSpeed()
		rets[i] = r.Return()
	}
	sum := Summary{
		Runs:      len(runs),
		AvgSpeed:  stat.Mean(means, nil),
		AvgReturn: stat.Mean(rets, nil),
	}
	if len(runs) > 1 {
		sum.StdSpeed = stat.StdDev(means, nil)
		sum.StdReturn = stat.StdDev(rets, nil)
	}
	if len(throughputs) > 0 {
		sum.Throughput = stat.Mean(throughputs, nil)
	}
	return sum
}
