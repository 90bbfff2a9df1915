package control

import (
	"fmt"
	"math"
	"strings"
)

// Signal-head characters accepted in a phase state string.
const lightStateChars = "ryG"

// Phase is one entry in a traffic light program: a signal state held for a
// fixed duration. State uses one character per signal head ('r', 'y', 'G'),
// e.g. "GrGr" for a two-approach junction.
type Phase struct {
	State     string  `json:"state"`
	DurationS float64 `json:"duration_s"`
}

// TrafficLightProgram is a static cyclic phase table for one junction. The
// program repeats with period CycleS, shifted by OffsetS.
type TrafficLightProgram struct {
	NodeID  string  `json:"node_id"`
	OffsetS float64 `json:"offset_s,omitempty"`
	Phases  []Phase `json:"phases"`
}

// Validate fails fast on empty programs, non-positive durations, inconsistent
// state widths, and characters outside r/y/G.
func (p TrafficLightProgram) Validate() error {
	if p.NodeID == "" {
		return fmt.Errorf("traffic light program missing node_id")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("traffic light %s: no phases", p.NodeID)
	}
	width := len(p.Phases[0].State)
	if width == 0 {
		return fmt.Errorf("traffic light %s: empty phase state", p.NodeID)
	}
	for i, ph := range p.Phases {
		if ph.DurationS <= 0 {
			return fmt.Errorf("traffic light %s phase %d: invalid duration_s %f", p.NodeID, i, ph.DurationS)
		}
		if len(ph.State) != width {
			return fmt.Errorf("traffic light %s phase %d: state width %d != %d", p.NodeID, i, len(ph.State), width)
		}
		for _, c := range ph.State {
			if !strings.ContainsRune(lightStateChars, c) {
				return fmt.Errorf("traffic light %s phase %d: bad state char %q", p.NodeID, i, c)
			}
		}
	}
	return nil
}

// CycleS returns the total cycle duration.
func (p TrafficLightProgram) CycleS() float64 {
	total := 0.0
	for _, ph := range p.Phases {
		total += ph.DurationS
	}
	return total
}

// PhaseAt returns the phase index and state string active at simulation time
// t (seconds). Times before zero and beyond one cycle wrap around.
func (p TrafficLightProgram) PhaseAt(t float64) (int, string) {
	cycle := p.CycleS()
	tt := math.Mod(t+p.OffsetS, cycle)
	if tt < 0 {
		tt += cycle
	}
	acc := 0.0
	for i, ph := range p.Phases {
		acc += ph.DurationS
		if tt < acc {
			return i, ph.State
		}
	}
	last := len(p.Phases) - 1
	return last, p.Phases[last].State
}
