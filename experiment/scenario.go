package main

import (
	"encoding/json"
	"fmt"
	"os"

	"microsim-control-core/control"
	"microsim-control-core/kernel"
)

// Lane policies accepted by VehicleClass.
const (
	LanePolicyKeep        = "keep"
	LanePolicyStaticRight = "static_right"
)

// defaultFlowWindowS is the trailing window for inflow/outflow rates,
// in seconds.
const defaultFlowWindowS = 500.0

// Scenario defines a complete experiment: timing, the controlled vehicle
// classes, inflow configuration forwarded to the simulator, and traffic
// light programs.
type Scenario struct {
	Meta          ScenarioMeta                  `json:"meta"`
	Timing        ScenarioTiming                `json:"timing"`
	Classes       []VehicleClass                `json:"vehicle_classes"`
	Inflows       []InflowConfig                `json:"inflows,omitempty"`
	TrafficLights []control.TrafficLightProgram `json:"traffic_lights,omitempty"`
}

// ScenarioMeta contains scenario metadata.
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description,omitempty"`
}

// ScenarioTiming defines timing parameters.
type ScenarioTiming struct {
	DtS         float64 `json:"dt_s"`
	DurationS   float64 `json:"duration_s"`
	FlowWindowS float64 `json:"flow_window_s,omitempty"` // defaults to 500
}

// VehicleClass binds a control law and its wrapper settings to a slice of the
// fleet. Vehicles are assigned to classes round-robin by vehicle index.
type VehicleClass struct {
	Name          string            `json:"name"`
	IDM           control.IDMConfig `json:"idm"`
	AccelNoiseStd float64           `json:"accel_noise_std,omitempty"`
	Failsafe      string            `json:"failsafe,omitempty"`
	LanePolicy    string            `json:"lane_policy,omitempty"` // "keep" (default) or "static_right"
}

// InflowConfig describes one vehicle stream entering the network. The runner
// pushes validated inflows to the simulator at startup; insertion scheduling
// is the simulator's job. Exactly one of VehsPerHour and Probability must be
// set.
type InflowConfig struct {
	Name          string  `json:"name"`
	Edge          string  `json:"edge"`
	VehsPerHour   float64 `json:"vehs_per_hour,omitempty"`
	Probability   float64 `json:"probability,omitempty"` // per-step insertion probability
	DepartLane    string  `json:"depart_lane,omitempty"` // "free", "random", or a lane index
	DepartSpeedMS float64 `json:"depart_speed_mps,omitempty"`
}

// PeriodS returns the mean insertion period implied by vehs_per_hour.
func (c InflowConfig) PeriodS() float64 {
	if c.VehsPerHour <= 0 {
		return 0
	}
	return 3600.0 / c.VehsPerHour
}

// LoadScenario loads and validates a scenario from a JSON file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

// Validate fills defaults and fails fast on anything the run loop would
// otherwise trip over mid-run.
func (s *Scenario) Validate() error {
	if s.Timing.DtS <= 0 {
		return fmt.Errorf("invalid dt_s: %f", s.Timing.DtS)
	}
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	if s.Timing.FlowWindowS == 0 {
		s.Timing.FlowWindowS = defaultFlowWindowS
	}
	if s.Timing.FlowWindowS < 0 {
		return fmt.Errorf("invalid flow_window_s: %f", s.Timing.FlowWindowS)
	}

	if len(s.Classes) == 0 {
		return fmt.Errorf("scenario needs at least one vehicle class")
	}
	for i := range s.Classes {
		cl := &s.Classes[i]
		if cl.Name == "" {
			return fmt.Errorf("vehicle class %d: missing name", i)
		}
		if (cl.IDM == control.IDMConfig{}) {
			cl.IDM = control.DefaultIDMConfig()
		}
		if err := cl.IDM.Validate(); err != nil {
			return fmt.Errorf("vehicle class %s: %w", cl.Name, err)
		}
		if cl.AccelNoiseStd < 0 {
			return fmt.Errorf("vehicle class %s: invalid accel_noise_std: %f", cl.Name, cl.AccelNoiseStd)
		}
		switch cl.Failsafe {
		case "", control.FailsafeNone, control.FailsafeInstantaneous:
		default:
			return fmt.Errorf("vehicle class %s: unknown failsafe mode %q", cl.Name, cl.Failsafe)
		}
		switch cl.LanePolicy {
		case "":
			cl.LanePolicy = LanePolicyKeep
		case LanePolicyKeep, LanePolicyStaticRight:
		default:
			return fmt.Errorf("vehicle class %s: unknown lane_policy %q", cl.Name, cl.LanePolicy)
		}
	}

	for i, in := range s.Inflows {
		if in.Name == "" {
			return fmt.Errorf("inflow %d: missing name", i)
		}
		if in.Edge == "" {
			return fmt.Errorf("inflow %s: missing edge", in.Name)
		}
		hasRate := in.VehsPerHour > 0
		hasProb := in.Probability > 0
		if hasRate == hasProb {
			return fmt.Errorf("inflow %s: set exactly one of vehs_per_hour and probability", in.Name)
		}
		if hasProb && in.Probability > 1 {
			return fmt.Errorf("inflow %s: invalid probability: %f", in.Name, in.Probability)
		}
		if in.DepartSpeedMS < 0 {
			return fmt.Errorf("inflow %s: invalid depart_speed_mps: %f", in.Name, in.DepartSpeedMS)
		}
		if _, err := kernel.DepartLaneCode(in.DepartLane); err != nil {
			return fmt.Errorf("inflow %s: %w", in.Name, err)
		}
	}

	for _, tl := range s.TrafficLights {
		if err := tl.Validate(); err != nil {
			return err
		}
	}
	return nil
}
