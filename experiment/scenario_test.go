package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microsim-control-core/control"
)

func validScenario() Scenario {
	return Scenario{
		Meta:   ScenarioMeta{Name: "test", Version: 1},
		Timing: ScenarioTiming{DtS: 0.1, DurationS: 10},
		Classes: []VehicleClass{
			{Name: "human", IDM: control.DefaultIDMConfig()},
		},
	}
}

func TestScenarioValidateDefaults(t *testing.T) {
	t.Parallel()

	scen := validScenario()
	scen.Classes = append(scen.Classes, VehicleClass{Name: "auto"}) // zero IDM config
	require.NoError(t, scen.Validate())

	assert.InDelta(t, 500.0, scen.Timing.FlowWindowS, 1e-12)
	assert.Equal(t, LanePolicyKeep, scen.Classes[0].LanePolicy)
	// empty class config falls back to the standard parameter set
	assert.Equal(t, control.DefaultIDMConfig(), scen.Classes[1].IDM)
}

func TestScenarioValidateRejects(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero dt", func(s *Scenario) { s.Timing.DtS = 0 }},
		{"zero duration", func(s *Scenario) { s.Timing.DurationS = 0 }},
		{"negative flow window", func(s *Scenario) { s.Timing.FlowWindowS = -1 }},
		{"no classes", func(s *Scenario) { s.Classes = nil }},
		{"unnamed class", func(s *Scenario) { s.Classes[0].Name = "" }},
		{"bad idm params", func(s *Scenario) { s.Classes[0].IDM.MaxAccelMPS2 = -1 }},
		{"bad failsafe", func(s *Scenario) { s.Classes[0].Failsafe = "psychic" }},
		{"bad lane policy", func(s *Scenario) { s.Classes[0].LanePolicy = "zigzag" }},
		{"inflow missing edge", func(s *Scenario) {
			s.Inflows = []InflowConfig{{Name: "main", VehsPerHour: 1800}}
		}},
		{"inflow both rate and probability", func(s *Scenario) {
			s.Inflows = []InflowConfig{{Name: "main", Edge: "e1", VehsPerHour: 1800, Probability: 0.1}}
		}},
		{"inflow neither rate nor probability", func(s *Scenario) {
			s.Inflows = []InflowConfig{{Name: "main", Edge: "e1"}}
		}},
		{"inflow probability above one", func(s *Scenario) {
			s.Inflows = []InflowConfig{{Name: "main", Edge: "e1", Probability: 1.5}}
		}},
		{"inflow bad depart lane", func(s *Scenario) {
			s.Inflows = []InflowConfig{{Name: "main", Edge: "e1", VehsPerHour: 1800, DepartLane: "leftmost"}}
		}},
		{"bad traffic light", func(s *Scenario) {
			s.TrafficLights = []control.TrafficLightProgram{{NodeID: "n"}}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			scen := validScenario()
			tc.mutate(&scen)
			assert.Error(t, scen.Validate())
		})
	}
}

func TestInflowPeriod(t *testing.T) {
	t.Parallel()

	in := InflowConfig{Name: "main", Edge: "e1", VehsPerHour: 1800}
	assert.InDelta(t, 2.0, in.PeriodS(), 1e-12)
	assert.Zero(t, InflowConfig{Probability: 0.1}.PeriodS())
}

func TestLoadScenarioFromFile(t *testing.T) {
	t.Parallel()

	t.Run("repo sample scenario is valid", func(t *testing.T) {
		t.Parallel()
		scen, err := LoadScenario("scenarios/freeway_idm.json")
		require.NoError(t, err)
		assert.Equal(t, "freeway_idm", scen.Meta.Name)
		assert.Len(t, scen.Classes, 2)
		assert.Len(t, scen.Inflows, 2)
		require.Len(t, scen.TrafficLights, 1)
		assert.InDelta(t, 65.0, scen.TrafficLights[0].CycleS(), 1e-12)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadScenario("scenarios/no_such.json")
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := LoadScenario(path)
		assert.Error(t, err)
	})
}
