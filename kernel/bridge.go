package kernel

import (
	"fmt"
	"strconv"

	"go.einride.tech/can"

	"microsim-control-core/control"
)

// Frame names the bus contract is keyed on. IDs and layouts come from the
// signal map CSV.
const (
	FrameVehicleState    = "VEHICLE_STATE"
	FrameActuatorCmd     = "ACTUATOR_CMD"
	FrameTrafficLightCmd = "TRAFFIC_LIGHT_CMD"
	FrameInflowCfg       = "INFLOW_CFG"
)

// maxLightHeads is the number of signal heads a TRAFFIC_LIGHT_CMD state
// bitmap can carry (2 bits per head in a 32-bit signal).
const maxLightHeads = 16

// VehicleID maps a bus vehicle index to the string identifier used by the
// control core.
func VehicleID(index int) string { return fmt.Sprintf("veh_%d", index) }

// VehicleIndex is the inverse of VehicleID.
func VehicleIndex(id string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(id, "veh_%d", &idx); err != nil {
		return 0, fmt.Errorf("bad vehicle id %q: %w", id, err)
	}
	return idx, nil
}

// StateFrame is one decoded VEHICLE_STATE frame: a single vehicle's snapshot
// stamped with the simulator's 8-bit tick counter.
type StateFrame struct {
	RawTick      int
	VehicleIndex int
	State        control.VehicleState
}

// DecodeStateFrame decodes a VEHICLE_STATE frame.
func DecodeStateFrame(m *SignalMap, f can.Frame) (StateFrame, error) {
	fd, err := m.FrameByID(uint32(f.ID))
	if err != nil {
		return StateFrame{}, err
	}
	if fd.Name != FrameVehicleState {
		return StateFrame{}, fmt.Errorf("frame 0x%X is %s, not %s", fd.ID, fd.Name, FrameVehicleState)
	}
	vals, err := m.Decode(f)
	if err != nil {
		return StateFrame{}, err
	}

	idx := int(vals["vehicle_index"])
	sf := StateFrame{
		RawTick:      int(vals["tick"]),
		VehicleIndex: idx,
		State: control.VehicleState{
			ID:      VehicleID(idx),
			Speed:   vals["speed_mps"],
			Headway: vals["headway_m"],
			Lane:    int(vals["lane_index"]),
		},
	}
	if vals["has_leader"] >= 0.5 {
		sf.State.LeaderID = VehicleID(int(vals["leader_index"]))
		sf.State.LeaderSpeed = vals["leader_speed_mps"]
	}
	return sf, nil
}

// EncodeActuatorCmd builds an ACTUATOR_CMD frame carrying the acceleration
// command and lane-change direction for one vehicle.
func EncodeActuatorCmd(m *SignalMap, rawTick, vehicleIndex int, accel float64, laneChange int) (can.Frame, error) {
	return m.Encode(FrameActuatorCmd, map[string]float64{
		"tick":            float64(rawTick),
		"vehicle_index":   float64(vehicleIndex),
		"accel_cmd_mps2":  accel,
		"lane_change_cmd": float64(laneChange),
		"enable":          control.BoolToFloat(true),
	})
}

// EncodeTrafficLightCmd builds a TRAFFIC_LIGHT_CMD frame for one junction.
// The phase state string is packed 2 bits per signal head.
func EncodeTrafficLightCmd(m *SignalMap, rawTick, nodeIndex, phaseIndex int, state string) (can.Frame, error) {
	bits, err := PackLightState(state)
	if err != nil {
		return can.Frame{}, err
	}
	return m.Encode(FrameTrafficLightCmd, map[string]float64{
		"tick":        float64(rawTick),
		"node_index":  float64(nodeIndex),
		"phase_index": float64(phaseIndex),
		"state_bits":  float64(bits),
		"head_count":  float64(len(state)),
	})
}

// Depart-lane wire codes beyond plain lane indices.
const (
	departLaneRandom = 14
	departLaneFree   = 15
)

// DepartLaneCode maps a scenario depart_lane string to its wire code. Empty
// and "free" leave the lane choice to the simulator; numeric strings are lane
// indices.
func DepartLaneCode(s string) (int, error) {
	switch s {
	case "", "free":
		return departLaneFree, nil
	case "random":
		return departLaneRandom, nil
	}
	lane, err := strconv.Atoi(s)
	if err != nil || lane < 0 || lane >= departLaneRandom {
		return 0, fmt.Errorf("bad depart_lane %q", s)
	}
	return lane, nil
}

// EncodeInflowCfg builds an INFLOW_CFG frame describing one inflow. Inflows
// are identified by index; the simulator maps indices to edges from its own
// copy of the scenario.
func EncodeInflowCfg(m *SignalMap, rawTick, index int, vehsPerHour, probability float64, departLane string, departSpeedMPS float64) (can.Frame, error) {
	laneCode, err := DepartLaneCode(departLane)
	if err != nil {
		return can.Frame{}, err
	}
	return m.Encode(FrameInflowCfg, map[string]float64{
		"tick":             float64(rawTick),
		"inflow_index":     float64(index),
		"vehs_per_hour":    vehsPerHour,
		"probability":      probability,
		"depart_lane":      float64(laneCode),
		"depart_speed_mps": departSpeedMPS,
	})
}

// PackLightState encodes a phase state string into a bitmap, two bits per
// head: r=0, y=1, G=2.
func PackLightState(state string) (uint32, error) {
	if len(state) == 0 || len(state) > maxLightHeads {
		return 0, fmt.Errorf("light state %q: want 1..%d heads", state, maxLightHeads)
	}
	var bits uint32
	for i, c := range state {
		var v uint32
		switch c {
		case 'r':
			v = 0
		case 'y':
			v = 1
		case 'G':
			v = 2
		default:
			return 0, fmt.Errorf("light state %q: bad head char %q", state, c)
		}
		bits |= v << (2 * i)
	}
	return bits, nil
}

// UnpackLightState is the inverse of PackLightState.
func UnpackLightState(bits uint32, headCount int) (string, error) {
	if headCount <= 0 || headCount > maxLightHeads {
		return "", fmt.Errorf("bad head count %d", headCount)
	}
	out := make([]byte, headCount)
	for i := 0; i < headCount; i++ {
		switch bits >> (2 * i) & 0x3 {
		case 0:
			out[i] = 'r'
		case 1:
			out[i] = 'y'
		case 2:
			out[i] = 'G'
		default:
			return "", fmt.Errorf("bad head value at %d", i)
		}
	}
	return string(out), nil
}

// TickAssembler groups incoming state frames by their raw tick counter and
// publishes each completed tick to a SnapshotTable. A tick is complete when
// the first frame of the next tick arrives; the raw 8-bit counter is extended
// to a monotonic 64-bit tick.
type TickAssembler struct {
	table   *SnapshotTable
	dtS     float64
	lastRaw int
	extTick uint64
	pending []control.VehicleState
}

// NewTickAssembler publishes completed ticks to table, stamping them with
// simulation time tick*dtS.
func NewTickAssembler(table *SnapshotTable, dtS float64) *TickAssembler {
	return &TickAssembler{table: table, dtS: dtS, lastRaw: -1}
}

// Add ingests one decoded state frame. Returns true when a tick was published.
func (a *TickAssembler) Add(sf StateFrame) bool {
	published := false
	if a.lastRaw >= 0 && sf.RawTick != a.lastRaw {
		a.flush()
		published = true
	}
	a.lastRaw = sf.RawTick
	a.pending = append(a.pending, sf.State)
	return published
}

func (a *TickAssembler) flush() {
	a.extTick++
	a.table.Publish(a.extTick, float64(a.extTick)*a.dtS, a.pending)
	a.pending = nil
}
