package control

// VehicleState is the per-tick kinematic snapshot for one controlled vehicle.
// Controllers read exclusively from a snapshot passed in by the caller; all
// fields refer to the same simulation step, so evaluations for different
// vehicles may run in any order (or in parallel) within a tick.
type VehicleState struct {
	ID          string
	Speed       float64 // m/s, non-negative
	LeaderID    string  // empty when no vehicle ahead
	LeaderSpeed float64 // m/s, meaningful only when LeaderID is set
	Headway     float64 // m, gap to leader; may be negative at junctions
	Lane        int     // 0 = rightmost lane
}

// HasLeader reports whether a leading vehicle was visible in this snapshot.
func (s VehicleState) HasLeader() bool { return s.LeaderID != "" }

// AccelController computes a raw longitudinal acceleration command (m/s^2)
// from a vehicle snapshot. Implementations hold only immutable parameters and
// must be pure functions of their input.
type AccelController interface {
	GetAccel(st VehicleState) float64
}

// LaneChanger computes a lane-change direction from a vehicle snapshot:
// -1 = one lane right, 0 = stay, +1 = one lane left. Gap acceptance and
// collision checking are the simulator's job, not the policy's.
type LaneChanger interface {
	GetLaneChange(st VehicleState) int
}
