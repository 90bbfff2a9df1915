package control

// Lane-change direction signals.
const (
	LaneChangeRight = -1
	LaneChangeStay  = 0
	LaneChangeLeft  = 1
)

// StaticLaneChanger drifts the vehicle to the rightmost lane and keeps it
// there: any lane index above zero requests one lane to the right. The policy
// is greedy and stateless; whether the move is safe is decided downstream.
type StaticLaneChanger struct{}

func (StaticLaneChanger) GetLaneChange(st VehicleState) int {
	if st.Lane > 0 {
		return LaneChangeRight
	}
	return LaneChangeStay
}

// NoLaneChanger never requests a lane change.
type NoLaneChanger struct{}

func (NoLaneChanger) GetLaneChange(VehicleState) int { return LaneChangeStay }

// LaneChangeStr returns a short tag for log lines.
func LaneChangeStr(direction int) string {
	switch {
	case direction < 0:
		return "[RIGHT]"
	case direction > 0:
		return "[LEFT]"
	}
	return "[KEEP]"
}
