package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microsim-control-core/control"
)

func TestVehicleIDRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "veh_7", VehicleID(7))
	idx, err := VehicleIndex("veh_7")
	require.NoError(t, err)
	assert.Equal(t, 7, idx)

	_, err = VehicleIndex("flow_00.1")
	assert.Error(t, err)
}

func TestDecodeStateFrame(t *testing.T) {
	t.Parallel()

	m := loadTestMap(t)

	t.Run("with leader", func(t *testing.T) {
		t.Parallel()
		f, err := m.Encode(FrameVehicleState, map[string]float64{
			"tick":             7,
			"vehicle_index":    1,
			"leader_index":     0,
			"speed_mps":        8.5,
			"leader_speed_mps": 7.0,
			"headway_m":        12.5,
			"lane_index":       1,
			"has_leader":       1,
		})
		require.NoError(t, err)

		sf, err := DecodeStateFrame(m, f)
		require.NoError(t, err)
		assert.Equal(t, 7, sf.RawTick)
		assert.Equal(t, 1, sf.VehicleIndex)
		assert.Equal(t, "veh_1", sf.State.ID)
		assert.Equal(t, "veh_0", sf.State.LeaderID)
		assert.True(t, sf.State.HasLeader())
		assert.InDelta(t, 8.5, sf.State.Speed, 0.05)
		assert.InDelta(t, 7.0, sf.State.LeaderSpeed, 0.05)
		assert.InDelta(t, 12.5, sf.State.Headway, 0.025)
		assert.Equal(t, 1, sf.State.Lane)
	})

	t.Run("free flow", func(t *testing.T) {
		t.Parallel()
		f, err := m.Encode(FrameVehicleState, map[string]float64{
			"tick":          7,
			"vehicle_index": 0,
			"speed_mps":     20,
		})
		require.NoError(t, err)

		sf, err := DecodeStateFrame(m, f)
		require.NoError(t, err)
		assert.False(t, sf.State.HasLeader())
		assert.Empty(t, sf.State.LeaderID)
	})

	t.Run("wrong frame rejected", func(t *testing.T) {
		t.Parallel()
		f, err := m.Encode(FrameActuatorCmd, map[string]float64{"vehicle_index": 0})
		require.NoError(t, err)
		_, err = DecodeStateFrame(m, f)
		assert.Error(t, err)
	})
}

func TestEncodeActuatorCmd(t *testing.T) {
	t.Parallel()

	m := loadTestMap(t)
	f, err := EncodeActuatorCmd(m, 9, 4, -0.452, control.LaneChangeRight)
	require.NoError(t, err)

	got, err := m.Decode(f)
	require.NoError(t, err)
	assert.InDelta(t, 9, got["tick"], 1e-12)
	assert.InDelta(t, 4, got["vehicle_index"], 1e-12)
	assert.InDelta(t, -0.452, got["accel_cmd_mps2"], 0.0005)
	assert.InDelta(t, -1, got["lane_change_cmd"], 1e-12)
	assert.InDelta(t, 1, got["enable"], 1e-12)
}

func TestDepartLaneCode(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want int
	}{
		{in: "", want: 15},
		{in: "free", want: 15},
		{in: "random", want: 14},
		{in: "0", want: 0},
		{in: "3", want: 3},
	} {
		got, err := DepartLaneCode(tc.in)
		require.NoError(t, err, "depart_lane=%q", tc.in)
		assert.Equal(t, tc.want, got, "depart_lane=%q", tc.in)
	}

	for _, bad := range []string{"leftmost", "-1", "14", "99"} {
		_, err := DepartLaneCode(bad)
		assert.Error(t, err, "depart_lane=%q", bad)
	}
}

func TestEncodeInflowCfg(t *testing.T) {
	t.Parallel()

	m := loadTestMap(t)

	t.Run("rate-based inflow", func(t *testing.T) {
		t.Parallel()
		f, err := EncodeInflowCfg(m, 0, 0, 1800, 0, "free", 25.0)
		require.NoError(t, err)

		got, err := m.Decode(f)
		require.NoError(t, err)
		assert.InDelta(t, 0, got["inflow_index"], 1e-12)
		assert.InDelta(t, 1800, got["vehs_per_hour"], 1e-12)
		assert.InDelta(t, 0, got["probability"], 1e-12)
		assert.InDelta(t, 15, got["depart_lane"], 1e-12)
		assert.InDelta(t, 25.0, got["depart_speed_mps"], 0.05)
	})

	t.Run("probability-based inflow", func(t *testing.T) {
		t.Parallel()
		f, err := EncodeInflowCfg(m, 0, 1, 0, 0.05, "0", 10.0)
		require.NoError(t, err)

		got, err := m.Decode(f)
		require.NoError(t, err)
		assert.InDelta(t, 1, got["inflow_index"], 1e-12)
		assert.InDelta(t, 0.05, got["probability"], 0.0005)
		assert.InDelta(t, 0, got["depart_lane"], 1e-12)
	})

	t.Run("bad depart lane", func(t *testing.T) {
		t.Parallel()
		_, err := EncodeInflowCfg(m, 0, 0, 1800, 0, "sideways", 10.0)
		assert.Error(t, err)
	})
}

func TestLightStatePacking(t *testing.T) {
	t.Parallel()

	bits, err := PackLightState("GrGr")
	require.NoError(t, err)
	// G=2,r=0 packed two bits per head, little end first: 0b00_10_00_10
	assert.Equal(t, uint32(0x22), bits)

	state, err := UnpackLightState(bits, 4)
	require.NoError(t, err)
	assert.Equal(t, "GrGr", state)

	_, err = PackLightState("")
	assert.Error(t, err)
	_, err = PackLightState("GxG")
	assert.Error(t, err)
	_, err = PackLightState("GGGGGGGGGGGGGGGGG") // 17 heads
	assert.Error(t, err)
}

func TestEncodeTrafficLightCmd(t *testing.T) {
	t.Parallel()

	m := loadTestMap(t)
	f, err := EncodeTrafficLightCmd(m, 3, 0, 2, "rGrG")
	require.NoError(t, err)

	got, err := m.Decode(f)
	require.NoError(t, err)
	assert.InDelta(t, 2, got["phase_index"], 1e-12)
	state, err := UnpackLightState(uint32(got["state_bits"]), int(got["head_count"]))
	require.NoError(t, err)
	assert.Equal(t, "rGrG", state)
}

func TestTickAssembler(t *testing.T) {
	t.Parallel()

	tab := NewSnapshotTable()
	asm := NewTickAssembler(tab, 0.1)

	sf := func(rawTick, idx int, speed float64) StateFrame {
		return StateFrame{
			RawTick:      rawTick,
			VehicleIndex: idx,
			State:        control.VehicleState{ID: VehicleID(idx), Speed: speed},
		}
	}

	// Two frames for tick 0: nothing published yet.
	assert.False(t, asm.Add(sf(0, 0, 1)))
	assert.False(t, asm.Add(sf(0, 1, 2)))
	assert.Equal(t, uint64(0), tab.Tick())

	// First frame of tick 1 publishes tick 0 as extended tick 1.
	assert.True(t, asm.Add(sf(1, 0, 3)))
	all, tick := tab.All()
	assert.Equal(t, uint64(1), tick)
	require.Len(t, all, 2)
	assert.InDelta(t, 0.1, tab.SimTime(), 1e-12)

	assert.False(t, asm.Add(sf(1, 1, 4)))

	// Raw counter wrap still advances the extended tick.
	assert.True(t, asm.Add(sf(255, 0, 5)))
	assert.True(t, asm.Add(sf(0, 0, 6)))
	_, tick = tab.All()
	assert.Equal(t, uint64(3), tick)
}
