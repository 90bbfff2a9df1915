package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMFreeFlow(t *testing.T) {
	t.Parallel()

	ctl, err := NewIDMController(DefaultIDMConfig())
	require.NoError(t, err)

	t.Run("no leader reduces to free-flow law", func(t *testing.T) {
		t.Parallel()
		cfg := ctl.Config()
		for _, v := range []float64{0, 5, 15, 25, 40} {
			got := ctl.GetAccel(VehicleState{ID: "veh_0", Speed: v, Headway: 1e-3})
			want := cfg.MaxAccelMPS2 * (1 - math.Pow(v/cfg.DesiredSpeedMPS, cfg.AccelExponent))
			assert.InDelta(t, want, got, 1e-12, "v=%f", v)
		}
	})

	t.Run("zero acceleration at desired speed", func(t *testing.T) {
		t.Parallel()
		got := ctl.GetAccel(VehicleState{ID: "veh_0", Speed: 30.0, Headway: 500})
		assert.InDelta(t, 0.0, got, 1e-12)
	})

	t.Run("stopped with no leader accelerates at max", func(t *testing.T) {
		t.Parallel()
		// v=0, h=1e-3, no leader: a*(1 - 0 - (0/h)^2) = a
		got := ctl.GetAccel(VehicleState{ID: "veh_0", Speed: 0, Headway: 1e-3})
		assert.InDelta(t, 1.0, got, 1e-12)
	})
}

func TestIDMCarFollowing(t *testing.T) {
	t.Parallel()

	ctl, err := NewIDMController(DefaultIDMConfig())
	require.NoError(t, err)

	t.Run("matched-speed leader at short gap brakes", func(t *testing.T) {
		t.Parallel()
		// v = v_lead = 10 kills the closing-speed term, so s* = s0 + v*T = 12
		// and accel = 1*(1 - (10/30)^4 - (12/10)^2) ~= -0.4523.
		got := ctl.GetAccel(VehicleState{
			ID: "veh_0", Speed: 10, LeaderID: "veh_1", LeaderSpeed: 10, Headway: 10,
		})
		want := 1 - math.Pow(1.0/3.0, 4) - 1.44
		assert.InDelta(t, want, got, 1e-12)
		assert.InDelta(t, -0.4523, got, 5e-4)
	})

	t.Run("stopped behind stopped leader", func(t *testing.T) {
		t.Parallel()
		// v=0 leaves only the minimum-gap term: a*(1 - (s0/h)^2), positive
		// for large h and approaching a as h grows.
		for _, tc := range []struct {
			h    float64
			want float64
		}{
			{h: 4, want: 1 - math.Pow(2.0/4.0, 2)},
			{h: 100, want: 1 - math.Pow(2.0/100.0, 2)},
			{h: 1e6, want: 1 - math.Pow(2.0/1e6, 2)},
		} {
			got := ctl.GetAccel(VehicleState{
				ID: "veh_0", Speed: 0, LeaderID: "veh_1", LeaderSpeed: 0, Headway: tc.h,
			})
			assert.InDelta(t, tc.want, got, 1e-12, "h=%f", tc.h)
			assert.Positive(t, got)
		}
	})

	t.Run("closing on a slower leader brakes harder than matched speed", func(t *testing.T) {
		t.Parallel()
		matched := ctl.GetAccel(VehicleState{
			ID: "veh_0", Speed: 10, LeaderID: "veh_1", LeaderSpeed: 10, Headway: 10,
		})
		closing := ctl.GetAccel(VehicleState{
			ID: "veh_0", Speed: 10, LeaderID: "veh_1", LeaderSpeed: 0, Headway: 10,
		})
		assert.Less(t, closing, matched)
	})
}

func TestIDMHeadwayClamp(t *testing.T) {
	t.Parallel()

	ctl, err := NewIDMController(DefaultIDMConfig())
	require.NoError(t, err)

	st := VehicleState{ID: "veh_0", Speed: 5, LeaderID: "veh_1", LeaderSpeed: 5, Headway: 0}

	t.Run("tiny positive headway clamps to +1e-3", func(t *testing.T) {
		t.Parallel()
		st := st
		st.Headway = 1e-5
		got := ctl.GetAccel(st)
		require.False(t, math.IsInf(got, 0))
		require.False(t, math.IsNaN(got))

		ref := st
		ref.Headway = 1e-3
		assert.Equal(t, ctl.GetAccel(ref), got)
	})

	t.Run("tiny negative headway clamps to -1e-3", func(t *testing.T) {
		t.Parallel()
		st := st
		st.Headway = -1e-5
		got := ctl.GetAccel(st)
		require.False(t, math.IsInf(got, 0))
		require.False(t, math.IsNaN(got))

		ref := st
		ref.Headway = -1e-3
		assert.Equal(t, ctl.GetAccel(ref), got)
	})

	t.Run("sign is preserved, not absolute-valued", func(t *testing.T) {
		t.Parallel()
		// (s*/h)^2 is even in h, so the clamped negative gap must produce the
		// same result as the positive one only through the square; the clamp
		// itself must not force negative inputs positive before that square.
		neg := st
		neg.Headway = -1e-9
		pos := st
		pos.Headway = 1e-9
		assert.Equal(t, ctl.GetAccel(pos), ctl.GetAccel(neg))
	})
}

func TestIDMConfigValidation(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		mutate func(*IDMConfig)
	}{
		{"zero desired speed", func(c *IDMConfig) { c.DesiredSpeedMPS = 0 }},
		{"negative max accel", func(c *IDMConfig) { c.MaxAccelMPS2 = -1 }},
		{"zero comfort decel", func(c *IDMConfig) { c.ComfortDecelMPS2 = 0 }},
		{"negative time headway", func(c *IDMConfig) { c.TimeHeadwayS = -0.5 }},
		{"negative min gap", func(c *IDMConfig) { c.MinGapM = -2 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultIDMConfig()
			tc.mutate(&cfg)
			_, err := NewIDMController(cfg)
			assert.Error(t, err)
		})
	}
}
