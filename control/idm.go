package control

import (
	"fmt"
	"math"
)

// minHeadwayM is the magnitude floor applied to headways before division.
const minHeadwayM = 1e-3

// IDMController implements the Intelligent Driver Model car-following law.
// https://en.wikipedia.org/wiki/Intelligent_driver_model
//
// The controller is stateless beyond its immutable parameters: GetAccel is a
// pure function of the snapshot and is recomputed every tick.
type IDMController struct {
	cfg IDMConfig
}

// NewIDMController validates cfg and returns a controller.
func NewIDMController(cfg IDMConfig) (*IDMController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("idm config: %w", err)
	}
	return &IDMController{cfg: cfg}, nil
}

// Config returns the controller's parameter set.
func (c *IDMController) Config() IDMConfig { return c.cfg }

// GetAccel returns the IDM acceleration command (m/s^2) for the snapshot.
//
// With no leader the interaction term drops out and the command reduces to
// free-flow acceleration toward the desired speed.
func (c *IDMController) GetAccel(st VehicleState) float64 {
	h := st.Headway
	// Near-zero gaps blow up the (s*/h)^2 term. Clamp the magnitude but keep
	// the sign: negative headways occur at junction geometry and forcing them
	// positive (or zero) would stall vehicles there.
	if math.Abs(h) < minHeadwayM {
		if math.Signbit(h) {
			h = -minHeadwayM
		} else {
			h = minHeadwayM
		}
	}

	v := st.Speed
	sStar := 0.0
	if st.HasLeader() {
		sStar = c.cfg.MinGapM + math.Max(0,
			v*c.cfg.TimeHeadwayS+v*(v-st.LeaderSpeed)/(2*math.Sqrt(c.cfg.MaxAccelMPS2*c.cfg.ComfortDecelMPS2)))
	}

	return c.cfg.MaxAccelMPS2 *
		(1 - math.Pow(v/c.cfg.DesiredSpeedMPS, c.cfg.AccelExponent) - math.Pow(sStar/h, 2))
}
