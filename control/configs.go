package control

import "fmt"

// IDMConfig holds Intelligent Driver Model parameters.
type IDMConfig struct {
	DesiredSpeedMPS  float64 `json:"desired_speed_mps"`
	TimeHeadwayS     float64 `json:"time_headway_s"`
	MaxAccelMPS2     float64 `json:"max_accel_mps2"`
	ComfortDecelMPS2 float64 `json:"comfort_decel_mps2"`
	AccelExponent    float64 `json:"accel_exponent"`
	MinGapM          float64 `json:"min_gap_m"`
	// Nonlinear jam distance. Carried in configs for compatibility with the
	// usual IDM parameter set but not used by the acceleration law.
	JamDistanceM float64 `json:"jam_distance_m,omitempty"`
}

// DefaultIDMConfig returns the standard highway IDM parameter set.
func DefaultIDMConfig() IDMConfig {
	return IDMConfig{
		DesiredSpeedMPS:  30.0,
		TimeHeadwayS:     1.0,
		MaxAccelMPS2:     1.0,
		ComfortDecelMPS2: 1.5,
		AccelExponent:    4.0,
		MinGapM:          2.0,
	}
}

// Validate checks the parameters that the model divides by or takes roots of.
// Construction must fail fast on a bad config rather than blowing up per tick.
func (c IDMConfig) Validate() error {
	if c.DesiredSpeedMPS <= 0 {
		return fmt.Errorf("invalid desired_speed_mps: %f", c.DesiredSpeedMPS)
	}
	if c.MaxAccelMPS2 <= 0 {
		return fmt.Errorf("invalid max_accel_mps2: %f", c.MaxAccelMPS2)
	}
	if c.ComfortDecelMPS2 <= 0 {
		return fmt.Errorf("invalid comfort_decel_mps2: %f", c.ComfortDecelMPS2)
	}
	if c.TimeHeadwayS < 0 {
		return fmt.Errorf("invalid time_headway_s: %f", c.TimeHeadwayS)
	}
	if c.MinGapM < 0 {
		return fmt.Errorf("invalid min_gap_m: %f", c.MinGapM)
	}
	return nil
}

// Failsafe modes accepted by ActuationConfig.
const (
	FailsafeNone          = "none"
	FailsafeInstantaneous = "instantaneous"
)

// ActuationConfig holds the parameters of the noise/failsafe wrapper that is
// composed with a raw control law regardless of which law it is.
type ActuationConfig struct {
	TimeStepS     float64 `json:"time_step_s"`
	AccelNoiseStd float64 `json:"accel_noise_std,omitempty"`
	Failsafe      string  `json:"failsafe,omitempty"` // "none" (default) or "instantaneous"
}

// Validate checks wrapper parameters.
func (c ActuationConfig) Validate() error {
	if c.TimeStepS <= 0 {
		return fmt.Errorf("invalid time_step_s: %f", c.TimeStepS)
	}
	if c.AccelNoiseStd < 0 {
		return fmt.Errorf("invalid accel_noise_std: %f", c.AccelNoiseStd)
	}
	switch c.Failsafe {
	case "", FailsafeNone, FailsafeInstantaneous:
	default:
		return fmt.Errorf("unknown failsafe mode: %q", c.Failsafe)
	}
	return nil
}
