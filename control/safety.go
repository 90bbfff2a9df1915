package control

import (
	"fmt"
	"math"
	"math/rand"
)

// ActuationWrapper composes a raw control law with optional Gaussian actuation
// noise and an optional instantaneous failsafe, applied in that order. The
// wrapper is reused unchanged across control-law variants.
//
// Because of the noise source, a wrapper is NOT safe for concurrent use;
// create one per vehicle (one controller instance per vehicle is the expected
// lifecycle anyway).
type ActuationWrapper struct {
	inner AccelController
	cfg   ActuationConfig
	rng   *rand.Rand
}

// NewActuationWrapper validates cfg and wraps inner. The seed fixes the noise
// stream so runs are reproducible.
func NewActuationWrapper(inner AccelController, cfg ActuationConfig, seed int64) (*ActuationWrapper, error) {
	if inner == nil {
		return nil, fmt.Errorf("actuation wrapper: nil inner controller")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("actuation config: %w", err)
	}
	return &ActuationWrapper{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// GetAccel evaluates the wrapped law, perturbs it with Brownian-scaled noise,
// then lets the failsafe override the result.
func (w *ActuationWrapper) GetAccel(st VehicleState) float64 {
	accel := w.inner.GetAccel(st)
	if w.cfg.AccelNoiseStd > 0 {
		accel += math.Sqrt(w.cfg.TimeStepS) * w.cfg.AccelNoiseStd * w.rng.NormFloat64()
	}
	if w.cfg.Failsafe == FailsafeInstantaneous {
		accel = w.instantaneousFailsafe(st, accel)
	}
	return accel
}

// instantaneousFailsafe caps the command so that one timestep at the resulting
// speed cannot consume more than the available headway. When it trips, the
// override brings the vehicle to a stop within the step.
func (w *ActuationWrapper) instantaneousFailsafe(st VehicleState, accel float64) float64 {
	if !st.HasLeader() {
		return accel
	}
	dt := w.cfg.TimeStepS
	nextV := st.Speed + accel*dt
	if nextV > 0 && st.Headway < nextV*dt+st.Speed*1e-3 {
		return -st.Speed / dt
	}
	return accel
}
