// Package track turns raw per-frame detection poses into smoothed,
// occlusion-tolerant, predicted poses written back onto the tracked anchor.
// The optimizer embeds a constant-velocity Kalman filter over the position
// component.
package track

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// FrameIntervalMS is the fixed per-frame timestep assumed by both the
	// filter and the occlusion timer. The pipeline runs frame-driven at a
	// nominal 60 Hz; wall-clock deltas never enter the filter.
	FrameIntervalMS = 1000.0 / 60.0

	// frameDT is FrameIntervalMS in seconds, the filter's Δt.
	frameDT = float32(1.0 / 60.0)

	// MinDeterminantThreshold bounds the innovation-covariance determinant;
	// below it the inverse falls back to the identity matrix instead of
	// amplifying a near-singular S.
	MinDeterminantThreshold = 1e-6
)

// KalmanConfig holds the fixed diagonal noise parameters.
type KalmanConfig struct {
	ProcessNoisePos  float32 // Q, position block diagonal
	ProcessNoiseVel  float32 // Q, velocity block diagonal
	MeasurementNoise float32 // R diagonal
}

// DefaultKalmanConfig returns the stock noise tuning.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		ProcessNoisePos:  0.01,
		ProcessNoiseVel:  0.1,
		MeasurementNoise: 0.1,
	}
}

// KalmanFilter estimates position and velocity from noisy position
// observations under a constant-velocity model. The 6-dimensional state is
// [x y z vx vy vz]; the 6×6 covariance is held as four 3×3 blocks
// (position-position, position-velocity, velocity-position,
// velocity-velocity), which the predict/update equations address directly.
type KalmanFilter struct {
	cfg KalmanConfig

	pos mgl32.Vec3
	vel mgl32.Vec3

	ppp, ppv mgl32.Mat3
	pvp, pvv mgl32.Mat3

	initialized bool
}

// NewKalmanFilter constructs an uninitialized filter; the first Initialize
// seeds the state.
func NewKalmanFilter(cfg KalmanConfig) *KalmanFilter {
	k := &KalmanFilter{cfg: cfg}
	k.resetCovariance()
	return k
}

// Initialized reports whether the filter has been seeded with a position.
func (k *KalmanFilter) Initialized() bool { return k.initialized }

// Position returns the current position estimate.
func (k *KalmanFilter) Position() mgl32.Vec3 { return k.pos }

// Velocity returns the current velocity estimate.
func (k *KalmanFilter) Velocity() mgl32.Vec3 { return k.vel }

// Initialize seeds the state at pos with zero velocity and resets the
// covariance.
func (k *KalmanFilter) Initialize(pos mgl32.Vec3) {
	k.pos = pos
	k.vel = mgl32.Vec3{}
	k.resetCovariance()
	k.initialized = true
}

// Reset returns the filter to its unseeded state.
func (k *KalmanFilter) Reset() {
	k.pos = mgl32.Vec3{}
	k.vel = mgl32.Vec3{}
	k.resetCovariance()
	k.initialized = false
}

func (k *KalmanFilter) resetCovariance() {
	k.ppp = mgl32.Ident3()
	k.ppv = mgl32.Mat3{}
	k.pvp = mgl32.Mat3{}
	k.pvv = mgl32.Ident3()
}

// Predict advances the state one fixed timestep under the constant-velocity
// model and returns the predicted position.
//
//	x' = F·x                           position += Δt·velocity
//	P' = F·P·Fᵀ + Q                    expanded per covariance block
func (k *KalmanFilter) Predict() mgl32.Vec3 {
	dt := frameDT

	k.pos = k.pos.Add(k.vel.Mul(dt))

	qpp := diag3(k.cfg.ProcessNoisePos)
	qvv := diag3(k.cfg.ProcessNoiseVel)

	ppp := k.ppp.
		Add(k.pvp.Mul(dt)).
		Add(k.ppv.Mul(dt)).
		Add(k.pvv.Mul(dt * dt)).
		Add(qpp)
	ppv := k.ppv.Add(k.pvv.Mul(dt))
	pvp := k.pvp.Add(k.pvv.Mul(dt))
	pvv := k.pvv.Add(qvv)

	k.ppp, k.ppv, k.pvp, k.pvv = ppp, ppv, pvp, pvv
	return k.pos
}

// Update corrects the state with an observed position and returns the
// corrected estimate.
//
//	y = z − H·x'                       innovation (position residual)
//	S = H·P'·Hᵀ + R = P'pp + R         3×3 innovation covariance
//	K = P'·Hᵀ·S⁻¹                      Kp = P'pp·S⁻¹, Kv = P'vp·S⁻¹
//	x = x' + K·y
//	P = (I − K·H)·P'                   expanded per covariance block
func (k *KalmanFilter) Update(z mgl32.Vec3) mgl32.Vec3 {
	if !k.initialized {
		k.Initialize(z)
		return k.pos
	}

	y := z.Sub(k.pos)

	s := k.ppp.Add(diag3(k.cfg.MeasurementNoise))
	sInv := invert3(s)

	kp := k.ppp.Mul3(sInv)
	kv := k.pvp.Mul3(sInv)

	k.pos = k.pos.Add(kp.Mul3x1(y))
	k.vel = k.vel.Add(kv.Mul3x1(y))

	iMinusKp := mgl32.Ident3().Sub(kp)
	ppp := iMinusKp.Mul3(k.ppp)
	ppv := iMinusKp.Mul3(k.ppv)
	pvp := k.pvp.Sub(kv.Mul3(k.ppp))
	pvv := k.pvv.Sub(kv.Mul3(k.ppv))

	k.ppp, k.ppv, k.pvp, k.pvv = ppp, ppv, pvp, pvv

	k.sanitize(z)
	return k.pos
}

// sanitize guards against numerical blowup: if any state component has gone
// non-finite, the position falls back to the raw observation, velocity
// zeroes and the covariance resets.
func (k *KalmanFilter) sanitize(z mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		if !finite(k.pos[i]) || !finite(k.vel[i]) {
			k.pos = z
			k.vel = mgl32.Vec3{}
			k.resetCovariance()
			return
		}
	}
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// diag3 returns a scalar diagonal matrix.
func diag3(v float32) mgl32.Mat3 {
	return mgl32.Diag3(mgl32.Vec3{v, v, v})
}

// invert3 inverts a 3×3 matrix by the adjugate/determinant method. When the
// determinant magnitude is below MinDeterminantThreshold the identity matrix
// is returned so a near-singular innovation covariance degrades the update
// instead of destroying the state.
func invert3(m mgl32.Mat3) mgl32.Mat3 {
	a, b, c := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	d, e, f := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	g, h, i := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math32.Abs(det) < MinDeterminantThreshold {
		return mgl32.Ident3()
	}

	var out mgl32.Mat3
	out.Set(0, 0, (e*i-f*h)/det)
	out.Set(0, 1, (c*h-b*i)/det)
	out.Set(0, 2, (b*f-c*e)/det)
	out.Set(1, 0, (f*g-d*i)/det)
	out.Set(1, 1, (a*i-c*g)/det)
	out.Set(1, 2, (c*d-a*f)/det)
	out.Set(2, 0, (d*h-e*g)/det)
	out.Set(2, 1, (b*g-a*h)/det)
	out.Set(2, 2, (a*e-b*d)/det)
	return out
}
