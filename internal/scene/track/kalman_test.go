package track

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKalmanInitializeAndReset(t *testing.T) {
	t.Parallel()

	k := NewKalmanFilter(DefaultKalmanConfig())
	require.False(t, k.Initialized())

	start := mgl32.Vec3{1, 2, 3}
	k.Initialize(start)
	require.True(t, k.Initialized())
	assert.Equal(t, start, k.Position())
	assert.Equal(t, mgl32.Vec3{}, k.Velocity())

	k.Reset()
	assert.False(t, k.Initialized())
	assert.Equal(t, mgl32.Vec3{}, k.Position())
	assert.Equal(t, mgl32.Vec3{}, k.Velocity())
}

func TestKalmanUpdateSeedsUninitializedFilter(t *testing.T) {
	t.Parallel()

	k := NewKalmanFilter(DefaultKalmanConfig())
	z := mgl32.Vec3{0.5, -1, 2}

	got := k.Update(z)

	assert.Equal(t, z, got)
	assert.True(t, k.Initialized())
	assert.Equal(t, mgl32.Vec3{}, k.Velocity())
}

func TestKalmanConvergesToStationaryMeasurement(t *testing.T) {
	t.Parallel()

	k := NewKalmanFilter(DefaultKalmanConfig())
	k.Initialize(mgl32.Vec3{})
	target := mgl32.Vec3{2, 0.5, -1.5}

	var got mgl32.Vec3
	for i := 0; i < 240; i++ {
		k.Predict()
		got = k.Update(target)
	}

	assert.True(t, got.ApproxEqualThreshold(target, 0.01),
		"position %v should settle on %v", got, target)
	assert.InDelta(t, 0, float64(k.Velocity().Len()), 0.05)
}

func TestKalmanTracksConstantVelocity(t *testing.T) {
	t.Parallel()

	k := NewKalmanFilter(DefaultKalmanConfig())
	vel := mgl32.Vec3{0.6, 0, -0.3} // units per second
	pos := mgl32.Vec3{}
	k.Initialize(pos)

	for i := 0; i < 240; i++ {
		pos = pos.Add(vel.Mul(frameDT))
		k.Predict()
		k.Update(pos)
	}

	assert.True(t, k.Position().ApproxEqualThreshold(pos, 0.05),
		"position %v should follow the target at %v", k.Position(), pos)
	assert.True(t, k.Velocity().ApproxEqualThreshold(vel, 0.05),
		"velocity %v should approach %v", k.Velocity(), vel)
}

func TestKalmanSurvivesDegenerateNoiseTuning(t *testing.T) {
	t.Parallel()

	// Zero process noise and a negative measurement noise drive the
	// innovation covariance singular on the first update. The inverse
	// falls back to identity; state stays finite.
	k := NewKalmanFilter(KalmanConfig{ProcessNoisePos: 0, ProcessNoiseVel: 0, MeasurementNoise: -1})
	k.Initialize(mgl32.Vec3{})

	z := mgl32.Vec3{1, 1, 1}
	for i := 0; i < 10; i++ {
		k.Predict()
		k.Update(z)
		for axis := 0; axis < 3; axis++ {
			require.False(t, math32.IsNaN(k.Position()[axis]), "position went NaN on iteration %d", i)
			require.False(t, math32.IsNaN(k.Velocity()[axis]), "velocity went NaN on iteration %d", i)
		}
	}
}

func TestKalmanRecoversFromNonFiniteMeasurement(t *testing.T) {
	t.Parallel()

	k := NewKalmanFilter(DefaultKalmanConfig())
	k.Initialize(mgl32.Vec3{1, 1, 1})
	k.Predict()
	k.Update(mgl32.Vec3{math32.NaN(), 0, 0})

	// The poisoned frame may return a non-finite estimate, but the next
	// finite observation must restore the state.
	z := mgl32.Vec3{2, 3, 4}
	k.Predict()
	got := k.Update(z)

	assert.Equal(t, z, got)
	assert.Equal(t, mgl32.Vec3{}, k.Velocity())
}

func TestInvert3(t *testing.T) {
	t.Parallel()

	t.Run("diagonal", func(t *testing.T) {
		t.Parallel()
		inv := invert3(diag3(2))
		assert.True(t, inv.ApproxEqualThreshold(diag3(0.5), 1e-6))
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		m := mgl32.Mat3{2, 0, 1, 0, 3, 0, 1, 0, 2}
		prod := m.Mul3(invert3(m))
		assert.True(t, prod.ApproxEqualThreshold(mgl32.Ident3(), 1e-5),
			"M·M⁻¹ = %v, want identity", prod)
	})

	t.Run("singular falls back to identity", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, mgl32.Ident3(), invert3(mgl32.Mat3{}))
		assert.Equal(t, mgl32.Ident3(), invert3(diag3(1e-4))) // det 1e-12
	})
}
