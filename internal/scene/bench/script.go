package bench

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene/track"
)

// TrackingScript produces the raw tracker samples and camera rig positions
// for a scenario. The noise stream is seeded, so two scripts for the same
// scenario replay identically, provided frames are requested in order.
type TrackingScript struct {
	s   Scenario
	rng *rand.Rand
}

// NewTrackingScript builds the frame source for s.
func NewTrackingScript(s Scenario) *TrackingScript {
	return &TrackingScript{
		s:   s,
		rng: rand.New(rand.NewSource(s.Seed)),
	}
}

// Occluded reports whether frame falls inside an occlusion window.
func (ts *TrackingScript) Occluded(frame int) bool {
	for _, w := range ts.s.Occlusions {
		if frame >= w.From && frame < w.To {
			return true
		}
	}
	return false
}

// StateAt returns the raw tracking sample for frame: a circular path at
// head height, Gaussian sensor noise, and zero-confidence invisibility
// inside occlusion windows.
func (ts *TrackingScript) StateAt(frame int) track.TrackingState {
	t := float64(frame) / ts.s.TargetFPS
	angle := 2 * math.Pi * t / ts.s.OrbitPeriodS

	pos := mgl32.Vec3{
		ts.s.PathRadius * float32(math.Cos(angle)),
		1.2,
		ts.s.PathRadius * float32(math.Sin(angle)),
	}
	if ts.s.NoiseStddev > 0 {
		pos = pos.Add(mgl32.Vec3{
			float32(ts.rng.NormFloat64()) * ts.s.NoiseStddev,
			float32(ts.rng.NormFloat64()) * ts.s.NoiseStddev,
			float32(ts.rng.NormFloat64()) * ts.s.NoiseStddev,
		})
	}

	state := track.TrackingState{
		Position:    pos,
		Rotation:    mgl32.QuatRotate(float32(angle), mgl32.Vec3{0, 1, 0}),
		Scale:       mgl32.Vec3{1, 1, 1},
		TimestampMS: float64(frame) * 1000 / ts.s.TargetFPS,
	}

	if !ts.Occluded(frame) {
		state.Visible = true
		// Detector confidence wanders inside a healthy band.
		state.Confidence = 82 + float32(ts.rng.Float64())*14
	}

	return state
}

// CameraAt returns the rig position for frame. The rig circles slowly and
// swings radially between one and seven path radii, so detail groups cross
// their switch distances during a run.
func (ts *TrackingScript) CameraAt(frame int) mgl32.Vec3 {
	t := float64(frame) / ts.s.TargetFPS
	swing := (1 + math.Sin(2*math.Pi*t/(ts.s.OrbitPeriodS*2))) / 2
	dist := float64(ts.s.PathRadius) * (1 + 6*swing)
	angle := 2 * math.Pi * t / (ts.s.OrbitPeriodS * 4)

	return mgl32.Vec3{
		float32(dist * math.Cos(angle)),
		1.6,
		float32(dist * math.Sin(angle)),
	}
}
