package track

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/timeutil"
)

const (
	// HistoryLimit bounds the optimized-state ring buffer.
	HistoryLimit = 100

	// Confidence decay per occluded frame, with and without prediction.
	confidenceDecayPredicted = 0.1
	confidenceDecayHeld      = 0.05

	// Rotation blend applied inside the jitter snap.
	jitterRotationBlend = 0.3

	// Smoothing weight for the metric EMAs.
	metricsAlpha = 0.1

	// Window of recent history entries feeding the stability estimate.
	stabilityWindow = 10
)

// Phase is the per-target tracking phase.
type Phase uint8

const (
	PhaseSearching Phase = iota
	PhaseTracking
	PhaseOccluded
	PhaseLost
)

func (p Phase) String() string {
	switch p {
	case PhaseSearching:
		return "searching"
	case PhaseTracking:
		return "tracking"
	case PhaseOccluded:
		return "occluded"
	case PhaseLost:
		return "lost"
	default:
		return "unknown"
	}
}

// TrackingState is one frame of pose data for a tracked target. Confidence
// is a percentage in [0,100]; TimestampMS is monotonic milliseconds from the
// tracking layer.
type TrackingState struct {
	Position    mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
	Confidence  float32
	TimestampMS float64
	Visible     bool
}

// Config tunes the optimizer. The value is fixed for a session unless
// replaced through SetConfig.
type Config struct {
	SmoothingEnabled bool
	SmoothingFactor  float32 // in [0,1); higher = stickier

	PredictionEnabled bool
	PredictionSteps   int // history entries feeding the velocity estimate

	OcclusionHandling  bool
	OcclusionTimeoutMS float32

	JitterReduction bool
	JitterThreshold float32

	KalmanEnabled bool
	Kalman        KalmanConfig
}

// DefaultConfig returns the stock tracking tuning.
func DefaultConfig() Config {
	return Config{
		SmoothingEnabled:   true,
		SmoothingFactor:    0.8,
		PredictionEnabled:  true,
		PredictionSteps:    5,
		OcclusionHandling:  true,
		OcclusionTimeoutMS: 500,
		JitterReduction:    true,
		JitterThreshold:    0.001,
		KalmanEnabled:      false,
		Kalman:             DefaultKalmanConfig(),
	}
}

// Metrics accumulates tracking quality measures. Stability, Accuracy and
// Latency are EMAs; LostFrames and TotalFrames are counters. Reset only by
// an explicit Optimizer.Reset.
type Metrics struct {
	Stability float32 // agreement between expected and actual movement, (0,1]
	Accuracy  float32 // EMA of confidence percentage
	LatencyMS float32 // EMA of wall-clock processing time per update
	Seeded    bool    // EMAs carry a value

	LostFrames  int
	TotalFrames int
}

// Anchor is the write target for optimized poses: the tracking library's
// handle bound to a recognized physical target.
type Anchor interface {
	SetPose(pos mgl32.Vec3, rot mgl32.Quat, scale mgl32.Vec3)
}

// NodeAnchor adapts a scene node as an Anchor.
type NodeAnchor struct {
	Node *scene.Node
}

func (a NodeAnchor) SetPose(pos mgl32.Vec3, rot mgl32.Quat, sc mgl32.Vec3) {
	if a.Node == nil {
		return
	}
	a.Node.Transform.Position = pos
	a.Node.Transform.Rotation = rot
	a.Node.Transform.Scale = sc
}

// Optimizer smooths and predicts raw tracking poses. One raw state goes in
// per frame; the optimized state comes back and is written onto the anchor.
// Steady-state never panics or errors: degraded conditions are encoded in
// the returned state and the phase.
type Optimizer struct {
	cfg    Config
	clock  timeutil.Clock
	kalman *KalmanFilter

	history []TrackingState // optimized states, FIFO, ≤HistoryLimit

	phase       Phase
	occlusionMS float32        // fixed per-frame accumulation, not wall clock
	held        *TrackingState // decaying pose held through an occlusion window

	metrics Metrics
}

// New constructs an optimizer. The clock feeds the latency metric only;
// pass timeutil.RealClock{} outside tests.
func New(cfg Config, clock timeutil.Clock) *Optimizer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.PredictionSteps < 1 {
		cfg.PredictionSteps = 1
	}
	return &Optimizer{
		cfg:    cfg,
		clock:  clock,
		kalman: NewKalmanFilter(cfg.Kalman),
		phase:  PhaseSearching,
	}
}

// Config returns the active configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// SetConfig replaces the configuration. The Kalman filter is rebuilt when
// its noise tuning changes; history and metrics are untouched.
func (o *Optimizer) SetConfig(cfg Config) {
	if cfg.PredictionSteps < 1 {
		cfg.PredictionSteps = 1
	}
	if cfg.Kalman != o.cfg.Kalman {
		o.kalman = NewKalmanFilter(cfg.Kalman)
	}
	o.cfg = cfg
}

// Phase returns the current tracking phase.
func (o *Optimizer) Phase() Phase { return o.phase }

// Metrics returns a copy of the accumulated metrics.
func (o *Optimizer) Metrics() Metrics { return o.metrics }

// History returns a copy of the optimized-state ring, oldest first.
func (o *Optimizer) History() []TrackingState {
	out := make([]TrackingState, len(o.history))
	copy(out, o.history)
	return out
}

// UpdateTracking consumes one raw state, produces the optimized state,
// applies its pose to the anchor (when non-nil) and returns it.
func (o *Optimizer) UpdateTracking(raw TrackingState, anchor Anchor) TrackingState {
	start := o.clock.Now()
	o.metrics.TotalFrames++

	var out TrackingState
	if raw.Visible {
		out = o.updateVisible(raw)
	} else {
		out = o.updateInvisible(raw)
	}

	out.Confidence = clampConfidence(out.Confidence)
	if anchor != nil {
		anchor.SetPose(out.Position, out.Rotation, out.Scale)
	}

	o.observeLatency(start)
	return out
}

// updateVisible runs the jitter → smoothing → Kalman chain and records the
// result.
func (o *Optimizer) updateVisible(raw TrackingState) TrackingState {
	o.occlusionMS = 0
	o.held = nil
	o.phase = PhaseTracking

	candidate := raw
	candidate.Confidence = clampConfidence(candidate.Confidence)

	prev := o.lastOptimized()

	if o.cfg.JitterReduction && prev != nil {
		candidate = o.reduceJitter(candidate, *prev)
	}
	if o.cfg.SmoothingEnabled && prev != nil {
		candidate = o.smooth(candidate, *prev)
	}
	if o.cfg.KalmanEnabled {
		if len(o.history) >= 2 && o.kalman.Initialized() {
			o.kalman.Predict()
			candidate.Position = o.kalman.Update(candidate.Position)
		} else {
			o.kalman.Initialize(candidate.Position)
		}
	}

	o.updateQualityMetrics(candidate, prev)
	o.pushHistory(candidate)
	return candidate
}

// updateInvisible drives the occlusion timer and the held pose. The timer
// advances by the fixed frame interval, not wall clock, so the timeout is a
// frame-count threshold at the nominal rate.
func (o *Optimizer) updateInvisible(raw TrackingState) TrackingState {
	if !o.cfg.OcclusionHandling {
		// Treated as an immediate loss: raw passthrough.
		o.phase = PhaseLost
		o.metrics.LostFrames++
		o.held = nil
		return raw
	}

	last := o.lastOptimized()
	if last == nil {
		// Nothing tracked yet; keep searching.
		o.phase = PhaseSearching
		return raw
	}

	o.occlusionMS += FrameIntervalMS
	if o.occlusionMS > o.cfg.OcclusionTimeoutMS {
		o.phase = PhaseLost
		o.metrics.LostFrames++
		o.held = nil
		return raw
	}

	o.phase = PhaseOccluded
	if o.held == nil {
		cp := *last
		o.held = &cp
	}

	if o.cfg.PredictionEnabled {
		o.held.Position = o.held.Position.Add(o.estimateVelocity().Mul(FrameIntervalMS))
		o.held.Confidence = clampConfidence(o.held.Confidence - confidenceDecayPredicted)
	} else {
		o.held.Confidence = clampConfidence(o.held.Confidence - confidenceDecayHeld)
	}
	o.held.Visible = false
	o.held.TimestampMS = raw.TimestampMS

	return *o.held
}

// reduceJitter snaps sub-threshold position deltas back to the previous
// optimized position and blends the rotation partway toward the new sample
// instead of accepting the raw jump.
func (o *Optimizer) reduceJitter(candidate, prev TrackingState) TrackingState {
	if candidate.Position.Sub(prev.Position).Len() < o.cfg.JitterThreshold {
		candidate.Position = prev.Position
		candidate.Rotation = mgl32.QuatSlerp(prev.Rotation, candidate.Rotation, jitterRotationBlend)
	}
	return candidate
}

// smooth blends the previous optimized state toward the candidate with
// weight 1−SmoothingFactor: higher factors respond slower.
func (o *Optimizer) smooth(candidate, prev TrackingState) TrackingState {
	w := 1 - o.cfg.SmoothingFactor
	candidate.Position = lerpVec3(prev.Position, candidate.Position, w)
	candidate.Scale = lerpVec3(prev.Scale, candidate.Scale, w)
	candidate.Rotation = mgl32.QuatSlerp(prev.Rotation, candidate.Rotation, w)
	return candidate
}

// estimateVelocity averages per-millisecond position deltas over the most
// recent PredictionSteps history entries. The result is units per ms; one
// prediction step advances it by the fixed frame interval.
func (o *Optimizer) estimateVelocity() mgl32.Vec3 {
	n := len(o.history)
	if n < 2 {
		return mgl32.Vec3{}
	}
	startIdx := n - o.cfg.PredictionSteps
	if startIdx < 0 {
		startIdx = 0
	}
	recent := o.history[startIdx:]

	var vel mgl32.Vec3
	pairs := 0
	for i := 1; i < len(recent); i++ {
		dt := float32(recent[i].TimestampMS - recent[i-1].TimestampMS)
		if dt <= 0 {
			continue
		}
		vel = vel.Add(recent[i].Position.Sub(recent[i-1].Position).Mul(1 / dt))
		pairs++
	}
	if pairs == 0 {
		return mgl32.Vec3{}
	}
	return vel.Mul(1 / float32(pairs))
}

// updateQualityMetrics folds the new sample into the stability/accuracy
// EMAs. Stability compares the actual movement magnitude against the
// average over the recent window: perfect agreement scores 1.
func (o *Optimizer) updateQualityMetrics(s TrackingState, prev *TrackingState) {
	instStability := float32(1)
	if prev != nil {
		actual := s.Position.Sub(prev.Position).Len()
		expected := o.averageMovement()
		instStability = 1 / (1 + math32.Abs(actual-expected))
	}

	if !o.metrics.Seeded {
		o.metrics.Stability = instStability
		o.metrics.Accuracy = s.Confidence
		o.metrics.Seeded = true
		return
	}
	o.metrics.Stability += metricsAlpha * (instStability - o.metrics.Stability)
	o.metrics.Accuracy += metricsAlpha * (s.Confidence - o.metrics.Accuracy)
}

// averageMovement is the mean frame-to-frame position delta magnitude over
// the recent history window.
func (o *Optimizer) averageMovement() float32 {
	n := len(o.history)
	if n < 2 {
		return 0
	}
	startIdx := n - stabilityWindow
	if startIdx < 0 {
		startIdx = 0
	}
	recent := o.history[startIdx:]

	var total float32
	for i := 1; i < len(recent); i++ {
		total += recent[i].Position.Sub(recent[i-1].Position).Len()
	}
	return total / float32(len(recent)-1)
}

// observeLatency folds the wall-clock cost of one update into the latency
// EMA. Seeding happens alongside the quality metrics so all three EMAs share
// the Seeded flag.
func (o *Optimizer) observeLatency(start time.Time) {
	elapsed := float32(o.clock.Since(start).Seconds() * 1000)
	if o.metrics.TotalFrames <= 1 {
		o.metrics.LatencyMS = elapsed
		return
	}
	o.metrics.LatencyMS += metricsAlpha * (elapsed - o.metrics.LatencyMS)
}

// pushHistory appends s, dropping the oldest entry beyond HistoryLimit.
func (o *Optimizer) pushHistory(s TrackingState) {
	if len(o.history) >= HistoryLimit {
		copy(o.history, o.history[1:])
		o.history[len(o.history)-1] = s
		return
	}
	o.history = append(o.history, s)
}

func (o *Optimizer) lastOptimized() *TrackingState {
	if len(o.history) == 0 {
		return nil
	}
	return &o.history[len(o.history)-1]
}

// OnTargetFound mirrors the tracker's found callback: the occlusion window
// ends and tracking resumes on the next update.
func (o *Optimizer) OnTargetFound() {
	monitoring.Logf("track: target found (phase was %s)", o.phase)
	o.occlusionMS = 0
	o.held = nil
	o.phase = PhaseTracking
}

// OnTargetLost mirrors the tracker's lost callback. The frame loop keeps
// driving the occlusion state machine; this only records the event.
func (o *Optimizer) OnTargetLost() {
	monitoring.Logf("track: target lost (phase was %s)", o.phase)
}

// Reset clears history, metrics, the held pose, the occlusion timer and the
// filter. Idempotent.
func (o *Optimizer) Reset() {
	o.history = nil
	o.metrics = Metrics{}
	o.occlusionMS = 0
	o.held = nil
	o.phase = PhaseSearching
	o.kalman.Reset()
}

// Dispose releases the optimizer's buffers. Equivalent to Reset; the
// optimizer holds no anchor reference between updates.
func (o *Optimizer) Dispose() {
	o.Reset()
}

func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
