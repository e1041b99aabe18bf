// Package pipeline wires the per-frame optimization stages into a single
// tick the hosting render loop invokes: tracking → render optimization →
// LOD selection → stats. One frame is in flight at a time; the stages run
// synchronously on the caller's goroutine and only the stats sink and the
// profiler touch other threads.
package pipeline

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene/lod"
	"github.com/anchorlight/framekit/internal/scene/monitor"
	"github.com/anchorlight/framekit/internal/scene/render"
	"github.com/anchorlight/framekit/internal/scene/track"
	"github.com/anchorlight/framekit/internal/timeutil"
)

// diagEveryFrames throttles the diag-stream frame summary.
const diagEveryFrames = 120

// TrackingStage consumes one raw tracking state per frame and writes the
// optimized pose onto the anchor.
type TrackingStage interface {
	UpdateTracking(raw track.TrackingState, anchor track.Anchor) track.TrackingState
	Phase() track.Phase
}

// RenderStage runs the per-frame scene optimization pass.
type RenderStage interface {
	Optimize()
	Statistics() render.Statistics
}

// LODStage reselects detail levels and samples the frame rate.
type LODStage interface {
	UpdateLODs(cameraPos mgl32.Vec3) lod.ManagerStats
	RecordFrame()
}

// StatsSink receives one record per frame.
type StatsSink interface {
	Record(rec monitor.FrameRecord)
}

// ProfilerStage is the sampling lifecycle the pipeline manages.
type ProfilerStage interface {
	Start(ctx context.Context) error
	Stop()
}

// Config carries the stage values. Leave a field nil to skip that stage;
// store untyped nils only, a typed nil in an interface field counts as
// present.
type Config struct {
	Tracking TrackingStage
	Render   RenderStage
	LOD      LODStage
	Stats    StatsSink
	Profiler ProfilerStage
	Clock    timeutil.Clock
}

// FrameInput is what the hosting loop hands the frame callback each tick.
type FrameInput struct {
	// State is the raw tracking sample for this frame.
	State track.TrackingState
	// Anchor receives the optimized pose. May be nil.
	Anchor track.Anchor
	// CameraPos drives LOD selection.
	CameraPos mgl32.Vec3
	// FrameTime is the host-measured duration of the previous full frame.
	// Zero means unknown; the record then carries the optimization time.
	FrameTime float64 // milliseconds
}

// Pipeline owns the frame tick and the profiler lifecycle.
type Pipeline struct {
	cfg    Config
	clock  timeutil.Clock
	frames uint64
	// scratch is reused across ticks so steady-state frames allocate
	// nothing for the record.
	scratch monitor.FrameRecord
}

// New builds a pipeline from cfg. A nil clock selects the real one.
func New(cfg Config) *Pipeline {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{cfg: cfg, clock: clock}
}

// Start launches the profiler, when one is configured.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.cfg.Profiler == nil {
		return nil
	}
	if err := p.cfg.Profiler.Start(ctx); err != nil {
		return err
	}
	Opsf("profiler sampling started")
	return nil
}

// Stop halts the profiler, when one is configured.
func (p *Pipeline) Stop() {
	if p.cfg.Profiler == nil {
		return
	}
	p.cfg.Profiler.Stop()
	Opsf("profiler sampling stopped")
}

// Frames returns the number of ticks processed so far.
func (p *Pipeline) Frames() uint64 { return p.frames }

// NewFrameCallback returns the per-frame tick. The callback is not
// reentrant; the hosting loop must call it from one goroutine.
func (p *Pipeline) NewFrameCallback() func(FrameInput) {
	return p.tick
}

func (p *Pipeline) tick(in FrameInput) {
	start := p.clock.Now()
	p.frames++

	optimized := in.State
	if p.cfg.Tracking != nil {
		optimized = p.cfg.Tracking.UpdateTracking(in.State, in.Anchor)
	}
	if p.cfg.Render != nil {
		p.cfg.Render.Optimize()
	}
	var lodStats lod.ManagerStats
	if p.cfg.LOD != nil {
		lodStats = p.cfg.LOD.UpdateLODs(in.CameraPos)
		p.cfg.LOD.RecordFrame()
	}

	optimizeMS := p.clock.Since(start).Seconds() * 1000
	frameMS := in.FrameTime
	if frameMS <= 0 {
		frameMS = optimizeMS
	}

	rec := &p.scratch
	*rec = monitor.FrameRecord{
		FrameTimeMS:    frameMS,
		OptimizeMS:     optimizeMS,
		Confidence:     optimized.Confidence,
		ActiveVertices: lodStats.ActiveVertices,
		AverageLOD:     lodStats.AverageLevel,
	}
	if p.cfg.Tracking != nil {
		rec.Phase = p.cfg.Tracking.Phase().String()
	}
	if p.cfg.Render != nil {
		stats := p.cfg.Render.Statistics()
		rec.DrawCalls = stats.DrawCalls
		rec.Triangles = stats.Triangles
		rec.Visible = stats.Visible
		rec.Culled = stats.Culled
		rec.Batched = stats.Batched
		rec.Instanced = stats.Instanced
	}
	if p.cfg.Stats != nil {
		p.cfg.Stats.Record(*rec)
	}

	Tracef("frame %d: %.2f ms, phase %s, visible %d", p.frames, frameMS, rec.Phase, rec.Visible)
	if p.frames%diagEveryFrames == 0 {
		Diagf("frame %d: %.2f ms frame, %.2f ms optimize, %d visible / %d culled, %d batched, %d instanced, lod avg %.1f",
			p.frames, frameMS, optimizeMS, rec.Visible, rec.Culled, rec.Batched, rec.Instanced, rec.AverageLOD)
	}
}
