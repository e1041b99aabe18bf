package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorlight/framekit/internal/scene/lod"
	"github.com/anchorlight/framekit/internal/scene/monitor"
	"github.com/anchorlight/framekit/internal/scene/render"
	"github.com/anchorlight/framekit/internal/scene/track"
	"github.com/anchorlight/framekit/internal/timeutil"
)

type stubTracking struct {
	calls  int
	raw    track.TrackingState
	anchor track.Anchor
	out    track.TrackingState
	phase  track.Phase
	order  *[]string
}

func (s *stubTracking) UpdateTracking(raw track.TrackingState, anchor track.Anchor) track.TrackingState {
	s.calls++
	s.raw = raw
	s.anchor = anchor
	if s.order != nil {
		*s.order = append(*s.order, "tracking")
	}
	return s.out
}

func (s *stubTracking) Phase() track.Phase { return s.phase }

type stubRender struct {
	optimizes int
	stats     render.Statistics
	order     *[]string
}

func (s *stubRender) Optimize() {
	s.optimizes++
	if s.order != nil {
		*s.order = append(*s.order, "render")
	}
}

func (s *stubRender) Statistics() render.Statistics { return s.stats }

type stubLOD struct {
	updates int
	records int
	lastCam mgl32.Vec3
	stats   lod.ManagerStats
	order   *[]string
}

func (s *stubLOD) UpdateLODs(cameraPos mgl32.Vec3) lod.ManagerStats {
	s.updates++
	s.lastCam = cameraPos
	if s.order != nil {
		*s.order = append(*s.order, "lod")
	}
	return s.stats
}

func (s *stubLOD) RecordFrame() { s.records++ }

type stubSink struct {
	recs  []monitor.FrameRecord
	order *[]string
}

func (s *stubSink) Record(rec monitor.FrameRecord) {
	s.recs = append(s.recs, rec)
	if s.order != nil {
		*s.order = append(*s.order, "stats")
	}
}

type stubProfiler struct {
	starts int
	stops  int
	err    error
}

func (s *stubProfiler) Start(ctx context.Context) error {
	s.starts++
	return s.err
}

func (s *stubProfiler) Stop() { s.stops++ }

type stubAnchor struct{ poses int }

func (a *stubAnchor) SetPose(mgl32.Vec3, mgl32.Quat, mgl32.Vec3) { a.poses++ }

// steppedClock reports a fixed Since so optimize timings are deterministic.
type steppedClock struct {
	*timeutil.MockClock
	step time.Duration
}

func (c steppedClock) Since(time.Time) time.Duration { return c.step }

func testClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Unix(1756400000, 0))
}

func TestTickRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	trk := &stubTracking{order: &order}
	rnd := &stubRender{order: &order}
	ld := &stubLOD{order: &order}
	sink := &stubSink{order: &order}

	p := New(Config{Tracking: trk, Render: rnd, LOD: ld, Stats: sink, Clock: testClock()})
	p.NewFrameCallback()(FrameInput{})

	require.Equal(t, []string{"tracking", "render", "lod", "stats"}, order)
	assert.Equal(t, 1, trk.calls)
	assert.Equal(t, 1, rnd.optimizes)
	assert.Equal(t, 1, ld.updates)
	assert.Equal(t, 1, ld.records)
	assert.Len(t, sink.recs, 1)
}

func TestTickSkipsMissingStages(t *testing.T) {
	t.Parallel()

	t.Run("stats only", func(t *testing.T) {
		t.Parallel()

		sink := &stubSink{}
		p := New(Config{Stats: sink, Clock: testClock()})

		in := FrameInput{State: track.TrackingState{Confidence: 42}}
		p.NewFrameCallback()(in)

		require.Len(t, sink.recs, 1)
		rec := sink.recs[0]
		assert.Equal(t, float32(42), rec.Confidence, "raw state passes through without a tracking stage")
		assert.Empty(t, rec.Phase)
		assert.Zero(t, rec.DrawCalls)
		assert.Zero(t, rec.ActiveVertices)
	})

	t.Run("all stages nil", func(t *testing.T) {
		t.Parallel()

		p := New(Config{Clock: testClock()})
		require.NotPanics(t, func() {
			p.NewFrameCallback()(FrameInput{})
		})
		assert.Equal(t, uint64(1), p.Frames())
	})
}

func TestFrameRecordCarriesStageOutputs(t *testing.T) {
	t.Parallel()

	trk := &stubTracking{
		out:   track.TrackingState{Confidence: 87.5},
		phase: track.PhaseTracking,
	}
	rnd := &stubRender{stats: render.Statistics{
		DrawCalls: 12,
		Triangles: 3400,
		Visible:   20,
		Culled:    5,
		Batched:   3,
		Instanced: 2,
	}}
	ld := &stubLOD{stats: lod.ManagerStats{ActiveVertices: 4200, AverageLevel: 1.5}}
	sink := &stubSink{}
	clock := steppedClock{MockClock: testClock(), step: 4 * time.Millisecond}

	p := New(Config{Tracking: trk, Render: rnd, LOD: ld, Stats: sink, Clock: clock})

	anchor := &stubAnchor{}
	in := FrameInput{
		State:     track.TrackingState{Confidence: 10},
		Anchor:    anchor,
		CameraPos: mgl32.Vec3{1, 2, 3},
		FrameTime: 22.5,
	}
	p.NewFrameCallback()(in)

	assert.Equal(t, float32(10), trk.raw.Confidence, "raw state reaches the tracking stage")
	assert.Same(t, anchor, trk.anchor)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, ld.lastCam)

	require.Len(t, sink.recs, 1)
	rec := sink.recs[0]
	assert.Equal(t, 22.5, rec.FrameTimeMS, "host frame time wins when provided")
	assert.InDelta(t, 4.0, rec.OptimizeMS, 1e-9)
	assert.Equal(t, float32(87.5), rec.Confidence, "confidence comes from the optimized state")
	assert.Equal(t, "tracking", rec.Phase)
	assert.Equal(t, 12, rec.DrawCalls)
	assert.Equal(t, 3400, rec.Triangles)
	assert.Equal(t, 20, rec.Visible)
	assert.Equal(t, 5, rec.Culled)
	assert.Equal(t, 3, rec.Batched)
	assert.Equal(t, 2, rec.Instanced)
	assert.Equal(t, 4200, rec.ActiveVertices)
	assert.Equal(t, 1.5, rec.AverageLOD)
}

func TestFrameTimeFallsBackToOptimizeTime(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	clock := steppedClock{MockClock: testClock(), step: 6 * time.Millisecond}
	p := New(Config{Stats: sink, Clock: clock})

	p.NewFrameCallback()(FrameInput{})

	require.Len(t, sink.recs, 1)
	rec := sink.recs[0]
	assert.InDelta(t, 6.0, rec.OptimizeMS, 1e-9)
	assert.Equal(t, rec.OptimizeMS, rec.FrameTimeMS, "zero frame time falls back to the measured optimize time")
}

func TestFramesCounts(t *testing.T) {
	t.Parallel()

	p := New(Config{Clock: testClock()})
	tick := p.NewFrameCallback()

	require.Zero(t, p.Frames())
	for i := 0; i < 3; i++ {
		tick(FrameInput{})
	}
	assert.Equal(t, uint64(3), p.Frames())
}

func TestStartStopProfiler(t *testing.T) {
	t.Parallel()

	t.Run("delegates to the profiler", func(t *testing.T) {
		t.Parallel()

		prof := &stubProfiler{}
		p := New(Config{Profiler: prof, Clock: testClock()})

		require.NoError(t, p.Start(context.Background()))
		assert.Equal(t, 1, prof.starts)

		p.Stop()
		assert.Equal(t, 1, prof.stops)
	})

	t.Run("start error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("already running")
		prof := &stubProfiler{err: wantErr}
		p := New(Config{Profiler: prof, Clock: testClock()})

		err := p.Start(context.Background())
		require.ErrorIs(t, err, wantErr)
	})

	t.Run("nil profiler is a no-op", func(t *testing.T) {
		t.Parallel()

		p := New(Config{Clock: testClock()})
		require.NoError(t, p.Start(context.Background()))
		require.NotPanics(t, p.Stop)
	})
}

func TestNewDefaultsClock(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	assert.NotNil(t, p.clock)
}
