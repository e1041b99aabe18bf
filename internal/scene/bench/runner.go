package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/anchorlight/framekit/internal/config"
	"github.com/anchorlight/framekit/internal/db"
	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/scene/lod"
	"github.com/anchorlight/framekit/internal/scene/memprof"
	"github.com/anchorlight/framekit/internal/scene/monitor"
	"github.com/anchorlight/framekit/internal/scene/pipeline"
	"github.com/anchorlight/framekit/internal/scene/pool"
	"github.com/anchorlight/framekit/internal/scene/render"
	"github.com/anchorlight/framekit/internal/scene/track"
	"github.com/anchorlight/framekit/internal/timeutil"
)

// RunnerConfig configures one headless benchmark session.
type RunnerConfig struct {
	Scenario Scenario
	// Tuning supplies the component settings. Nil selects the built-in
	// defaults of every component.
	Tuning *config.TuningConfig
	// Store receives the run row, the summaries, and the memory
	// snapshots. Nil runs without persistence.
	Store *db.DB
	// Clock is for tests. Nil selects the real clock.
	Clock timeutil.Clock
}

// Summary aggregates the per-frame times of one session. Times are taken
// from the frame records, so headless runs report the optimization cost
// per frame.
type Summary struct {
	Frames        int     `json:"frames"`
	MeanMS        float64 `json:"mean_ms"`
	StddevMS      float64 `json:"stddev_ms"`
	P50MS         float64 `json:"p50_ms"`
	P95MS         float64 `json:"p95_ms"`
	P99MS         float64 `json:"p99_ms"`
	MaxMS         float64 `json:"max_ms"`
	AchievedFPS   float64 `json:"achieved_fps"`
	DroppedFrames int     `json:"dropped_frames"`
}

// Result is everything a finished session measured.
type Result struct {
	// RunID is the persisted run row ID. Empty when no store was
	// configured.
	RunID    string
	Scenario Scenario
	Summary  Summary

	Tracking   track.Metrics
	FinalPhase string
	Render     render.Statistics
	LOD        lod.ManagerStats

	// Records holds the retained frame records, oldest first.
	Records []monitor.FrameRecord
	// Heap holds the profiler snapshots taken during the run.
	Heap []memprof.Snapshot
}

// Session is one assembled optimization stack bound to a scenario script.
// Every component is wired the way a production embedding wires it; only
// the renderer is a stub deriving its counters from the scene graph. The
// bench runner drives a Session headless at full speed; the server binary
// drives one from a wall-clock ticker.
type Session struct {
	Scenario Scenario

	Stats     *monitor.FrameStats
	Profiler  *memprof.Profiler
	Tracker   *track.Optimizer
	Optimizer *render.Optimizer
	Manager   *lod.Manager

	script *TrackingScript
	anchor track.NodeAnchor
	cam    *render.Camera
	pipe   *pipeline.Pipeline
	submit func(pipeline.FrameInput)
}

// NewSession assembles the full component stack for s. A nil tuning selects
// every component's built-in defaults; a nil clock selects the real one.
func NewSession(s Scenario, tuning *config.TuningConfig, clock timeutil.Clock) (*Session, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	root := BuildScene(s)

	// The tracked model sits at the orbit center; the optimizer output
	// drives its pose each frame.
	target := scene.NewGroup("tracked-target")
	root.Add(target)

	cam := render.NewPerspectiveCamera(60, 16.0/9.0, 0.1, 200)
	pools := pool.NewMathPools(poolConfigFromTuning(tuning), clock)
	tracker := track.New(trackConfigFromTuning(tuning), clock)

	stub := &rendererStub{root: root, fps: float32(s.TargetFPS)}
	optimizer := render.New(stub, root, cam, renderConfigFromTuning(tuning, s.TargetFPS), pools)

	manager := lod.NewManager(lodManagerConfigFromTuning(tuning), clock)
	if err := wrapLODGroups(manager, root, s.LODModels, lodGroupConfigFromTuning(tuning)); err != nil {
		tracker.Dispose()
		manager.Dispose()
		return nil, err
	}

	profiler := memprof.New(memprofConfigFromTuning(tuning), stub, clock)
	stats := monitor.NewFrameStats(s.TargetFPS, s.Frames, clock)

	pipe := pipeline.New(pipeline.Config{
		Tracking: tracker,
		Render:   optimizer,
		LOD:      manager,
		Stats:    stats,
		Profiler: profiler,
		Clock:    clock,
	})

	return &Session{
		Scenario:  s,
		Stats:     stats,
		Profiler:  profiler,
		Tracker:   tracker,
		Optimizer: optimizer,
		Manager:   manager,
		script:    NewTrackingScript(s),
		anchor:    track.NodeAnchor{Node: target},
		cam:       cam,
		pipe:      pipe,
		submit:    pipe.NewFrameCallback(),
	}, nil
}

// Start launches the profiler sampler.
func (se *Session) Start(ctx context.Context) error { return se.pipe.Start(ctx) }

// Stop halts the profiler sampler.
func (se *Session) Stop() { se.pipe.Stop() }

// Tick advances one frame of the script: it repositions the camera rig,
// feeds the frame input into the pipeline, and returns when the tick has
// been processed. frameTimeMS is the host-measured duration of the
// previous frame; zero lets the record carry the optimization time.
// Frames must be requested in order for the noise stream to replay.
func (se *Session) Tick(frame int, frameTimeMS float64) {
	eye := se.script.CameraAt(frame)
	se.cam.LookAt(eye, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0})
	se.submit(pipeline.FrameInput{
		State:     se.script.StateAt(frame),
		Anchor:    se.anchor,
		CameraPos: eye,
		FrameTime: frameTimeMS,
	})
}

// Result snapshots the session aggregates.
func (se *Session) Result(runID string) *Result {
	recs := se.Stats.Recent(0)
	return &Result{
		RunID:      runID,
		Scenario:   se.Scenario,
		Summary:    Summarize(recs, se.Scenario.TargetFPS),
		Tracking:   se.Tracker.Metrics(),
		FinalPhase: se.Tracker.Phase().String(),
		Render:     se.Optimizer.Statistics(),
		LOD:        se.Manager.Stats(),
		Records:    recs,
		Heap:       se.Profiler.History(),
	}
}

// Dispose releases every component of the stack.
func (se *Session) Dispose() {
	se.Tracker.Dispose()
	se.Manager.Dispose()
	se.Profiler.Dispose()
}

// Run executes one synthetic session through the full optimization
// pipeline at maximum speed and returns the aggregate result. When
// cfg.Store is set the run and its summaries are persisted.
func Run(ctx context.Context, cfg RunnerConfig) (*Result, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	se, err := NewSession(cfg.Scenario, cfg.Tuning, clock)
	if err != nil {
		return nil, err
	}
	defer se.Dispose()
	s := se.Scenario

	var run *db.Run
	if cfg.Store != nil {
		run, err = StartRun(cfg.Store, s, clock.Now())
		if err != nil {
			return nil, err
		}
	}

	if err := se.Start(ctx); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	defer se.Stop()

	// One explicit profiler sample per simulated second; the interval
	// sampler only fires on wall time, which a headless run outpaces.
	sampleEvery := int(s.TargetFPS)
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	for i := 0; i < s.Frames; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		se.Tick(i, 0)
		if (i+1)%sampleEvery == 0 {
			se.Profiler.Sample()
		}
	}
	finishedAt := clock.Now()

	runID := ""
	if run != nil {
		runID = run.ID
	}
	res := se.Result(runID)
	if run != nil {
		if err := PersistResult(cfg.Store, run.ID, finishedAt, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Summarize folds frame records into one aggregate. A frame counts as
// dropped when it exceeds 1.5x the frame budget at targetFPS.
func Summarize(recs []monitor.FrameRecord, targetFPS float64) Summary {
	sum := Summary{Frames: len(recs)}
	if len(recs) == 0 {
		return sum
	}
	if targetFPS <= 0 {
		targetFPS = 60
	}
	budget := 1000.0 / targetFPS * 1.5
	times := make([]float64, len(recs))
	for i, rec := range recs {
		times[i] = rec.FrameTimeMS
		if rec.FrameTimeMS > budget {
			sum.DroppedFrames++
		}
	}
	sum.MeanMS = stat.Mean(times, nil)
	if len(times) > 1 {
		sum.StddevMS = stat.StdDev(times, nil)
	}
	sort.Float64s(times)
	sum.P50MS = stat.Quantile(0.50, stat.Empirical, times, nil)
	sum.P95MS = stat.Quantile(0.95, stat.Empirical, times, nil)
	sum.P99MS = stat.Quantile(0.99, stat.Empirical, times, nil)
	sum.MaxMS = times[len(times)-1]
	if sum.MeanMS > 0 {
		sum.AchievedFPS = 1000.0 / sum.MeanMS
	}
	return sum
}

// StartRun opens a run row for a session, recording the scenario name and
// its full configuration as JSON.
func StartRun(store *db.DB, s Scenario, startedAt time.Time) (*db.Run, error) {
	cfgJSON, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal scenario: %w", err)
	}
	run := &db.Run{
		ID:         uuid.NewString(),
		Scenario:   s.Name,
		StartedAt:  startedAt,
		TargetFPS:  s.TargetFPS,
		ConfigJSON: string(cfgJSON),
	}
	if err := store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// PersistResult closes a run row and writes the frame, tracking, and
// memory summaries for it.
func PersistResult(store *db.DB, runID string, finishedAt time.Time, res *Result) error {
	if err := store.FinishRun(runID, finishedAt, res.Summary.Frames); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if err := store.InsertFrameSummary(&db.FrameSummary{
		RunID:         runID,
		MeanFrameMS:   res.Summary.MeanMS,
		StddevFrameMS: res.Summary.StddevMS,
		P50FrameMS:    res.Summary.P50MS,
		P95FrameMS:    res.Summary.P95MS,
		P99FrameMS:    res.Summary.P99MS,
		MaxFrameMS:    res.Summary.MaxMS,
		AchievedFPS:   res.Summary.AchievedFPS,
		DroppedFrames: int64(res.Summary.DroppedFrames),
	}); err != nil {
		return fmt.Errorf("insert frame summary: %w", err)
	}
	if err := store.InsertTrackingSummary(&db.TrackingSummary{
		RunID:        runID,
		TotalFrames:  res.Tracking.TotalFrames,
		LostFrames:   res.Tracking.LostFrames,
		AvgStability: float64(res.Tracking.Stability),
		AvgAccuracy:  float64(res.Tracking.Accuracy),
		AvgLatencyMS: float64(res.Tracking.LatencyMS),
		FinalPhase:   res.FinalPhase,
	}); err != nil {
		return fmt.Errorf("insert tracking summary: %w", err)
	}
	for _, snap := range res.Heap {
		if err := store.InsertMemorySnapshot(&db.MemorySnapshot{
			RunID:       runID,
			TakenAt:     snap.TakenAt,
			HeapUsed:    int64(snap.HeapUsed),
			HeapTotal:   int64(snap.HeapTotal),
			HeapPercent: snap.HeapPercent,
			Geometries:  snap.Geometries,
			Textures:    snap.Textures,
			Programs:    snap.Programs,
		}); err != nil {
			return fmt.Errorf("insert memory snapshot: %w", err)
		}
	}
	return nil
}

// wrapLODGroups replaces up to maxModels grid meshes under root with LOD
// groups built from them. Each group node takes over its mesh's transform
// so distance selection sees the grid position; the clone inside each
// level wrapper is re-centered to keep the composed position unchanged.
func wrapLODGroups(manager *lod.Manager, root *scene.Node, maxModels int, groupCfg lod.GroupConfig) error {
	wrapped := 0
	for i, child := range root.Children {
		if wrapped >= maxModels {
			break
		}
		if child.Mesh == nil {
			continue
		}
		g, err := manager.CreateLOD(fmt.Sprintf("grid-%d", wrapped), child, groupCfg)
		if err != nil {
			return fmt.Errorf("create lod group: %w", err)
		}
		node := g.Node()
		node.Transform = child.Transform
		for _, wrapper := range node.Children {
			for _, clone := range wrapper.Children {
				clone.Transform = scene.IdentityTransform()
			}
		}
		root.Children[i] = node
		wrapped++
	}
	return nil
}

// rendererStub stands in for a GPU renderer in headless runs. It derives
// the renderer counters from the scene graph: one draw call per visible
// mesh, with resource counts from the distinct geometries, textures, and
// materials reachable under visible nodes. It reports the scenario target
// FPS so shadow scaling holds its baseline.
type rendererStub struct {
	root *scene.Node
	fps  float32
}

func (r *rendererStub) Info() render.Info {
	info := render.Info{FPS: r.fps}
	geoms := make(map[uuid.UUID]struct{})
	mats := make(map[uuid.UUID]struct{})
	texes := make(map[uuid.UUID]struct{})
	var walk func(n *scene.Node)
	walk = func(n *scene.Node) {
		if n == nil || !n.Visible {
			return
		}
		if n.Mesh != nil {
			info.DrawCalls++
			if g := n.Mesh.Geometry; g != nil {
				geoms[g.ID] = struct{}{}
				info.Triangles += g.FaceCount()
			}
			if m := n.Mesh.Material; m != nil {
				mats[m.ID] = struct{}{}
				for _, tex := range m.Textures {
					texes[tex.ID] = struct{}{}
				}
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(r.root)
	info.Geometries = len(geoms)
	info.Textures = len(texes)
	info.Programs = len(mats)
	return info
}

func trackConfigFromTuning(t *config.TuningConfig) track.Config {
	if t == nil {
		return track.DefaultConfig()
	}
	return track.Config{
		SmoothingEnabled:   t.GetSmoothingEnabled(),
		SmoothingFactor:    float32(t.GetSmoothingFactor()),
		PredictionEnabled:  t.GetPredictionEnabled(),
		PredictionSteps:    t.GetPredictionSteps(),
		OcclusionHandling:  t.GetOcclusionHandling(),
		OcclusionTimeoutMS: float32(t.GetOcclusionTimeoutMS()),
		JitterReduction:    t.GetJitterReduction(),
		JitterThreshold:    float32(t.GetJitterThreshold()),
		KalmanEnabled:      t.GetKalmanEnabled(),
		Kalman: track.KalmanConfig{
			ProcessNoisePos:  float32(t.GetProcessNoisePos()),
			ProcessNoiseVel:  float32(t.GetProcessNoiseVel()),
			MeasurementNoise: float32(t.GetMeasurementNoise()),
		},
	}
}

func poolConfigFromTuning(t *config.TuningConfig) pool.Config {
	if t == nil {
		return pool.DefaultConfig()
	}
	return pool.Config{
		InitialSize:         t.GetPoolInitialSize(),
		MaxSize:             t.GetPoolMaxSize(),
		GrowthFactor:        t.GetPoolGrowthFactor(),
		ShrinkFactor:        t.GetPoolShrinkFactor(),
		ShrinkThreshold:     t.GetPoolShrinkThreshold(),
		ShrinkCheckInterval: t.GetPoolShrinkCheckInterval(),
	}
}

// renderConfigFromTuning maps the tuning file onto the optimizer config.
// ReferenceFPS always follows the scenario so shadow scaling measures
// against the load the scenario asks for, not the tuning default.
func renderConfigFromTuning(t *config.TuningConfig, targetFPS float64) render.Config {
	cfg := render.DefaultConfig()
	cfg.ReferenceFPS = float32(targetFPS)
	if t == nil {
		return cfg
	}
	cfg.MaxBatchVertices = t.GetMaxBatchVertices()
	cfg.MinShadowMapSize = t.GetMinShadowMapSize()
	cfg.MaxShadowMapSize = t.GetMaxShadowMapSize()
	return cfg
}

// lodManagerConfigFromTuning maps the tuning file onto the manager config.
// Unlike ReferenceFPS, the LOD target is a quality policy (how hard to
// degrade detail under load), so it comes from the tuning file rather than
// the scenario.
func lodManagerConfigFromTuning(t *config.TuningConfig) lod.ManagerConfig {
	cfg := lod.DefaultManagerConfig()
	cfg.Compress = compressOptionsFromTuning(t)
	if t != nil {
		cfg.TargetFPS = float32(t.GetLODTargetFPS())
	}
	return cfg
}

func lodGroupConfigFromTuning(t *config.TuningConfig) lod.GroupConfig {
	cfg := lod.DefaultGroupConfig()
	if t != nil {
		cfg.CullingDistance = float32(t.GetLODCullingDistance())
	}
	return cfg
}

func compressOptionsFromTuning(t *config.TuningConfig) lod.CompressOptions {
	opts := lod.DefaultCompressOptions()
	if t == nil {
		return opts
	}
	opts.QuantizationBits = t.GetQuantizationBits()
	opts.TextureMaxDimension = t.GetTextureMaxDimension()
	opts.TextureQuality = float32(t.GetTextureQuality())
	return opts
}

func memprofConfigFromTuning(t *config.TuningConfig) memprof.Config {
	cfg := memprof.DefaultConfig()
	if t == nil {
		return cfg
	}
	cfg.Interval = t.GetProfileInterval()
	cfg.WarningThreshold = t.GetMemWarningThreshold()
	cfg.CriticalThreshold = t.GetMemCriticalThreshold()
	cfg.LeakGrowthPercent = t.GetLeakGrowthPercent()
	return cfg
}
