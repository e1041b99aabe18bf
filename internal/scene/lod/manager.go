package lod

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/timeutil"
)

// Adaptation bounds: measured FPS below lowFPSFraction of target shrinks
// every switch distance, above highFPSFraction it relaxes them back out.
const (
	lowFPSFraction  = 0.8
	highFPSFraction = 1.1
	shrinkFactor    = 0.9
	growFactor      = 1.05
	fpsWindow       = time.Second
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// TargetFPS drives distance adaptation. Defaults to 60.
	TargetFPS float32 `json:"target_fps"`
	// AdaptDistances enables the FPS feedback loop.
	AdaptDistances bool `json:"adapt_distances"`
	// Compress is the base option set for sub-unity levels; GroupConfig
	// may override it per group.
	Compress CompressOptions `json:"compress"`
}

// DefaultManagerConfig targets desktop frame rates.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TargetFPS:      60,
		AdaptDistances: true,
		Compress:       DefaultCompressOptions(),
	}
}

// MobileManagerConfig targets 30 FPS and smaller textures.
func MobileManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.TargetFPS = 30
	cfg.Compress.TextureMaxDimension = 512
	return cfg
}

// ManagerStats is a snapshot of the manager's aggregate state.
type ManagerStats struct {
	Groups         int     `json:"groups"`
	CulledGroups   int     `json:"culled_groups"`
	ActiveVertices int     `json:"active_vertices"`
	ActiveFaces    int     `json:"active_faces"`
	AverageLevel   float64 `json:"average_level"`
	MeasuredFPS    float32 `json:"measured_fps"`
	Adjustments    int     `json:"adjustments"`
}

// Manager builds LOD chains for models and switches between their levels as
// the camera moves. RecordFrame feeds an FPS estimate sampled once per
// second; when the rate drops below 80% of target every switch distance
// shrinks by 10%, and above 110% distances relax back out by 5%.
type Manager struct {
	mu          sync.Mutex
	cfg         ManagerConfig
	compressor  *Compressor
	clock       timeutil.Clock
	groups      map[string]*Group
	frames      int
	windowStart time.Time
	fps         float32
	adjustments int
	lastStats   ManagerStats
}

// NewManager returns a manager. A nil clock selects the real one.
func NewManager(cfg ManagerConfig, clock timeutil.Clock) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	return &Manager{
		cfg:         cfg,
		compressor:  NewCompressor(clock),
		clock:       clock,
		groups:      make(map[string]*Group),
		windowStart: clock.Now(),
	}
}

// CreateLOD builds the level chain for model under the given id and returns
// the group. model itself is never modified; every level is built from its
// own clone. The caller attaches Group.Node() to the scene.
func (m *Manager) CreateLOD(id string, model *scene.Node, cfg GroupConfig) (*Group, error) {
	if id == "" {
		return nil, fmt.Errorf("lod: empty group id")
	}
	if model == nil {
		return nil, fmt.Errorf("lod: nil model for group %q", id)
	}
	if err := validateGroupConfig(cfg); err != nil {
		return nil, fmt.Errorf("lod: group %q: %w", id, err)
	}

	m.mu.Lock()
	if _, exists := m.groups[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("lod: group %q already exists", id)
	}
	opts := m.cfg.Compress
	m.mu.Unlock()
	if cfg.Compress != nil {
		opts = *cfg.Compress
	}

	g := &Group{id: id, node: scene.NewGroup("lod-" + id)}
	for i, lv := range cfg.Levels {
		wrapper := scene.NewGroup(fmt.Sprintf("lod-%s-level-%d", id, i))
		wrapper.Visible = i == 0

		built := groupLevel{threshold: lv.Distance, node: wrapper}
		if lv.Ratio >= 1 {
			wrapper.Add(model.Clone())
		} else {
			levelOpts := opts
			levelOpts.TargetRatio = lv.Ratio
			res, err := m.compressor.CompressModel(model, levelOpts)
			if err != nil {
				return nil, fmt.Errorf("lod: group %q level %d: %w", id, i, err)
			}
			wrapper.Add(res.Model)
			built.result = res
		}
		built.vertices, built.faces = countGeometry(wrapper)
		g.levels = append(g.levels, built)
		g.node.Add(wrapper)
	}
	if cfg.CullingDistance > 0 {
		g.levels = append(g.levels, groupLevel{threshold: cfg.CullingDistance})
	}

	m.mu.Lock()
	if _, exists := m.groups[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("lod: group %q already exists", id)
	}
	m.groups[id] = g
	m.mu.Unlock()

	monitoring.Logf("lod: built group %q with %d levels (%d vertices full detail)",
		id, len(g.levels), g.levels[0].vertices)
	return g, nil
}

func validateGroupConfig(cfg GroupConfig) error {
	if len(cfg.Levels) == 0 {
		return fmt.Errorf("no levels")
	}
	first := cfg.Levels[0]
	if first.Distance != 0 || first.Ratio != 1 {
		return fmt.Errorf("level 0 must be {distance: 0, ratio: 1}, got {%g, %g}", first.Distance, first.Ratio)
	}
	prev := float32(0)
	for i, lv := range cfg.Levels {
		if lv.Ratio <= 0 || lv.Ratio > 1 {
			return fmt.Errorf("level %d ratio %g outside (0, 1]", i, lv.Ratio)
		}
		if i > 0 && lv.Distance <= prev {
			return fmt.Errorf("level %d distance %g not greater than %g", i, lv.Distance, prev)
		}
		prev = lv.Distance
	}
	if cfg.CullingDistance > 0 && cfg.CullingDistance <= prev {
		return fmt.Errorf("culling distance %g not greater than last level distance %g", cfg.CullingDistance, prev)
	}
	return nil
}

func countGeometry(root *scene.Node) (vertices, faces int) {
	for _, g := range distinctGeometries(root) {
		vertices += g.VertexCount()
		faces += g.FaceCount()
	}
	return vertices, faces
}

// Group returns the registered group, if any.
func (m *Manager) Group(id string) (*Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	return g, ok
}

// RemoveLOD unregisters a group. The caller detaches its node; true means
// the id existed.
func (m *Manager) RemoveLOD(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return false
	}
	delete(m.groups, id)
	return true
}

// UpdateLODs reselects every group's level for the given camera position
// and returns the aggregate snapshot.
func (m *Manager) UpdateLODs(cameraPos mgl32.Vec3) ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ManagerStats{
		Groups:      len(m.groups),
		MeasuredFPS: m.fps,
		Adjustments: m.adjustments,
	}
	levelSum := 0
	for _, g := range m.groups {
		idx := g.Update(cameraPos)
		levelSum += idx
		if g.Culled() {
			stats.CulledGroups++
			continue
		}
		stats.ActiveVertices += g.levels[idx].vertices
		stats.ActiveFaces += g.levels[idx].faces
	}
	if stats.Groups > 0 {
		stats.AverageLevel = float64(levelSum) / float64(stats.Groups)
	}
	m.lastStats = stats
	return stats
}

// RecordFrame counts one rendered frame. Once a second of clock time has
// accumulated it refreshes the FPS estimate and runs distance adaptation.
func (m *Manager) RecordFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames++
	elapsed := m.clock.Since(m.windowStart)
	if elapsed < fpsWindow {
		return
	}
	m.fps = float32(float64(m.frames) / elapsed.Seconds())
	m.frames = 0
	m.windowStart = m.clock.Now()
	m.adaptLocked()
}

func (m *Manager) adaptLocked() {
	if !m.cfg.AdaptDistances || len(m.groups) == 0 {
		return
	}
	var factor float32
	switch {
	case m.fps < lowFPSFraction*m.cfg.TargetFPS:
		factor = shrinkFactor
	case m.fps > highFPSFraction*m.cfg.TargetFPS:
		factor = growFactor
	default:
		return
	}
	for _, g := range m.groups {
		g.scaleThresholds(factor)
	}
	m.adjustments++
	monitoring.Logf("lod: fps %.1f vs target %.0f, scaled switch distances by %.2f",
		m.fps, m.cfg.TargetFPS, factor)
}

// Stats returns the snapshot from the last UpdateLODs, with the current FPS
// and adjustment count folded in.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.lastStats
	stats.Groups = len(m.groups)
	stats.MeasuredFPS = m.fps
	stats.Adjustments = m.adjustments
	return stats
}

// Reset drops every group and clears the FPS window. Group nodes already
// attached to a scene are the caller's to detach.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = make(map[string]*Group)
	m.frames = 0
	m.fps = 0
	m.adjustments = 0
	m.windowStart = m.clock.Now()
	m.lastStats = ManagerStats{}
}

// Dispose releases the manager. Equivalent to Reset.
func (m *Manager) Dispose() {
	m.Reset()
}
