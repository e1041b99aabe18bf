package lod

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene"
)

// Level describes one entry in a LOD chain: the camera distance at which it
// switches in and the vertex ratio its mesh is compressed to.
type Level struct {
	Distance float32 `json:"distance"`
	Ratio    float32 `json:"ratio"`
}

// GroupConfig configures one CreateLOD call.
type GroupConfig struct {
	// Levels must start at {Distance: 0, Ratio: 1} and list strictly
	// increasing distances.
	Levels []Level `json:"levels"`
	// CullingDistance appends a level past which nothing renders. 0
	// disables culling.
	CullingDistance float32 `json:"culling_distance"`
	// Compress overrides the manager's base compression options for the
	// sub-unity levels of this group.
	Compress *CompressOptions `json:"compress,omitempty"`
}

// DefaultGroupConfig is the desktop distance/ratio table.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Levels: []Level{
			{Distance: 0, Ratio: 1},
			{Distance: 15, Ratio: 0.75},
			{Distance: 30, Ratio: 0.5},
			{Distance: 60, Ratio: 0.25},
		},
		CullingDistance: 100,
	}
}

// MobileGroupConfig trades detail for frame rate: closer switch distances,
// lower ratios, and a tighter cull.
func MobileGroupConfig() GroupConfig {
	return GroupConfig{
		Levels: []Level{
			{Distance: 0, Ratio: 1},
			{Distance: 8, Ratio: 0.6},
			{Distance: 20, Ratio: 0.3},
			{Distance: 35, Ratio: 0.15},
		},
		CullingDistance: 50,
	}
}

// LevelInfo is a read-only view of one built level.
type LevelInfo struct {
	Threshold float32 `json:"threshold"`
	Vertices  int     `json:"vertices"`
	Faces     int     `json:"faces"`
	Culled    bool    `json:"culled"`
}

type groupLevel struct {
	threshold float32
	node      *scene.Node // wrapper group toggled by Update; nil for the culled level
	vertices  int
	faces     int
	result    *CompressionResult // nil for uncompressed levels
}

// Group owns the level chain built for one model. Each level's subtree sits
// under its own group node, so switching levels only flips group visibility
// and never touches mesh flags the render optimizer owns. Distances are
// measured from the container node's local position, which assumes the
// container is attached at scene root.
type Group struct {
	id     string
	node   *scene.Node
	levels []groupLevel
	active int
	dist   float32
}

// ID returns the name the group was registered under.
func (g *Group) ID() string { return g.id }

// Node returns the container to attach to the scene. Exactly one level
// subtree under it is visible at a time.
func (g *Group) Node() *scene.Node { return g.node }

// ActiveLevel returns the index selected by the last Update.
func (g *Group) ActiveLevel() int { return g.active }

// Distance returns the camera distance computed by the last Update.
func (g *Group) Distance() float32 { return g.dist }

// Culled reports whether the last Update put the group past its culling
// distance.
func (g *Group) Culled() bool { return g.levels[g.active].node == nil }

// Levels returns a snapshot of the built chain, culled level included.
func (g *Group) Levels() []LevelInfo {
	out := make([]LevelInfo, len(g.levels))
	for i, lv := range g.levels {
		out[i] = LevelInfo{
			Threshold: lv.threshold,
			Vertices:  lv.vertices,
			Faces:     lv.faces,
			Culled:    lv.node == nil,
		}
	}
	return out
}

// CompressionResults returns the per-level compression reports; entries are
// nil for levels that were plain clones.
func (g *Group) CompressionResults() []*CompressionResult {
	out := make([]*CompressionResult, len(g.levels))
	for i, lv := range g.levels {
		out[i] = lv.result
	}
	return out
}

// SelectLevel returns the index of the level with the greatest threshold
// not exceeding distance.
func (g *Group) SelectLevel(distance float32) int {
	idx := 0
	for i, lv := range g.levels {
		if distance >= lv.threshold {
			idx = i
		}
	}
	return idx
}

// Update recomputes the camera distance, selects a level, and flips the
// wrapper visibility flags to match. It returns the selected index.
func (g *Group) Update(cameraPos mgl32.Vec3) int {
	g.dist = cameraPos.Sub(g.node.Transform.Position).Len()
	g.apply(g.SelectLevel(g.dist))
	return g.active
}

func (g *Group) apply(idx int) {
	g.active = idx
	for i := range g.levels {
		if n := g.levels[i].node; n != nil {
			n.Visible = i == idx
		}
	}
}

// scaleThresholds multiplies every non-zero switch distance by f, keeping
// the chain strictly increasing.
func (g *Group) scaleThresholds(f float32) {
	for i := range g.levels {
		if g.levels[i].threshold > 0 {
			g.levels[i].threshold *= f
		}
	}
}
