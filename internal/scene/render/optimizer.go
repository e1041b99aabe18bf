// Package render implements the per-frame rendering-cost reducer: frustum
// culling against the camera volume, a pluggable occlusion stage, static
// batching and GPU instancing of repeated material/geometry pairs, and
// shadow-map tuning driven by the renderer's recent performance. Optimize
// runs once per frame inside the render loop; derived meshes live exactly
// one frame and are rebuilt from the current scene every tick.
package render

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/scene/pool"
)

// Config bounds the batching and shadow stages.
type Config struct {
	MaxBatchVertices int     // combined vertex budget for one merged mesh
	MinShadowMapSize int     // power of two
	MaxShadowMapSize int     // power of two
	ReferenceFPS     float32 // performance baseline for shadow scaling
}

// DefaultConfig matches the tuning defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchVertices: 65536,
		MinShadowMapSize: 256,
		MaxShadowMapSize: 2048,
		ReferenceFPS:     60,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBatchVertices <= 0 {
		c.MaxBatchVertices = def.MaxBatchVertices
	}
	if c.MinShadowMapSize <= 0 {
		c.MinShadowMapSize = def.MinShadowMapSize
	}
	if c.MaxShadowMapSize < c.MinShadowMapSize {
		c.MaxShadowMapSize = c.MinShadowMapSize
	}
	if c.ReferenceFPS <= 0 {
		c.ReferenceFPS = def.ReferenceFPS
	}
	return c
}

// Statistics merges the renderer's counters with the optimizer's per-frame
// tallies. Batched and Instanced count the original meshes folded into
// derived draws, not the derived meshes themselves.
type Statistics struct {
	DrawCalls  int `json:"draw_calls"`
	Triangles  int `json:"triangles"`
	Geometries int `json:"geometries"`
	Textures   int `json:"textures"`
	Programs   int `json:"programs"`

	Visible   int `json:"visible"`
	Culled    int `json:"culled"`
	Batched   int `json:"batched"`
	Instanced int `json:"instanced"`

	ShadowMapSize int `json:"shadow_map_size"` // largest tuned map this frame
}

// Optimizer rewrites mesh visibility and draw layout once per frame.
//
// Visibility ownership: mesh-node Visible flags belong to the optimizer and
// are recomputed every Optimize; application code (LOD switching included)
// controls visibility through group nodes, whose subtrees the optimizer
// skips entirely when hidden.
type Optimizer struct {
	renderer  InfoSource
	root      *scene.Node
	camera    *Camera
	cfg       Config
	pools     *pool.MathPools
	occlusion OcclusionPolicy

	frustum    Frustum
	worlds     map[*scene.Node]mgl32.Mat4
	shadowBase map[*scene.Light]int // original map sizes, scaling reference
	derived    []*scene.Node        // batch/instance nodes added last frame
	hidden     []*scene.Node        // originals hidden by batching/instancing
	tally      Statistics
}

// New constructs an optimizer over the given scene and camera. A nil pools
// falls back to a private MathPools; renderer may be nil when no external
// counters exist.
func New(renderer InfoSource, root *scene.Node, cam *Camera, cfg Config, pools *pool.MathPools) *Optimizer {
	if pools == nil {
		pools = pool.NewMathPools(pool.DefaultConfig(), nil)
	}
	return &Optimizer{
		renderer:   renderer,
		root:       root,
		camera:     cam,
		cfg:        cfg.withDefaults(),
		pools:      pools,
		occlusion:  PassthroughOcclusionPolicy{},
		worlds:     make(map[*scene.Node]mgl32.Mat4),
		shadowBase: make(map[*scene.Light]int),
	}
}

// SetOcclusionPolicy swaps the occlusion stage; nil restores passthrough.
func (o *Optimizer) SetOcclusionPolicy(p OcclusionPolicy) {
	if p == nil {
		p = PassthroughOcclusionPolicy{}
	}
	o.occlusion = p
}

// OcclusionPolicyName reports the active occlusion stage.
func (o *Optimizer) OcclusionPolicyName() string { return o.occlusion.Name() }

// Frustum returns the planes computed by the last Optimize.
func (o *Optimizer) Frustum() Frustum { return o.frustum }

// Optimize runs the per-frame sequence: undo the previous frame's derived
// meshes, recompute the frustum, cull, apply the occlusion policy, batch,
// instance and tune shadows.
func (o *Optimizer) Optimize() {
	if o.root == nil || o.camera == nil {
		return
	}
	o.restoreDerived()
	o.tally = Statistics{}

	o.frustum = FrustumFromMatrix(o.camera.ViewProjection())

	visible := o.cullAgainstFrustum()
	visible = o.occlusion.Apply(visible)
	visible = o.batchVisible(visible)
	o.instanceVisible(visible)
	o.tuneShadows()
}

// Statistics returns the renderer counters merged with this frame's tallies.
func (o *Optimizer) Statistics() Statistics {
	stats := o.tally
	if o.renderer != nil {
		info := o.renderer.Info()
		stats.DrawCalls = info.DrawCalls
		stats.Triangles = info.Triangles
		stats.Geometries = info.Geometries
		stats.Textures = info.Textures
		stats.Programs = info.Programs
	}
	return stats
}

// Dispose removes derived meshes, restores hidden originals and drops all
// per-frame bookkeeping.
func (o *Optimizer) Dispose() {
	o.restoreDerived()
	clear(o.worlds)
	clear(o.shadowBase)
	o.tally = Statistics{}
}

// restoreDerived detaches last frame's batch/instance meshes and makes the
// originals visible again ahead of the fresh cull pass.
func (o *Optimizer) restoreDerived() {
	for _, n := range o.derived {
		o.root.Remove(n)
	}
	o.derived = o.derived[:0]
	for _, n := range o.hidden {
		n.Visible = true
	}
	o.hidden = o.hidden[:0]
}

func (o *Optimizer) cullAgainstFrustum() []*scene.Node {
	var visible []*scene.Node
	clear(o.worlds)

	o.root.Walk(func(n *scene.Node, world mgl32.Mat4) bool {
		if n.Kind == scene.KindGroup && !n.Visible {
			return false // application-hidden subtree
		}
		if n.Kind != scene.KindMesh || n.Mesh == nil || n.Mesh.Geometry == nil {
			return true
		}

		if n.Mesh.FrustumCulled {
			box := n.Mesh.Geometry.Bounds().Transformed(world)
			if !o.frustum.IntersectsAABB(box) {
				n.Visible = false
				o.tally.Culled++
				return true
			}
		}
		n.Visible = true
		o.worlds[n] = world
		visible = append(visible, n)
		o.tally.Visible++
		return true
	})
	return visible
}

// batchVisible merges groups of ≥2 same-signature meshes whose combined
// vertex count fits the budget into one derived mesh; everything left over
// is returned for the instancing stage.
func (o *Optimizer) batchVisible(visible []*scene.Node) []*scene.Node {
	groups, keys := o.groupBySignature(visible)

	var remainder []*scene.Node
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			remainder = append(remainder, g...)
			continue
		}
		total := 0
		for _, n := range g {
			total += n.Mesh.Geometry.VertexCount()
		}
		if total > o.cfg.MaxBatchVertices {
			remainder = append(remainder, g...)
			continue
		}
		o.emitBatch(g)
	}
	return remainder
}

// instanceVisible replaces any remaining same-signature group of more than
// two meshes with a single instanced mesh carrying per-member world
// matrices.
func (o *Optimizer) instanceVisible(visible []*scene.Node) {
	groups, keys := o.groupBySignature(visible)

	for _, k := range keys {
		g := groups[k]
		if len(g) <= 2 {
			continue
		}
		mats := make([]mgl32.Mat4, len(g))
		for i, n := range g {
			mats[i] = o.worlds[n]
		}
		mesh := &scene.Mesh{
			Geometry:         g[0].Mesh.Geometry,
			Material:         g[0].Mesh.Material,
			CastShadow:       anyCaster(g),
			ReceiveShadow:    anyReceiver(g),
			FrustumCulled:    false,
			InstanceMatrices: mats,
		}
		node := scene.NewMeshNode(fmt.Sprintf("instanced-%02d", len(o.derived)), mesh)
		o.attachDerived(node, g)
		o.tally.Instanced += len(g)
	}
}

// groupBySignature buckets non-instanced meshes by material:geometry
// identity; keys come back sorted so per-frame processing order is stable.
func (o *Optimizer) groupBySignature(visible []*scene.Node) (map[string][]*scene.Node, []string) {
	groups := make(map[string][]*scene.Node)
	var keys []string
	for _, n := range visible {
		if n.Mesh.InstanceMatrices != nil {
			continue // already instanced
		}
		k := meshSignature(n.Mesh)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], n)
	}
	sort.Strings(keys)
	return groups, keys
}

func meshSignature(m *scene.Mesh) string {
	mat := "none"
	if m.Material != nil {
		mat = m.Material.ID.String()
	}
	return mat + ":" + m.Geometry.ID.String()
}

func (o *Optimizer) emitBatch(group []*scene.Node) {
	name := fmt.Sprintf("batch-%02d", len(o.derived))
	mesh := &scene.Mesh{
		Geometry:      o.mergeGeometries(name, group),
		Material:      group[0].Mesh.Material,
		CastShadow:    anyCaster(group),
		ReceiveShadow: anyReceiver(group),
		FrustumCulled: false,
	}
	o.attachDerived(scene.NewMeshNode(name, mesh), group)
	o.tally.Batched += len(group)
}

// attachDerived adds the derived node under the root and hides the
// originals it replaces.
func (o *Optimizer) attachDerived(node *scene.Node, group []*scene.Node) {
	o.root.Add(node)
	o.derived = append(o.derived, node)
	for _, n := range group {
		n.Visible = false
		o.hidden = append(o.hidden, n)
	}
}

// mergeGeometries bakes each member's world transform into one combined
// indexed geometry. Group members share one geometry object (the signature
// includes its ID), so attribute layouts always line up.
func (o *Optimizer) mergeGeometries(name string, group []*scene.Node) *scene.Geometry {
	merged := scene.NewGeometry(name)

	tmp, tmpHandle, pooled := o.pools.Vec3().Acquire()
	if !pooled {
		tmp = &pool.PooledVec3{}
	}

	var base uint32
	for _, n := range group {
		g := n.Mesh.Geometry
		world := o.worlds[n]
		nm := normalMatrix(world)
		count := g.VertexCount()

		for i := 0; i < count; i++ {
			tmp.V = mgl32.TransformCoordinate(g.Position(i), world)
			merged.Positions = append(merged.Positions, tmp.V.X(), tmp.V.Y(), tmp.V.Z())
		}
		if len(g.Normals) == len(g.Positions) {
			for i := 0; i < count; i++ {
				tmp.V = nm.Mul3x1(mgl32.Vec3{g.Normals[i*3], g.Normals[i*3+1], g.Normals[i*3+2]})
				if l := tmp.V.Len(); l > 0 {
					tmp.V = tmp.V.Mul(1 / l)
				}
				merged.Normals = append(merged.Normals, tmp.V.X(), tmp.V.Y(), tmp.V.Z())
			}
		}
		if len(g.Colors) == len(g.Positions) {
			merged.Colors = append(merged.Colors, g.Colors...)
		}
		if len(g.UVs) == count*2 {
			merged.UVs = append(merged.UVs, g.UVs...)
		}

		if g.Indexed() {
			for _, ix := range g.Indices {
				merged.Indices = append(merged.Indices, ix+base)
			}
		} else {
			for i := 0; i < count; i++ {
				merged.Indices = append(merged.Indices, base+uint32(i))
			}
		}
		base += uint32(count)
	}

	if pooled {
		o.pools.Vec3().Release(tmpHandle)
	}
	return merged
}

// normalMatrix is the inverse-transpose of the world rotation/scale block;
// singular transforms fall back to the raw block.
func normalMatrix(world mgl32.Mat4) mgl32.Mat3 {
	m := world.Mat3()
	if mgl32.FloatEqual(m.Det(), 0) {
		return m
	}
	return m.Inv().Transpose()
}

// tuneShadows scales every shadow-casting light's map from its original
// size by the renderer-derived quality factor and fits directional ortho
// boxes to the union bounds of visible shadow casters.
func (o *Optimizer) tuneShadows() {
	lights := o.root.Lights()
	if len(lights) == 0 {
		return
	}

	casters := scene.EmptyAABB()
	hasCasters := false
	o.root.Walk(func(n *scene.Node, world mgl32.Mat4) bool {
		if n.Kind == scene.KindGroup && !n.Visible {
			return false
		}
		if n.Kind != scene.KindMesh || n.Mesh == nil || n.Mesh.Geometry == nil {
			return true
		}
		if !n.Visible || !n.Mesh.CastShadow {
			return true
		}
		casters = casters.Union(n.Mesh.Geometry.Bounds().Transformed(world))
		hasCasters = true
		return true
	})

	quality := o.shadowQuality()
	for _, ln := range lights {
		l := ln.Light
		if !l.CastShadow || l.Shadow == nil {
			continue
		}
		base, ok := o.shadowBase[l]
		if !ok {
			base = l.Shadow.MapSize
			o.shadowBase[l] = base
		}
		size := clampPow2(int(float32(base)*quality), o.cfg.MinShadowMapSize, o.cfg.MaxShadowMapSize)
		l.Shadow.MapSize = size
		if size > o.tally.ShadowMapSize {
			o.tally.ShadowMapSize = size
		}

		if l.Type == scene.LightDirectional && hasCasters {
			fitOrthoBox(l.Shadow, casters)
		}
	}
}

// shadowQuality maps recent renderer FPS to a map-size multiplier in
// [0.25, 1]. Unknown FPS leaves sizes untouched.
func (o *Optimizer) shadowQuality() float32 {
	if o.renderer == nil {
		return 1
	}
	fps := o.renderer.Info().FPS
	if fps <= 0 {
		return 1
	}
	q := fps / o.cfg.ReferenceFPS
	if q > 1 {
		q = 1
	}
	if q < 0.25 {
		q = 0.25
	}
	return q
}

// fitOrthoBox centers the directional shadow volume on the caster bounds.
func fitOrthoBox(s *scene.ShadowSettings, box scene.AABB) {
	half := box.Size().Mul(0.5)
	s.Left, s.Right = -half.X(), half.X()
	s.Bottom, s.Top = -half.Y(), half.Y()
	s.Near = 0.1
	far := box.Size().Len()
	if far < 1 {
		far = 1
	}
	s.Far = far
}

// clampPow2 floors v to a power of two and clamps it into [lo, hi]; lo and
// hi are assumed powers of two.
func clampPow2(v, lo, hi int) int {
	if v <= lo {
		return lo
	}
	p := lo
	for p*2 <= v && p*2 <= hi {
		p *= 2
	}
	return p
}

func anyCaster(group []*scene.Node) bool {
	for _, n := range group {
		if n.Mesh.CastShadow {
			return true
		}
	}
	return false
}

func anyReceiver(group []*scene.Node) bool {
	for _, n := range group {
		if n.Mesh.ReceiveShadow {
			return true
		}
	}
	return false
}
