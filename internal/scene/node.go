// Package scene defines the shared in-memory scene data model: a
// tagged-variant node tree (group/mesh/light), geometry, material and
// texture value types, axis-aligned bounds and rigid transforms. The
// optimization components operate on these types; asset decoding and GPU
// submission live outside this module.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// NodeKind discriminates the payload a Node carries. Dispatch is on Kind,
// never on dynamic type checks.
type NodeKind uint8

const (
	KindGroup NodeKind = iota
	KindMesh
	KindLight
)

func (k NodeKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	default:
		return "unknown"
	}
}

// Node is one element of the scene graph. Exactly one payload pointer is
// non-nil for KindMesh/KindLight; KindGroup carries none.
type Node struct {
	Name      string
	Kind      NodeKind
	Transform Transform
	Visible   bool
	Children  []*Node

	Mesh  *Mesh  // set when Kind == KindMesh
	Light *Light // set when Kind == KindLight
}

// NewGroup returns a visible group node with an identity transform.
func NewGroup(name string) *Node {
	return &Node{
		Name:      name,
		Kind:      KindGroup,
		Transform: IdentityTransform(),
		Visible:   true,
	}
}

// NewMeshNode returns a visible mesh node with an identity transform.
func NewMeshNode(name string, mesh *Mesh) *Node {
	return &Node{
		Name:      name,
		Kind:      KindMesh,
		Transform: IdentityTransform(),
		Visible:   true,
		Mesh:      mesh,
	}
}

// NewLightNode returns a visible light node with an identity transform.
func NewLightNode(name string, light *Light) *Node {
	return &Node{
		Name:      name,
		Kind:      KindLight,
		Transform: IdentityTransform(),
		Visible:   true,
		Light:     light,
	}
}

// Add appends children and returns the node for chaining.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Remove detaches the first occurrence of child and reports whether it was
// present.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// Walk visits the subtree rooted at n in preorder, passing each node with
// its accumulated world matrix. Returning false from visit skips that
// node's children.
func (n *Node) Walk(visit func(node *Node, world mgl32.Mat4) bool) {
	n.walk(mgl32.Ident4(), visit)
}

func (n *Node) walk(parent mgl32.Mat4, visit func(*Node, mgl32.Mat4) bool) {
	world := parent.Mul4(n.Transform.Matrix())
	if !visit(n, world) {
		return
	}
	for _, c := range n.Children {
		c.walk(world, visit)
	}
}

// Meshes collects every mesh node in the subtree, preorder.
func (n *Node) Meshes() []*Node {
	var out []*Node
	n.Walk(func(node *Node, _ mgl32.Mat4) bool {
		if node.Kind == KindMesh && node.Mesh != nil {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Lights collects every light node in the subtree, preorder.
func (n *Node) Lights() []*Node {
	var out []*Node
	n.Walk(func(node *Node, _ mgl32.Mat4) bool {
		if node.Kind == KindLight && node.Light != nil {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Clone deep-copies the subtree. Geometries, materials and textures shared
// between meshes in the source stay shared between the corresponding clones,
// so later per-copy edits (simplification, material dedup) cannot leak back
// into the original graph.
func (n *Node) Clone() *Node {
	memo := &cloneMemo{
		geometries: make(map[*Geometry]*Geometry),
		materials:  make(map[*Material]*Material),
		textures:   make(map[*Texture]*Texture),
	}
	return n.clone(memo)
}

type cloneMemo struct {
	geometries map[*Geometry]*Geometry
	materials  map[*Material]*Material
	textures   map[*Texture]*Texture
}

func (n *Node) clone(memo *cloneMemo) *Node {
	out := &Node{
		Name:      n.Name,
		Kind:      n.Kind,
		Transform: n.Transform,
		Visible:   n.Visible,
	}
	if n.Mesh != nil {
		out.Mesh = n.Mesh.clone(memo)
	}
	if n.Light != nil {
		l := *n.Light
		if n.Light.Shadow != nil {
			s := *n.Light.Shadow
			l.Shadow = &s
		}
		out.Light = &l
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.clone(memo)
		}
	}
	return out
}

// Mesh is the renderable payload of a KindMesh node. A non-nil
// InstanceMatrices slice marks the mesh as instanced: it is drawn once per
// matrix instead of once per node.
type Mesh struct {
	Geometry *Geometry
	Material *Material

	CastShadow    bool
	ReceiveShadow bool
	FrustumCulled bool // when false the mesh bypasses frustum tests

	InstanceMatrices []mgl32.Mat4
}

// NewMesh returns a mesh with frustum culling enabled.
func NewMesh(g *Geometry, m *Material) *Mesh {
	return &Mesh{Geometry: g, Material: m, FrustumCulled: true}
}

func (m *Mesh) clone(memo *cloneMemo) *Mesh {
	out := &Mesh{
		CastShadow:    m.CastShadow,
		ReceiveShadow: m.ReceiveShadow,
		FrustumCulled: m.FrustumCulled,
	}
	if m.Geometry != nil {
		g, ok := memo.geometries[m.Geometry]
		if !ok {
			g = m.Geometry.Clone()
			memo.geometries[m.Geometry] = g
		}
		out.Geometry = g
	}
	if m.Material != nil {
		mat, ok := memo.materials[m.Material]
		if !ok {
			mat = m.Material.cloneWith(memo)
			memo.materials[m.Material] = mat
		}
		out.Material = mat
	}
	if len(m.InstanceMatrices) > 0 {
		out.InstanceMatrices = make([]mgl32.Mat4, len(m.InstanceMatrices))
		copy(out.InstanceMatrices, m.InstanceMatrices)
	}
	return out
}

// LightType enumerates the supported light sources.
type LightType uint8

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	default:
		return "unknown"
	}
}

// Light is the payload of a KindLight node.
type Light struct {
	Type       LightType
	Color      mgl32.Vec3
	Intensity  float32
	CastShadow bool
	Shadow     *ShadowSettings // nil when the light casts no shadows
}

// ShadowSettings holds the shadow-map parameters the render optimizer tunes.
// The ortho box fields apply to directional lights only.
type ShadowSettings struct {
	MapSize int // square shadow map edge, power of two
	Bias    float32

	// Orthographic shadow camera box (directional lights).
	Left, Right float32
	Top, Bottom float32
	Near, Far   float32
}
