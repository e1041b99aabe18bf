package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Geometry holds mesh vertex data in flat attribute arrays: positions,
// normals and colors as xyz triples, UVs as xy pairs. An empty Indices slice
// means the triangle list is implicit in vertex order (non-indexed).
type Geometry struct {
	ID   uuid.UUID
	Name string

	Positions []float32
	Normals   []float32
	Colors    []float32
	UVs       []float32
	Indices   []uint32

	bounds      AABB
	boundsValid bool
}

// NewGeometry returns an empty geometry with a fresh identity.
func NewGeometry(name string) *Geometry {
	return &Geometry{ID: uuid.New(), Name: name}
}

// VertexCount returns the number of vertices in the position attribute.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// FaceCount returns the number of triangles.
func (g *Geometry) FaceCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return g.VertexCount() / 3
}

// Indexed reports whether the geometry carries an explicit index buffer.
func (g *Geometry) Indexed() bool {
	return len(g.Indices) > 0
}

// Position returns vertex i's position.
func (g *Geometry) Position(i int) mgl32.Vec3 {
	return mgl32.Vec3{g.Positions[i*3], g.Positions[i*3+1], g.Positions[i*3+2]}
}

// SetPosition overwrites vertex i's position without touching cached bounds;
// call InvalidateBounds after a batch of edits.
func (g *Geometry) SetPosition(i int, p mgl32.Vec3) {
	g.Positions[i*3] = p.X()
	g.Positions[i*3+1] = p.Y()
	g.Positions[i*3+2] = p.Z()
}

// Bounds returns the local-space AABB of the position attribute, computing
// and caching it on first use.
func (g *Geometry) Bounds() AABB {
	if !g.boundsValid {
		b := EmptyAABB()
		for i := 0; i+2 < len(g.Positions); i += 3 {
			b = b.Extend(mgl32.Vec3{g.Positions[i], g.Positions[i+1], g.Positions[i+2]})
		}
		g.bounds = b
		g.boundsValid = true
	}
	return g.bounds
}

// InvalidateBounds drops the cached AABB after vertex edits.
func (g *Geometry) InvalidateBounds() {
	g.boundsValid = false
}

// Clone deep-copies the geometry under a fresh identity.
func (g *Geometry) Clone() *Geometry {
	out := &Geometry{
		ID:   uuid.New(),
		Name: g.Name,
	}
	out.Positions = append([]float32(nil), g.Positions...)
	out.Normals = append([]float32(nil), g.Normals...)
	out.Colors = append([]float32(nil), g.Colors...)
	out.UVs = append([]float32(nil), g.UVs...)
	out.Indices = append([]uint32(nil), g.Indices...)
	return out
}
