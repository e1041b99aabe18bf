package lod

import (
	"container/heap"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene"
)

// SimplifyGeometry reduces g toward targetRatio × VertexCount() vertices by
// collapsing the shortest live edge first. The result is a fresh indexed
// geometry; g itself is never modified. Input is welded on exact position
// first, so non-indexed triangle soups gain shared edges (and ratios ≥ 1
// return the welded mesh unchanged). The result never drops below one
// triangle no matter how small the ratio.
func SimplifyGeometry(g *scene.Geometry, targetRatio float32) *scene.Geometry {
	mesh := newEditMesh(g)
	if targetRatio < 1 {
		target := int(targetRatio * float32(len(mesh.verts)))
		if target < 3 {
			target = 3
		}
		mesh.collapseTo(target)
	}
	return mesh.build(g.Name)
}

// editVertex carries the working attribute set for one welded vertex.
type editVertex struct {
	pos    mgl32.Vec3
	normal mgl32.Vec3
	color  mgl32.Vec3
	uv     mgl32.Vec2
}

// editMesh is the collapse working state: welded vertices, faces over
// welded vertex ids, a union-find forest mapping collapsed vertices to
// their survivors, and per-vertex face incidence lists.
type editMesh struct {
	verts     []editVertex
	faces     [][3]uint32
	faceLive  []bool
	incident  [][]int32 // face indices touching each root vertex
	parent    []uint32  // union-find, parent[i] == i for live roots
	liveVerts int
	liveFaces int

	hasNormals bool
	hasColors  bool
	hasUVs     bool
}

func newEditMesh(g *scene.Geometry) *editMesh {
	count := g.VertexCount()
	m := &editMesh{
		hasNormals: len(g.Normals) == count*3,
		hasColors:  len(g.Colors) == count*3,
		hasUVs:     len(g.UVs) == count*2,
	}

	// Weld exact duplicate positions so non-indexed triangle soups become
	// a connected mesh with shared edges.
	welded := make(map[mgl32.Vec3]uint32, count)
	remap := make([]uint32, count)
	for i := 0; i < count; i++ {
		p := g.Position(i)
		id, ok := welded[p]
		if !ok {
			id = uint32(len(m.verts))
			welded[p] = id
			v := editVertex{pos: p}
			if m.hasNormals {
				v.normal = mgl32.Vec3{g.Normals[i*3], g.Normals[i*3+1], g.Normals[i*3+2]}
			}
			if m.hasColors {
				v.color = mgl32.Vec3{g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2]}
			}
			if m.hasUVs {
				v.uv = mgl32.Vec2{g.UVs[i*2], g.UVs[i*2+1]}
			}
			m.verts = append(m.verts, v)
		}
		remap[i] = id
	}

	if g.Indexed() {
		for i := 0; i+2 < len(g.Indices); i += 3 {
			m.addFace(remap[g.Indices[i]], remap[g.Indices[i+1]], remap[g.Indices[i+2]])
		}
	} else {
		for i := 0; i+2 < count; i += 3 {
			m.addFace(remap[i], remap[i+1], remap[i+2])
		}
	}

	m.parent = make([]uint32, len(m.verts))
	m.incident = make([][]int32, len(m.verts))
	for i := range m.parent {
		m.parent[i] = uint32(i)
	}
	m.faceLive = make([]bool, len(m.faces))
	for fi, f := range m.faces {
		m.faceLive[fi] = true
		for _, v := range f {
			m.incident[v] = append(m.incident[v], int32(fi))
		}
	}
	m.liveVerts = len(m.verts)
	m.liveFaces = len(m.faces)
	return m
}

func (m *editMesh) addFace(a, b, c uint32) {
	if a == b || b == c || a == c {
		return
	}
	m.faces = append(m.faces, [3]uint32{a, b, c})
}

func (m *editMesh) find(v uint32) uint32 {
	for m.parent[v] != v {
		m.parent[v] = m.parent[m.parent[v]]
		v = m.parent[v]
	}
	return v
}

func (m *editMesh) edgeCost(a, b uint32) float32 {
	return m.verts[a].pos.Sub(m.verts[b].pos).LenSqr()
}

// collapseTo merges shortest edges until only target live vertices remain,
// the edge heap drains, or one triangle is left.
func (m *editMesh) collapseTo(target int) {
	h := make(edgeHeap, 0, len(m.faces)*3)
	seen := make(map[[2]uint32]struct{}, len(m.faces)*3)
	for _, f := range m.faces {
		for _, pair := range [3][2]uint32{{f[0], f[1]}, {f[1], f[2]}, {f[0], f[2]}} {
			a, b := pair[0], pair[1]
			if a > b {
				a, b = b, a
			}
			if _, ok := seen[[2]uint32{a, b}]; ok {
				continue
			}
			seen[[2]uint32{a, b}] = struct{}{}
			h = append(h, &edge{a: a, b: b, cost: m.edgeCost(a, b)})
		}
	}
	heap.Init(&h)

	for m.liveVerts > target && m.liveFaces > 1 && h.Len() > 0 {
		e := heap.Pop(&h).(*edge)
		a, b := m.find(e.a), m.find(e.b)
		if a == b {
			continue // already merged through another path
		}
		// Endpoints may have moved since this entry was pushed. When the
		// refreshed cost no longer beats the heap top, requeue instead of
		// collapsing out of order.
		cost := m.edgeCost(a, b)
		if h.Len() > 0 && cost > h[0].cost {
			e.a, e.b, e.cost = a, b, cost
			heap.Push(&h, e)
			continue
		}
		if m.liveFaces-m.collapseKills(a, b) < 1 {
			continue // would erase the last triangle
		}

		m.collapse(a, b)

		// The survivor moved; refresh its surviving edges.
		pushed := make(map[uint32]struct{}, 8)
		for _, fi := range m.incident[a] {
			if !m.faceLive[fi] {
				continue
			}
			for _, v := range m.faces[fi] {
				rv := m.find(v)
				if rv == a {
					continue
				}
				if _, ok := pushed[rv]; ok {
					continue
				}
				pushed[rv] = struct{}{}
				heap.Push(&h, &edge{a: a, b: rv, cost: m.edgeCost(a, rv)})
			}
		}
	}
}

// collapseKills counts the live faces that would degenerate if b merged
// into a. Incidence lists can mention a face more than once after earlier
// merges, so faces are deduplicated here.
func (m *editMesh) collapseKills(a, b uint32) int {
	kills := 0
	counted := make(map[int32]struct{}, len(m.incident[b]))
	for _, fi := range m.incident[b] {
		if !m.faceLive[fi] {
			continue
		}
		if _, ok := counted[fi]; ok {
			continue
		}
		counted[fi] = struct{}{}
		f := m.faces[fi]
		ra, rb, rc := m.find(f[0]), m.find(f[1]), m.find(f[2])
		if ra == b {
			ra = a
		}
		if rb == b {
			rb = a
		}
		if rc == b {
			rc = a
		}
		if ra == rb || rb == rc || ra == rc {
			kills++
		}
	}
	return kills
}

// collapse merges b into a, placing the survivor at the edge midpoint with
// averaged attributes, and retires faces the merge degenerates.
func (m *editMesh) collapse(a, b uint32) {
	va, vb := &m.verts[a], &m.verts[b]
	va.pos = va.pos.Add(vb.pos).Mul(0.5)
	if m.hasNormals {
		n := va.normal.Add(vb.normal)
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		va.normal = n
	}
	if m.hasColors {
		va.color = va.color.Add(vb.color).Mul(0.5)
	}
	if m.hasUVs {
		va.uv = va.uv.Add(vb.uv).Mul(0.5)
	}
	m.parent[b] = a
	m.liveVerts--

	for _, fi := range m.incident[b] {
		if !m.faceLive[fi] {
			continue
		}
		f := m.faces[fi]
		ra, rb, rc := m.find(f[0]), m.find(f[1]), m.find(f[2])
		if ra == rb || rb == rc || ra == rc {
			m.faceLive[fi] = false
			m.liveFaces--
		}
	}
	m.incident[a] = append(m.incident[a], m.incident[b]...)
	m.incident[b] = nil
}

// build compacts live vertices and surviving faces into a fresh geometry.
func (m *editMesh) build(name string) *scene.Geometry {
	out := scene.NewGeometry(name)

	compact := make(map[uint32]uint32, m.liveVerts)
	for i := range m.verts {
		id := uint32(i)
		if m.find(id) != id {
			continue
		}
		compact[id] = uint32(len(compact))
		v := m.verts[i]
		out.Positions = append(out.Positions, v.pos.X(), v.pos.Y(), v.pos.Z())
		if m.hasNormals {
			out.Normals = append(out.Normals, v.normal.X(), v.normal.Y(), v.normal.Z())
		}
		if m.hasColors {
			out.Colors = append(out.Colors, v.color.X(), v.color.Y(), v.color.Z())
		}
		if m.hasUVs {
			out.UVs = append(out.UVs, v.uv.X(), v.uv.Y())
		}
	}

	for fi, f := range m.faces {
		if !m.faceLive[fi] {
			continue
		}
		a, b, c := m.find(f[0]), m.find(f[1]), m.find(f[2])
		if a == b || b == c || a == c {
			continue
		}
		out.Indices = append(out.Indices, compact[a], compact[b], compact[c])
	}
	return out
}

type edge struct {
	a, b uint32
	cost float32
}

type edgeHeap []*edge

func (h edgeHeap) Len() int            { return len(h) }
func (h edgeHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h edgeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *edgeHeap) Push(x interface{}) { *h = append(*h, x.(*edge)) }
func (h *edgeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
