package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene"
)

// Plane is n·p + d = 0 with the normal pointing into the frustum interior.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// DistanceTo returns the signed distance from p to the plane; negative
// means outside.
func (pl Plane) DistanceTo(p mgl32.Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum is the six view-volume planes, normals unit length and inward.
type Frustum [6]Plane

// Plane indices into a Frustum.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// FrustumFromMatrix extracts the clip planes from a combined
// view-projection matrix (Gribb–Hartmann row method) and normalizes them.
func FrustumFromMatrix(m mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	return Frustum{
		planeFromVec4(r3.Add(r0)), // left
		planeFromVec4(r3.Sub(r0)), // right
		planeFromVec4(r3.Add(r1)), // bottom
		planeFromVec4(r3.Sub(r1)), // top
		planeFromVec4(r3.Add(r2)), // near
		planeFromVec4(r3.Sub(r2)), // far
	}
}

func planeFromVec4(v mgl32.Vec4) Plane {
	n := v.Vec3()
	l := n.Len()
	if l == 0 {
		return Plane{Normal: n, D: v.W()}
	}
	return Plane{Normal: n.Mul(1 / l), D: v.W() / l}
}

// ContainsPoint reports whether p lies inside or on every plane.
func (f Frustum) ContainsPoint(p mgl32.Vec3) bool {
	for _, pl := range f {
		if pl.DistanceTo(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether box touches the frustum. Per plane it
// tests the box corner furthest along the plane normal; a box fully behind
// any plane is rejected. The test is conservative near frustum corners.
func (f Frustum) IntersectsAABB(box scene.AABB) bool {
	for _, pl := range f {
		p := box.Min
		if pl.Normal.X() >= 0 {
			p[0] = box.Max.X()
		}
		if pl.Normal.Y() >= 0 {
			p[1] = box.Max.Y()
		}
		if pl.Normal.Z() >= 0 {
			p[2] = box.Max.Z()
		}
		if pl.DistanceTo(p) < 0 {
			return false
		}
	}
	return true
}
