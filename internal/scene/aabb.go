package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. The zero value is NOT empty; use
// EmptyAABB for an identity element under Union/Extend.
type AABB struct {
	Min, Max mgl32.Vec3
}

// EmptyAABB returns the inverted-infinite box: extending it by any point
// yields that point.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// AABBFromPoints bounds the given points. Empty input returns EmptyAABB.
func AABBFromPoints(pts ...mgl32.Vec3) AABB {
	b := EmptyAABB()
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}

// IsEmpty reports whether the box contains no volume (any max below min).
func (b AABB) IsEmpty() bool {
	return b.Max.X() < b.Min.X() || b.Max.Y() < b.Min.Y() || b.Max.Z() < b.Min.Z()
}

// Extend grows the box to include p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{
			math32.Min(b.Min.X(), p.X()),
			math32.Min(b.Min.Y(), p.Y()),
			math32.Min(b.Min.Z(), p.Z()),
		},
		Max: mgl32.Vec3{
			math32.Max(b.Max.X(), p.X()),
			math32.Max(b.Max.Y(), p.Y()),
			math32.Max(b.Max.Z(), p.Z()),
		},
	}
}

// Union returns the smallest box containing both operands.
func (b AABB) Union(o AABB) AABB {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the box midpoint.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the box extents per axis.
func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside the box (inclusive).
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

// Intersects reports whether the boxes overlap (touching counts).
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y() &&
		b.Min.Z() <= o.Max.Z() && b.Max.Z() >= o.Min.Z()
}

// Transformed returns the axis-aligned bounds of the box under m, computed
// from the eight transformed corners. The result over-approximates the true
// bounds under rotation.
func (b AABB) Transformed(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{
			pick(i&1 == 0, b.Min.X(), b.Max.X()),
			pick(i&2 == 0, b.Min.Y(), b.Max.Y()),
			pick(i&4 == 0, b.Min.Z(), b.Max.Z()),
		}
		out = out.Extend(mgl32.TransformCoordinate(corner, m))
	}
	return out
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
