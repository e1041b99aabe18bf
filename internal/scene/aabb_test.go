package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestEmptyAABB(t *testing.T) {
	t.Parallel()

	b := EmptyAABB()
	assert.True(t, b.IsEmpty())

	// Extending the empty box by one point collapses it onto that point.
	p := mgl32.Vec3{1, -2, 3}
	b = b.Extend(p)
	assert.False(t, b.IsEmpty())
	assert.Equal(t, p, b.Min)
	assert.Equal(t, p, b.Max)
}

func TestAABBFromPoints(t *testing.T) {
	t.Parallel()

	b := AABBFromPoints(
		mgl32.Vec3{1, 5, -3},
		mgl32.Vec3{-2, 0, 4},
		mgl32.Vec3{0, 1, 0},
	)

	assert.Equal(t, mgl32.Vec3{-2, 0, -3}, b.Min)
	assert.Equal(t, mgl32.Vec3{1, 5, 4}, b.Max)
	assert.Equal(t, mgl32.Vec3{-0.5, 2.5, 0.5}, b.Center())
	assert.Equal(t, mgl32.Vec3{3, 5, 7}, b.Size())
}

func TestAABBUnion(t *testing.T) {
	t.Parallel()

	a := AABBFromPoints(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	b := AABBFromPoints(mgl32.Vec3{2, -1, 0}, mgl32.Vec3{3, 0, 5})

	u := a.Union(b)
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, u.Min)
	assert.Equal(t, mgl32.Vec3{3, 1, 5}, u.Max)

	// Empty is the identity element on either side.
	assert.Equal(t, a, a.Union(EmptyAABB()))
	assert.Equal(t, a, EmptyAABB().Union(a))
}

func TestAABBContainsIntersects(t *testing.T) {
	t.Parallel()

	b := AABBFromPoints(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	assert.True(t, b.Contains(mgl32.Vec3{0, 0, 0}))
	assert.True(t, b.Contains(mgl32.Vec3{1, 1, 1})) // inclusive boundary
	assert.False(t, b.Contains(mgl32.Vec3{1.001, 0, 0}))

	other := AABBFromPoints(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{2, 2, 2})
	assert.True(t, b.Intersects(other))

	far := AABBFromPoints(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{6, 6, 6})
	assert.False(t, b.Intersects(far))
}

func TestAABBTransformedTranslation(t *testing.T) {
	t.Parallel()

	b := AABBFromPoints(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	m := mgl32.Translate3D(10, 0, -5)

	got := b.Transformed(m)
	assert.True(t, got.Min.ApproxEqualThreshold(mgl32.Vec3{9, -1, -6}, 1e-5))
	assert.True(t, got.Max.ApproxEqualThreshold(mgl32.Vec3{11, 1, -4}, 1e-5))
}

func TestAABBTransformedRotationOverApproximates(t *testing.T) {
	t.Parallel()

	// A unit cube rotated 45 deg about Y must still contain the rotated
	// corners; the axis-aligned result grows to sqrt(2) on X/Z.
	b := AABBFromPoints(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	m := mgl32.HomogRotate3DY(mgl32.DegToRad(45))

	got := b.Transformed(m)
	want := float32(1.41421356)
	assert.InDelta(t, -want, got.Min.X(), 1e-4)
	assert.InDelta(t, want, got.Max.X(), 1e-4)
	assert.InDelta(t, -1, got.Min.Y(), 1e-4)
	assert.InDelta(t, 1, got.Max.Y(), 1e-4)
}
