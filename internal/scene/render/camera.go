package render

import "github.com/go-gl/mathgl/mgl32"

// Camera holds the projection matrix and the camera-to-world transform the
// view frustum is derived from. World is the camera's placement in the
// scene, not the view matrix; Optimize inverts it each frame.
type Camera struct {
	Projection mgl32.Mat4
	World      mgl32.Mat4
}

// NewPerspectiveCamera returns a camera at the origin looking down -Z.
func NewPerspectiveCamera(fovYDegrees, aspect, near, far float32) *Camera {
	return &Camera{
		Projection: mgl32.Perspective(mgl32.DegToRad(fovYDegrees), aspect, near, far),
		World:      mgl32.Ident4(),
	}
}

// LookAt places the camera at eye facing center.
func (c *Camera) LookAt(eye, center, up mgl32.Vec3) {
	c.World = mgl32.LookAtV(eye, center, up).Inv()
}

// Position returns the camera's world-space position.
func (c *Camera) Position() mgl32.Vec3 {
	return c.World.Col(3).Vec3()
}

// ViewProjection returns Projection × World⁻¹.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.World.Inv())
}
