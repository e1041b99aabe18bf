package render

import "github.com/anchorlight/framekit/internal/scene"

// OcclusionPolicy runs after frustum culling and decides which of the
// frustum-visible meshes stay visible. The returned slice feeds the
// batching and instancing stages; meshes a policy drops from it must have
// their Visible flag cleared by the policy itself.
type OcclusionPolicy interface {
	Name() string
	Apply(visible []*scene.Node) []*scene.Node
}

// PassthroughOcclusionPolicy marks every frustum-visible mesh visible. True
// occlusion testing (hierarchical depth buffers, hardware queries) is not
// implemented; the stage exists as a named seam so a real policy can slot
// in without touching the optimizer.
type PassthroughOcclusionPolicy struct{}

func (PassthroughOcclusionPolicy) Name() string { return "passthrough" }

func (PassthroughOcclusionPolicy) Apply(visible []*scene.Node) []*scene.Node {
	for _, n := range visible {
		n.Visible = true
	}
	return visible
}
