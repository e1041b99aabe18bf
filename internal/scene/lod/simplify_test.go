package lod

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorlight/framekit/internal/scene"
)

// gridGeometry builds an indexed nx×ny plane with normals and UVs.
func gridGeometry(nx, ny int) *scene.Geometry {
	g := scene.NewGeometry(fmt.Sprintf("grid-%dx%d", nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			g.Positions = append(g.Positions, float32(x), 0, float32(y))
			g.Normals = append(g.Normals, 0, 1, 0)
			g.UVs = append(g.UVs, float32(x)/float32(nx-1), float32(y)/float32(ny-1))
		}
	}
	w := uint32(nx)
	for y := 0; y < ny-1; y++ {
		for x := 0; x < nx-1; x++ {
			i := uint32(y*nx + x)
			g.Indices = append(g.Indices, i, i+1, i+w)
			g.Indices = append(g.Indices, i+1, i+w+1, i+w)
		}
	}
	return g
}

// requireValidMesh checks structural sanity: whole triangles, in-range
// indices, and attribute arrays sized to the vertex count.
func requireValidMesh(t *testing.T, g *scene.Geometry) {
	t.Helper()
	count := g.VertexCount()
	require.Zero(t, len(g.Indices)%3)
	for _, idx := range g.Indices {
		require.Less(t, int(idx), count)
	}
	if len(g.Normals) > 0 {
		require.Len(t, g.Normals, count*3)
	}
	if len(g.Colors) > 0 {
		require.Len(t, g.Colors, count*3)
	}
	if len(g.UVs) > 0 {
		require.Len(t, g.UVs, count*2)
	}
}

func TestSimplifyHalvesGridVertices(t *testing.T) {
	t.Parallel()

	in := gridGeometry(100, 100)
	require.Equal(t, 10000, in.VertexCount())

	out := SimplifyGeometry(in, 0.5)

	assert.InDelta(t, 5000, out.VertexCount(), 250)
	assert.Greater(t, out.FaceCount(), 0)
	assert.Less(t, out.FaceCount(), in.FaceCount())
	requireValidMesh(t, out)

	// Collapsed vertices sit at edge midpoints, so the footprint cannot
	// grow past the input bounds.
	bounds := out.Bounds()
	assert.GreaterOrEqual(t, bounds.Min.X(), float32(0))
	assert.LessOrEqual(t, bounds.Max.X(), float32(99))
	assert.GreaterOrEqual(t, bounds.Min.Z(), float32(0))
	assert.LessOrEqual(t, bounds.Max.Z(), float32(99))
}

func TestSimplifyInputUntouched(t *testing.T) {
	t.Parallel()

	in := gridGeometry(20, 20)
	positions := append([]float32(nil), in.Positions...)
	indices := append([]uint32(nil), in.Indices...)

	SimplifyGeometry(in, 0.3)

	assert.Equal(t, positions, in.Positions)
	assert.Equal(t, indices, in.Indices)
}

func TestSimplifyNeverDropsBelowOneTriangle(t *testing.T) {
	t.Parallel()

	cases := map[string]*scene.Geometry{
		"single triangle": func() *scene.Geometry {
			g := scene.NewGeometry("tri")
			g.Positions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
			g.Indices = []uint32{0, 1, 2}
			return g
		}(),
		"two triangle strip": func() *scene.Geometry {
			g := scene.NewGeometry("strip")
			g.Positions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0}
			g.Indices = []uint32{0, 1, 2, 1, 3, 2}
			return g
		}(),
		"grid": gridGeometry(5, 5),
	}
	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out := SimplifyGeometry(in, 0.001)
			assert.GreaterOrEqual(t, out.FaceCount(), 1)
			requireValidMesh(t, out)
		})
	}
}

func TestSimplifyWeldsNonIndexedSoup(t *testing.T) {
	t.Parallel()

	// Two triangles sharing an edge, written out as six unindexed
	// vertices. Welding should find the four unique corners.
	g := scene.NewGeometry("soup")
	g.Positions = []float32{
		0, 0, 0, 1, 0, 0, 0, 1, 0,
		1, 0, 0, 1, 1, 0, 0, 1, 0,
	}

	out := SimplifyGeometry(g, 1)

	assert.Equal(t, 4, out.VertexCount())
	assert.True(t, out.Indexed())
	assert.Equal(t, 2, out.FaceCount())
	requireValidMesh(t, out)
}

func TestSimplifyFullRatioKeepsIndexedMesh(t *testing.T) {
	t.Parallel()

	in := gridGeometry(10, 10)
	out := SimplifyGeometry(in, 1)

	assert.Equal(t, in.VertexCount(), out.VertexCount())
	assert.Equal(t, in.FaceCount(), out.FaceCount())
	assert.Equal(t, in.Positions, out.Positions)
	assert.NotSame(t, in, out)
}

func TestSimplifyCarriesAttributes(t *testing.T) {
	t.Parallel()

	in := gridGeometry(15, 15)
	in.Colors = make([]float32, in.VertexCount()*3)
	for i := range in.Colors {
		in.Colors[i] = 0.5
	}

	out := SimplifyGeometry(in, 0.4)

	requireValidMesh(t, out)
	require.NotEmpty(t, out.Normals)
	require.NotEmpty(t, out.UVs)
	require.NotEmpty(t, out.Colors)
	// The grid is flat, so averaged normals stay unit +Y and averaged
	// colors stay at the constant input value.
	for i := 0; i < out.VertexCount(); i++ {
		assert.InDelta(t, 0, out.Normals[i*3], 1e-6)
		assert.InDelta(t, 1, out.Normals[i*3+1], 1e-6)
		assert.InDelta(t, 0.5, out.Colors[i*3], 1e-6)
	}
}
