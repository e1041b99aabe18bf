package lod

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/timeutil"
)

func meshModel(name string, g *scene.Geometry, m *scene.Material) *scene.Node {
	root := scene.NewGroup(name)
	root.Add(scene.NewMeshNode(name+"-mesh", scene.NewMesh(g, m)))
	return root
}

func testTexture(name string, w, h int) *scene.Texture {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 31)
	}
	return scene.NewTexture(name, img)
}

func TestCompressModelHalvesVertices(t *testing.T) {
	t.Parallel()

	model := meshModel("statue", gridGeometry(100, 100), scene.NewMaterial("stone"))
	c := NewCompressor(nil)

	res, err := c.CompressModel(model, CompressOptions{TargetRatio: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 10000, res.Vertices.Before)
	assert.InDelta(t, 5000, res.Vertices.After, 250)
	assert.Less(t, res.Faces.After, res.Faces.Before)
	assert.Less(t, res.CompressionRatio, 1.0)
	assert.Greater(t, res.CompressionRatio, 0.0)
	assert.Less(t, res.BytesAfter, res.BytesBefore)

	// The input stays full detail; only the returned clone shrinks.
	require.NotSame(t, model, res.Model)
	assert.Equal(t, 10000, model.Meshes()[0].Mesh.Geometry.VertexCount())
}

func TestCompressModelValidation(t *testing.T) {
	t.Parallel()

	c := NewCompressor(nil)
	model := meshModel("m", gridGeometry(4, 4), nil)

	t.Run("nil model", func(t *testing.T) {
		t.Parallel()
		_, err := c.CompressModel(nil, DefaultCompressOptions())
		assert.Error(t, err)
	})
	for name, ratio := range map[string]float32{
		"zero ratio":     0,
		"negative ratio": -0.5,
		"ratio above 1":  1.5,
	} {
		ratio := ratio
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := c.CompressModel(model, CompressOptions{TargetRatio: ratio})
			assert.Error(t, err)
		})
	}
}

func TestCompressModelDedupsMaterials(t *testing.T) {
	t.Parallel()

	// Two content-identical materials behind distinct pointers.
	makeMat := func(name string) *scene.Material {
		m := scene.NewMaterial(name)
		m.Roughness = 0.7
		m.Metalness = 0.1
		return m
	}
	root := scene.NewGroup("pair")
	root.Add(scene.NewMeshNode("a", scene.NewMesh(gridGeometry(4, 4), makeMat("left"))))
	root.Add(scene.NewMeshNode("b", scene.NewMesh(gridGeometry(4, 4), makeMat("right"))))

	res, err := NewCompressor(nil).CompressModel(root, CompressOptions{TargetRatio: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Materials.Before)
	assert.Equal(t, 1, res.Materials.After)
	meshes := res.Model.Meshes()
	require.Len(t, meshes, 2)
	assert.Same(t, meshes[0].Mesh.Material, meshes[1].Mesh.Material)
}

func TestCompressModelKeepsDistinctMaterials(t *testing.T) {
	t.Parallel()

	a := scene.NewMaterial("rough")
	a.Roughness = 0.9
	b := scene.NewMaterial("smooth")
	b.Roughness = 0.1

	root := scene.NewGroup("pair")
	root.Add(scene.NewMeshNode("a", scene.NewMesh(gridGeometry(4, 4), a)))
	root.Add(scene.NewMeshNode("b", scene.NewMesh(gridGeometry(4, 4), b)))

	res, err := NewCompressor(nil).CompressModel(root, CompressOptions{TargetRatio: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Materials.After)
	meshes := res.Model.Meshes()
	assert.NotSame(t, meshes[0].Mesh.Material, meshes[1].Mesh.Material)
}

func TestCompressModelStripsUnmappedScalars(t *testing.T) {
	t.Parallel()

	t.Run("no maps bound", func(t *testing.T) {
		t.Parallel()
		m := scene.NewMaterial("bare")
		m.NormalScale = 1.5
		m.EmissiveIntensity = 2
		m.AOIntensity = 0.8

		res, err := NewCompressor(nil).CompressModel(
			meshModel("m", gridGeometry(4, 4), m), CompressOptions{TargetRatio: 1})
		require.NoError(t, err)

		out := res.Model.Meshes()[0].Mesh.Material
		assert.Zero(t, out.NormalScale)
		assert.Zero(t, out.EmissiveIntensity)
		assert.Zero(t, out.AOIntensity)
		// The input material keeps its values.
		assert.Equal(t, float32(1.5), m.NormalScale)
	})

	t.Run("normal map bound", func(t *testing.T) {
		t.Parallel()
		m := scene.NewMaterial("bumpy")
		m.NormalScale = 1.5
		m.EmissiveIntensity = 2
		m.SetTexture(scene.MapNormal, testTexture("bump", 64, 64))

		res, err := NewCompressor(nil).CompressModel(
			meshModel("m", gridGeometry(4, 4), m), CompressOptions{TargetRatio: 1})
		require.NoError(t, err)

		out := res.Model.Meshes()[0].Mesh.Material
		assert.Equal(t, float32(1.5), out.NormalScale)
		assert.Zero(t, out.EmissiveIntensity)
	})
}

func TestCompressModelRecompressesTextures(t *testing.T) {
	t.Parallel()

	m := scene.NewMaterial("painted")
	m.SetTexture(scene.MapColor, testTexture("diffuse", 300, 200))

	res, err := NewCompressor(nil).CompressModel(
		meshModel("m", gridGeometry(4, 4), m),
		CompressOptions{
			TargetRatio:         1,
			RecompressTextures:  true,
			TextureMaxDimension: 1024,
			TextureQuality:      0.8,
		})
	require.NoError(t, err)

	out := res.Model.Meshes()[0].Mesh.Material.Texture(scene.MapColor)
	require.NotNil(t, out)
	assert.Equal(t, 256, out.Width())
	assert.Equal(t, 128, out.Height())
	assert.Greater(t, out.EncodedBytes, int64(0))
	assert.Equal(t, float32(0.8), out.Quality)

	assert.Equal(t, 1, res.Textures.Before)
	assert.Equal(t, 1, res.Textures.After)
	// 300×200 RGBA is 240000 bytes; the resized JPEG must beat that.
	assert.Less(t, res.BytesAfter, res.BytesBefore)

	// The source texture is untouched.
	src := m.Texture(scene.MapColor)
	assert.Equal(t, 300, src.Width())
	assert.Zero(t, src.EncodedBytes)
}

func TestCompressModelCapsTextureDimension(t *testing.T) {
	t.Parallel()

	m := scene.NewMaterial("huge")
	m.SetTexture(scene.MapColor, testTexture("diffuse", 4096, 4096))

	res, err := NewCompressor(nil).CompressModel(
		meshModel("m", gridGeometry(4, 4), m),
		CompressOptions{
			TargetRatio:         1,
			RecompressTextures:  true,
			TextureMaxDimension: 512,
			TextureQuality:      0.5,
		})
	require.NoError(t, err)

	out := res.Model.Meshes()[0].Mesh.Material.Texture(scene.MapColor)
	assert.Equal(t, 512, out.Width())
	assert.Equal(t, 512, out.Height())
}

func TestCompressModelSharedGeometrySimplifiedOnce(t *testing.T) {
	t.Parallel()

	g := gridGeometry(20, 20)
	root := scene.NewGroup("shared")
	root.Add(scene.NewMeshNode("a", scene.NewMesh(g, nil)))
	root.Add(scene.NewMeshNode("b", scene.NewMesh(g, nil)))

	res, err := NewCompressor(nil).CompressModel(root, CompressOptions{TargetRatio: 0.5})
	require.NoError(t, err)

	// One distinct geometry in, one out, still shared by both meshes.
	assert.Equal(t, 400, res.Vertices.Before)
	meshes := res.Model.Meshes()
	require.Len(t, meshes, 2)
	assert.Same(t, meshes[0].Mesh.Geometry, meshes[1].Mesh.Geometry)
}

func TestQuantizeAttributeRoundsThroughIntegerScale(t *testing.T) {
	t.Parallel()

	t.Run("two bits snap to thirds", func(t *testing.T) {
		t.Parallel()
		data := []float32{0, 0.1, 0.5, 0.9, 1}
		quantizeAttribute(data, 1, 2)
		want := []float32{0, 0, 2.0 / 3.0, 1, 1}
		for i := range want {
			assert.InDelta(t, want[i], data[i], 1e-6, "index %d", i)
		}
	})

	t.Run("constant channel untouched", func(t *testing.T) {
		t.Parallel()
		data := []float32{3, 3, 3}
		quantizeAttribute(data, 1, 8)
		assert.Equal(t, []float32{3, 3, 3}, data)
	})

	t.Run("channels scale independently", func(t *testing.T) {
		t.Parallel()
		// x spans [0,10], y spans [0,1]; both endpoints must survive
		// exactly.
		data := []float32{0, 0, 10, 1, 5, 0.5}
		quantizeAttribute(data, 2, 12)
		assert.Equal(t, float32(0), data[0])
		assert.Equal(t, float32(10), data[2])
		assert.InDelta(t, 5, data[4], 0.01)
		assert.InDelta(t, 0.5, data[5], 0.001)
	})

	t.Run("empty and zero bits are no-ops", func(t *testing.T) {
		t.Parallel()
		quantizeAttribute(nil, 3, 12)
		data := []float32{1, 2}
		quantizeAttribute(data, 1, 0)
		assert.Equal(t, []float32{1, 2}, data)
	})
}

func TestCompressModelQuantizesWithinChannelRange(t *testing.T) {
	t.Parallel()

	in := gridGeometry(10, 10)
	res, err := NewCompressor(nil).CompressModel(
		meshModel("m", in, nil), CompressOptions{TargetRatio: 1, QuantizationBits: 8})
	require.NoError(t, err)

	out := res.Model.Meshes()[0].Mesh.Geometry
	require.Equal(t, in.VertexCount(), out.VertexCount())
	for i := 0; i < out.VertexCount(); i++ {
		p := out.Position(i)
		assert.GreaterOrEqual(t, p.X(), float32(0))
		assert.LessOrEqual(t, p.X(), float32(9))
		// 8 bits across a 9 unit span keeps every vertex within half a
		// quantization step of where it started.
		assert.InDelta(t, in.Position(i).X(), p.X(), 9.0/255.0)
		assert.InDelta(t, in.Position(i).Z(), p.Z(), 9.0/255.0)
	}
}

// steppedClock reports a fixed Since regardless of wall time.
type steppedClock struct {
	*timeutil.MockClock
	step time.Duration
}

func (c steppedClock) Since(time.Time) time.Duration { return c.step }

func TestCompressModelElapsedUsesClock(t *testing.T) {
	t.Parallel()

	clock := steppedClock{
		MockClock: timeutil.NewMockClock(time.Unix(1756200000, 0)),
		step:      25 * time.Millisecond,
	}
	c := NewCompressor(clock)

	res, err := c.CompressModel(meshModel("m", gridGeometry(4, 4), nil), CompressOptions{TargetRatio: 1})
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, res.Elapsed)
}
