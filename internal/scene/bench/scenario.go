// Package bench runs synthetic scene sessions through the full
// optimization pipeline and summarizes what they cost.
package bench

import (
	"fmt"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/scene"
)

// OcclusionWindow marks a span of frames during which the scripted target
// reports no detection. From is inclusive, To exclusive.
type OcclusionWindow struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Scenario describes one synthetic session: the generated scene, the
// scripted target motion, and how long to run it.
type Scenario struct {
	Name      string  `json:"name"`
	Frames    int     `json:"frames"`
	TargetFPS float64 `json:"target_fps"`

	// GridSize is the edge of the generated mesh grid (GridSize² meshes).
	GridSize int `json:"grid_size"`
	// SharedMaterials is the number of distinct materials cycled across
	// the grid; small values feed the batching and instancing passes.
	SharedMaterials int `json:"shared_materials"`
	// UniqueEvery gives every Nth mesh a private material, defeating
	// batching for those meshes. 0 disables.
	UniqueEvery int `json:"unique_every"`
	// Lights is the number of shadow-casting lights.
	Lights int `json:"lights"`
	// LODModels wraps that many grid meshes in detail-level groups.
	LODModels int `json:"lod_models"`

	// PathRadius is the target's orbit radius in world units.
	PathRadius float32 `json:"path_radius"`
	// OrbitPeriodS is the seconds per full revolution of the target.
	OrbitPeriodS float64 `json:"orbit_period_s"`
	// NoiseStddev is the per-axis Gaussian sensor noise, world units.
	NoiseStddev float32 `json:"noise_stddev"`

	Occlusions []OcclusionWindow `json:"occlusions,omitempty"`
	Seed       int64             `json:"seed"`
}

// Validate rejects scenarios the runner cannot execute.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario needs a name")
	}
	if s.Frames <= 0 {
		return fmt.Errorf("scenario %s: frames must be positive, got %d", s.Name, s.Frames)
	}
	if s.TargetFPS <= 0 {
		return fmt.Errorf("scenario %s: target fps must be positive, got %v", s.Name, s.TargetFPS)
	}
	if s.GridSize <= 0 {
		return fmt.Errorf("scenario %s: grid size must be positive, got %d", s.Name, s.GridSize)
	}
	if s.SharedMaterials <= 0 {
		return fmt.Errorf("scenario %s: shared materials must be positive, got %d", s.Name, s.SharedMaterials)
	}
	if s.OrbitPeriodS <= 0 {
		return fmt.Errorf("scenario %s: orbit period must be positive, got %v", s.Name, s.OrbitPeriodS)
	}
	for i, w := range s.Occlusions {
		if w.To <= w.From {
			return fmt.Errorf("scenario %s: occlusion window %d is empty (%d..%d)", s.Name, i, w.From, w.To)
		}
	}
	return nil
}

// Presets returns the built-in scenarios, mildest first.
func Presets() []Scenario {
	return []Scenario{
		{
			Name:            "orbit",
			Frames:          600,
			TargetFPS:       60,
			GridSize:        8,
			SharedMaterials: 4,
			Lights:          2,
			LODModels:       8,
			PathRadius:      3,
			OrbitPeriodS:    10,
			NoiseStddev:     0.002,
			Seed:            1,
		},
		{
			Name:            "jitter",
			Frames:          600,
			TargetFPS:       60,
			GridSize:        8,
			SharedMaterials: 4,
			Lights:          2,
			LODModels:       8,
			PathRadius:      3,
			OrbitPeriodS:    10,
			NoiseStddev:     0.05,
			Seed:            2,
		},
		{
			Name:            "occlusion",
			Frames:          900,
			TargetFPS:       60,
			GridSize:        8,
			SharedMaterials: 4,
			Lights:          2,
			LODModels:       8,
			PathRadius:      3,
			OrbitPeriodS:    12,
			NoiseStddev:     0.002,
			Occlusions: []OcclusionWindow{
				{From: 200, To: 260},
				{From: 500, To: 620},
			},
			Seed: 3,
		},
		{
			Name:            "stress",
			Frames:          600,
			TargetFPS:       60,
			GridSize:        16,
			SharedMaterials: 6,
			UniqueEvery:     9,
			Lights:          4,
			LODModels:       24,
			PathRadius:      6,
			OrbitPeriodS:    8,
			NoiseStddev:     0.01,
			Seed:            4,
		},
	}
}

// PresetByName looks up a built-in scenario.
func PresetByName(name string) (Scenario, bool) {
	for _, s := range Presets() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// PresetNames lists the built-in scenario names in order.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, len(presets))
	for i, s := range presets {
		names[i] = s.Name
	}
	return names
}

// meshSpacing is the world-unit pitch of the generated grid.
const meshSpacing float32 = 1.5

// BuildScene generates the scenario's scene graph: a centered grid of box
// meshes drawing from a small set of shared geometries and materials, plus
// shadow-casting lights. The small geometry/material sets are what give
// the batching and instancing passes something to merge.
func BuildScene(s Scenario) *scene.Node {
	root := scene.NewGroup("bench-root")

	geoms := []*scene.Geometry{
		boxGeometry("box-s", 0.4),
		boxGeometry("box-m", 0.6),
		boxGeometry("box-l", 0.9),
	}

	mats := make([]*scene.Material, 0, s.SharedMaterials)
	for i := 0; i < s.SharedMaterials; i++ {
		mat := scene.NewMaterial(fmt.Sprintf("shared-%d", i))
		mat.Roughness = 0.2 + 0.6*float32(i)/float32(s.SharedMaterials)
		if i == 0 {
			mat.SetTexture(scene.MapColor, checkerTexture("checker", 64))
		}
		mats = append(mats, mat)
	}

	half := float32(s.GridSize-1) * meshSpacing / 2
	idx := 0
	for i := 0; i < s.GridSize; i++ {
		for j := 0; j < s.GridSize; j++ {
			mat := mats[idx%len(mats)]
			if s.UniqueEvery > 0 && idx%s.UniqueEvery == 0 {
				mat = scene.NewMaterial(fmt.Sprintf("unique-%d", idx))
				mat.Metalness = 0.8
			}

			mesh := scene.NewMesh(geoms[idx%len(geoms)], mat)
			node := scene.NewMeshNode(fmt.Sprintf("grid-%d-%d", i, j), mesh)
			node.Transform.Position = mgl32.Vec3{
				float32(i)*meshSpacing - half,
				0,
				float32(j)*meshSpacing - half,
			}
			root.Children = append(root.Children, node)
			idx++
		}
	}

	for i := 0; i < s.Lights; i++ {
		light := &scene.Light{
			Type:       scene.LightDirectional,
			Color:      mgl32.Vec3{1, 1, 1},
			Intensity:  1 - 0.15*float32(i),
			CastShadow: true,
			Shadow:     &scene.ShadowSettings{MapSize: 1024, Bias: 0.0005},
		}
		node := scene.NewLightNode(fmt.Sprintf("light-%d", i), light)
		node.Transform.Position = mgl32.Vec3{float32(4 * (i + 1)), 6, float32(-3 * i)}
		root.Children = append(root.Children, node)
	}

	return root
}

// boxGeometry builds an 8-corner, 12-triangle box with per-vertex normals
// pointing out of the corners and planar UVs.
func boxGeometry(name string, half float32) *scene.Geometry {
	g := scene.NewGeometry(name)

	corners := [8][3]float32{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	inv := 1 / float32(1.7320508) // corner direction length, √3
	for _, c := range corners {
		g.Positions = append(g.Positions, c[0]*half, c[1]*half, c[2]*half)
		g.Normals = append(g.Normals, c[0]*inv, c[1]*inv, c[2]*inv)
		g.UVs = append(g.UVs, (c[0]+1)/2, (c[1]+1)/2)
	}

	g.Indices = []uint32{
		0, 1, 2, 0, 2, 3, // back
		4, 6, 5, 4, 7, 6, // front
		0, 3, 7, 0, 7, 4, // left
		1, 5, 6, 1, 6, 2, // right
		3, 2, 6, 3, 6, 7, // top
		0, 4, 5, 0, 5, 1, // bottom
	}

	return g
}

// checkerTexture renders a two-tone checkerboard; it exists so texture
// counters and the compressor's resize path see live image data.
func checkerTexture(name string, size int) *scene.Texture {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	dark := color.RGBA{40, 40, 48, 255}
	lite := color.RGBA{220, 220, 228, 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetRGBA(x, y, dark)
			} else {
				img.SetRGBA(x, y, lite)
			}
		}
	}
	return scene.NewTexture(name, img)
}
