package lod

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"strings"
	"time"

	"github.com/chewxy/math32"
	xdraw "golang.org/x/image/draw"

	"github.com/anchorlight/framekit/internal/scene"
	"github.com/anchorlight/framekit/internal/timeutil"
)

// CompressOptions controls one compression pass over a model.
type CompressOptions struct {
	// TargetRatio is the vertex budget as a fraction of the input count,
	// in (0, 1]. 1 keeps the full mesh.
	TargetRatio float32 `json:"target_ratio"`
	// QuantizationBits rounds every vertex attribute channel through an
	// integer scale of 2^bits-1 steps. 0 disables quantization.
	QuantizationBits int `json:"quantization_bits"`
	// RecompressTextures resizes textures to power-of-two dimensions and
	// re-encodes them as JPEG at TextureQuality.
	RecompressTextures  bool    `json:"recompress_textures"`
	TextureMaxDimension int     `json:"texture_max_dimension"`
	TextureQuality      float32 `json:"texture_quality"`
}

// DefaultCompressOptions mirrors the tuning-file defaults.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		TargetRatio:         0.5,
		QuantizationBits:    12,
		RecompressTextures:  true,
		TextureMaxDimension: 1024,
		TextureQuality:      0.8,
	}
}

// Counts is a before/after pair for one asset dimension.
type Counts struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// CompressionResult reports what one CompressModel call did. Model is the
// compressed clone; the input graph is untouched.
type CompressionResult struct {
	Model *scene.Node `json:"-"`

	Vertices  Counts `json:"vertices"`
	Faces     Counts `json:"faces"`
	Materials Counts `json:"materials"`
	Textures  Counts `json:"textures"`

	BytesBefore int64 `json:"bytes_before"`
	BytesAfter  int64 `json:"bytes_after"`
	// CompressionRatio is BytesAfter / BytesBefore; 1 when the input had
	// no measurable payload.
	CompressionRatio float64       `json:"compression_ratio"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Compressor shrinks scene graphs for lower LOD levels: mesh simplification,
// material dedup, texture re-encoding, and attribute quantization.
type Compressor struct {
	clock timeutil.Clock
}

// NewCompressor returns a compressor. A nil clock selects the real one.
func NewCompressor(clock timeutil.Clock) *Compressor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Compressor{clock: clock}
}

// CompressModel clones model and compresses the clone according to opts.
// Shared geometries, materials, and textures stay shared in the output and
// are processed once each.
func (c *Compressor) CompressModel(model *scene.Node, opts CompressOptions) (*CompressionResult, error) {
	if model == nil {
		return nil, errors.New("lod: compress nil model")
	}
	if opts.TargetRatio <= 0 || opts.TargetRatio > 1 {
		return nil, fmt.Errorf("lod: target ratio %g outside (0, 1]", opts.TargetRatio)
	}
	start := c.clock.Now()

	clone := model.Clone()
	res := &CompressionResult{Model: clone}

	geos := distinctGeometries(clone)
	mats := distinctMaterials(clone)
	texs := distinctTextures(mats)

	for _, g := range geos {
		res.Vertices.Before += g.VertexCount()
		res.Faces.Before += g.FaceCount()
		res.BytesBefore += geometryBytes(g)
	}
	res.Materials.Before = len(mats)
	res.Textures.Before = len(texs)
	for _, t := range texs {
		res.BytesBefore += textureBytes(t)
	}

	if opts.TargetRatio < 1 {
		simplified := make(map[*scene.Geometry]*scene.Geometry, len(geos))
		for _, g := range geos {
			simplified[g] = SimplifyGeometry(g, opts.TargetRatio)
		}
		for _, n := range clone.Meshes() {
			if out, ok := simplified[n.Mesh.Geometry]; ok {
				n.Mesh.Geometry = out
			}
		}
		geos = distinctGeometries(clone)
	}

	dedupMaterials(clone, mats)
	mats = distinctMaterials(clone)
	texs = distinctTextures(mats)

	if opts.RecompressTextures {
		for _, t := range texs {
			if err := recompressTexture(t, opts.TextureMaxDimension, opts.TextureQuality); err != nil {
				return nil, fmt.Errorf("lod: recompress texture %q: %w", t.Name, err)
			}
		}
	}

	if opts.QuantizationBits > 0 {
		for _, g := range geos {
			quantizeAttribute(g.Positions, 3, opts.QuantizationBits)
			quantizeAttribute(g.Normals, 3, opts.QuantizationBits)
			quantizeAttribute(g.Colors, 3, opts.QuantizationBits)
			quantizeAttribute(g.UVs, 2, opts.QuantizationBits)
			g.InvalidateBounds()
		}
	}

	for _, g := range geos {
		res.Vertices.After += g.VertexCount()
		res.Faces.After += g.FaceCount()
		res.BytesAfter += geometryBytes(g)
	}
	res.Materials.After = len(mats)
	res.Textures.After = len(texs)
	for _, t := range texs {
		res.BytesAfter += textureBytes(t)
	}

	if res.BytesBefore > 0 {
		res.CompressionRatio = float64(res.BytesAfter) / float64(res.BytesBefore)
	} else {
		res.CompressionRatio = 1
	}
	res.Elapsed = c.clock.Since(start)
	return res, nil
}

// distinctGeometries returns each geometry under root once, in walk order.
func distinctGeometries(root *scene.Node) []*scene.Geometry {
	var out []*scene.Geometry
	seen := make(map[*scene.Geometry]struct{})
	for _, n := range root.Meshes() {
		g := n.Mesh.Geometry
		if g == nil {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// distinctMaterials returns each material under root once, in walk order.
func distinctMaterials(root *scene.Node) []*scene.Material {
	var out []*scene.Material
	seen := make(map[*scene.Material]struct{})
	for _, n := range root.Meshes() {
		m := n.Mesh.Material
		if m == nil {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func distinctTextures(mats []*scene.Material) []*scene.Texture {
	var out []*scene.Texture
	seen := make(map[*scene.Texture]struct{})
	for _, m := range mats {
		for _, t := range m.Textures {
			if t == nil {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// dedupMaterials strips texture-dependent scalars whose map is absent, then
// re-points meshes whose materials ended up content-identical at the first
// such material seen.
func dedupMaterials(root *scene.Node, mats []*scene.Material) {
	for _, m := range mats {
		if m.Texture(scene.MapNormal) == nil {
			m.NormalScale = 0
		}
		if m.Texture(scene.MapEmissive) == nil {
			m.EmissiveIntensity = 0
		}
		if m.Texture(scene.MapAO) == nil {
			m.AOIntensity = 0
		}
	}

	canonical := make(map[string]*scene.Material, len(mats))
	replace := make(map[*scene.Material]*scene.Material, len(mats))
	for _, m := range mats {
		key := materialKey(m)
		if first, ok := canonical[key]; ok {
			replace[m] = first
		} else {
			canonical[key] = m
		}
	}
	if len(replace) == 0 {
		return
	}
	for _, n := range root.Meshes() {
		if first, ok := replace[n.Mesh.Material]; ok {
			n.Mesh.Material = first
		}
	}
}

// materialKey folds every render-relevant material parameter plus the
// identity of each bound texture into a comparable string.
func materialKey(m *scene.Material) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v|%g|%g|%g|%g|%g|%t|%t|%g",
		m.Color, m.Metalness, m.Roughness,
		m.NormalScale, m.EmissiveIntensity, m.AOIntensity,
		m.DoubleSided, m.Transparent, m.Opacity)
	slots := make([]string, 0, len(m.Textures))
	for slot, tex := range m.Textures {
		if tex == nil {
			continue
		}
		slots = append(slots, string(slot)+":"+tex.ID.String())
	}
	sort.Strings(slots)
	for _, s := range slots {
		sb.WriteByte('|')
		sb.WriteString(s)
	}
	return sb.String()
}

// recompressTexture floors each dimension to a power of two capped at
// maxDim, rescales when that changed anything, and re-encodes as JPEG.
func recompressTexture(t *scene.Texture, maxDim int, quality float32) error {
	if t.Image == nil {
		return nil
	}
	w, h := t.Width(), t.Height()
	nw, nh := floorPow2Capped(w, maxDim), floorPow2Capped(h, maxDim)
	if nw != w || nh != h {
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), t.Image, t.Image.Bounds(), xdraw.Over, nil)
		t.Image = dst
	}

	q := int(quality * 100)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, t.Image, &jpeg.Options{Quality: q}); err != nil {
		return err
	}
	t.EncodedBytes = int64(buf.Len())
	t.Quality = quality
	return nil
}

func floorPow2Capped(v, max int) int {
	if max < 1 {
		max = 1
	}
	if v > max {
		v = max
	}
	p := 1
	for p*2 <= v {
		p *= 2
	}
	return p
}

// quantizeAttribute rounds each channel of data through an integer scale of
// 2^bits-1 steps spanning that channel's [min, max] range. Empty slices are
// skipped, so absent attributes quantize to a no-op.
func quantizeAttribute(data []float32, stride, bits int) {
	if len(data) == 0 || stride <= 0 || bits <= 0 {
		return
	}
	steps := float32(uint64(1)<<uint(bits) - 1)
	for c := 0; c < stride; c++ {
		lo, hi := math32.Inf(1), math32.Inf(-1)
		for i := c; i < len(data); i += stride {
			if data[i] < lo {
				lo = data[i]
			}
			if data[i] > hi {
				hi = data[i]
			}
		}
		span := hi - lo
		if span <= 0 || math32.IsInf(span, 0) {
			continue
		}
		for i := c; i < len(data); i += stride {
			q := math32.Round((data[i] - lo) / span * steps)
			data[i] = lo + q/steps*span
		}
	}
}

// geometryBytes estimates the GPU-resident size of a geometry.
func geometryBytes(g *scene.Geometry) int64 {
	floats := len(g.Positions) + len(g.Normals) + len(g.Colors) + len(g.UVs)
	return int64(floats)*4 + int64(len(g.Indices))*4
}

// textureBytes prefers the encoded size when one is known and falls back to
// the raw RGBA footprint.
func textureBytes(t *scene.Texture) int64 {
	if t.EncodedBytes > 0 {
		return t.EncodedBytes
	}
	return int64(t.Width()) * int64(t.Height()) * 4
}
