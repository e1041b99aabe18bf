package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// MapSlot names a texture binding point on a material.
type MapSlot string

const (
	MapColor     MapSlot = "color"
	MapNormal    MapSlot = "normal"
	MapRoughness MapSlot = "roughness"
	MapMetalness MapSlot = "metalness"
	MapEmissive  MapSlot = "emissive"
	MapAO        MapSlot = "ao"
)

// Material is a PBR-ish surface description. Scalar parameters that only
// matter alongside a texture slot (NormalScale, EmissiveIntensity,
// AOIntensity) are stripped by the compressor when the slot is empty.
type Material struct {
	ID   uuid.UUID
	Name string

	Color     mgl32.Vec4
	Metalness float32
	Roughness float32

	NormalScale       float32
	EmissiveIntensity float32
	AOIntensity       float32

	DoubleSided bool
	Transparent bool
	Opacity     float32

	Textures map[MapSlot]*Texture
}

// NewMaterial returns an opaque white material with a fresh identity.
func NewMaterial(name string) *Material {
	return &Material{
		ID:      uuid.New(),
		Name:    name,
		Color:   mgl32.Vec4{1, 1, 1, 1},
		Opacity: 1,
	}
}

// Texture looks up a slot; nil when unset.
func (m *Material) Texture(slot MapSlot) *Texture {
	if m.Textures == nil {
		return nil
	}
	return m.Textures[slot]
}

// SetTexture binds tex to slot; a nil tex clears the slot.
func (m *Material) SetTexture(slot MapSlot, tex *Texture) {
	if tex == nil {
		delete(m.Textures, slot)
		return
	}
	if m.Textures == nil {
		m.Textures = make(map[MapSlot]*Texture)
	}
	m.Textures[slot] = tex
}

// Clone deep-copies the material under a fresh identity. Textures are
// copied as structs but share the underlying image until a compressor
// replaces it.
func (m *Material) Clone() *Material {
	return m.cloneWith(&cloneMemo{textures: make(map[*Texture]*Texture)})
}

func (m *Material) cloneWith(memo *cloneMemo) *Material {
	out := *m
	out.ID = uuid.New()
	out.Textures = nil
	for slot, tex := range m.Textures {
		t, ok := memo.textures[tex]
		if !ok {
			cp := *tex
			cp.ID = uuid.New()
			t = &cp
			memo.textures[tex] = t
		}
		if out.Textures == nil {
			out.Textures = make(map[MapSlot]*Texture, len(m.Textures))
		}
		out.Textures[slot] = t
	}
	return out
}

// Texture is an in-memory image bound to a material slot. EncodedBytes is
// the estimated size after encoding at Quality; the compressor refreshes it
// when it rescales or re-encodes the image.
type Texture struct {
	ID   uuid.UUID
	Name string

	Image   *image.RGBA
	Quality float32 // encoder quality in (0,1]

	EncodedBytes int64
}

// NewTexture wraps img with a fresh identity at full quality.
func NewTexture(name string, img *image.RGBA) *Texture {
	return &Texture{ID: uuid.New(), Name: name, Image: img, Quality: 1}
}

// Width returns the image width in pixels, 0 for a nil image.
func (t *Texture) Width() int {
	if t.Image == nil {
		return 0
	}
	return t.Image.Bounds().Dx()
}

// Height returns the image height in pixels, 0 for a nil image.
func (t *Texture) Height() int {
	if t.Image == nil {
		return 0
	}
	return t.Image.Bounds().Dy()
}
