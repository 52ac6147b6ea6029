package lm

import (
	"fmt"

	"github.com/binzume/lmconv/geom"
)

const (
	EntryTypeGeometry uint32 = 1
	EntryTypeRaw      uint32 = 2

	lgoObjectHeaderSize = 116
	textureNameSizeV0   = 32
	textureNameSize     = 64

	MaxTextureStages = 4
)

type MaterialVersion uint32

const (
	MaterialVersion0       MaterialVersion = 0 // legacy, short texture records
	MaterialVersion1       MaterialVersion = 1
	MaterialVersionCurrent MaterialVersion = 2
)

// FVF bits (D3D flexible vertex format semantics).
const (
	FVFNormal  uint32 = 0x010
	FVFDiffuse uint32 = 0x040

	fvfTexCountShift = 8
	fvfTexCountMask  = 0xF
)

// LMODocument is a decoded LGO/LMO container. A single-object .lgo is
// simply a container with one geometry entry.
type LMODocument struct {
	Version uint32
	Entries []*Entry
}

// Entry is one slot of the container's object table. Geometry entries
// are fully decoded; other entry types are opaque and preserved
// verbatim for round-trip.
type Entry struct {
	Type   uint32
	Object *Object // Type == EntryTypeGeometry
	Raw    []byte  // other types
}

// Object is one geometry object: transform, render control state and
// the optional material/mesh/helper/animation sections.
type Object struct {
	ID         uint32
	ParentID   uint32
	ObjectType uint32
	Local      geom.Matrix4

	RenderFlags uint32
	AlphaRef    uint32
	Detail      uint32
	State       [8]uint8

	// Version is the material/texture-info layout the object was
	// decoded from. Encoding always emits MaterialVersionCurrent.
	Version MaterialVersion
	// legacy field present only in version 0 files
	Legacy uint32

	Materials []*Material
	Mesh      *Mesh
	Helper    *Helper
	Anim      []byte // raw animation blob, byte-for-byte
}

// Material flag bits.
const (
	MaterialFlagSpecular uint32 = 1
	MaterialFlagEmissive uint32 = 2
)

type Material struct {
	Flags        uint32
	Diffuse      [4]float32
	Ambient      [4]float32
	Specular     [4]float32 // valid if MaterialFlagSpecular
	Emissive     [4]float32 // valid if MaterialFlagEmissive
	Power        float32
	Opacity      float32
	Transparency uint32
	Stages       []*TextureStage // up to MaxTextureStages
}

type RenderState struct {
	Op    uint32
	Value uint32
}

type TextureStage struct {
	Texture    string
	TextureRaw []byte
	Format     uint32
	Pool       uint32
	Width      uint32
	Height     uint32
	ColorKey   uint32
	States     [8]RenderState
}

// Subset is a contiguous index range rendered with one material.
type Subset struct {
	Start          uint32
	PrimitiveCount uint32
	VertexCount    uint32
	MinIndex       uint32
}

// Blend holds the per-vertex skinning influences: mesh-local bone
// slots into Mesh.BoneIndexes plus their weights. Unused slots carry
// weight 0.
type Blend struct {
	Bones   [4]uint8
	Weights [4]float32
}

func (b *Blend) Sum() float32 {
	return b.Weights[0] + b.Weights[1] + b.Weights[2] + b.Weights[3]
}

type Mesh struct {
	FVF       uint32
	Positions []geom.Vector3
	Normals   []geom.Vector3   // present if FVF&FVFNormal
	Colors    []uint32         // present if FVF&FVFDiffuse
	TexCoords [][]geom.Vector2 // texcoord sets, count from FVF
	Blends    []Blend          // present when skinned
	Indices   []uint32
	Subsets   []*Subset

	// BoneIndexes maps mesh-local bone slots to skeleton array
	// indices.
	BoneIndexes []uint32
}

func (m *Mesh) TexCoordCount() int {
	return int((m.FVF >> fvfTexCountShift) & fvfTexCountMask)
}

// UpdateFVF recomputes the vertex format bits from the attribute
// slices actually present. Call after adding or dropping attributes.
func (m *Mesh) UpdateFVF() {
	fvf := m.FVF &^ (FVFNormal | FVFDiffuse | uint32(fvfTexCountMask)<<fvfTexCountShift)
	if len(m.Normals) > 0 {
		fvf |= FVFNormal
	}
	if len(m.Colors) > 0 {
		fvf |= FVFDiffuse
	}
	fvf |= uint32(len(m.TexCoords)&fvfTexCountMask) << fvfTexCountShift
	m.FVF = fvf
}

// ValidateSkinning checks the mesh against the skeleton it will be
// paired with: every bone index below boneCount, every blend slot
// below the mesh-local bone table, and every used vertex's weights
// summing to 1 within 1%. Raw decode cannot do this (no skeleton
// context), so it runs at pairing time.
func (m *Mesh) ValidateSkinning(boneCount int) error {
	for _, bi := range m.BoneIndexes {
		if int(bi) >= boneCount {
			return &IndexError{What: "mesh bone", Index: int(bi), Bound: boneCount}
		}
	}
	if len(m.Blends) == 0 {
		return nil
	}
	for vi := range m.Blends {
		b := &m.Blends[vi]
		for s, slot := range b.Bones {
			if b.Weights[s] > 0 && int(slot) >= len(m.BoneIndexes) {
				return &IndexError{What: "blend slot", Index: int(slot), Bound: len(m.BoneIndexes)}
			}
		}
		if sum := b.Sum(); geom.Abs(sum-1) > 0.01 {
			return &InvariantError{Reason: fmt.Sprintf("vertex %d blend weights sum to %f", vi, sum)}
		}
	}
	return nil
}

// ValidateSkinning checks all geometry entries of the container
// against a skeleton's bone count.
func (doc *LMODocument) ValidateSkinning(boneCount int) error {
	for _, e := range doc.Entries {
		if e.Object == nil || e.Object.Mesh == nil {
			continue
		}
		if err := e.Object.Mesh.ValidateSkinning(boneCount); err != nil {
			return err
		}
	}
	return nil
}

// Objects returns the decoded geometry objects in table order.
func (doc *LMODocument) Objects() []*Object {
	var objs []*Object
	for _, e := range doc.Entries {
		if e.Object != nil {
			objs = append(objs, e.Object)
		}
	}
	return objs
}

// Helper type bits.
const (
	HelperTypeDummy  uint32 = 0x01
	HelperTypeBox    uint32 = 0x02
	HelperTypeMesh   uint32 = 0x04
	HelperTypeBBox   uint32 = 0x08
	HelperTypeSphere uint32 = 0x10

	helperTypeKnown = HelperTypeDummy | HelperTypeBox | HelperTypeMesh | HelperTypeBBox | HelperTypeSphere
)

// Helper is the type-bitmask-gated collection of collision and
// attachment primitives. Bits (and bytes) this package does not know
// are preserved in UnknownMask and Tail. A nil slice means the section
// is absent; a non-nil empty slice is encoded as a present section
// with a zero count.
type Helper struct {
	Dummies []*Dummy
	Boxes   []*HelperBox
	Meshes  []*HelperMesh
	BBoxes  []*BoundingBox
	Spheres []*BoundingSphere

	UnknownMask uint32
	Tail        []byte
}

type HelperBox struct {
	ID     uint32
	Local  geom.Matrix4
	Extent geom.Vector3
}

type HelperMesh struct {
	Positions []geom.Vector3
	Faces     [][3]uint32
}

// NewHelperMesh builds a collision mesh from a planar polygon outline,
// triangulating it by ear clipping.
func NewHelperMesh(outline []*geom.Vector3) *HelperMesh {
	hm := &HelperMesh{Positions: make([]geom.Vector3, len(outline))}
	for i, p := range outline {
		hm.Positions[i] = *p
	}
	for _, t := range geom.Triangulate(outline) {
		hm.Faces = append(hm.Faces, [3]uint32{uint32(t[0]), uint32(t[1]), uint32(t[2])})
	}
	return hm
}

type BoundingBox struct {
	Min geom.Vector3
	Max geom.Vector3
}

type BoundingSphere struct {
	Center geom.Vector3
	Radius float32
}

// UpdateBounds recomputes the helper's bounding box and sphere from
// the mesh vertex positions. Call after editing geometry.
func (o *Object) UpdateBounds() {
	if o.Mesh == nil || len(o.Mesh.Positions) == 0 {
		return
	}
	if o.Helper == nil {
		o.Helper = &Helper{}
	}
	points := make([]*geom.Vector3, len(o.Mesh.Positions))
	min := o.Mesh.Positions[0]
	max := o.Mesh.Positions[0]
	for i := range o.Mesh.Positions {
		p := &o.Mesh.Positions[i]
		points[i] = p
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	center, radius := geom.BoundingSphere(points)
	o.Helper.BBoxes = []*BoundingBox{{Min: min, Max: max}}
	o.Helper.Spheres = []*BoundingSphere{{Center: *center, Radius: radius}}
}

func (h *Helper) typeMask() uint32 {
	mask := h.UnknownMask &^ helperTypeKnown
	if h.Dummies != nil {
		mask |= HelperTypeDummy
	}
	if h.Boxes != nil {
		mask |= HelperTypeBox
	}
	if h.Meshes != nil {
		mask |= HelperTypeMesh
	}
	if h.BBoxes != nil {
		mask |= HelperTypeBBox
	}
	if h.Spheres != nil {
		mask |= HelperTypeSphere
	}
	return mask
}

// TRSKey is one decomposed animation frame.
type TRSKey struct {
	Translation geom.Vector3
	Rotation    geom.Quaternion
	Scale       geom.Vector3
}

// AnimationKeys decodes the raw animation blob into TRS keys for
// preview. The blob itself stays untouched for round-trip.
func (o *Object) AnimationKeys() ([]TRSKey, error) {
	if len(o.Anim) == 0 {
		return nil, nil
	}
	p := &baseParser{data: o.Anim}
	frameNum := int(p.readU32())
	if err := p.section("animation blob"); err != nil {
		return nil, err
	}
	if frameNum*48 > p.remain() {
		return nil, &TruncatedError{Section: "animation blob", Offset: p.pos, Size: len(p.data)}
	}
	keys := make([]TRSKey, frameNum)
	for i := 0; i < frameNum; i++ {
		m := p.readMatrix4x3()
		t, r, s := m.Decompose()
		keys[i] = TRSKey{Translation: *t, Rotation: *r, Scale: *s}
	}
	return keys, nil
}
