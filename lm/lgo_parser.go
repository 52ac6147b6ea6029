package lm

import (
	"fmt"
	"io"
	"os"

	"github.com/binzume/lmconv/geom"
	"github.com/pkg/errors"
)

// LMOParser is a parser for .lgo/.lmo geometry containers.
type LMOParser struct {
	p *baseParser
}

func NewLMOParser(r io.Reader) (*LMOParser, error) {
	p, err := newBaseParser(r)
	if err != nil {
		return nil, err
	}
	return &LMOParser{p: p}, nil
}

func (lp *LMOParser) Parse() (*LMODocument, error) {
	p := lp.p

	doc := &LMODocument{Version: p.readU32()}
	objNum := int(p.readU32())
	if err := p.section("container header"); err != nil {
		return nil, err
	}

	if objNum*12 > p.remain() {
		return nil, &TruncatedError{Section: "object table", Offset: p.pos, Size: len(p.data)}
	}

	type tableEntry struct {
		typ, addr, size uint32
	}
	table := make([]tableEntry, objNum)
	for i := range table {
		table[i] = tableEntry{typ: p.readU32(), addr: p.readU32(), size: p.readU32()}
	}
	if err := p.section("object table"); err != nil {
		return nil, err
	}

	for i, te := range table {
		if int(te.addr)+int(te.size) > len(p.data) {
			return nil, &TruncatedError{Section: fmt.Sprintf("object %d body", i), Offset: int(te.addr), Size: len(p.data)}
		}
		body := p.data[te.addr : te.addr+te.size]
		entry := &Entry{Type: te.typ}
		if te.typ == EntryTypeGeometry {
			obj, err := parseObject(body)
			if err != nil {
				return nil, errors.Wrapf(err, "object %d", i)
			}
			entry.Object = obj
		} else {
			entry.Raw = append([]byte(nil), body...)
		}
		doc.Entries = append(doc.Entries, entry)
	}

	return doc, nil
}

func parseObject(data []byte) (*Object, error) {
	p := &baseParser{data: data}
	obj := &Object{}

	obj.ID = p.readU32()
	obj.ParentID = p.readU32()
	obj.ObjectType = p.readU32()
	obj.Local = p.readMatrix4()
	obj.RenderFlags = p.readU32()
	obj.AlphaRef = p.readU32()
	obj.Detail = p.readU32()
	for i := range obj.State {
		obj.State[i] = p.readU8()
	}
	obj.Version = MaterialVersion(p.readU32())
	mtlSize := int(p.readU32())
	meshSize := int(p.readU32())
	helperSize := int(p.readU32())
	animSize := int(p.readU32())
	if err := p.section("object header"); err != nil {
		return nil, err
	}
	if obj.Version > MaterialVersionCurrent {
		return nil, &VersionError{What: "material format version", Version: uint32(obj.Version)}
	}
	if obj.Version == MaterialVersion0 {
		obj.Legacy = p.readU32()
		if err := p.section("legacy field"); err != nil {
			return nil, err
		}
	}

	// two-phase decode: the gating header is fully read, now branch
	// into one section decoder per nonzero size field
	for _, sec := range []struct {
		name  string
		size  int
		parse func([]byte) error
	}{
		{"material table", mtlSize, func(b []byte) (err error) {
			obj.Materials, err = parseMaterials(b, obj.Version)
			return
		}},
		{"mesh", meshSize, func(b []byte) (err error) {
			obj.Mesh, err = parseMesh(b)
			return
		}},
		{"helper", helperSize, func(b []byte) (err error) {
			obj.Helper, err = parseHelper(b)
			return
		}},
		{"animation", animSize, func(b []byte) error {
			obj.Anim = append([]byte(nil), b...)
			return nil
		}},
	} {
		if sec.size == 0 {
			continue
		}
		if sec.size > p.remain() {
			return nil, &TruncatedError{Section: sec.name, Offset: p.pos, Size: len(p.data)}
		}
		if err := sec.parse(p.readBytes(sec.size)); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

func parseMaterials(data []byte, version MaterialVersion) ([]*Material, error) {
	p := &baseParser{data: data}
	num := int(p.readU32())
	if err := p.section("material table"); err != nil {
		return nil, err
	}
	// 52 bytes is the smallest possible material record.
	if num*52 > p.remain() {
		return nil, &TruncatedError{Section: "material table", Offset: p.pos, Size: len(p.data)}
	}
	materials := make([]*Material, 0, num)
	for i := 0; i < num; i++ {
		m := &Material{}
		m.Flags = p.readU32()
		for c := 0; c < 4; c++ {
			m.Diffuse[c] = p.readF32()
		}
		for c := 0; c < 4; c++ {
			m.Ambient[c] = p.readF32()
		}
		if m.Flags&MaterialFlagSpecular != 0 {
			for c := 0; c < 4; c++ {
				m.Specular[c] = p.readF32()
			}
		}
		if m.Flags&MaterialFlagEmissive != 0 {
			for c := 0; c < 4; c++ {
				m.Emissive[c] = p.readF32()
			}
		}
		m.Power = p.readF32()
		m.Opacity = p.readF32()
		m.Transparency = p.readU32()
		stageNum := int(p.readU32())
		if stageNum > MaxTextureStages {
			return nil, &InvariantError{Reason: fmt.Sprintf("material %d has %d texture stages", i, stageNum)}
		}
		for s := 0; s < stageNum; s++ {
			stage, err := parseTextureStage(p, version)
			if err != nil {
				return nil, err
			}
			m.Stages = append(m.Stages, stage)
		}
		if err := p.section("material table"); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, nil
}

func parseTextureStage(p *baseParser, version MaterialVersion) (*TextureStage, error) {
	st := &TextureStage{}
	switch version {
	case MaterialVersion0:
		st.TextureRaw = append([]byte(nil), p.readBytes(textureNameSizeV0)...)
		st.ColorKey = p.readU32()
	case MaterialVersion1:
		st.TextureRaw = append([]byte(nil), p.readBytes(textureNameSize)...)
		st.Format = p.readU32()
		st.Pool = p.readU32()
		st.ColorKey = p.readU32()
		for i := 0; i < 4; i++ {
			st.States[i] = RenderState{Op: p.readU32(), Value: p.readU32()}
		}
	case MaterialVersionCurrent:
		st.TextureRaw = append([]byte(nil), p.readBytes(textureNameSize)...)
		st.Format = p.readU32()
		st.Pool = p.readU32()
		st.Width = p.readU32()
		st.Height = p.readU32()
		st.ColorKey = p.readU32()
		for i := range st.States {
			st.States[i] = RenderState{Op: p.readU32(), Value: p.readU32()}
		}
	default:
		return nil, &VersionError{What: "material format version", Version: uint32(version)}
	}
	st.Texture = decodeName(st.TextureRaw)
	return st, p.section("texture stage")
}

func parseMesh(data []byte) (*Mesh, error) {
	p := &baseParser{data: data}
	m := &Mesh{}
	m.FVF = p.readU32()
	vertexNum := int(p.readU32())
	indexNum := int(p.readU32())
	subsetNum := int(p.readU32())
	boneNum := int(p.readU32())
	if err := p.section("mesh header"); err != nil {
		return nil, err
	}
	if vertexNum*12 > p.remain() || indexNum*4 > p.remain() || subsetNum*16 > p.remain() || boneNum*4 > p.remain() {
		return nil, &TruncatedError{Section: "mesh buffers", Offset: p.pos, Size: len(p.data)}
	}

	m.Positions = make([]geom.Vector3, vertexNum)
	for i := range m.Positions {
		m.Positions[i] = p.readVector3()
	}
	if m.FVF&FVFNormal != 0 {
		m.Normals = make([]geom.Vector3, vertexNum)
		for i := range m.Normals {
			m.Normals[i] = p.readVector3()
		}
	}
	if m.FVF&FVFDiffuse != 0 {
		m.Colors = make([]uint32, vertexNum)
		for i := range m.Colors {
			m.Colors[i] = p.readU32()
		}
	}
	for s := 0; s < m.TexCoordCount(); s++ {
		uv := make([]geom.Vector2, vertexNum)
		for i := range uv {
			uv[i] = p.readVector2()
		}
		m.TexCoords = append(m.TexCoords, uv)
	}
	if err := p.section("vertex buffers"); err != nil {
		return nil, err
	}

	if boneNum > 0 {
		m.Blends = make([]Blend, vertexNum)
		for i := range m.Blends {
			for s := range m.Blends[i].Bones {
				m.Blends[i].Bones[s] = p.readU8()
			}
			for s := range m.Blends[i].Weights {
				m.Blends[i].Weights[s] = p.readF32()
			}
		}
		if err := p.section("blend weights"); err != nil {
			return nil, err
		}
	}

	m.Indices = make([]uint32, indexNum)
	for i := range m.Indices {
		m.Indices[i] = p.readU32()
	}
	if err := p.section("index buffer"); err != nil {
		return nil, err
	}

	for i := 0; i < subsetNum; i++ {
		m.Subsets = append(m.Subsets, &Subset{
			Start:          p.readU32(),
			PrimitiveCount: p.readU32(),
			VertexCount:    p.readU32(),
			MinIndex:       p.readU32(),
		})
	}
	if err := p.section("subset table"); err != nil {
		return nil, err
	}

	m.BoneIndexes = make([]uint32, boneNum)
	for i := range m.BoneIndexes {
		m.BoneIndexes[i] = p.readU32()
	}
	return m, p.section("bone index table")
}

func parseHelper(data []byte) (*Helper, error) {
	p := &baseParser{data: data}
	h := &Helper{}
	mask := p.readU32()
	if err := p.section("helper header"); err != nil {
		return nil, err
	}
	h.UnknownMask = mask &^ helperTypeKnown

	if mask&HelperTypeDummy != 0 {
		num := int(p.readU32())
		if num*72 > p.remain() {
			return nil, &TruncatedError{Section: "helper dummies", Offset: p.pos, Size: len(p.data)}
		}
		h.Dummies = make([]*Dummy, 0, num)
		for i := 0; i < num; i++ {
			h.Dummies = append(h.Dummies, &Dummy{
				ID:     p.readU32(),
				Parent: p.readU32(),
				Local:  p.readMatrix4(),
			})
		}
		if err := p.section("helper dummies"); err != nil {
			return nil, err
		}
	}
	if mask&HelperTypeBox != 0 {
		num := int(p.readU32())
		if num*80 > p.remain() {
			return nil, &TruncatedError{Section: "helper boxes", Offset: p.pos, Size: len(p.data)}
		}
		h.Boxes = make([]*HelperBox, 0, num)
		for i := 0; i < num; i++ {
			h.Boxes = append(h.Boxes, &HelperBox{
				ID:     p.readU32(),
				Local:  p.readMatrix4(),
				Extent: p.readVector3(),
			})
		}
		if err := p.section("helper boxes"); err != nil {
			return nil, err
		}
	}
	if mask&HelperTypeMesh != 0 {
		num := int(p.readU32())
		if num*8 > p.remain() {
			return nil, &TruncatedError{Section: "helper meshes", Offset: p.pos, Size: len(p.data)}
		}
		h.Meshes = make([]*HelperMesh, 0, num)
		for i := 0; i < num; i++ {
			hm := &HelperMesh{}
			vertexNum := int(p.readU32())
			faceNum := int(p.readU32())
			if vertexNum*12+faceNum*12 > p.remain() {
				return nil, &TruncatedError{Section: "helper mesh", Offset: p.pos, Size: len(p.data)}
			}
			hm.Positions = make([]geom.Vector3, vertexNum)
			for v := range hm.Positions {
				hm.Positions[v] = p.readVector3()
			}
			hm.Faces = make([][3]uint32, faceNum)
			for f := range hm.Faces {
				hm.Faces[f] = [3]uint32{p.readU32(), p.readU32(), p.readU32()}
			}
			h.Meshes = append(h.Meshes, hm)
		}
		if err := p.section("helper meshes"); err != nil {
			return nil, err
		}
	}
	if mask&HelperTypeBBox != 0 {
		num := int(p.readU32())
		if num*24 > p.remain() {
			return nil, &TruncatedError{Section: "helper bounding boxes", Offset: p.pos, Size: len(p.data)}
		}
		h.BBoxes = make([]*BoundingBox, 0, num)
		for i := 0; i < num; i++ {
			h.BBoxes = append(h.BBoxes, &BoundingBox{
				Min: p.readVector3(),
				Max: p.readVector3(),
			})
		}
		if err := p.section("helper bounding boxes"); err != nil {
			return nil, err
		}
	}
	if mask&HelperTypeSphere != 0 {
		num := int(p.readU32())
		if num*16 > p.remain() {
			return nil, &TruncatedError{Section: "helper bounding spheres", Offset: p.pos, Size: len(p.data)}
		}
		h.Spheres = make([]*BoundingSphere, 0, num)
		for i := 0; i < num; i++ {
			h.Spheres = append(h.Spheres, &BoundingSphere{
				Center: p.readVector3(),
				Radius: p.readF32(),
			})
		}
		if err := p.section("helper bounding spheres"); err != nil {
			return nil, err
		}
	}

	if p.remain() > 0 {
		h.Tail = append([]byte(nil), p.data[p.pos:]...)
	}
	return h, nil
}

// ParseLMO reads an LGO/LMO document from r.
func ParseLMO(r io.Reader) (*LMODocument, error) {
	p, err := NewLMOParser(r)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// LoadLMO reads an LGO/LMO document from a file.
func LoadLMO(path string) (*LMODocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "lm: open lmo")
	}
	defer f.Close()
	return ParseLMO(f)
}
