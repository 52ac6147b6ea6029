package lm

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// LMOWriter is a writer for .lgo/.lmo data. Material and texture-info
// records are always emitted in the current layout no matter which
// version they were decoded from: encoding is a one-way upgrade, and
// re-encoding an old-version file produces a semantically equivalent
// current-version file, not the original bytes.
type LMOWriter struct {
	baseWriter
}

func (w *LMOWriter) Write(doc *LMODocument, out io.Writer) error {
	bodies := make([][]byte, len(doc.Entries))
	for i, e := range doc.Entries {
		switch {
		case e.Type == EntryTypeGeometry && e.Object != nil:
			body, err := encodeObject(e.Object)
			if err != nil {
				return errors.Wrapf(err, "object %d", i)
			}
			bodies[i] = body
		case e.Type == EntryTypeGeometry:
			return &InvariantError{Reason: fmt.Sprintf("entry %d is a geometry entry without an object", i)}
		default:
			bodies[i] = e.Raw
		}
	}

	w.writeU32(doc.Version)
	w.writeU32(uint32(len(doc.Entries)))
	addr := 8 + 12*len(doc.Entries)
	for i, e := range doc.Entries {
		w.writeU32(e.Type)
		w.writeU32(uint32(addr))
		w.writeU32(uint32(len(bodies[i])))
		addr += len(bodies[i])
	}
	for _, body := range bodies {
		w.writeBytes(body)
	}

	_, err := out.Write(w.buf.Bytes())
	return errors.Wrap(err, "lm: write lmo")
}

func encodeObject(obj *Object) ([]byte, error) {
	var mtl, mesh, helper baseWriter
	// A non-nil empty slice round-trips as a present section with a
	// zero count, matching what the parser produces.
	if obj.Materials != nil {
		if err := encodeMaterials(&mtl, obj.Materials); err != nil {
			return nil, err
		}
	}
	if obj.Mesh != nil {
		if err := encodeMesh(&mesh, obj.Mesh); err != nil {
			return nil, err
		}
	}
	if obj.Helper != nil {
		encodeHelper(&helper, obj.Helper)
	}

	var w baseWriter
	w.writeU32(obj.ID)
	w.writeU32(obj.ParentID)
	w.writeU32(obj.ObjectType)
	w.writeMatrix4(obj.Local)
	w.writeU32(obj.RenderFlags)
	w.writeU32(obj.AlphaRef)
	w.writeU32(obj.Detail)
	for _, s := range obj.State {
		w.writeU8(s)
	}
	w.writeU32(uint32(MaterialVersionCurrent))
	w.writeU32(uint32(mtl.buf.Len()))
	w.writeU32(uint32(mesh.buf.Len()))
	w.writeU32(uint32(helper.buf.Len()))
	w.writeU32(uint32(len(obj.Anim)))
	w.writeBytes(mtl.buf.Bytes())
	w.writeBytes(mesh.buf.Bytes())
	w.writeBytes(helper.buf.Bytes())
	w.writeBytes(obj.Anim)
	return w.buf.Bytes(), nil
}

func encodeMaterials(w *baseWriter, materials []*Material) error {
	w.writeU32(uint32(len(materials)))
	for i, m := range materials {
		if len(m.Stages) > MaxTextureStages {
			return &InvariantError{Reason: fmt.Sprintf("material %d has %d texture stages", i, len(m.Stages))}
		}
		w.writeU32(m.Flags)
		for _, c := range m.Diffuse {
			w.writeF32(c)
		}
		for _, c := range m.Ambient {
			w.writeF32(c)
		}
		if m.Flags&MaterialFlagSpecular != 0 {
			for _, c := range m.Specular {
				w.writeF32(c)
			}
		}
		if m.Flags&MaterialFlagEmissive != 0 {
			for _, c := range m.Emissive {
				w.writeF32(c)
			}
		}
		w.writeF32(m.Power)
		w.writeF32(m.Opacity)
		w.writeU32(m.Transparency)
		w.writeU32(uint32(len(m.Stages)))
		for _, st := range m.Stages {
			w.writeBytes(packName(st.Texture, st.TextureRaw, textureNameSize))
			w.writeU32(st.Format)
			w.writeU32(st.Pool)
			w.writeU32(st.Width)
			w.writeU32(st.Height)
			w.writeU32(st.ColorKey)
			for _, rs := range st.States {
				w.writeU32(rs.Op)
				w.writeU32(rs.Value)
			}
		}
	}
	return nil
}

func encodeMesh(w *baseWriter, m *Mesh) error {
	vertexNum := len(m.Positions)
	if m.FVF&FVFNormal != 0 && len(m.Normals) != vertexNum {
		return &InvariantError{Reason: fmt.Sprintf("normal count %d != vertex count %d", len(m.Normals), vertexNum)}
	}
	if m.FVF&FVFNormal == 0 && len(m.Normals) != 0 {
		return &InvariantError{Reason: "normals present but FVF normal bit unset"}
	}
	if m.FVF&FVFDiffuse != 0 && len(m.Colors) != vertexNum {
		return &InvariantError{Reason: fmt.Sprintf("color count %d != vertex count %d", len(m.Colors), vertexNum)}
	}
	if m.FVF&FVFDiffuse == 0 && len(m.Colors) != 0 {
		return &InvariantError{Reason: "colors present but FVF diffuse bit unset"}
	}
	if m.TexCoordCount() != len(m.TexCoords) {
		return &InvariantError{Reason: fmt.Sprintf("texcoord set count %d != FVF count %d", len(m.TexCoords), m.TexCoordCount())}
	}
	if len(m.BoneIndexes) > 0 && len(m.Blends) != vertexNum {
		return &InvariantError{Reason: fmt.Sprintf("blend count %d != vertex count %d", len(m.Blends), vertexNum)}
	}

	w.writeU32(m.FVF)
	w.writeU32(uint32(vertexNum))
	w.writeU32(uint32(len(m.Indices)))
	w.writeU32(uint32(len(m.Subsets)))
	w.writeU32(uint32(len(m.BoneIndexes)))
	for _, v := range m.Positions {
		w.writeVector3(v)
	}
	for _, v := range m.Normals {
		w.writeVector3(v)
	}
	for _, c := range m.Colors {
		w.writeU32(c)
	}
	for _, uv := range m.TexCoords {
		if len(uv) != vertexNum {
			return &InvariantError{Reason: fmt.Sprintf("texcoord set size %d != vertex count %d", len(uv), vertexNum)}
		}
		for _, v := range uv {
			w.writeVector2(v)
		}
	}
	if len(m.BoneIndexes) > 0 {
		for i := range m.Blends {
			for _, b := range m.Blends[i].Bones {
				w.writeU8(b)
			}
			for _, wt := range m.Blends[i].Weights {
				w.writeF32(wt)
			}
		}
	}
	for _, idx := range m.Indices {
		w.writeU32(idx)
	}
	for _, s := range m.Subsets {
		w.writeU32(s.Start)
		w.writeU32(s.PrimitiveCount)
		w.writeU32(s.VertexCount)
		w.writeU32(s.MinIndex)
	}
	for _, bi := range m.BoneIndexes {
		w.writeU32(bi)
	}
	return nil
}

func encodeHelper(w *baseWriter, h *Helper) {
	mask := h.typeMask()
	w.writeU32(mask)
	if mask&HelperTypeDummy != 0 {
		w.writeU32(uint32(len(h.Dummies)))
		for _, d := range h.Dummies {
			w.writeU32(d.ID)
			w.writeU32(d.Parent)
			w.writeMatrix4(d.Local)
		}
	}
	if mask&HelperTypeBox != 0 {
		w.writeU32(uint32(len(h.Boxes)))
		for _, b := range h.Boxes {
			w.writeU32(b.ID)
			w.writeMatrix4(b.Local)
			w.writeVector3(b.Extent)
		}
	}
	if mask&HelperTypeMesh != 0 {
		w.writeU32(uint32(len(h.Meshes)))
		for _, hm := range h.Meshes {
			w.writeU32(uint32(len(hm.Positions)))
			w.writeU32(uint32(len(hm.Faces)))
			for _, v := range hm.Positions {
				w.writeVector3(v)
			}
			for _, f := range hm.Faces {
				w.writeU32(f[0])
				w.writeU32(f[1])
				w.writeU32(f[2])
			}
		}
	}
	if mask&HelperTypeBBox != 0 {
		w.writeU32(uint32(len(h.BBoxes)))
		for _, b := range h.BBoxes {
			w.writeVector3(b.Min)
			w.writeVector3(b.Max)
		}
	}
	if mask&HelperTypeSphere != 0 {
		w.writeU32(uint32(len(h.Spheres)))
		for _, s := range h.Spheres {
			w.writeVector3(s.Center)
			w.writeF32(s.Radius)
		}
	}
	w.writeBytes(h.Tail)
}

// WriteLMO serializes doc to w.
func WriteLMO(doc *LMODocument, w io.Writer) error {
	return (&LMOWriter{}).Write(doc, w)
}

// SaveLMO serializes doc to a file.
func SaveLMO(doc *LMODocument, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "lm: create lmo")
	}
	defer f.Close()
	return WriteLMO(doc, f)
}
