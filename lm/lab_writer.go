package lm

import (
	"io"
	"os"

	"github.com/binzume/lmconv/geom"
	"github.com/pkg/errors"
)

// LABWriter is a writer for .lab data.
type LABWriter struct {
	baseWriter
}

// Write re-establishes the depth-first ordering invariant, validates
// the document and serializes it. Nothing is written on error.
// Rotation keys that are not unit length are renormalized on the way
// out (the documented lossy case); unit quaternions keep their exact
// bit pattern so unmodified documents round-trip byte-exactly.
func (w *LABWriter) Write(doc *LABDocument, out io.Writer) error {
	if err := doc.Normalize(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	w.writeU32(uint32(len(doc.Bones)))
	w.writeU32(uint32(doc.FrameNum))
	w.writeU32(uint32(len(doc.Dummies)))
	w.writeU32(uint32(doc.KeyType))

	for _, b := range doc.Bones {
		w.writeBytes(packName(b.Name, b.NameRaw, boneNameSize))
		if b.Parent == BoneNone {
			w.writeU32(boneParentNone)
		} else {
			w.writeU32(uint32(b.Parent))
		}
		w.writeMatrix4(b.LocalBind)
	}

	for _, m := range doc.InverseBind {
		w.writeMatrix4(m)
	}

	for _, d := range doc.Dummies {
		w.writeU32(d.ID)
		w.writeU32(d.Parent)
		w.writeMatrix4(d.Local)
	}

	for _, t := range doc.Tracks {
		switch doc.KeyType {
		case KeyTypeMat43:
			for _, m := range t.Mat43 {
				w.writeMatrix4x3(m)
			}
		case KeyTypeMat44:
			for _, m := range t.Mat44 {
				w.writeMatrix4(m)
			}
		case KeyTypePosRot:
			for _, v := range t.Positions {
				w.writeVector3(v)
			}
			for _, q := range t.Rotations {
				w.writeQuaternion(renormalize(q))
			}
		}
	}

	_, err := out.Write(w.buf.Bytes())
	return errors.Wrap(err, "lm: write lab")
}

// renormalize fixes non-unit rotation keys. Near-unit quaternions are
// written unchanged to keep the strict round-trip property.
func renormalize(q geom.Quaternion) geom.Quaternion {
	if geom.Abs(q.LenSqr()-1) <= 1e-5 {
		return q
	}
	return *q.Normalize()
}

// WriteLAB serializes doc to w.
func WriteLAB(doc *LABDocument, w io.Writer) error {
	return (&LABWriter{}).Write(doc, w)
}

// SaveLAB serializes doc to a file.
func SaveLAB(doc *LABDocument, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "lm: create lab")
	}
	defer f.Close()
	return WriteLAB(doc, f)
}
