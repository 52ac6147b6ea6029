package lm

import (
	"bytes"
	"testing"

	"github.com/binzume/lmconv/geom"
)

func testLABDocument() *LABDocument {
	doc := &LABDocument{FrameNum: 2, KeyType: KeyTypePosRot}
	doc.Bones = []*Bone{
		{Name: "root", Parent: BoneNone, LocalBind: *geom.NewMatrix4()},
		{Name: "spine", Parent: 0, LocalBind: *geom.NewTranslateMatrix4(0, 1, 0)},
		{Name: "head", Parent: 1, LocalBind: *geom.NewTranslateMatrix4(0, 2, 0)},
	}
	for range doc.Bones {
		doc.InverseBind = append(doc.InverseBind, *geom.NewMatrix4())
		doc.Tracks = append(doc.Tracks, &Track{
			Positions: []geom.Vector3{{X: 1}, {X: 2}},
			Rotations: []geom.Quaternion{{W: 1}, {W: 1}},
		})
	}
	doc.Dummies = []*Dummy{{ID: 100, Parent: 2, Local: *geom.NewMatrix4()}}
	return doc
}

func TestLABRoundTrip(t *testing.T) {
	doc := testLABDocument()
	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	doc2, err := ParseLAB(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc2.Bones) != 3 || doc2.FrameNum != 2 || doc2.KeyType != KeyTypePosRot {
		t.Error("header: ", len(doc2.Bones), doc2.FrameNum, doc2.KeyType)
	}
	if doc2.Bones[1].Name != "spine" || doc2.Bones[1].Parent != 0 {
		t.Error("bone: ", doc2.Bones[1])
	}
	if doc2.Dummies[0].ID != 100 || doc2.Dummies[0].Parent != 2 {
		t.Error("dummy: ", doc2.Dummies[0])
	}
	if doc2.Tracks[0].Positions[1].X != 2 {
		t.Error("track: ", doc2.Tracks[0].Positions)
	}

	var buf2 bytes.Buffer
	if err := WriteLAB(doc2, &buf2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, buf2.Bytes()) {
		t.Error("round trip bytes differ")
	}
}

func TestLABRoundTripMat43(t *testing.T) {
	doc := testLABDocument()
	doc.KeyType = KeyTypeMat43
	for _, tr := range doc.Tracks {
		tr.Positions, tr.Rotations = nil, nil
		tr.Mat43 = []geom.Matrix4x3{*geom.NewMatrix4x3(), *geom.NewMatrix4x3()}
	}
	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	doc2, err := ParseLAB(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	var buf2 bytes.Buffer
	if err := WriteLAB(doc2, &buf2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Error("round trip bytes differ")
	}
}

func TestLABParentOutOfRange(t *testing.T) {
	// bone 2 references parent 5 in a 3-bone file: must be rejected
	// before the keyframe section is ever touched (none is present).
	var w baseWriter
	w.writeU32(3) // bone_num
	w.writeU32(2) // frame_num
	w.writeU32(0) // dummy_num
	w.writeU32(3) // key_type
	parents := []uint32{boneParentNone, 0, 5}
	for _, parent := range parents {
		w.writeBytes(make([]byte, boneNameSize))
		w.writeU32(parent)
		w.writeMatrix4(*geom.NewMatrix4())
	}

	_, err := ParseLAB(bytes.NewReader(w.buf.Bytes()))
	ie, ok := err.(*IndexError)
	if !ok {
		t.Fatal("want IndexError, got ", err)
	}
	if ie.Index != 5 || ie.Bound != 3 {
		t.Error("index/bound: ", ie)
	}
}

func TestLABNonDepthFirstOrder(t *testing.T) {
	// parent 2 on bone 1 is in range but not depth-first
	var w baseWriter
	w.writeU32(3)
	w.writeU32(0)
	w.writeU32(0)
	w.writeU32(1)
	for _, parent := range []uint32{boneParentNone, 2, 0} {
		w.writeBytes(make([]byte, boneNameSize))
		w.writeU32(parent)
		w.writeMatrix4(*geom.NewMatrix4())
	}
	_, err := ParseLAB(bytes.NewReader(w.buf.Bytes()))
	if _, ok := err.(*InvariantError); !ok {
		t.Error("want InvariantError, got ", err)
	}
}

func TestLABBadKeyType(t *testing.T) {
	var w baseWriter
	w.writeU32(0)
	w.writeU32(0)
	w.writeU32(0)
	w.writeU32(9)
	_, err := ParseLAB(bytes.NewReader(w.buf.Bytes()))
	ve, ok := err.(*VersionError)
	if !ok {
		t.Fatal("want VersionError, got ", err)
	}
	if ve.Version != 9 {
		t.Error("version: ", ve)
	}
}

func TestLABTruncated(t *testing.T) {
	doc := testLABDocument()
	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	for _, n := range []int{10, 16 + labBoneRecordSize + 10, len(data) - 4} {
		_, err := ParseLAB(bytes.NewReader(data[:n]))
		if _, ok := err.(*TruncatedError); !ok {
			t.Error("want TruncatedError at ", n, ", got ", err)
		}
	}
}

func TestLABNormalize(t *testing.T) {
	// shuffled bone list: root in the middle, child before parent
	doc := &LABDocument{FrameNum: 1, KeyType: KeyTypeMat44}
	doc.Bones = []*Bone{
		{Name: "head", Parent: 1},
		{Name: "spine", Parent: 2},
		{Name: "root", Parent: BoneNone},
	}
	for i := range doc.Bones {
		doc.InverseBind = append(doc.InverseBind, *geom.NewTranslateMatrix4(float32(i), 0, 0))
		doc.Tracks = append(doc.Tracks, &Track{Mat44: []geom.Matrix4{*geom.NewTranslateMatrix4(float32(i), 0, 0)}})
	}
	doc.Dummies = []*Dummy{{ID: 1, Parent: 0}} // attached to "head"

	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	doc2, err := ParseLAB(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, b := range doc2.Bones {
		names = append(names, b.Name)
	}
	if names[0] != "root" || names[1] != "spine" || names[2] != "head" {
		t.Error("order: ", names)
	}
	if doc2.Bones[1].Parent != 0 || doc2.Bones[2].Parent != 1 {
		t.Error("parents: ", doc2.Bones[1].Parent, doc2.Bones[2].Parent)
	}
	// inverse bind and tracks must follow their bones
	if doc2.InverseBind[2][12] != 0 || doc2.Tracks[2].Mat44[0][12] != 0 {
		t.Error("aligned data not permuted")
	}
	if doc2.Dummies[0].Parent != 2 {
		t.Error("dummy parent not remapped: ", doc2.Dummies[0].Parent)
	}
}

func TestLABNormalizeErrors(t *testing.T) {
	doc := &LABDocument{KeyType: KeyTypeMat44}
	doc.Bones = []*Bone{
		{Name: "a", Parent: BoneNone},
		{Name: "b", Parent: BoneNone},
	}
	if _, ok := doc.Normalize().(*InvariantError); !ok {
		t.Error("multiple roots accepted")
	}

	doc = &LABDocument{KeyType: KeyTypeMat44}
	doc.Bones = []*Bone{
		{Name: "a", Parent: BoneNone},
		{Name: "b", Parent: 2},
		{Name: "c", Parent: 1},
	}
	if _, ok := doc.Normalize().(*InvariantError); !ok {
		t.Error("cycle accepted")
	}
}

func TestLABTrackVariantMismatch(t *testing.T) {
	doc := testLABDocument()
	doc.Tracks[1] = &Track{Mat44: []geom.Matrix4{*geom.NewMatrix4(), *geom.NewMatrix4()}}
	var buf bytes.Buffer
	err := WriteLAB(doc, &buf)
	if _, ok := err.(*InvariantError); !ok {
		t.Error("want InvariantError, got ", err)
	}
	if buf.Len() != 0 {
		t.Error("bytes written despite invariant violation")
	}
}

func TestLABTrackResize(t *testing.T) {
	doc := testLABDocument()
	doc.Tracks[2] = &Track{
		Positions: []geom.Vector3{{X: 7}},
		Rotations: []geom.Quaternion{{W: 1}},
	}
	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	doc2, err := ParseLAB(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc2.Tracks[2].Positions) != 2 || doc2.Tracks[2].Positions[1].X != 7 {
		t.Error("track not padded with last key: ", doc2.Tracks[2].Positions)
	}
}

func TestLABQuaternionRenormalize(t *testing.T) {
	doc := testLABDocument()
	doc.Tracks[0].Rotations[0] = geom.Quaternion{X: 0, Y: 0, Z: 2, W: 0}
	var buf bytes.Buffer
	if err := WriteLAB(doc, &buf); err != nil {
		t.Fatal(err)
	}
	doc2, err := ParseLAB(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	q := doc2.Tracks[0].Rotations[0]
	if geom.Abs(q.Len()-1) > 0.0001 || geom.Abs(q.Z-1) > 0.0001 {
		t.Error("rotation not renormalized: ", q)
	}
	// unit keys keep their exact bits
	if doc2.Tracks[1].Rotations[0].W != 1 {
		t.Error("unit rotation changed: ", doc2.Tracks[1].Rotations[0])
	}
}

func TestDummyParentBone(t *testing.T) {
	d := &Dummy{Parent: 7}
	if d.ParentBone(3) != 0 {
		t.Error("unresolved dummy parent should fall back to root")
	}
	if d.ParentBone(8) != 7 {
		t.Error("resolved dummy parent")
	}
}

func TestLABHugeDummyCount(t *testing.T) {
	// a dummy count far beyond the file size must fail as truncated
	// input, not be trusted for allocation
	var w baseWriter
	w.writeU32(1)          // bone_num
	w.writeU32(0)          // frame_num
	w.writeU32(0xFFFFFFFF) // dummy_num
	w.writeU32(3)          // key_type
	w.writeBytes(make([]byte, boneNameSize))
	w.writeU32(boneParentNone)
	w.writeMatrix4(*geom.NewMatrix4())
	w.writeMatrix4(*geom.NewMatrix4()) // inverse bind

	_, err := ParseLAB(bytes.NewReader(w.buf.Bytes()))
	te, ok := err.(*TruncatedError)
	if !ok {
		t.Fatal("want TruncatedError, got ", err)
	}
	if te.Section != "dummy points" {
		t.Error("section: ", te.Section)
	}
}
