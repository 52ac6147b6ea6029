package lm

import (
	"io"
	"os"

	"github.com/binzume/lmconv/geom"
	"github.com/pkg/errors"
)

const (
	labBoneRecordSize  = boneNameSize + 4 + 64
	labDummyRecordSize = 4 + 4 + 64
)

// LABParser is a parser for .lab skeleton+animation data.
type LABParser struct {
	p *baseParser
}

func NewLABParser(r io.Reader) (*LABParser, error) {
	p, err := newBaseParser(r)
	if err != nil {
		return nil, err
	}
	return &LABParser{p: p}, nil
}

func (lp *LABParser) Parse() (*LABDocument, error) {
	p := lp.p

	boneNum := int(p.readU32())
	frameNum := int(p.readU32())
	dummyNum := int(p.readU32())
	keyType := KeyType(p.readU32())
	if err := p.section("header"); err != nil {
		return nil, err
	}
	switch keyType {
	case KeyTypeMat43, KeyTypeMat44, KeyTypePosRot:
	default:
		return nil, &VersionError{What: "key type", Version: uint32(keyType)}
	}
	if boneNum*labBoneRecordSize > p.remain() {
		return nil, &TruncatedError{Section: "bone records", Offset: p.pos, Size: len(p.data)}
	}

	doc := &LABDocument{FrameNum: frameNum, KeyType: keyType}

	for i := 0; i < boneNum; i++ {
		raw := append([]byte(nil), p.readBytes(boneNameSize)...)
		b := &Bone{
			Name:    decodeName(raw),
			NameRaw: raw,
		}
		parent := p.readU32()
		if parent == boneParentNone {
			b.Parent = BoneNone
		} else {
			b.Parent = int(parent)
		}
		b.LocalBind = p.readMatrix4()
		doc.Bones = append(doc.Bones, b)
	}
	if err := p.section("bone records"); err != nil {
		return nil, err
	}

	// The parent contract is checked before any keyframe data is
	// touched so corrupt hierarchies fail early.
	for i, b := range doc.Bones {
		if b.Parent == BoneNone {
			if i != 0 {
				return nil, &InvariantError{Reason: "root bone is not first"}
			}
			continue
		}
		if i == 0 {
			return nil, &InvariantError{Reason: "first bone must be the root"}
		}
		if b.Parent >= boneNum {
			return nil, &IndexError{What: "bone parent", Index: b.Parent, Bound: boneNum}
		}
		if b.Parent >= i {
			return nil, &InvariantError{Reason: "bones are not in depth-first order"}
		}
	}

	for i := 0; i < boneNum; i++ {
		doc.InverseBind = append(doc.InverseBind, p.readMatrix4())
	}
	if err := p.section("inverse bind matrices"); err != nil {
		return nil, err
	}

	if dummyNum*labDummyRecordSize > p.remain() {
		return nil, &TruncatedError{Section: "dummy points", Offset: p.pos, Size: len(p.data)}
	}
	for i := 0; i < dummyNum; i++ {
		doc.Dummies = append(doc.Dummies, &Dummy{
			ID:     p.readU32(),
			Parent: p.readU32(),
			Local:  p.readMatrix4(),
		})
	}
	if err := p.section("dummy points"); err != nil {
		return nil, err
	}

	keySize := map[KeyType]int{KeyTypeMat43: 48, KeyTypeMat44: 64, KeyTypePosRot: 28}[keyType]
	if boneNum*frameNum*keySize > p.remain() {
		return nil, &TruncatedError{Section: "keyframe tracks", Offset: p.pos, Size: len(p.data)}
	}

	for i := 0; i < boneNum; i++ {
		t := &Track{}
		switch keyType {
		case KeyTypeMat43:
			t.Mat43 = make([]geom.Matrix4x3, frameNum)
			for f := 0; f < frameNum; f++ {
				t.Mat43[f] = p.readMatrix4x3()
			}
		case KeyTypeMat44:
			t.Mat44 = make([]geom.Matrix4, frameNum)
			for f := 0; f < frameNum; f++ {
				t.Mat44[f] = p.readMatrix4()
			}
		case KeyTypePosRot:
			t.Positions = make([]geom.Vector3, frameNum)
			for f := 0; f < frameNum; f++ {
				t.Positions[f] = p.readVector3()
			}
			t.Rotations = make([]geom.Quaternion, frameNum)
			for f := 0; f < frameNum; f++ {
				t.Rotations[f] = p.readQuaternion()
			}
		}
		doc.Tracks = append(doc.Tracks, t)
		if err := p.section("keyframe tracks"); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// ParseLAB reads a LAB document from r.
func ParseLAB(r io.Reader) (*LABDocument, error) {
	p, err := NewLABParser(r)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// LoadLAB reads a LAB document from a file.
func LoadLAB(path string) (*LABDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "lm: open lab")
	}
	defer f.Close()
	return ParseLAB(f)
}
