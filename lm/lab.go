// Package lm reads and writes the LAB skeleton+animation container and
// the LGO/LMO geometry object containers.
package lm

import (
	"fmt"

	"github.com/binzume/lmconv/geom"
)

type KeyType uint32

const (
	KeyTypeMat43  KeyType = 1 // per-frame 4x3 local transforms
	KeyTypeMat44  KeyType = 2 // per-frame 4x4 local transforms
	KeyTypePosRot KeyType = 3 // separate position and rotation tracks
)

const (
	// on-disk parent value of the root bone
	boneParentNone = 0xFFFFFFFF

	boneNameSize = 64
	BoneNone     = -1
)

// Bone is one node of the skeleton. Its identity is its position in
// LABDocument.Bones; every parent appears before its children.
type Bone struct {
	Name      string
	LocalBind geom.Matrix4

	// Parent is the index of the parent bone, BoneNone for the root.
	Parent int

	// NameRaw holds the bytes read from the file. Used verbatim on
	// encode while it still decodes to Name.
	NameRaw []byte
}

// Dummy is an attachment socket (weapons, effects). It references a
// bone by array index and does not participate in skinning.
type Dummy struct {
	ID     uint32
	Parent uint32
	Local  geom.Matrix4
}

// ParentBone resolves the dummy's parent to a valid bone index,
// falling back to the root when the reference is unresolved.
func (d *Dummy) ParentBone(boneCount int) int {
	if int(d.Parent) < boneCount {
		return int(d.Parent)
	}
	return 0
}

// Track holds the keyframes of one bone. Exactly one of the variants
// is populated, selected by the file-wide KeyType ("oneof").
type Track struct {
	Mat43     []geom.Matrix4x3
	Mat44     []geom.Matrix4
	Positions []geom.Vector3
	Rotations []geom.Quaternion
}

func (t *Track) frames(kt KeyType) int {
	switch kt {
	case KeyTypeMat43:
		return len(t.Mat43)
	case KeyTypeMat44:
		return len(t.Mat44)
	default:
		return len(t.Positions)
	}
}

// matches reports whether only the variant selected by kt is set.
func (t *Track) matches(kt KeyType) bool {
	switch kt {
	case KeyTypeMat43:
		return t.Mat44 == nil && t.Positions == nil && t.Rotations == nil
	case KeyTypeMat44:
		return t.Mat43 == nil && t.Positions == nil && t.Rotations == nil
	case KeyTypePosRot:
		return t.Mat43 == nil && t.Mat44 == nil && len(t.Positions) == len(t.Rotations)
	}
	return false
}

// Key returns frame f as a TRS triple.
func (t *Track) Key(kt KeyType, f int) (*geom.Vector3, *geom.Quaternion, *geom.Vector3) {
	switch kt {
	case KeyTypeMat43:
		return t.Mat43[f].Decompose()
	case KeyTypeMat44:
		return t.Mat44[f].Decompose()
	default:
		pos := t.Positions[f]
		rot := t.Rotations[f]
		return &pos, &rot, geom.NewVector3(1, 1, 1)
	}
}

// LABDocument is a decoded LAB file.
type LABDocument struct {
	FrameNum    int
	KeyType     KeyType
	Bones       []*Bone
	InverseBind []geom.Matrix4 // one per bone, index-aligned
	Dummies     []*Dummy
	Tracks      []*Track // one per bone, index-aligned
}

func NewLABDocument(keyType KeyType) *LABDocument {
	return &LABDocument{KeyType: keyType}
}

// Validate checks the structural contract the engine depends on:
// exactly one root bone at index 0, every parent strictly before its
// child, index-aligned inverse bind matrices and tracks, and every
// track shaped by the file-wide key type with FrameNum entries.
func (doc *LABDocument) Validate() error {
	for i, b := range doc.Bones {
		if b.Parent == BoneNone {
			if i != 0 {
				return &InvariantError{Reason: fmt.Sprintf("bone %d (%s) has no parent but is not first", i, b.Name)}
			}
			continue
		}
		if i == 0 {
			return &InvariantError{Reason: "first bone must be the root"}
		}
		if b.Parent >= len(doc.Bones) || b.Parent < 0 {
			return &IndexError{What: "bone parent", Index: b.Parent, Bound: len(doc.Bones)}
		}
		if b.Parent >= i {
			return &InvariantError{Reason: fmt.Sprintf("bone %d (%s) precedes its parent %d", i, b.Name, b.Parent)}
		}
	}
	if len(doc.InverseBind) != len(doc.Bones) {
		return &InvariantError{Reason: fmt.Sprintf("inverse bind count %d != bone count %d", len(doc.InverseBind), len(doc.Bones))}
	}
	if len(doc.Tracks) != len(doc.Bones) {
		return &InvariantError{Reason: fmt.Sprintf("track count %d != bone count %d", len(doc.Tracks), len(doc.Bones))}
	}
	for i, t := range doc.Tracks {
		if !t.matches(doc.KeyType) {
			return &InvariantError{Reason: fmt.Sprintf("track %d does not match key type %d", i, doc.KeyType)}
		}
		if t.frames(doc.KeyType) != doc.FrameNum {
			return &InvariantError{Reason: fmt.Sprintf("track %d has %d frames, want %d", i, t.frames(doc.KeyType), doc.FrameNum)}
		}
	}
	return nil
}

// Normalize rebuilds the depth-first bone ordering after edits:
// bones are topologically sorted (stable, so already-ordered documents
// are untouched), indices renumbered densely, inverse bind matrices,
// tracks and dummy references permuted in lockstep, and every track
// padded or truncated to FrameNum entries. An unordered document that
// the engine would misread becomes a valid one; cycles and multiple
// roots are rejected.
func (doc *LABDocument) Normalize() error {
	n := len(doc.Bones)
	children := make([][]int, n)
	root := BoneNone
	for i, b := range doc.Bones {
		if b.Parent == BoneNone {
			if root != BoneNone {
				return &InvariantError{Reason: fmt.Sprintf("multiple root bones (%d and %d)", root, i)}
			}
			root = i
			continue
		}
		if b.Parent < 0 || b.Parent >= n {
			return &IndexError{What: "bone parent", Index: b.Parent, Bound: n}
		}
		children[b.Parent] = append(children[b.Parent], i)
	}
	if n > 0 && root == BoneNone {
		return &InvariantError{Reason: "no root bone"}
	}

	order := make([]int, 0, n)
	if n > 0 {
		stack := []int{root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			order = append(order, i)
			for c := len(children[i]) - 1; c >= 0; c-- {
				stack = append(stack, children[i][c])
			}
		}
	}
	if len(order) != n {
		return &InvariantError{Reason: "bone hierarchy contains a cycle or unreachable bones"}
	}

	remap := make([]int, n)
	bones := make([]*Bone, n)
	inv := make([]geom.Matrix4, 0, n)
	tracks := make([]*Track, 0, n)
	for to, from := range order {
		remap[from] = to
		bones[to] = doc.Bones[from]
		if from < len(doc.InverseBind) {
			inv = append(inv, doc.InverseBind[from])
		}
		if from < len(doc.Tracks) {
			tracks = append(tracks, doc.Tracks[from])
		}
	}
	for _, b := range bones {
		if b.Parent != BoneNone {
			b.Parent = remap[b.Parent]
		}
	}
	for _, d := range doc.Dummies {
		if int(d.Parent) < n {
			d.Parent = uint32(remap[d.Parent])
		}
	}
	doc.Bones = bones
	doc.InverseBind = inv
	doc.Tracks = tracks

	for _, t := range doc.Tracks {
		t.resize(doc.KeyType, doc.FrameNum)
	}
	return nil
}

// resize pads (repeating the last key) or truncates the track to
// exactly n frames.
func (t *Track) resize(kt KeyType, n int) {
	switch kt {
	case KeyTypeMat43:
		for len(t.Mat43) < n {
			if len(t.Mat43) == 0 {
				t.Mat43 = append(t.Mat43, *geom.NewMatrix4x3())
			} else {
				t.Mat43 = append(t.Mat43, t.Mat43[len(t.Mat43)-1])
			}
		}
		t.Mat43 = t.Mat43[:n]
	case KeyTypeMat44:
		for len(t.Mat44) < n {
			if len(t.Mat44) == 0 {
				t.Mat44 = append(t.Mat44, *geom.NewMatrix4())
			} else {
				t.Mat44 = append(t.Mat44, t.Mat44[len(t.Mat44)-1])
			}
		}
		t.Mat44 = t.Mat44[:n]
	case KeyTypePosRot:
		for len(t.Positions) < n {
			if len(t.Positions) == 0 {
				t.Positions = append(t.Positions, geom.Vector3{})
			} else {
				t.Positions = append(t.Positions, t.Positions[len(t.Positions)-1])
			}
		}
		for len(t.Rotations) < n {
			if len(t.Rotations) == 0 {
				t.Rotations = append(t.Rotations, geom.Quaternion{W: 1})
			} else {
				t.Rotations = append(t.Rotations, t.Rotations[len(t.Rotations)-1])
			}
		}
		t.Positions = t.Positions[:n]
		t.Rotations = t.Rotations[:n]
	}
}
