package converter

import (
	"github.com/binzume/lmconv/geom"
	"github.com/binzume/lmconv/lm"
	"github.com/qmuntal/gltf"
)

func nodeLocalMatrix(node *gltf.Node, scale float32) *geom.Matrix4 {
	if m := node.MatrixOrDefault(); m != gltf.DefaultMatrix {
		mat := geom.NewMatrix4FromSlice(m[:])
		mat[12] /= scale
		mat[13] /= scale
		mat[14] /= scale
		return mat
	}
	r := node.Rotation
	if r == ([4]float32{}) {
		r = [4]float32{0, 0, 0, 1}
	}
	s := node.Scale
	if s == ([3]float32{}) {
		s = [3]float32{1, 1, 1}
	}
	return geom.NewTRSMatrix4(
		geom.NewVector3(node.Translation[0]/scale, node.Translation[1]/scale, node.Translation[2]/scale),
		geom.NewQuaternion(r[0], r[1], r[2], r[3]),
		geom.NewVector3(s[0], s[1], s[2]))
}

// ApplyNodeTransforms writes edited glTF node transforms back into a
// skeleton. Nodes are matched to bones by name; scale is the scene
// scale the document was exported with. Returns the number of bones
// updated.
func ApplyNodeTransforms(doc *gltf.Document, skeleton *lm.LABDocument, scale float32) int {
	if scale == 0 {
		scale = 0.01
	}
	boneByName := map[string]*lm.Bone{}
	for _, b := range skeleton.Bones {
		boneByName[b.Name] = b
	}

	updated := 0
	for _, node := range doc.Nodes {
		b, ok := boneByName[node.Name]
		if !ok {
			continue
		}
		b.LocalBind = *nodeLocalMatrix(node, scale)
		updated++
	}
	return updated
}
