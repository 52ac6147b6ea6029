package converter

import (
	"image"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/binzume/lmconv/geom"
	"github.com/binzume/lmconv/lm"
)

func testSkeleton() *lm.LABDocument {
	skeleton := lm.NewLABDocument(lm.KeyTypePosRot)
	skeleton.FrameNum = 2
	skeleton.Bones = []*lm.Bone{
		{Name: "root", Parent: lm.BoneNone, LocalBind: *geom.NewMatrix4()},
		{Name: "spine", Parent: 0, LocalBind: *geom.NewTranslateMatrix4(0, 10, 0)},
	}
	skeleton.InverseBind = []geom.Matrix4{
		*geom.NewMatrix4(),
		*geom.NewTranslateMatrix4(0, -10, 0),
	}
	skeleton.Tracks = []*lm.Track{
		{
			Positions: []geom.Vector3{{}, {}},
			Rotations: []geom.Quaternion{{W: 1}, {W: 1}},
		},
		{
			Positions: []geom.Vector3{{Y: 10}, {Y: 11}},
			Rotations: []geom.Quaternion{{W: 1}, {W: 1}},
		},
	}
	return skeleton
}

func testModel() *lm.LMODocument {
	mesh := &lm.Mesh{
		Positions: []geom.Vector3{{X: 0, Y: 0, Z: 0}, {X: 100, Y: 0, Z: 0}, {X: 0, Y: 100, Z: 0}},
		Normals:   []geom.Vector3{{Z: 1}, {Z: 1}, {Z: 1}},
		TexCoords: [][]geom.Vector2{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}},
		Blends: []lm.Blend{
			{Bones: [4]uint8{0}, Weights: [4]float32{1}},
			{Bones: [4]uint8{0, 1}, Weights: [4]float32{0.5, 0.5}},
			{Bones: [4]uint8{1}, Weights: [4]float32{1}},
		},
		Indices:     []uint32{0, 1, 2},
		Subsets:     []*lm.Subset{{Start: 0, PrimitiveCount: 1, VertexCount: 3}},
		BoneIndexes: []uint32{0, 1},
	}
	mesh.UpdateFVF()
	obj := &lm.Object{
		ID:    1,
		Local: *geom.NewMatrix4(),
		Materials: []*lm.Material{
			{
				Diffuse: [4]float32{1, 0.5, 0.25, 1},
				Opacity: 1,
				Stages:  []*lm.TextureStage{{}},
			},
		},
		Mesh: mesh,
	}
	return &lm.LMODocument{
		Version: 1,
		Entries: []*lm.Entry{{Type: lm.EntryTypeGeometry, Object: obj}},
	}
}

func TestConvertSkinnedModel(t *testing.T) {
	conv := NewLMToGLTFConverter(nil)
	doc, err := conv.Convert(testModel(), testSkeleton(), "")
	if err != nil {
		t.Fatal(err)
	}

	// 2 bones + 1 object
	if len(doc.Nodes) != 3 {
		t.Fatal("nodes: ", len(doc.Nodes))
	}
	if doc.Nodes[0].Name != "root" || doc.Nodes[1].Name != "spine" {
		t.Error("bone nodes: ", doc.Nodes[0].Name, doc.Nodes[1].Name)
	}
	if len(doc.Nodes[0].Children) != 1 || doc.Nodes[0].Children[0] != 1 {
		t.Error("hierarchy: ", doc.Nodes[0].Children)
	}
	if doc.Nodes[1].Translation[1] != 10*conv.Scale {
		t.Error("spine translation: ", doc.Nodes[1].Translation)
	}

	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 1 {
		t.Fatal("meshes: ", doc.Meshes)
	}
	attrs := doc.Meshes[0].Primitives[0].Attributes
	for _, name := range []string{"POSITION", "NORMAL", "TEXCOORD_0", "JOINTS_0", "WEIGHTS_0"} {
		if _, ok := attrs[name]; !ok {
			t.Error("missing attribute: ", name)
		}
	}

	objNode := doc.Nodes[2]
	if objNode.Mesh == nil || objNode.Skin == nil {
		t.Fatal("object node not linked: ", objNode)
	}
	if len(doc.Skins) != 1 || len(doc.Skins[0].Joints) != 2 {
		t.Fatal("skins: ", doc.Skins)
	}
	if doc.Skins[0].InverseBindMatrices == nil {
		t.Error("no inverse bind matrices")
	}

	if len(doc.Materials) != 1 {
		t.Fatal("materials: ", len(doc.Materials))
	}
	bc := doc.Materials[0].PBRMetallicRoughness.BaseColorFactor
	if bc == nil || bc[0] != 1 || bc[1] != 0.5 {
		t.Error("base color: ", bc)
	}

	if len(doc.Animations) != 1 {
		t.Fatal("animations: ", len(doc.Animations))
	}
	// translation+rotation per bone
	if len(doc.Animations[0].Channels) != 4 {
		t.Error("channels: ", len(doc.Animations[0].Channels))
	}
}

func TestConvertStaticModel(t *testing.T) {
	model := testModel()
	obj := model.Entries[0].Object
	obj.Mesh.Blends = nil
	obj.Mesh.BoneIndexes = nil

	doc, err := NewLMToGLTFConverter(&LMToGLTFOption{Scale: 1}).Convert(model, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 1 {
		t.Fatal("nodes: ", len(doc.Nodes))
	}
	if len(doc.Skins) != 0 || len(doc.Animations) != 0 {
		t.Error("unexpected skin or animation")
	}
	attrs := doc.Meshes[0].Primitives[0].Attributes
	if _, ok := attrs["JOINTS_0"]; ok {
		t.Error("unexpected JOINTS_0")
	}
}

func TestConvertInvalidSkinning(t *testing.T) {
	model := testModel()
	model.Entries[0].Object.Mesh.BoneIndexes = []uint32{0, 5}

	_, err := NewLMToGLTFConverter(nil).Convert(model, testSkeleton(), "")
	if err == nil {
		t.Fatal("expected skinning error")
	}
}

func TestApplyNodeTransforms(t *testing.T) {
	skeleton := testSkeleton()
	conv := NewLMToGLTFConverter(nil)
	doc, err := conv.Convert(testModel(), skeleton, "")
	if err != nil {
		t.Fatal(err)
	}

	doc.Nodes[1].Translation = [3]float32{1 * conv.Scale, 20 * conv.Scale, 0}
	if n := ApplyNodeTransforms(doc, skeleton, conv.Scale); n != 2 {
		t.Fatal("updated: ", n)
	}

	mat := skeleton.Bones[1].LocalBind
	if geom.Abs(mat[12]-1) > 0.001 || geom.Abs(mat[13]-20) > 0.001 {
		t.Error("translation not applied: ", mat[12], mat[13], mat[14])
	}
	if err := skeleton.Validate(); err != nil {
		t.Error(err)
	}
}

func TestLoadExportPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.yaml")
	body := "scale: 0.5\nforceUnlit: true\ntextureDir: tex\ntextureResolutionLimit: 512\n"
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	preset, err := LoadExportPreset(path)
	if err != nil {
		t.Fatal(err)
	}
	if preset.Scale != 0.5 || !preset.ForceUnlit || preset.TextureDir != "tex" {
		t.Error("preset: ", preset)
	}
	opt := preset.Option()
	if opt.Scale != 0.5 || opt.TextureResolutionLimit != 512 {
		t.Error("option: ", opt)
	}
}

func TestFillTextureInfo(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "t.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	model := testModel()
	stage := model.Entries[0].Object.Materials[0].Stages[0]
	stage.Texture = "t.png"

	if n := FillTextureInfo(model, dir); n != 1 {
		t.Fatal("updated: ", n)
	}
	if stage.Width != 4 || stage.Height != 2 {
		t.Error("size: ", stage.Width, stage.Height)
	}

	// already filled: untouched
	if n := FillTextureInfo(model, dir); n != 0 {
		t.Error("re-updated: ", n)
	}
}
