package converter

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/lmconv/geom"
	"github.com/binzume/lmconv/lm"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/blezek/tga"
	_ "github.com/oov/psd"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

type LMToGLTFOption struct {
	Scale      float32 // Default: 0.01
	ForceUnlit bool
	FrameRate  float32 // Default: 30

	TextureReCompress      bool
	TextureBytesThreshold  int64 // 0: unlimited
	TextureResolutionLimit int   // 0: unlimited
	TextureScale           float32
}

type lmToGltf struct {
	*LMToGLTFOption
	*gltf.Document

	// skeleton bone index -> glTF node
	BoneToNode []uint32
}

type textureCache struct {
	srcDir   string
	textures map[string]*textureInfo
}

type textureInfo struct {
	name string
	id   *uint32
	img  image.Image
	err  error
}

func (c *textureCache) get(name string) *textureInfo {
	if t, ok := c.textures[name]; ok {
		return t
	}
	t := &textureInfo{name: name}
	c.textures[name] = t
	return t
}

func (c *textureCache) getImage(name string) (image.Image, error) {
	t := c.get(name)
	if t.img != nil || t.err != nil {
		return t.img, t.err
	}

	f, err := os.Open(filepath.Join(c.srcDir, t.name))
	if err != nil {
		t.err = err
		return nil, err
	}
	defer f.Close()

	t.img, _, t.err = image.Decode(f)
	if t.err != nil && strings.ToLower(filepath.Ext(t.name)) == ".tga" {
		// retry
		f.Seek(0, io.SeekStart)
		t.img, t.err = tga.Decode(f)
	}
	return t.img, t.err
}

func NewLMToGLTFConverter(options *LMToGLTFOption) *lmToGltf {
	if options == nil {
		options = &LMToGLTFOption{}
	}
	if options.Scale == 0 {
		options.Scale = 0.01
	}
	if options.FrameRate == 0 {
		options.FrameRate = 30
	}
	if options.TextureScale == 0 {
		options.TextureScale = 1.0
	}
	return &lmToGltf{
		LMToGLTFOption: options,
		Document:       gltf.NewDocument(),
	}
}

func (m *lmToGltf) addMatrices(mat [][4][4]float32) uint32 {
	a := make([][4]float32, len(mat)*4)
	for i, m := range mat {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(m.Document, a)
	m.Accessors[acc].Type = gltf.AccessorMat4
	m.Accessors[acc].Count /= 4
	m.BufferViews[*m.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

func (m *lmToGltf) nodeTRS(node *gltf.Node, mat *geom.Matrix4) {
	t, r, s := mat.Decompose()
	node.Translation = [3]float32{t.X * m.Scale, t.Y * m.Scale, t.Z * m.Scale}
	node.Rotation = [4]float32{r.X, r.Y, r.Z, r.W}
	node.Scale = [3]float32{s.X, s.Y, s.Z}
}

// addBoneNodes converts the skeleton into a node hierarchy. Bones are
// parent-before-child, so a single pass can link children.
func (m *lmToGltf) addBoneNodes(skeleton *lm.LABDocument) []uint32 {
	joints := make([]uint32, len(skeleton.Bones))
	for i, b := range skeleton.Bones {
		n := uint32(len(m.Nodes))
		joints[i] = n
		node := &gltf.Node{Name: b.Name}
		m.nodeTRS(node, &b.LocalBind)
		m.Nodes = append(m.Nodes, node)
		if b.Parent == lm.BoneNone {
			m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, n)
		} else {
			parent := m.Nodes[joints[b.Parent]]
			parent.Children = append(parent.Children, n)
		}
	}

	for _, d := range skeleton.Dummies {
		n := uint32(len(m.Nodes))
		node := &gltf.Node{Name: fmt.Sprintf("dummy_%d", d.ID)}
		m.nodeTRS(node, &d.Local)
		m.Nodes = append(m.Nodes, node)
		parent := m.Nodes[joints[d.ParentBone(len(skeleton.Bones))]]
		parent.Children = append(parent.Children, n)
	}
	m.BoneToNode = joints
	return joints
}

func (m *lmToGltf) addSkin(joints []uint32, skeleton *lm.LABDocument) uint32 {
	scale := m.Scale
	invmats := make([][4][4]float32, len(joints))
	for i := range joints {
		inv := skeleton.InverseBind[i]
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				invmats[i][r][c] = inv[r*4+c]
			}
		}
		invmats[i][3][0] *= scale
		invmats[i][3][1] *= scale
		invmats[i][3][2] *= scale
	}
	m.Skins = append(m.Skins, &gltf.Skin{
		Joints:              joints,
		InverseBindMatrices: gltf.Index(m.addMatrices(invmats)),
	})
	return uint32(len(m.Skins) - 1)
}

func (m *lmToGltf) getWeights(mesh *lm.Mesh) ([][4]uint16, [][4]float32) {
	if len(mesh.Blends) == 0 {
		return nil, nil
	}
	joints := make([][4]uint16, len(mesh.Blends))
	weights := make([][4]float32, len(mesh.Blends))
	for v := range mesh.Blends {
		b := &mesh.Blends[v]
		for s := 0; s < 4; s++ {
			if b.Weights[s] <= 0 {
				continue
			}
			slot := int(b.Bones[s])
			if slot >= len(mesh.BoneIndexes) {
				log.Fatal("invalid blend slot. V:", v, " S:", slot)
			}
			joints[v][s] = uint16(mesh.BoneIndexes[slot])
			weights[v][s] = b.Weights[s]
		}
	}
	return joints, weights
}

func (m *lmToGltf) convertMesh(obj *lm.Object, name string, materialBase int) *gltf.Mesh {
	scale := m.Scale
	mesh := obj.Mesh

	vertexes := make([][3]float32, len(mesh.Positions))
	for i, v := range mesh.Positions {
		vertexes[i] = [3]float32{v.X * scale, v.Y * scale, v.Z * scale}
	}

	attributes := map[string]uint32{
		"POSITION": modeler.WritePosition(m.Document, vertexes),
	}
	if len(mesh.Normals) > 0 && !m.ForceUnlit {
		normals := make([][3]float32, len(mesh.Normals))
		for i, n := range mesh.Normals {
			n.ToArray(normals[i][:])
		}
		attributes["NORMAL"] = modeler.WriteNormal(m.Document, normals)
	}
	for set, uvs := range mesh.TexCoords {
		texcood := make([][2]float32, len(uvs))
		for i, uv := range uvs {
			texcood[i] = [2]float32{uv.X, uv.Y}
		}
		attributes[fmt.Sprintf("TEXCOORD_%d", set)] = modeler.WriteTextureCoord(m.Document, texcood)
	}
	if len(mesh.Colors) > 0 {
		colors := make([][4]uint8, len(mesh.Colors))
		for i, c := range mesh.Colors {
			// D3DCOLOR is ARGB packed
			colors[i] = [4]uint8{uint8(c >> 16), uint8(c >> 8), uint8(c), uint8(c >> 24)}
		}
		attributes["COLOR_0"] = modeler.WriteColor(m.Document, colors)
	}
	if joints, weights := m.getWeights(mesh); joints != nil {
		attributes["JOINTS_0"] = modeler.WriteJoints(m.Document, joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(m.Document, weights)
	}

	// one primitive per subset, subsets are material-ordered
	var primitives []*gltf.Primitive
	addPrimitive := func(indices []uint32, mat int) {
		p := &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(m.Document, indices)),
			Attributes: attributes,
		}
		if mat < len(obj.Materials) {
			p.Material = gltf.Index(uint32(materialBase + mat))
		}
		primitives = append(primitives, p)
	}
	if len(mesh.Subsets) > 0 {
		for si, sub := range mesh.Subsets {
			start := int(sub.Start)
			end := start + int(sub.PrimitiveCount)*3
			if start > len(mesh.Indices) || end > len(mesh.Indices) {
				log.Print("subset out of range: ", name, " subset ", si)
				continue
			}
			addPrimitive(mesh.Indices[start:end], si)
		}
	} else if len(mesh.Indices) > 0 {
		addPrimitive(mesh.Indices, 0)
	}

	return &gltf.Mesh{Name: name, Primitives: primitives}
}

func (m *lmToGltf) hasAlpha(texture string, textures *textureCache) bool {
	if texture == "" || strings.HasSuffix(texture, ".jpg") || strings.HasSuffix(texture, ".bmp") {
		return false
	}
	img, err := textures.getImage(texture)
	if err != nil {
		return false
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return !rgba.Opaque()
	}
	if rgba, ok := img.(*image.NRGBA); ok {
		return !rgba.Opaque()
	}
	return false
}

func scaleTexture(texture string, mime string, textures *textureCache, scale float32, limit int) (io.Reader, error) {
	img, err := textures.getImage(texture)
	if err != nil {
		return nil, err
	}
	rect := img.Bounds()

	if limit > 0 {
		sz := int(float32(rect.Dx()) * scale)
		if sz > limit {
			scale *= float32(limit) / float32(sz)
		}
	}

	if scale != 1.0 {
		dst := image.NewRGBA(image.Rect(0, 0, int(float32(rect.Dx())*scale), int(float32(rect.Dy())*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
		img = dst
	}

	w := new(bytes.Buffer)
	if mime == "image/png" {
		err = png.Encode(w, img)
	} else {
		err = jpeg.Encode(w, img, nil)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (m *lmToGltf) addTexture(texture string, textures *textureCache) (*uint32, error) {
	t := textures.get(texture)
	if t.id != nil {
		return t.id, nil
	}
	ext := strings.ToLower(filepath.Ext(texture))

	encode := m.TextureReCompress
	if m.TextureBytesThreshold > 0 {
		stat, err := os.Stat(filepath.Join(textures.srcDir, texture))
		if err != nil {
			return nil, err
		}
		if stat.Size() > m.TextureBytesThreshold {
			encode = true
		}
	}

	var mimeType string
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	} else if ext == ".png" {
		mimeType = "image/png"
	} else {
		mimeType = "image/png"
		encode = true
	}

	var r io.Reader
	if encode {
		r2, err := scaleTexture(texture, mimeType, textures, m.TextureScale, m.TextureResolutionLimit)
		if err != nil {
			return nil, err
		}
		r = r2
	} else {
		f, err := os.Open(filepath.Join(textures.srcDir, texture))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	img, err := modeler.WriteImage(m.Document, filepath.Base(texture), mimeType, r)
	if err != nil {
		return nil, err
	}
	m.Buffers[0].ByteLength = uint32(len(m.Buffers[0].Data)) // avoid AddImage bug
	m.Textures = append(m.Textures,
		&gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(img)})

	t.id = gltf.Index(uint32(len(m.Textures)) - 1)

	return t.id, nil
}

func (m *lmToGltf) convertMaterial(obj *lm.Object, mat *lm.Material, index int, textures *textureCache) *gltf.Material {
	var unlitMaterialExt = "KHR_materials_unlit"
	var rf float32 = 0.8
	var mf float32 = 0
	if mat.Flags&lm.MaterialFlagSpecular != 0 {
		mf = mat.Specular[0]
		rf = 1 / (1 + mat.Power*0.1)
	}
	mm := &gltf.Material{
		Name: fmt.Sprintf("mat_%d_%d", obj.ID, index),
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{mat.Diffuse[0], mat.Diffuse[1], mat.Diffuse[2], mat.Opacity},
			RoughnessFactor: &rf,
			MetallicFactor:  &mf,
		},
	}
	if mat.Flags&lm.MaterialFlagEmissive != 0 {
		mm.EmissiveFactor = [3]float32{mat.Emissive[0], mat.Emissive[1], mat.Emissive[2]}
	}

	var texture string
	if len(mat.Stages) > 0 {
		texture = mat.Stages[0].Texture
	}
	if obj.AlphaRef > 0 {
		mm.AlphaMode = gltf.AlphaMask
		cutoff := float32(obj.AlphaRef) / 255
		mm.AlphaCutoff = &cutoff
	} else if mat.Opacity < 0.99 || m.hasAlpha(texture, textures) {
		mm.AlphaMode = gltf.AlphaBlend
	}
	if m.ForceUnlit {
		mm.Extensions = map[string]interface{}{unlitMaterialExt: map[string]string{}}
	}

	if texture != "" {
		if tex, err := m.addTexture(texture, textures); err == nil {
			mm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{
				Index: *tex,
			}
		} else {
			log.Print("Texture read error:", err)
		}
	}
	return mm
}

// addSkeletonAnimation converts the keyframe tracks into one glTF
// animation, one translation/rotation/scale channel per animated bone.
func (m *lmToGltf) addSkeletonAnimation(skeleton *lm.LABDocument, joints []uint32) {
	if skeleton.FrameNum == 0 || len(skeleton.Tracks) == 0 {
		return
	}
	a := &gltf.Animation{Name: "take0"}

	keys := make([]float32, skeleton.FrameNum)
	for f := range keys {
		keys[f] = float32(f) / m.FrameRate
	}
	keysAcc := modeler.WriteAccessor(m.Document, gltf.TargetArrayBuffer, keys)

	for bi, track := range skeleton.Tracks {
		translations := make([][3]float32, skeleton.FrameNum)
		rotations := make([][4]float32, skeleton.FrameNum)
		scales := make([][3]float32, skeleton.FrameNum)
		scaled := false
		for f := 0; f < skeleton.FrameNum; f++ {
			t, r, s := track.Key(skeleton.KeyType, f)
			translations[f] = [3]float32{t.X * m.Scale, t.Y * m.Scale, t.Z * m.Scale}
			rotations[f] = [4]float32{r.X, r.Y, r.Z, r.W}
			scales[f] = [3]float32{s.X, s.Y, s.Z}
			if geom.Abs(s.X-1) > 0.001 || geom.Abs(s.Y-1) > 0.001 || geom.Abs(s.Z-1) > 0.001 {
				scaled = true
			}
		}

		addChannel := func(output uint32, target gltf.ChannelTarget) {
			a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
				Input:         gltf.Index(keysAcc),
				Output:        gltf.Index(output),
				Interpolation: gltf.InterpolationLinear,
			})
			a.Channels = append(a.Channels, &gltf.Channel{
				Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
				Target:  target,
			})
		}
		node := gltf.Index(joints[bi])
		addChannel(modeler.WritePosition(m.Document, translations),
			gltf.ChannelTarget{Node: node, Path: gltf.TRSTranslation})
		addChannel(modeler.WriteTangent(m.Document, rotations),
			gltf.ChannelTarget{Node: node, Path: gltf.TRSRotation})
		if scaled {
			addChannel(modeler.WritePosition(m.Document, scales),
				gltf.ChannelTarget{Node: node, Path: gltf.TRSScale})
		}
	}

	if len(a.Channels) > 0 {
		m.Document.Animations = append(m.Document.Animations, a)
	}
}

// addObjectAnimation converts an object's baked matrix animation into
// TRS channels targeting the object's node.
func (m *lmToGltf) addObjectAnimation(obj *lm.Object, node uint32) error {
	trsKeys, err := obj.AnimationKeys()
	if err != nil {
		return err
	}
	if len(trsKeys) == 0 {
		return nil
	}
	a := &gltf.Animation{Name: fmt.Sprintf("obj_%d", obj.ID)}

	keys := make([]float32, len(trsKeys))
	translations := make([][3]float32, len(trsKeys))
	rotations := make([][4]float32, len(trsKeys))
	scales := make([][3]float32, len(trsKeys))
	for f, k := range trsKeys {
		keys[f] = float32(f) / m.FrameRate
		translations[f] = [3]float32{k.Translation.X * m.Scale, k.Translation.Y * m.Scale, k.Translation.Z * m.Scale}
		rotations[f] = [4]float32{k.Rotation.X, k.Rotation.Y, k.Rotation.Z, k.Rotation.W}
		scales[f] = [3]float32{k.Scale.X, k.Scale.Y, k.Scale.Z}
	}
	keysAcc := modeler.WriteAccessor(m.Document, gltf.TargetArrayBuffer, keys)
	addChannel := func(output uint32, target gltf.ChannelTarget) {
		a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(keysAcc),
			Output:        gltf.Index(output),
			Interpolation: gltf.InterpolationLinear,
		})
		a.Channels = append(a.Channels, &gltf.Channel{
			Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
			Target:  target,
		})
	}
	n := gltf.Index(node)
	addChannel(modeler.WritePosition(m.Document, translations),
		gltf.ChannelTarget{Node: n, Path: gltf.TRSTranslation})
	addChannel(modeler.WriteTangent(m.Document, rotations),
		gltf.ChannelTarget{Node: n, Path: gltf.TRSRotation})
	addChannel(modeler.WritePosition(m.Document, scales),
		gltf.ChannelTarget{Node: n, Path: gltf.TRSScale})
	m.Document.Animations = append(m.Document.Animations, a)
	return nil
}

// Convert builds a glTF document from a geometry container and an
// optional skeleton. skeleton may be nil for static models.
func (m *lmToGltf) Convert(model *lm.LMODocument, skeleton *lm.LABDocument, textureDir string) (*gltf.Document, error) {
	var joints []uint32
	if skeleton != nil {
		if err := model.ValidateSkinning(len(skeleton.Bones)); err != nil {
			return nil, err
		}
		joints = m.addBoneNodes(skeleton)
	}

	textures := &textureCache{srcDir: textureDir, textures: map[string]*textureInfo{}}

	objects := model.Objects()
	objNodes := map[uint32]uint32{}
	for _, obj := range objects {
		n := uint32(len(m.Nodes))
		objNodes[obj.ID] = n
		node := &gltf.Node{Name: fmt.Sprintf("obj_%d", obj.ID)}
		m.nodeTRS(node, &obj.Local)
		m.Nodes = append(m.Nodes, node)
	}
	for _, obj := range objects {
		n := objNodes[obj.ID]
		if parent, ok := objNodes[obj.ParentID]; ok && obj.ParentID != obj.ID {
			m.Nodes[parent].Children = append(m.Nodes[parent].Children, n)
		} else {
			m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, n)
		}
	}

	useUnlit := false
	for _, obj := range objects {
		node := m.Nodes[objNodes[obj.ID]]

		materialBase := len(m.Document.Materials)
		for i, mat := range obj.Materials {
			mm := m.convertMaterial(obj, mat, i, textures)
			if mm.Extensions["KHR_materials_unlit"] != nil {
				useUnlit = true
			}
			m.Document.Materials = append(m.Document.Materials, mm)
		}

		if obj.Mesh != nil && len(obj.Mesh.Positions) > 0 {
			mesh := m.convertMesh(obj, node.Name, materialBase)
			if len(mesh.Primitives) > 0 {
				node.Mesh = gltf.Index(uint32(len(m.Document.Meshes)))
				m.Document.Meshes = append(m.Document.Meshes, mesh)
			}
			if len(obj.Mesh.Blends) > 0 && skeleton != nil {
				node.Skin = gltf.Index(m.addSkin(joints, skeleton))
			}
		}

		if err := m.addObjectAnimation(obj, objNodes[obj.ID]); err != nil {
			log.Print("animation decode error: ", err)
		}
	}

	if skeleton != nil {
		m.addSkeletonAnimation(skeleton, joints)
	}

	if useUnlit {
		m.ExtensionsUsed = append(m.ExtensionsUsed, "KHR_materials_unlit")
	}
	if len(m.Document.Textures) > 0 {
		m.Document.Samplers = []*gltf.Sampler{{}}
	}
	return m.Document, nil
}
