package converter

import (
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// ExportPreset is a YAML config for glTF export: scene scale, texture
// handling and animation sampling.
type ExportPreset struct {
	Scale      float32 `yaml:"scale"`
	ForceUnlit bool    `yaml:"forceUnlit"`
	FrameRate  float32 `yaml:"frameRate"`

	TextureDir             string  `yaml:"textureDir"`
	TextureReCompress      bool    `yaml:"textureReCompress"`
	TextureBytesThreshold  int64   `yaml:"textureBytesThreshold"`
	TextureResolutionLimit int     `yaml:"textureResolutionLimit"`
	TextureScale           float32 `yaml:"textureScale"`
}

func LoadExportPreset(path string) (*ExportPreset, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var preset ExportPreset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

func (p *ExportPreset) Option() *LMToGLTFOption {
	return &LMToGLTFOption{
		Scale:                  p.Scale,
		ForceUnlit:             p.ForceUnlit,
		FrameRate:              p.FrameRate,
		TextureReCompress:      p.TextureReCompress,
		TextureBytesThreshold:  p.TextureBytesThreshold,
		TextureResolutionLimit: p.TextureResolutionLimit,
		TextureScale:           p.TextureScale,
	}
}
