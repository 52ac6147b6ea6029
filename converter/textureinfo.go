package converter

import (
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/lmconv/lm"
	"github.com/blezek/tga"
)

func textureSize(dir, name string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	conf, _, err := image.DecodeConfig(f)
	if err != nil {
		if strings.ToLower(filepath.Ext(name)) == ".tga" {
			f.Seek(0, io.SeekStart)
			if img, err2 := tga.Decode(f); err2 == nil {
				b := img.Bounds()
				return b.Dx(), b.Dy(), nil
			}
		}
		return 0, 0, err
	}
	return conf.Width, conf.Height, nil
}

// FillTextureInfo probes texture files on disk and fills the stage
// width/height fields that older material versions do not store.
// Stages that already carry a size are left alone. Returns the number
// of stages updated.
func FillTextureInfo(doc *lm.LMODocument, textureDir string) int {
	updated := 0
	for _, obj := range doc.Objects() {
		for _, mat := range obj.Materials {
			for _, stage := range mat.Stages {
				if stage.Texture == "" || stage.Width != 0 || stage.Height != 0 {
					continue
				}
				w, h, err := textureSize(textureDir, stage.Texture)
				if err != nil {
					log.Print("texture probe: ", stage.Texture, ": ", err)
					continue
				}
				stage.Width = uint32(w)
				stage.Height = uint32(h)
				updated++
			}
		}
	}
	return updated
}
