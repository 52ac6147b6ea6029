package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/lmconv/converter"
	"github.com/binzume/lmconv/lm"
	"github.com/qmuntal/gltf"
)

func defaultOutputFile(input string) string {
	ext := strings.ToLower(filepath.Ext(input))
	base := input[0 : len(input)-len(ext)]
	return base + ".glb"
}

func isModelExt(ext string) bool {
	return ext == ".lgo" || ext == ".lmo"
}

func loadInputs(inputs []string) (*lm.LMODocument, *lm.LABDocument, error) {
	var model *lm.LMODocument
	var skeleton *lm.LABDocument
	for _, input := range inputs {
		ext := strings.ToLower(filepath.Ext(input))
		if isModelExt(ext) {
			doc, err := lm.LoadLMO(input)
			if err != nil {
				return nil, nil, err
			}
			model = doc
		} else if ext == ".lab" {
			doc, err := lm.LoadLAB(input)
			if err != nil {
				return nil, nil, err
			}
			skeleton = doc
		} else {
			return nil, nil, fmt.Errorf("unsupported input type: %v", ext)
		}
	}
	return model, skeleton, nil
}

func saveOutput(model *lm.LMODocument, skeleton *lm.LABDocument, output, srcDir string, opt *converter.LMToGLTFOption) error {
	ext := strings.ToLower(filepath.Ext(output))
	if ext == ".glb" {
		conv := converter.NewLMToGLTFConverter(opt)
		doc, err := conv.Convert(model, skeleton, srcDir)
		if err != nil {
			return err
		}
		return gltf.SaveBinary(doc, output)
	} else if isModelExt(ext) {
		if model == nil {
			return fmt.Errorf("no geometry input for %v", output)
		}
		return lm.SaveLMO(model, output)
	} else if ext == ".lab" {
		if skeleton == nil {
			return fmt.Errorf("no skeleton input for %v", output)
		}
		return lm.SaveLAB(skeleton, output)
	}
	return fmt.Errorf("unsupported output type: %v", ext)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s input.lgo [input.lab] [output.glb]\n", os.Args[0])
		flag.PrintDefaults()
	}
	info := flag.Bool("info", false, "dump file structure and exit")
	verify := flag.Bool("verify", false, "check decode/encode round-trip and exit")
	preset := flag.String("preset", "", "export preset file (YAML)")
	scale := flag.Float64("scale", 0, "0:default")
	forceUnlit := flag.Bool("gltfunlit", false, "unlit all materials")
	texDir := flag.String("texdir", "", "texture directory (default: input directory)")
	texInfo := flag.Bool("texinfo", false, "probe texture files and fill missing sizes")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}

	if *verify {
		for _, input := range flag.Args() {
			if err := verifyFile(input); err != nil {
				log.Fatal(input, ": ", err)
			}
		}
		return
	}
	if *info {
		for _, input := range flag.Args() {
			if err := dumpFile(input); err != nil {
				log.Fatal(input, ": ", err)
			}
		}
		return
	}

	// last arg is the output unless it looks like another input
	inputs := flag.Args()
	output := ""
	last := strings.ToLower(filepath.Ext(inputs[len(inputs)-1]))
	if len(inputs) > 1 && (len(inputs) > 2 || !isModelExt(last) && last != ".lab") {
		output = inputs[len(inputs)-1]
		inputs = inputs[:len(inputs)-1]
	}
	if output == "" {
		output = defaultOutputFile(inputs[0])
	}

	opt := &converter.LMToGLTFOption{}
	if *preset != "" {
		p, err := converter.LoadExportPreset(*preset)
		if err != nil {
			log.Fatal(err)
		}
		opt = p.Option()
		if *texDir == "" {
			*texDir = p.TextureDir
		}
	}
	if *scale != 0 {
		opt.Scale = float32(*scale)
	}
	if *forceUnlit {
		opt.ForceUnlit = true
	}

	model, skeleton, err := loadInputs(inputs)
	if err != nil {
		log.Fatal(err)
	}
	if model == nil && strings.ToLower(filepath.Ext(output)) == ".glb" {
		log.Fatal("no geometry input")
	}

	srcDir := *texDir
	if srcDir == "" {
		srcDir = filepath.Dir(inputs[0])
	}

	if *texInfo && model != nil {
		n := converter.FillTextureInfo(model, srcDir)
		log.Print("texture info filled: ", n)
	}

	log.Print("out: ", output)
	if err := saveOutput(model, skeleton, output, srcDir, opt); err != nil {
		log.Fatal(err)
	}
}
