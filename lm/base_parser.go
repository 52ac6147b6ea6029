package lm

import (
	"encoding/binary"
	"io"
	"io/ioutil"
	"math"

	"github.com/binzume/lmconv/geom"
	"github.com/pkg/errors"
)

// baseParser reads little-endian records out of an in-memory buffer.
// Short reads set a sticky truncated flag instead of failing each call;
// section decoders check the flag once via section().
type baseParser struct {
	data      []byte
	pos       int
	truncated bool
}

func newBaseParser(r io.Reader) (*baseParser, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "lm: read input")
	}
	return &baseParser{data: data}, nil
}

func (p *baseParser) section(name string) error {
	if p.truncated {
		return &TruncatedError{Section: name, Offset: p.pos, Size: len(p.data)}
	}
	return nil
}

func (p *baseParser) remain() int {
	return len(p.data) - p.pos
}

func (p *baseParser) seek(pos int) {
	if pos > len(p.data) {
		p.truncated = true
		pos = len(p.data)
	}
	p.pos = pos
}

func (p *baseParser) readBytes(n int) []byte {
	if n < 0 || p.pos+n > len(p.data) {
		p.truncated = true
		p.pos = len(p.data)
		return nil
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *baseParser) readU32() uint32 {
	b := p.readBytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (p *baseParser) readF32() float32 {
	return math.Float32frombits(p.readU32())
}

func (p *baseParser) readU8() uint8 {
	b := p.readBytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (p *baseParser) readVector2() geom.Vector2 {
	return geom.Vector2{X: p.readF32(), Y: p.readF32()}
}

func (p *baseParser) readVector3() geom.Vector3 {
	return geom.Vector3{X: p.readF32(), Y: p.readF32(), Z: p.readF32()}
}

func (p *baseParser) readQuaternion() geom.Quaternion {
	return geom.Quaternion{X: p.readF32(), Y: p.readF32(), Z: p.readF32(), W: p.readF32()}
}

func (p *baseParser) readMatrix4() geom.Matrix4 {
	var m geom.Matrix4
	for i := range m {
		m[i] = p.readF32()
	}
	return m
}

func (p *baseParser) readMatrix4x3() geom.Matrix4x3 {
	var m geom.Matrix4x3
	for i := range m {
		m[i] = p.readF32()
	}
	return m
}
