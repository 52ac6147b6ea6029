package lm

import (
	"bytes"
	"encoding/binary"

	"github.com/binzume/lmconv/geom"
)

// baseWriter serializes little-endian records into a buffer.
// Writes into bytes.Buffer cannot fail; the caller flushes the buffer
// to the destination once and checks that single error.
type baseWriter struct {
	buf bytes.Buffer
}

func (w *baseWriter) writeBytes(b []byte) {
	w.buf.Write(b)
}

func (w *baseWriter) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *baseWriter) writeF32(v float32) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *baseWriter) writeU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *baseWriter) writeVector2(v geom.Vector2) {
	w.writeF32(v.X)
	w.writeF32(v.Y)
}

func (w *baseWriter) writeVector3(v geom.Vector3) {
	w.writeF32(v.X)
	w.writeF32(v.Y)
	w.writeF32(v.Z)
}

func (w *baseWriter) writeQuaternion(v geom.Quaternion) {
	w.writeF32(v.X)
	w.writeF32(v.Y)
	w.writeF32(v.Z)
	w.writeF32(v.W)
}

func (w *baseWriter) writeMatrix4(m geom.Matrix4) {
	for _, v := range m {
		w.writeF32(v)
	}
}

func (w *baseWriter) writeMatrix4x3(m geom.Matrix4x3) {
	for _, v := range m {
		w.writeF32(v)
	}
}
