package lm

import (
	"bytes"
	"testing"
)

func TestNameCodec(t *testing.T) {
	b := encodeName("bone01", 64)
	if len(b) != 64 || decodeName(b) != "bone01" {
		t.Error("ascii: ", b)
	}

	// EUC-KR bytes survive decode/encode
	b = encodeName("머리", 64)
	if decodeName(b) != "머리" {
		t.Error("korean: ", decodeName(b))
	}

	// raw bytes win while they still decode to the same name
	raw := make([]byte, 64)
	copy(raw, "weapon")
	raw[63] = 0x7F // junk past the terminator must be preserved
	out := packName("weapon", raw, 64)
	if !bytes.Equal(out, raw) {
		t.Error("raw bytes not preserved")
	}
	out = packName("renamed", raw, 64)
	if decodeName(out) != "renamed" {
		t.Error("edited name not encoded: ", out)
	}

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	if len(encodeName(string(long), 64)) != 64 {
		t.Error("name not clamped")
	}
}
