package lm

import (
	"bytes"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Name fields on disk are fixed-size NUL-padded EUC-KR byte arrays.
// The raw bytes are kept beside the decoded string so that unmodified
// names round-trip byte-exactly even when they are not valid EUC-KR.

func decodeName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	s, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func encodeName(name string, size int) []byte {
	b, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(name))
	if err != nil {
		b = []byte(name)
	}
	if len(b) > size-1 {
		b = b[:size-1]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// packName prefers the original bytes while they still decode to name.
func packName(name string, raw []byte, size int) []byte {
	if len(raw) == size && decodeName(raw) == name {
		out := make([]byte, size)
		copy(out, raw)
		return out
	}
	return encodeName(name, size)
}
