package memo

import (
	"bytes"
	"encoding/json"
	"unicode/utf16"
)

// Cyrb53a is the cyrb53a string hash. It walks UTF-16 code units so a string hashes
// the same here as in a JavaScript runtime. The result always fits in 53 bits.
//
// It is fast and well mixed but not collision resistant. Two different inputs can
// share a fingerprint, and callers keyed on it will then serve one result for both.
func Cyrb53a(s string, seed uint32) uint64 {
	h1 := uint32(0xdeadbeef) ^ seed
	h2 := uint32(0x41c6ce57) ^ seed
	for _, ch := range utf16.Encode([]rune(s)) {
		h1 = (h1 ^ uint32(ch)) * 0x85ebca77
		h2 = (h2 ^ uint32(ch)) * 0xc2b2ae3d
	}
	h1 ^= (h1 ^ (h2 >> 15)) * 0x735a2d97
	h2 ^= (h2 ^ (h1 >> 15)) * 0xcaf649a9
	h1 ^= h2 >> 16
	h2 ^= h1 >> 16
	return 2097152*uint64(h2) + uint64(h1>>11)
}

func Fingerprint(s string) uint64 {
	return Cyrb53a(s, 0)
}

// Serialize encodes v as compact JSON without HTML escaping or a trailing newline.
func Serialize(v any) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(v)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Key fingerprints the JSON serialization of v.
func Key(v any) (uint64, error) {
	s, err := Serialize(v)
	if err != nil {
		return 0, err
	}
	return Fingerprint(s), nil
}
