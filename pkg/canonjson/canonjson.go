// Package canonjson provides canonical JSON serialization (RFC 8785) and
// digests over it. Canonical form sorts object keys recursively at every
// nesting level while preserving array order, independent of the insertion
// order any JSON encoder happened to use. It is the determinism primitive
// behind offline content addressing.
package canonjson

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 (JCS) canonical form of JSON input.
func Canonicalize(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// CanonicalizeValue marshals v with encoding/json and then canonicalizes the
// result, so the caller's struct field order never influences the output.
func CanonicalizeValue(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(raw)
}

// Digest canonicalizes JSON input and returns a sha256 hex digest of the
// canonical bytes.
func Digest(input []byte) (string, error) {
	canonical, err := Canonicalize(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DigestValue marshals v and returns the sha256 hex digest of its canonical
// serialization.
func DigestValue(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Digest(raw)
}
