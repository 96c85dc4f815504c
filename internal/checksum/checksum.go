// Package checksum computes content digests for notebooks and media assets.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumStrings digests parts in order, separated so that ("ab","c") and ("a","bc") differ.
func SumStrings(parts ...string) string {
	return Sum([]byte(strings.Join(parts, "\x00")))
}
