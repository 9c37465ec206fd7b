// Package checksum computes content revision digests used for optimistic
// concurrency on note updates.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum over a string, the common case for note content.
func SumString(s string) string {
	return Sum([]byte(s))
}
