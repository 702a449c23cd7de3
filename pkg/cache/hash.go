package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HTTPKey builds the cache key for a registry response.
// The format is "http:<namespace>:<key>", e.g. "http:crates::serde".
func HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
