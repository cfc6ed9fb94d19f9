package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID mints an opaque entity id, optionally namespaced with a short prefix
// such as "usr" or "prj".
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
