package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns a stable hex digest for the given parts. It is used
// to build cache keys from query text plus serialized parameters, so the
// same logical input always maps to the same key.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
