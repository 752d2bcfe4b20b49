package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a stable, filesystem-safe identifier for s (owner IDs, session tokens).
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
