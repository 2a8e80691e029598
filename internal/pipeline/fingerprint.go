package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives a cache key from the stage name and its inputs.
// All parts are length-prefixed before hashing so that ("ab","c") and
// ("a","bc") never collide.
func Fingerprint(stage string, parts ...string) string {
	h := sha256.New()
	writePart(h, stage)
	for _, p := range parts {
		writePart(h, p)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writePart(h interface{ Write([]byte) (int, error) }, p string) {
	var lenBuf [8]byte
	n := len(p)
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (8 * i))
	}
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write([]byte(p))
}
