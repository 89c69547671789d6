package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256Parts hashes each part followed by a NUL separator, so ("ab", "c") and ("a", "bc")
// never collide.
func SHA256Parts(parts ...string) string {
	hash := sha256.New()
	for _, p := range parts {
		_, _ = io.WriteString(hash, p)
		_, _ = hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// ShortID truncates a digest for log fields.
func ShortID(digest string) string {
	const n = 12
	if len(digest) > n {
		return digest[:n]
	}
	return digest
}
