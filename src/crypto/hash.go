package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 digest of data. Events are content-addressed by
// the SHA256 of their canonical body encoding.
func SHA256(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}
