package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/mosaicnetworks/dagsync/src/common"
)

// ToPublicKey decodes the uncompressed form of a point on Curve().
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey encodes a public key in uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyID maps a public key to the uint32 creator ID used in events. There
// is a risk of collision, which is accepted in exchange for a compact wire
// encoding.
func PublicKeyID(pub []byte) uint32 {
	return common.Hash32(pub)
}

// PublicKeyHex returns the 0X-prefixed hex form of the uncompressed key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
