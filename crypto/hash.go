// Package crypto implements the cryptographic primitives of the consensus
// engine: secp256k1 keypair generation, deterministic low-S ECDSA signing and
// verification, and address derivation, built on the secp256k1 lineage
// vendored by EXCCoin-exccd (github.com/decred/dcrd/dcrec/secp256k1/v4) and
// the hashing idiom of util/daghash.
package crypto

import "crypto/sha256"

// HashSize is the size in bytes of a SHA-256 digest.
const HashSize = sha256.Size

// Hash is a fixed-size SHA-256 digest, used for txids, header hashes, and
// merkle nodes.
type Hash [HashSize]byte

// Sum256 returns the SHA-256 digest of data.
func Sum256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// DoubleSum256 returns SHA-256(SHA-256(data)). Header hashes and txids in
// this module use the single Sum256, not this function.
func DoubleSum256(data []byte) Hash {
	first := sha256.Sum256(data)
	return Hash(sha256.Sum256(first[:]))
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// IsZero reports whether h is the all-zero hash (used for coinbase prevout
// markers and "no parent" sentinels).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Less reports whether h sorts before other in byte order. Package merkle
// orders sibling pairs with bytes.Compare and does not call it.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}
