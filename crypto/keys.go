package crypto

import (
	"crypto/rand"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// PrivateKeySize is the size in bytes of a raw secp256k1 private scalar.
const PrivateKeySize = 32

// PublicKeySize is the size in bytes of an uncompressed secp256k1 public
// point (0x04 prefix + 32-byte X + 32-byte Y).
const PublicKeySize = 65

// KeyPair holds a secp256k1 private scalar and its corresponding
// uncompressed public point.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *secp256k1.PublicKey
}

// GenerateKeyPair produces a new KeyPair using a cryptographically secure
// RNG (crypto/rand, via secp256k1.GeneratePrivateKey) rather than any
// ad-hoc source of randomness, since a weak or predictable RNG would let an
// attacker recover the private key from a handful of signatures.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "crypto: failed to generate private key")
	}
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// DerivePublicKey returns the public key corresponding to a raw 32-byte
// private scalar.
func DerivePublicKey(privBytes []byte) (*secp256k1.PublicKey, error) {
	if len(privBytes) != PrivateKeySize {
		return nil, errors.Errorf("crypto: private key must be %d bytes, got %d", PrivateKeySize, len(privBytes))
	}
	priv := secp256k1.PrivKeyFromBytes(privBytes)
	return priv.PubKey(), nil
}

// SecureRandomBytes returns n cryptographically secure random bytes, the
// sole source of randomness for any security-sensitive value (salts,
// nonces, checkpoint encryption nonces).
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "crypto: failed to read secure random bytes")
	}
	return b, nil
}

// SerializePublicKeyUncompressed returns the 65-byte uncompressed
// serialization (0x04 || X || Y) used as the raw public-key bytes that
// addresses are derived from.
func SerializePublicKeyUncompressed(pub *secp256k1.PublicKey) []byte {
	return pub.SerializeUncompressed()
}

// ParsePublicKey parses an uncompressed or compressed serialized public key.
func ParsePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: malformed public key")
	}
	return pub, nil
}
