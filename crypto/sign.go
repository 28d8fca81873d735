package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the fixed size in bytes of the wire signature format:
// 32-byte R followed by 32-byte S.
const SignatureSize = 64

// Sign produces a deterministic (RFC 6979) low-S ECDSA signature over
// SHA-256(msg), encoded as a fixed 64-byte R||S pair. The same (priv, msg)
// pair always yields the same signature, since RFC 6979 derives the
// nonce deterministically from the private key and message rather than
// drawing it at random.
func Sign(priv *secp256k1.PrivateKey, msg []byte) []byte {
	digest := Sum256(msg)
	sig := dcrecdsa.Sign(priv, digest[:])

	r := sig.R()
	s := sig.S()
	if s.IsOverHalfOrder() {
		s.Negate()
	}

	out := make([]byte, SignatureSize)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[0:32], rBytes[:])
	copy(out[32:64], sBytes[:])
	return out
}

// Verify reports whether sig is a valid, low-S ECDSA signature by pub over
// SHA-256(msg). It never panics: wrong length, non-canonical
// encodings, all-zero signatures, r=0, s=0, and high-S signatures all
// produce false rather than an error.
func Verify(pub *secp256k1.PublicKey, msg []byte, sig []byte) bool {
	if pub == nil || len(sig) != SignatureSize {
		return false
	}

	var rBytes, sBytes [32]byte
	copy(rBytes[:], sig[0:32])
	copy(sBytes[:], sig[32:64])

	if isAllZero(rBytes[:]) || isAllZero(sBytes[:]) {
		return false
	}

	var r, s secp256k1.ModNScalar
	rOverflow := r.SetBytes(&rBytes)
	sOverflow := s.SetBytes(&sBytes)
	if rOverflow != 0 || sOverflow != 0 {
		return false
	}
	if r.IsZero() || s.IsZero() {
		return false
	}
	// Reject malleable high-S signatures outright, even though Sign never
	// produces one: an attacker-supplied signature must not be accepted
	// via its s = n-s twin.
	if s.IsOverHalfOrder() {
		return false
	}

	parsed := dcrecdsa.NewSignature(&r, &s)
	digest := Sum256(msg)
	return parsed.Verify(digest[:], pub)
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
