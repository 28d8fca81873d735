package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// Network identifies which address prefix to derive/validate against.
type Network int

const (
	// Mainnet uses the "XAI" address prefix.
	Mainnet Network = iota
	// Testnet uses the "TXAI" address prefix.
	Testnet
)

// MainnetPrefix is the mainnet address prefix.
const MainnetPrefix = "XAI"

// TestnetPrefix is the testnet address prefix.
const TestnetPrefix = "TXAI"

// addressHexDigits is the number of hex digits following the network
// prefix: the first 40 hex digits of SHA-256(raw public-key bytes).
const addressHexDigits = 40

// CoinbaseAddress is the sentinel sender for coinbase transactions: no
// inputs, no signature required.
const CoinbaseAddress = "COINBASE"

// TradeFeeSuffix names the fee-sink sentinel address for a given network,
// e.g. "XAITRADEFEE" or "TXAITRADEFEE".
func TradeFeeSuffix(net Network) string {
	return prefixFor(net) + "TRADEFEE"
}

func prefixFor(net Network) string {
	if net == Testnet {
		return TestnetPrefix
	}
	return MainnetPrefix
}

// DeriveAddress derives the 43 (mainnet) or 44 (testnet) character address
// for a public key: network prefix followed by the first 40 hex digits of
// SHA-256(raw uncompressed public-key bytes).
func DeriveAddress(pub *secp256k1.PublicKey, net Network) string {
	raw := pub.SerializeUncompressed()
	digest := Sum256(raw)
	hexDigest := hex.EncodeToString(digest[:])
	return prefixFor(net) + hexDigest[:addressHexDigits]
}

// IsSentinel reports whether addr is one of the special sentinel addresses
// (COINBASE, or a network's trade-fee sink) that bypass ordinary signature
// and ownership checks.
func IsSentinel(addr string) bool {
	if addr == CoinbaseAddress {
		return true
	}
	return strings.HasSuffix(addr, "TRADEFEE") &&
		(strings.HasPrefix(addr, MainnetPrefix) || strings.HasPrefix(addr, TestnetPrefix))
}

// ValidateAddress checks that addr is well-formed: a recognized network
// prefix followed by exactly 40 lowercase hex digits, or one of the
// sentinel addresses.
func ValidateAddress(addr string) error {
	if IsSentinel(addr) {
		return nil
	}
	var prefix string
	switch {
	case strings.HasPrefix(addr, TestnetPrefix):
		prefix = TestnetPrefix
	case strings.HasPrefix(addr, MainnetPrefix):
		prefix = MainnetPrefix
	default:
		return errors.Errorf("crypto: address %q has unrecognized network prefix", addr)
	}
	rest := addr[len(prefix):]
	if len(rest) != addressHexDigits {
		return errors.Errorf("crypto: address %q has wrong length (want %d hex digits after prefix, got %d)",
			addr, addressHexDigits, len(rest))
	}
	if strings.ToLower(rest) != rest {
		return errors.Errorf("crypto: address %q has non-lowercase hex suffix", addr)
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return errors.Errorf("crypto: address %q has non-hex suffix", addr)
	}
	return nil
}

// AddressMatchesPublicKey reports whether addr was derived from pub on
// either network, used to bind a transaction's sender to its public_key
// field.
func AddressMatchesPublicKey(addr string, pub *secp256k1.PublicKey) bool {
	return addr == DeriveAddress(pub, Mainnet) || addr == DeriveAddress(pub, Testnet)
}
